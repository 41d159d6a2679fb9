package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/silence"
)

// PermissionAdvisory is the text of the one-time microphone notice.
const PermissionAdvisory = "Voice input needs microphone access. Your system may ask for permission now."

// Options wires a Controller to its collaborators. Advisory and Silence
// are optional.
type Options struct {
	Mode        capture.Kind
	Backends    BackendFactory
	Local       LocalEngine
	Cloud       CloudRouter
	Models      ModelSource
	Advisory    Advisory
	Silence     *silence.Monitor
	MinDuration time.Duration
	EventBuffer int
}

// stopCall is a finalize in flight. Later Stop calls wait on done.
type stopCall struct {
	done chan struct{}
	text string
	err  error
}

// Controller owns the single capture session of the process.
type Controller struct {
	opts Options
	hub  *hub

	// op is a one-slot semaphore held across the start and begin-stop
	// phases. Waiting on it honors the caller's context.
	op chan struct{}

	mu          sync.Mutex
	mode        capture.Kind
	sess        Session
	sel         provider.Selection
	cancelStart context.CancelFunc
	backend     capture.Backend
	pumpDone chan struct{}
	quiet    *silence.Subscription
	quit     chan struct{}
	stopping *stopCall
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Mode == 0 {
		opts.Mode = capture.NativeRecorder
	}
	return &Controller{
		opts: opts,
		hub:  newHub(opts.EventBuffer),
		mode: opts.Mode,
		op:   make(chan struct{}, 1),
	}
}

func (c *Controller) lock(ctx context.Context) error {
	select {
	case c.op <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) unlock() { <-c.op }

// Subscribe returns a stream of events for the current or next session.
// The stream ends with exactly one EventCompleted or EventFailed and is
// then closed. Call the returned func to unsubscribe early.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.hub.subscribe()
}

// State returns a snapshot of the current session.
func (c *Controller) State() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// snapshot must be called with c.mu held.
func (c *Controller) snapshot() Session {
	s := c.sess
	if s.Artifact != nil {
		ref := *s.Artifact
		s.Artifact = &ref
	}
	return s
}

// Mode returns the configured capture backend kind.
func (c *Controller) Mode() capture.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the capture backend for future sessions.
func (c *Controller) SetMode(kind capture.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.Status.Active() {
		return ErrModeSwitchActive
	}
	c.mode = kind
	slog.Info("[session] capture mode changed", "mode", kind)
	return nil
}

// Start opens a new session with the given provider selection, which is
// used unchanged until the session ends.
func (c *Controller) Start(ctx context.Context, sel provider.Selection) (Session, error) {
	if err := c.lock(ctx); err != nil {
		return c.State(), err
	}
	defer c.unlock()

	c.mu.Lock()
	if c.sess.Status.Active() {
		s := c.snapshot()
		c.mu.Unlock()
		return s, ErrAlreadyListening
	}
	id := uuid.NewString()
	kind := c.mode
	c.sess = Session{
		ID:        id,
		Status:    Listening,
		Backend:   kind,
		Provider:  sel.Provider,
		StartedAt: time.Now(),
	}
	c.sel = sel
	// Stop cancels a backend that is still opening.
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelStart = cancel
	c.mu.Unlock()

	slog.Info("[session] starting", "id", id, "backend", kind, "provider", sel.Provider)
	c.advise(id)

	backend, err := c.opts.Backends(kind, sel)
	if err != nil {
		return c.failStart(id, fmt.Errorf("session: creating %s backend: %w", kind, err))
	}

	updates, err := backend.Start(startCtx)
	if err != nil && startCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("session: start cancelled by stop: %w", err)
	}
	if errors.Is(err, capture.ErrAlreadyRecording) {
		slog.Warn("[session] host was already recording, resyncing to listening", "id", id)
		err = nil
	}
	if err != nil {
		return c.failStart(id, err)
	}

	c.mu.Lock()
	c.cancelStart = nil
	c.backend = backend
	c.pumpDone = make(chan struct{})
	go c.pump(id, updates, c.pumpDone)
	if kind == capture.NativeRecorder && c.opts.Silence != nil {
		c.quiet = c.opts.Silence.Subscribe()
		c.quit = make(chan struct{})
		go c.watchSilence(id, c.quiet, c.quit)
	}
	s := c.snapshot()
	c.hub.publish(Event{Kind: EventStatus, SessionID: id, Status: Listening})
	c.mu.Unlock()

	return s, nil
}

// advise shows the permission notice once per install. It never blocks
// the start.
func (c *Controller) advise(id string) {
	a := c.opts.Advisory
	if a == nil || a.PermissionAdvised() {
		return
	}
	c.hub.publish(Event{Kind: EventAdvisory, SessionID: id, Status: Listening, Text: PermissionAdvisory})
	if err := a.MarkPermissionAdvised(); err != nil {
		slog.Warn("[session] saving advisory flag", "error", err)
	}
}

func (c *Controller) failStart(id string, err error) (Session, error) {
	slog.Error("[session] start failed", "id", id, "error", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelStart = nil
	c.sess.Status = Failed
	c.sess.Err = err
	c.publishTerminal()
	return c.snapshot(), err
}

// pump applies backend updates in arrival order until the backend closes
// the stream.
func (c *Controller) pump(id string, updates <-chan capture.Update, done chan struct{}) {
	defer close(done)
	for u := range updates {
		switch u.Kind {
		case capture.Interim:
			c.mu.Lock()
			if c.sess.ID != id {
				c.mu.Unlock()
				continue
			}
			c.sess.InterimText = u.Text
			c.hub.publish(Event{Kind: EventInterim, SessionID: id, Status: c.sess.Status, Text: u.Text})
			c.mu.Unlock()
		case capture.Final:
			c.mu.Lock()
			if c.sess.ID != id {
				c.mu.Unlock()
				continue
			}
			c.sess.FinalText = appendFinal(c.sess.FinalText, u.Text)
			c.sess.InterimText = ""
			c.hub.publish(Event{Kind: EventFinal, SessionID: id, Status: c.sess.Status, Text: u.Text})
			c.mu.Unlock()
		case capture.Ended:
			if u.Err != nil {
				slog.Warn("[session] backend ended with error", "id", id, "error", u.Err)
			} else {
				slog.Info("[session] backend ended", "id", id)
			}
			go c.autoStop(id, "backend ended")
		}
	}
}

func (c *Controller) watchSilence(id string, sub *silence.Subscription, quit <-chan struct{}) {
	select {
	case <-sub.C:
		slog.Info("[session] silence detected", "id", id)
		c.autoStop(id, "silence")
	case <-quit:
	}
}

// autoStop runs the manual stop path for session id. The result reaches
// callers through the terminal event.
func (c *Controller) autoStop(id, reason string) {
	if _, err := c.stop(context.Background(), id); err != nil {
		slog.Debug("[session] auto-stop finished with error", "id", id, "reason", reason, "error", err)
	}
}

// Stop finalizes the current session and returns its transcript. On an
// idle or finished session it does nothing and returns "", nil. A Stop
// issued while another is finalizing waits for and returns that result.
// A Stop issued while the backend is still opening cancels the open, and
// the session fails with a cancellation.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	return c.stop(ctx, "")
}

func (c *Controller) stop(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	if c.cancelStart != nil && (id == "" || c.sess.ID == id) {
		slog.Info("[session] stop requested while the backend is opening", "id", c.sess.ID)
		c.cancelStart()
	}
	c.mu.Unlock()

	if err := c.lock(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	if id != "" && c.sess.ID != id {
		c.mu.Unlock()
		c.unlock()
		return "", nil
	}
	if call := c.stopping; call != nil {
		c.mu.Unlock()
		c.unlock()
		select {
		case <-call.done:
			return call.text, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.sess.Status != Listening {
		c.mu.Unlock()
		c.unlock()
		return "", nil
	}

	call := &stopCall{done: make(chan struct{})}
	c.stopping = call
	c.sess.Status = Stopping
	sessID := c.sess.ID
	sel := c.sel
	backend := c.backend
	pumpDone := c.pumpDone
	c.disarmSilence()
	c.hub.publish(Event{Kind: EventStatus, SessionID: sessID, Status: Stopping})
	c.mu.Unlock()
	c.unlock()

	call.text, call.err = c.finalize(ctx, sessID, backend, pumpDone, sel)
	close(call.done)
	return call.text, call.err
}

// disarmSilence must be called with c.mu held.
func (c *Controller) disarmSilence() {
	if c.quiet != nil {
		c.quiet.Cancel()
		c.quiet = nil
	}
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

func (c *Controller) finalize(ctx context.Context, id string, backend capture.Backend, pumpDone <-chan struct{}, sel provider.Selection) (string, error) {
	res, err := backend.Stop(ctx)

	// The backend closes its stream once stopped; wait for the last
	// updates to be applied before the session ends.
	select {
	case <-pumpDone:
	case <-ctx.Done():
		slog.Warn("[session] gave up waiting for backend updates", "id", id)
	}

	if err != nil {
		return c.fail(fmt.Errorf("session: stopping %s backend: %w", backend.Kind(), err))
	}

	if res.Artifact == nil {
		return c.complete(strings.TrimSpace(res.Text))
	}

	ref := *res.Artifact
	c.mu.Lock()
	c.sess.Artifact = &ref
	c.sess.Status = Transcribing
	c.hub.publish(Event{Kind: EventStatus, SessionID: id, Status: Transcribing})
	c.mu.Unlock()

	if c.opts.MinDuration > 0 {
		if d, err := ref.Duration(); err == nil && d < c.opts.MinDuration.Seconds() {
			slog.Info("[session] capture too short, skipping transcription", "id", id, "seconds", d)
			return c.complete("")
		}
	}

	text, err := c.transcribe(ctx, ref, sel)
	if err != nil {
		return c.fail(err)
	}
	return c.complete(text)
}

func (c *Controller) transcribe(ctx context.Context, ref artifact.Ref, sel provider.Selection) (string, error) {
	switch sel.Provider {
	case provider.CustomLocal:
		model, err := c.opts.Models.Active()
		if err != nil {
			return "", err
		}
		slog.Info("[session] transcribing locally", "model", model)
		return c.opts.Local.Infer(ctx, ref, model, sel.Language)
	case provider.OpenAI, provider.Google, provider.OpenRouter:
		slog.Info("[session] transcribing in the cloud", "provider", sel.Provider)
		return c.opts.Cloud.Transcribe(ctx, ref, sel)
	default:
		return c.opts.Cloud.Transcribe(ctx, ref, sel)
	}
}

func (c *Controller) complete(text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.Status = Completed
	c.sess.FinalText = text
	c.sess.InterimText = ""
	c.release()
	slog.Info("[session] completed", "id", c.sess.ID, "chars", len(text))
	c.publishTerminal()
	return text, nil
}

func (c *Controller) fail(err error) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.Status = Failed
	c.sess.Err = err
	c.release()
	slog.Error("[session] failed", "id", c.sess.ID, "error", err)
	c.publishTerminal()
	return "", err
}

// release must be called with c.mu held.
func (c *Controller) release() {
	c.backend = nil
	c.pumpDone = nil
	c.stopping = nil
}

// publishTerminal must be called with c.mu held.
func (c *Controller) publishTerminal() {
	ev := Event{SessionID: c.sess.ID, Status: c.sess.Status}
	switch c.sess.Status {
	case Completed:
		ev.Kind = EventCompleted
		ev.Text = c.sess.FinalText
	default:
		ev.Kind = EventFailed
		f := Classify(c.sess.Err)
		ev.Failure = &f
	}
	c.hub.publish(ev)
}

func appendFinal(acc, chunk string) string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return acc
	}
	if acc == "" {
		return chunk
	}
	return acc + " " + chunk
}
