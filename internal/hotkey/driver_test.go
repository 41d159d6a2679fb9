package hotkey

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gostt-overlay/internal/provider"
	"github.com/chaz8081/gostt-overlay/internal/session"
)

// fakeSessions mimics the controller: Stop finishes the session and
// publishes a terminal event to every subscriber.
type fakeSessions struct {
	mu     sync.Mutex
	status session.Status
	text   string
	subs   []chan session.Event
	starts int
	stops  int
}

func (f *fakeSessions) Start(_ context.Context, _ provider.Selection) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == session.Listening {
		return session.Session{Status: f.status}, session.ErrAlreadyListening
	}
	f.starts++
	f.status = session.Listening
	return session.Session{ID: "s", Status: f.status}, nil
}

func (f *fakeSessions) Stop(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != session.Listening {
		return "", nil
	}
	f.stops++
	f.status = session.Completed
	for _, ch := range f.subs {
		ch <- session.Event{Kind: session.EventCompleted, SessionID: "s", Text: f.text}
		close(ch)
	}
	f.subs = nil
	return f.text, nil
}

func (f *fakeSessions) State() session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Session{Status: f.status}
}

func (f *fakeSessions) Subscribe() (<-chan session.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan session.Event, 4)
	f.subs = append(f.subs, ch)
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, c := range f.subs {
			if c == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func (f *fakeSessions) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type recorder struct {
	mu   sync.Mutex
	got  []string
	seen chan struct{}
}

func newRecorder() *recorder { return &recorder{seen: make(chan struct{}, 8)} }

func (r *recorder) deliver(text string) error {
	r.mu.Lock()
	r.got = append(r.got, text)
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-r.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("transcript never delivered")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func newDriver(s *fakeSessions, mode Mode, r *recorder) *Driver {
	return &Driver{
		Sessions: s,
		Mode:     mode,
		Selection: func() (provider.Selection, error) {
			return provider.Selection{Provider: provider.CustomLocal}, nil
		},
		Deliver: r.deliver,
	}
}

func waitStatus(t *testing.T, s *fakeSessions, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.State().Status != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want %v", s.State().Status, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("hold"); err != nil || m != Hold {
		t.Errorf("ParseMode(hold) = %v, %v", m, err)
	}
	if m, err := ParseMode("toggle"); err != nil || m != Toggle {
		t.Errorf("ParseMode(toggle) = %v, %v", m, err)
	}
	if _, err := ParseMode("double-tap"); err == nil {
		t.Error("ParseMode(double-tap) should fail")
	}
}

func TestHoldModePressReleaseDelivers(t *testing.T) {
	s := &fakeSessions{text: "hello"}
	r := newRecorder()
	d := newDriver(s, Hold, r)

	d.handle(context.Background(), Event{Type: EventPress})
	waitStatus(t, s, session.Listening)
	d.handle(context.Background(), Event{Type: EventRelease})

	if got := r.wait(t); len(got) != 1 || got[0] != "hello" {
		t.Errorf("delivered %v, want [hello]", got)
	}
	if starts, stops := s.counts(); starts != 1 || stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1 and 1", starts, stops)
	}
}

func TestToggleModeUsesSessionState(t *testing.T) {
	s := &fakeSessions{text: "toggled"}
	r := newRecorder()
	d := newDriver(s, Toggle, r)

	d.handle(context.Background(), Event{Type: EventPress})
	waitStatus(t, s, session.Listening)

	// Releases are ignored in toggle mode.
	d.handle(context.Background(), Event{Type: EventRelease})
	if s.State().Status != session.Listening {
		t.Fatal("release stopped a toggle session")
	}

	d.handle(context.Background(), Event{Type: EventPress})
	if got := r.wait(t); got[0] != "toggled" {
		t.Errorf("delivered %v", got)
	}

	// The session ended; the next press starts again instead of stopping.
	d.handle(context.Background(), Event{Type: EventPress})
	waitStatus(t, s, session.Listening)
	if starts, _ := s.counts(); starts != 2 {
		t.Errorf("starts = %d, want 2", starts)
	}
}

func TestAutoStoppedSessionIsDelivered(t *testing.T) {
	s := &fakeSessions{text: "stopped on silence"}
	r := newRecorder()
	d := newDriver(s, Toggle, r)

	d.handle(context.Background(), Event{Type: EventPress})
	waitStatus(t, s, session.Listening)

	// Stop from outside the driver, as the silence monitor would.
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := r.wait(t); got[0] != "stopped on silence" {
		t.Errorf("delivered %v", got)
	}
}

func TestEmptyTranscriptNotDelivered(t *testing.T) {
	s := &fakeSessions{}
	r := newRecorder()
	d := newDriver(s, Hold, r)

	d.handle(context.Background(), Event{Type: EventPress})
	waitStatus(t, s, session.Listening)
	d.handle(context.Background(), Event{Type: EventRelease})
	waitStatus(t, s, session.Completed)

	select {
	case <-r.seen:
		t.Error("empty transcript was delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	d := newDriver(&fakeSessions{}, Hold, newRecorder())
	events := make(chan Event)
	close(events)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background(), events)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
}
