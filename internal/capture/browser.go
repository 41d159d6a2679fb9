package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// stopTimeout bounds how long Stop waits for the recognizer to confirm the
// end of recognition before the connection is torn down.
const stopTimeout = 2 * time.Second

// clientMessage is sent to the in-page recognizer.
type clientMessage struct {
	Type           string `json:"type"`
	Lang           string `json:"lang,omitempty"`
	InterimResults bool   `json:"interimResults,omitempty"`
}

// recognizerMessage is received from the in-page recognizer.
type recognizerMessage struct {
	Type    string `json:"type"` // "result", "end" or "error"
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
}

// RecognizerError is a failure reported by the in-page recognizer.
type RecognizerError struct {
	Code string
}

func (e *RecognizerError) Error() string {
	return fmt.Sprintf("capture: recognizer error %q", e.Code)
}

// Unwrap maps permission and microphone failures to ErrDeviceUnavailable.
func (e *RecognizerError) Unwrap() error {
	switch e.Code {
	case "not-allowed", "service-not-allowed", "audio-capture":
		return ErrDeviceUnavailable
	}
	return nil
}

// Browser streams interim and final text from an in-page speech recognizer
// over a websocket bridge.
type Browser struct {
	url    string
	lang   string
	dialer *websocket.Dialer

	wmu     sync.Mutex // serializes writes
	conn    *websocket.Conn
	done    chan struct{}
	closing atomic.Bool

	mu      sync.Mutex
	final   string
	interim string
	err     error
}

// NewBrowser creates a recognizer backend for the bridge at url, recognizing
// the BCP-47 locale lang.
func NewBrowser(url, lang string) *Browser {
	return &Browser{
		url:    url,
		lang:   lang,
		dialer: websocket.DefaultDialer,
	}
}

func (b *Browser) Kind() Kind { return BrowserRecognizer }

// Start connects to the bridge and asks the recognizer to begin.
func (b *Browser) Start(ctx context.Context) (<-chan Update, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: connecting to recognizer at %s: %w", b.url, err)
	}

	b.wmu.Lock()
	b.conn = conn
	b.done = make(chan struct{})
	b.closing.Store(false)
	err = conn.WriteJSON(clientMessage{Type: "start", Lang: b.lang, InterimResults: true})
	b.wmu.Unlock()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("capture: starting recognizer: %w", err)
	}

	updates := make(chan Update, 16)
	go b.read(conn, updates)

	slog.Debug("[capture] recognizer started", "url", b.url, "lang", b.lang)
	return updates, nil
}

func (b *Browser) read(conn *websocket.Conn, updates chan<- Update) {
	defer close(b.done)
	defer close(updates)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if b.closing.Load() {
				return
			}
			b.setErr(fmt.Errorf("capture: recognizer connection lost: %w", err))
			updates <- Update{Kind: Ended, Err: b.lastErr()}
			return
		}

		var msg recognizerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("[capture] ignoring malformed recognizer message", "error", err)
			continue
		}

		switch msg.Type {
		case "result":
			b.mu.Lock()
			if msg.IsFinal {
				b.final = joinFinal(b.final, msg.Text)
				b.interim = ""
			} else {
				b.interim = msg.Text
			}
			b.mu.Unlock()

			kind := Interim
			if msg.IsFinal {
				kind = Final
			}
			updates <- Update{Kind: kind, Text: msg.Text}
		case "end":
			updates <- Update{Kind: Ended}
			return
		case "error":
			rerr := &RecognizerError{Code: msg.Error}
			b.setErr(rerr)
			updates <- Update{Kind: Ended, Err: rerr}
			return
		default:
			slog.Debug("[capture] unknown recognizer message", "type", msg.Type)
		}
	}
}

func (b *Browser) setErr(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}

func (b *Browser) lastErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Stop asks the recognizer to finish, waits for it to end, and returns the
// accumulated final text. A recognizer failure seen during the session is
// returned as the error.
func (b *Browser) Stop(ctx context.Context) (Result, error) {
	b.wmu.Lock()
	conn, done := b.conn, b.done
	if conn == nil {
		b.wmu.Unlock()
		return Result{}, ErrNotStarted
	}
	if err := conn.WriteJSON(clientMessage{Type: "stop"}); err != nil {
		slog.Debug("[capture] sending stop to recognizer", "error", err)
	}
	b.wmu.Unlock()

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		slog.Warn("[capture] recognizer did not confirm stop, closing")
	case <-ctx.Done():
	}

	b.closing.Store(true)
	b.wmu.Lock()
	b.conn = nil
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop"),
		time.Now().Add(time.Second))
	b.wmu.Unlock()
	conn.Close()
	<-done

	b.mu.Lock()
	defer b.mu.Unlock()
	return Result{Text: b.final}, b.err
}

// Interim returns the latest interim preview.
func (b *Browser) Interim() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.interim
}
