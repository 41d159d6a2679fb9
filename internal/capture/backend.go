// Package capture defines the capture backend contract and its two
// implementations: the native recorder driven by a host process, and the
// browser recognizer reached over a websocket bridge.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
)

var (
	// ErrAlreadyRecording is reported by a host whose device is already
	// capturing. Callers treat it as a successful start.
	ErrAlreadyRecording = errors.New("capture: already recording")
	// ErrDeviceUnavailable covers denied microphone permission and missing
	// input devices.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")
	// ErrNotStarted is returned by Stop on a backend that was never started.
	ErrNotStarted = errors.New("capture: backend not started")
)

// Kind identifies a capture backend.
type Kind int

const (
	NativeRecorder Kind = iota + 1
	BrowserRecognizer
)

func (k Kind) String() string {
	switch k {
	case NativeRecorder:
		return "native"
	case BrowserRecognizer:
		return "browser"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a config mode name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native":
		return NativeRecorder, nil
	case "browser":
		return BrowserRecognizer, nil
	default:
		return 0, fmt.Errorf("capture: unknown mode %q (supported: native, browser)", s)
	}
}

// UpdateKind classifies a backend update.
type UpdateKind int

const (
	// Interim carries a live preview that replaces the previous one.
	Interim UpdateKind = iota + 1
	// Final carries a confirmed segment to append.
	Final
	// Ended reports that the backend stopped on its own. Err is set when it
	// stopped because of a failure.
	Ended
)

// Update is one event on a backend's update stream.
type Update struct {
	Kind UpdateKind
	Text string
	Err  error
}

// Result is what a backend yields when stopped: direct text, or an
// artifact awaiting transcription.
type Result struct {
	Text     string
	Artifact *artifact.Ref
}

// Backend is a capture implementation. Start returns a stream of updates
// that the backend closes once it has stopped; Stop finalizes the capture.
type Backend interface {
	Kind() Kind
	Start(ctx context.Context) (<-chan Update, error)
	Stop(ctx context.Context) (Result, error)
}

// NativeHost is the out-of-process side of native capture.
type NativeHost interface {
	BeginCapture() error
	EndCapture() (artifact.Ref, error)
}

// joinFinal appends a final segment to accumulated text.
func joinFinal(acc, chunk string) string {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return acc
	}
	if acc == "" {
		return chunk
	}
	return acc + " " + chunk
}
