// Package session owns the capture session state machine: it starts a
// capture backend, streams its text, arms silence auto-stop and, on stop,
// routes recorded audio to the local engine or a cloud provider.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/provider"
)

// Status is the lifecycle state of a capture session.
type Status int

const (
	Idle Status = iota
	Listening
	Stopping
	Transcribing
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	case Transcribing:
		return "transcribing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Active reports whether the session still owns the microphone or has a
// transcription pending.
func (s Status) Active() bool {
	return s == Listening || s == Stopping || s == Transcribing
}

// Session is a snapshot of one capture session.
type Session struct {
	ID          string
	Status      Status
	Backend     capture.Kind
	Provider    provider.Provider
	InterimText string
	FinalText   string
	Artifact    *artifact.Ref
	Err         error
	StartedAt   time.Time
}

// BackendFactory builds the capture backend for one session.
type BackendFactory func(kind capture.Kind, sel provider.Selection) (capture.Backend, error)

// LocalEngine runs on-device inference. *transcribe.WhisperEngine
// implements it.
type LocalEngine interface {
	Infer(ctx context.Context, ref artifact.Ref, model, lang string) (string, error)
}

// CloudRouter sends audio to a cloud provider. *cloud.Router implements it.
type CloudRouter interface {
	Transcribe(ctx context.Context, ref artifact.Ref, sel provider.Selection) (string, error)
}

// ModelSource names the active local model. *models.Manager implements it.
type ModelSource interface {
	Active() (string, error)
}

// Advisory tracks the one-time microphone permission notice.
// *state.Store implements it.
type Advisory interface {
	PermissionAdvised() bool
	MarkPermissionAdvised() error
}
