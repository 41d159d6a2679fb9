package session

import (
	"context"
	"errors"

	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/cloud"
	"github.com/chaz8081/gostt-overlay/internal/models"
)

var (
	ErrAlreadyListening = errors.New("session: already listening")
	ErrModeSwitchActive = errors.New("session: cannot switch capture mode during an active session")
)

// FailureKind is a stable name for a class of pipeline failure.
type FailureKind string

const (
	KindAlreadyListening    FailureKind = "already-listening"
	KindDeviceUnavailable   FailureKind = "device-unavailable"
	KindAlreadyDownloading  FailureKind = "already-downloading"
	KindNotInstalled        FailureKind = "not-installed"
	KindNoAPIKey            FailureKind = "no-api-key"
	KindProviderUnsupported FailureKind = "provider-unsupported"
	KindInvalidAudio        FailureKind = "invalid-audio"
	KindHTTP                FailureKind = "http-error"
	KindInferenceFailed     FailureKind = "inference-failed"
	KindModeSwitch          FailureKind = "mode-switch-active"
	KindCancelled           FailureKind = "cancelled"
	KindUnknown             FailureKind = "unknown"
)

// ActionOpenSettings asks the UI to offer a shortcut to the settings view.
const ActionOpenSettings = "open-settings"

// Failure is the UI-facing description of an error.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Action  string      `json:"action,omitempty"`
	Status  int         `json:"status,omitempty"`
	Body    string      `json:"body,omitempty"`
}

// Classify maps any pipeline error to a Failure. Permission and key
// problems carry ActionOpenSettings; HTTP failures carry the raw status
// and body.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	f := Failure{Kind: KindUnknown, Message: err.Error()}

	var httpErr *cloud.HTTPError
	switch {
	case errors.Is(err, ErrAlreadyListening):
		f.Kind = KindAlreadyListening
	case errors.Is(err, ErrModeSwitchActive):
		f.Kind = KindModeSwitch
	case errors.Is(err, capture.ErrDeviceUnavailable):
		f.Kind = KindDeviceUnavailable
		f.Action = ActionOpenSettings
	case errors.Is(err, cloud.ErrNoAPIKey):
		f.Kind = KindNoAPIKey
		f.Action = ActionOpenSettings
	case errors.Is(err, models.ErrNotInstalled), errors.Is(err, models.ErrNoActiveModel):
		f.Kind = KindNotInstalled
		f.Action = ActionOpenSettings
	case errors.Is(err, models.ErrAlreadyDownloading):
		f.Kind = KindAlreadyDownloading
	case errors.Is(err, cloud.ErrProviderUnsupported):
		f.Kind = KindProviderUnsupported
	case errors.Is(err, cloud.ErrInvalidAudio):
		f.Kind = KindInvalidAudio
	case errors.Is(err, models.ErrInferenceFailed):
		f.Kind = KindInferenceFailed
	case errors.As(err, &httpErr):
		if errors.Is(err, context.Canceled) {
			f.Kind = KindCancelled
			break
		}
		f.Kind = KindHTTP
		f.Status = httpErr.Status
		f.Body = httpErr.Body
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Kind = KindCancelled
	}
	return f
}
