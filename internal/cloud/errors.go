package cloud

import (
	"errors"
	"fmt"

	"github.com/chaz8081/gostt-overlay/internal/provider"
)

var (
	// ErrNoAPIKey is returned before any network call when the selected
	// provider needs a key and none is configured.
	ErrNoAPIKey = errors.New("cloud: no API key configured")
	// ErrProviderUnsupported is returned for providers the router does not
	// reach, including the on-device engine.
	ErrProviderUnsupported = errors.New("cloud: provider not supported")
	// ErrInvalidAudio is returned when an artifact's encoding cannot be sent
	// to the selected provider.
	ErrInvalidAudio = errors.New("cloud: unsupported audio format")
)

// HTTPError is a failed provider call. Status is 0 when the request never
// got a response.
type HTTPError struct {
	Provider provider.Provider
	Status   int
	Body     string
	Err      error
}

func (e *HTTPError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("cloud: %s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("cloud: %s returned HTTP %d: %s", e.Provider, e.Status, e.Body)
}

func (e *HTTPError) Unwrap() error { return e.Err }
