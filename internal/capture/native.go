package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Native records through a NativeHost. It never emits interim or final
// updates; Stop yields an artifact.
type Native struct {
	host NativeHost

	mu      sync.Mutex
	updates chan Update
}

// NewNative creates a native recorder backend.
func NewNative(host NativeHost) *Native {
	return &Native{host: host}
}

func (n *Native) Kind() Kind { return NativeRecorder }

// Start begins capture. If the host reports ErrAlreadyRecording the
// returned stream is still valid and the error is passed through so the
// caller can log the desync.
func (n *Native) Start(_ context.Context) (<-chan Update, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.host.BeginCapture()
	if err != nil && !errors.Is(err, ErrAlreadyRecording) {
		return nil, fmt.Errorf("capture: starting native capture: %w", err)
	}

	n.updates = make(chan Update)
	return n.updates, err
}

// Stop ends capture and returns the artifact.
func (n *Native) Stop(_ context.Context) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.updates == nil {
		return Result{}, ErrNotStarted
	}
	close(n.updates)
	n.updates = nil

	ref, err := n.host.EndCapture()
	if err != nil {
		return Result{}, fmt.Errorf("capture: ending native capture: %w", err)
	}
	return Result{Artifact: &ref}, nil
}
