package inject

import (
	"fmt"
	"io"
	"sync"
)

// WriterInjector prints each transcript as one line, for terminals and
// pipes.
type WriterInjector struct {
	mu sync.Mutex
	w  io.Writer
}

var _ TextInjector = (*WriterInjector)(nil)

// NewWriterInjector creates a WriterInjector writing to w.
// Panics if w is nil (programmer error).
func NewWriterInjector(w io.Writer) *WriterInjector {
	if w == nil {
		panic("inject: NewWriterInjector called with nil writer")
	}
	return &WriterInjector{w: w}
}

// Inject writes text followed by a newline.
func (wi *WriterInjector) Inject(text string) error {
	if text == "" {
		return nil
	}
	wi.mu.Lock()
	defer wi.mu.Unlock()
	if _, err := fmt.Fprintln(wi.w, text); err != nil {
		return fmt.Errorf("inject: writing transcript: %w", err)
	}
	return nil
}
