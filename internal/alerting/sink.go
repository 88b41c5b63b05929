package alerting

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Sink delivers notification text to a subscriber address.
type Sink interface {
	Deliver(ctx context.Context, address, text string) error
}

// WriterSink prints notifications instead of sending them.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Deliver writes text preceded by the address.
func (s *WriterSink) Deliver(_ context.Context, address, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "--- to %s ---\n%s\n", address, text); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

var _ Sink = (*WriterSink)(nil)
