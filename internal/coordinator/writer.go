package coordinator

import (
	"fmt"
	"time"

	"github.com/JRF63/monitor-brightness-controller/internal/retry"
)

// Writer applies brightness levels to targets, absorbing transient hardware
// failures with bounded exponential backoff.
type Writer struct {
	policy retry.Policy
	sleep  func(time.Duration)
}

// WriterOption is a functional option for configuring a Writer.
type WriterOption func(*Writer)

// WithSleep replaces the sleep function used between retries. Used in tests
// to avoid real delays.
func WithSleep(fn func(time.Duration)) WriterOption {
	return func(w *Writer) {
		w.sleep = fn
	}
}

// NewWriter creates a writer with the given retry policy.
func NewWriter(policy retry.Policy, opts ...WriterOption) *Writer {
	w := &Writer{
		policy: policy,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Apply clamps level to the target's supported range and writes it,
// retrying per the policy. The clamp happens exactly once per write, here,
// regardless of how many intents were coalesced into this level. Returns
// the clamped level that was sent, plus the last error if every attempt
// failed.
func (w *Writer) Apply(t Target, level uint32) (uint32, error) {
	clamped := t.Clamp(level)
	err := retry.Do(w.policy, w.sleep, func() error {
		return t.WriteBrightness(clamped)
	})
	if err != nil {
		return clamped, fmt.Errorf("failed to set %q to %d: %w", t.Name(), clamped, err)
	}
	return clamped, nil
}
