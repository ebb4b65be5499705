// Package retry implements bounded exponential backoff for hardware
// operations that transiently fail.
package retry

import "time"

// Policy describes a bounded retry schedule. The delay after the n-th failed
// attempt (zero-based) is Initial << n, so the default policy sleeps 10ms,
// 20ms, 40ms and 80ms between its five attempts.
type Policy struct {
	Attempts int
	Initial  time.Duration
}

// DefaultPolicy matches the schedule display hardware is known to tolerate.
var DefaultPolicy = Policy{
	Attempts: 5,
	Initial:  10 * time.Millisecond,
}

// Backoff returns the delay to wait after the given zero-based failed
// attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.Initial << uint(attempt)
}

// Do runs fn until it succeeds or the policy's attempts are exhausted,
// calling sleep with the backoff delay between attempts. It returns nil on
// success and the last error otherwise. A policy with fewer than one attempt
// still runs fn once.
func Do(p Policy, sleep func(time.Duration), fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sleep(p.Backoff(attempt - 1))
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
