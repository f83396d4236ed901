// Package backoff computes the delay between reconnection attempts.
package backoff

import "time"

// Reconnection policy defaults.
const (
	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps the exponential growth.
	DefaultMaxDelay = 30 * time.Second
	// DefaultMaxAttempts is how many retries the coordinator allows before
	// giving up; exceeding it is the only path into the terminal state.
	DefaultMaxAttempts = 10
)

// Policy is a stateless exponential backoff policy. The attempt counter is
// owned by the caller; Delay is a pure function of it.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the computed delay.
	Max time.Duration
}

// Default returns the policy with the standard base and cap.
func Default() Policy {
	return Policy{Base: DefaultBaseDelay, Max: DefaultMaxDelay}
}

// Delay returns the wait before reconnection attempt n (1-based):
// min(Base * 2^(n-1), Max). Attempts below 1 are treated as attempt 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		// Cap as soon as the doubling passes Max; this also keeps large
		// attempt numbers from overflowing the duration.
		if delay >= p.Max {
			return p.Max
		}
	}
	if delay > p.Max {
		delay = p.Max
	}
	return delay
}
