package queue

import "time"

// BackoffKind selects the retry delay progression.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// BackoffPolicy computes the delay before a failed job becomes claimable
// again. It is an explicit queue constructor parameter, not ambient
// configuration, so retry behavior is independently testable.
type BackoffPolicy struct {
	Kind      BackoffKind
	BaseDelay time.Duration
	MaxDelay  time.Duration // 0 = uncapped
}

// DefaultBackoff doubles the delay on every failed attempt starting at 2s.
var DefaultBackoff = BackoffPolicy{
	Kind:      BackoffExponential,
	BaseDelay: 2 * time.Second,
}

// Delay returns the wait after the given number of completed attempts
// (attemptsMade >= 1). Exponential: base * 2^(attemptsMade-1).
func (p BackoffPolicy) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}

	d := p.BaseDelay
	if p.Kind == BackoffExponential {
		shift := attemptsMade - 1
		if shift > 32 {
			shift = 32
		}
		d = p.BaseDelay << shift
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
