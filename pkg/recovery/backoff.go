package recovery

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Backoff describes an exponential retry schedule. The attempt n delay
// is min(InitialDelay * Multiplier^(n-1), MaxDelay), with ±25% jitter
// when Jitter is on.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxRetries   int
	Jitter       bool
}

// DefaultBackoff is the schedule used when callers do not supply one:
// 100ms doubling to a 5s ceiling, five attempts.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxRetries:   5,
		Jitter:       true,
	}
}

func (b Backoff) exponential() *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.InitialDelay
	exp.MaxInterval = b.MaxDelay
	exp.Multiplier = b.Multiplier
	if b.Jitter {
		exp.RandomizationFactor = 0.25
	} else {
		exp.RandomizationFactor = 0
	}
	exp.Reset()
	return exp
}

// DelayFor returns the delay before retry attempt n (1-based). Attempts
// past MaxRetries return a negative duration.
func (b Backoff) DelayFor(attempt int) time.Duration {
	if attempt < 1 || attempt > b.MaxRetries {
		return -1
	}
	exp := b.exponential()
	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = exp.NextBackOff()
	}
	return delay
}

// schedule returns a stateful interval source for one retry loop.
func (b Backoff) schedule() func() time.Duration {
	exp := b.exponential()
	return exp.NextBackOff
}
