package client

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff decides how long to wait before reconnect attempt number attempt
// (0 for the first attempt after a disconnect).
type Backoff interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(int) time.Duration {
	return b.Delay
}

// ExponentialBackoff waits Initial*Multiplier^attempt, capped at Max, with up to
// Jitter (0..1) of the delay randomly removed.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// float64(math.MaxInt64) rounds up to 2^63, so anything at or above it overflows a Duration.
const maxDelay = float64(math.MaxInt64)

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult <= 1 {
		mult = 2
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 && d < maxDelay {
		d -= d * math.Min(b.Jitter, 1) * rand.Float64()
	}
	if d >= maxDelay {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// DefaultBackoff reconnects every 5 seconds.
func DefaultBackoff() Backoff {
	return FixedBackoff{Delay: 5 * time.Second}
}
