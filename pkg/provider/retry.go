package provider

import (
	"math"
	"time"
)

// Backoff decides how long a failed job stays invisible before it can be
// claimed again. The zero value retries immediately.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// ExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	ExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func ExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) Backoff {
	if multiplier <= 0 {
		multiplier = 2.0
	}
	return Backoff{Initial: initial, Multiplier: multiplier, Max: max}
}

// ConstantBackoff waits delay before every retry.
func ConstantBackoff(delay time.Duration) Backoff {
	return Backoff{Initial: delay, Multiplier: 1.0}
}

// Immediate disables any wait between retries.
func Immediate() Backoff {
	return Backoff{}
}

// Delay returns the wait after the given number of failed attempts
// (1 for the first failure).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Initial <= 0 || attempt < 1 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(b.Initial) * math.Pow(mult, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
