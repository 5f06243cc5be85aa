// Package retry computes re-enqueue delays for failed invocations using
// exponential backoff with jitter and a dead-letter threshold.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Default policy parameters, used when a task definition leaves them unset.
const (
	DefaultMaxRetries int8          = 3
	DefaultBaseDelay  time.Duration = 30 * time.Second
	DefaultMaxDelay   time.Duration = 15 * time.Minute
)

// Policy holds the retry parameters for a task. The zero value is not usable;
// use Default or Normalize to fill in unset fields.
type Policy struct {
	// MaxRetries is the number of re-enqueues allowed after the first attempt.
	MaxRetries int8
	// BaseDelay is the backoff base. Attempt n waits base*2^n plus jitter.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
}

// Default returns the default retry policy.
func Default() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Normalize returns a copy of p with unset fields replaced by defaults.
func (p Policy) Normalize() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

// Delay returns the re-enqueue delay before retry attempt n (0-indexed: the
// delay applied after the first failed attempt uses n=0). The result is in
// [base*2^n, base*2^n + base), capped at MaxDelay. Full-range jitter on the
// base prevents thundering herds when many retries land simultaneously.
func (p Policy) Delay(attempt int8) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	jitter := rand.Float64() * float64(p.BaseDelay)
	d := time.Duration(base + jitter)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether an invocation at the given attempt count has no
// retry budget left.
func (p Policy) Exhausted(attempt int8) bool {
	return attempt >= p.MaxRetries
}

// String describes the policy for logging.
func (p Policy) String() string {
	return fmt.Sprintf("retry(max=%d base=%v cap=%v)", p.MaxRetries, p.BaseDelay, p.MaxDelay)
}
