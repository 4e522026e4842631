// Package retry implements retry scheduling and dead-lettering for failed
// workflow nodes.
package retry

import (
	"math"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Policy computes backoff delays for an automation's retry configuration.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// FromConfig builds a policy from an automation retry configuration,
// falling back to platform defaults for unset values.
func FromConfig(config models.RetryConfig) Policy {
	defaults := models.DefaultRetryConfig()

	if config.InitialDelaySeconds <= 0 {
		config.InitialDelaySeconds = defaults.InitialDelaySeconds
	}

	if config.BackoffMultiplier < 1 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}

	if config.MaxDelaySeconds <= 0 {
		config.MaxDelaySeconds = defaults.MaxDelaySeconds
	}

	return Policy{
		MaxRetries:   config.MaxRetries,
		InitialDelay: time.Duration(config.InitialDelaySeconds) * time.Second,
		Multiplier:   config.BackoffMultiplier,
		MaxDelay:     time.Duration(config.MaxDelaySeconds) * time.Second,
	}
}

// NextDelay returns the backoff before the given retry attempt, 1-based.
// The delay grows exponentially from InitialDelay and is capped at MaxDelay.
// There is no jitter; retries are driven by a polling scheduler, so
// coordinated wake-ups are already smeared by the poll interval.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}

	return time.Duration(delay)
}
