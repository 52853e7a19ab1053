package peer

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ReconnectPolicy controls whether a peer whose transport fails is brought back up.
// MaxAttempts of 0 retries forever.
type ReconnectPolicy struct {
	Enabled     bool
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:     false,
		MaxAttempts: 0,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// ShouldRetry reports whether another connect attempt follows attempt (1-based).
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	if !p.Enabled {
		return false
	}
	if p.MaxAttempts <= 0 {
		return true
	}
	return attempt < p.MaxAttempts
}
