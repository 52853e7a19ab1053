package transport

import (
	"context"
	"math/rand"
	"time"

	"github.com/danmuck/tunplex/internal/peer"
)

// Backoff hands out growing reconnect delays for one peer. It is not safe for
// concurrent use; each supervisor owns its own.
type Backoff struct {
	cfg  peer.BackoffConfig
	rng  *rand.Rand
	base time.Duration
}

// NewBackoff seeds its own jitter source when rng is nil.
func NewBackoff(cfg peer.BackoffConfig, rng *rand.Rand) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	b := &Backoff{cfg: cfg, rng: rng}
	b.Reset()
	return b
}

// Reset starts the sequence over from the initial delay.
func (b *Backoff) Reset() {
	b.base = max(b.cfg.InitialDelay, 0)
}

// Next returns the delay to wait now and grows the following one, capped at
// MaxDelay. Jitter scales the returned delay into [0.5, 1.5) of its base.
func (b *Backoff) Next() time.Duration {
	d := b.base
	grown := time.Duration(float64(b.base) * b.cfg.Multiplier)
	if b.cfg.MaxDelay > 0 && grown > b.cfg.MaxDelay {
		grown = b.cfg.MaxDelay
	}
	b.base = grown
	if b.cfg.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + b.rng.Float64()))
	}
	return d
}

// Wait sleeps for Next or returns early with ctx's error.
func (b *Backoff) Wait(ctx context.Context) error {
	d := b.Next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
