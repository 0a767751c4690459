package fetch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

// BackoffPolicy computes the wait before a retry
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter spreads each wait over [1-Jitter, 1+Jitter] of its nominal value
	Jitter float64
}

// NewBackoffPolicy builds the policy from fetch settings
func NewBackoffPolicy(cfg config.FetchConfig) BackoffPolicy {
	return BackoffPolicy{
		Initial:    cfg.InitialBackoff,
		Max:        cfg.MaxBackoff,
		Multiplier: cfg.BackoffMultiplier,
		Jitter:     0.5,
	}
}

// Delay returns the nominal wait before retry number n, starting at 1
func (p BackoffPolicy) Delay(n int) time.Duration {
	if n < 1 || p.Initial <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Initial) * math.Pow(mult, float64(n-1))
	if p.Max > 0 && d > float64(p.Max) {
		d = float64(p.Max)
	}
	return time.Duration(d)
}

// Wait sleeps for the jittered delay of retry n or until ctx is done
func (p BackoffPolicy) Wait(ctx context.Context, n int) error {
	d := p.Delay(n)
	if p.Jitter > 0 && d > 0 {
		d = time.Duration(float64(d) * (1 - p.Jitter + 2*p.Jitter*rand.Float64()))
	}
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
