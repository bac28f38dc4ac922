package hiddensession

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig spaces out spawn attempts after failures.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.5), still
	// capped at MaxDelay.
	Jitter bool
}

// Delay is the wait after the given number of consecutive failures.
func (c BackoffConfig) Delay(failures int, rng *rand.Rand) time.Duration {
	if failures <= 0 || c.InitialDelay <= 0 {
		return 0
	}
	mult := math.Max(c.Multiplier, 1)
	d := float64(c.InitialDelay) * math.Pow(mult, float64(failures-1))
	if c.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		d *= f
	}
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// spawnRetry tracks consecutive spawn failures for a Supervisor.
type spawnRetry struct {
	cfg      BackoffConfig
	failures int
	until    time.Time
}

func (r *spawnRetry) blocked(now time.Time) bool {
	return now.Before(r.until)
}

// fail records a failure at now and returns the wait before the next try.
func (r *spawnRetry) fail(now time.Time, rng *rand.Rand) time.Duration {
	r.failures++
	d := r.cfg.Delay(r.failures, rng)
	r.until = now.Add(d)
	return d
}

func (r *spawnRetry) reset() {
	r.failures = 0
	r.until = time.Time{}
}
