package supervisor

import "time"

// RestartPolicy bounds how eagerly crashed workers come back. The policy is
// explicit configuration; the supervisor never invents its own pacing.
type RestartPolicy struct {
	// MaxRetries is the restart budget per worker. 0 means unlimited.
	MaxRetries int

	// InitialDelay seeds the backoff sequence.
	InitialDelay time.Duration

	// MaxDelay caps the sequence.
	MaxDelay time.Duration

	// Multiplier grows the delay between consecutive restarts.
	Multiplier float64

	// ResetAfter restores a worker's full budget once it has served that
	// long, so a crash next week starts from a clean slate.
	ResetAfter time.Duration
}

// DefaultRestartPolicy is the production default.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRetries:   5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     1 * time.Minute,
		Multiplier:   2.0,
		ResetAfter:   1 * time.Minute,
	}
}

// Delay returns the wait before restart attempt n. Attempts are 1-based;
// anything below that is treated as the first.
func (p RestartPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
