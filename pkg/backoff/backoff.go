// Package backoff computes retry delays for transient source failures.
package backoff

import (
	"math/rand"
	"time"
)

// Policy computes exponential delays with a cap and jitter. The zero value
// is not usable; construct with Default or fill every field.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	// Jitter is the fraction of the computed delay randomized in both
	// directions, e.g. 0.2 for +/- 20%.
	Jitter float64
}

// Default mirrors the retry cadence the sources tolerate in practice.
func Default() Policy {
	return Policy{
		Initial: 2 * time.Second,
		Max:     60 * time.Second,
		Jitter:  0.2,
	}
}

// NextDelay returns the delay before retry attempt n (first retry is 1).
// Ignoring jitter, delays double per attempt and never exceed Max.
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max || d <= 0 {
			d = p.Max
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}

	if p.Jitter > 0 {
		delta := float64(d) * p.Jitter
		d = time.Duration(float64(d) - delta + rand.Float64()*2*delta)
	}
	return d
}
