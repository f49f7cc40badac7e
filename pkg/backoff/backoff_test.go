package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayIsNonDecreasingUpToCap(t *testing.T) {
	p := Policy{Initial: time.Second, Max: 30 * time.Second}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := p.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, p.Max, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, p.Max, p.NextDelay(12))
}

func TestNextDelayDoubles(t *testing.T) {
	p := Policy{Initial: 2 * time.Second, Max: time.Minute}

	assert.Equal(t, 2*time.Second, p.NextDelay(1))
	assert.Equal(t, 4*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(3))
	assert.Equal(t, time.Minute, p.NextDelay(10))
}

func TestNextDelayJitterStaysInBounds(t *testing.T) {
	p := Policy{Initial: 2 * time.Second, Max: time.Minute, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		d := p.NextDelay(2) // 4s nominal
		assert.GreaterOrEqual(t, d, 3200*time.Millisecond)
		assert.LessOrEqual(t, d, 4800*time.Millisecond)
	}
}

func TestNextDelayClampsAttempt(t *testing.T) {
	p := Policy{Initial: time.Second, Max: time.Minute}
	assert.Equal(t, p.NextDelay(1), p.NextDelay(0))
	assert.Equal(t, p.NextDelay(1), p.NextDelay(-3))
}
