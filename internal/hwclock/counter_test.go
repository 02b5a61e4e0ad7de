package hwclock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstant_Conversions(t *testing.T) {
	i := FromDuration(1500 * time.Millisecond)

	assert.Equal(t, Instant(1_500_000), i)
	assert.Equal(t, 1500*time.Millisecond, i.Duration())
	assert.Equal(t, int64(500_000), i.Sub(Instant(1_000_000)))
	assert.Equal(t, int64(-500_000), Instant(1_000_000).Sub(i))
}

func TestMonotonic_NeverGoesBackwards(t *testing.T) {
	c := NewMonotonic()

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		assert.GreaterOrEqual(t, int64(now), int64(prev))
		prev = now
	}
}

func TestManual(t *testing.T) {
	m := NewManual(100)
	assert.Equal(t, Instant(100), m.Now())

	got := m.Advance(2 * time.Millisecond)
	assert.Equal(t, Instant(2100), got)
	assert.Equal(t, Instant(2100), m.Now())

	m.Set(5)
	assert.Equal(t, Instant(5), m.Now())
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	m := NewManual(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Advance(time.Microsecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Instant(1000), m.Now())
}
