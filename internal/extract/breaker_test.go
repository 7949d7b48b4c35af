package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := newBreaker(2, 30*time.Second, clock.now)

	assert.True(t, b.allow())
	b.failure()
	assert.True(t, b.allow(), "one failure is below threshold")
	b.failure()
	assert.False(t, b.allow(), "threshold reached")
	assert.True(t, b.isOpen())

	clock.advance(29 * time.Second)
	assert.False(t, b.allow())

	clock.advance(time.Second)
	assert.True(t, b.allow(), "cooldown elapsed, trial allowed")
	assert.False(t, b.allow(), "only one trial at a time")

	b.failure()
	assert.False(t, b.allow(), "failed trial reopens")

	clock.advance(30 * time.Second)
	assert.True(t, b.allow())
	b.success()
	assert.False(t, b.isOpen())
	assert.True(t, b.allow())
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := newBreaker(2, time.Minute, time.Now)
	b.failure()
	b.success()
	b.failure()
	assert.True(t, b.allow())
}
