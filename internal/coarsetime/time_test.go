package coarsetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowTracksWallClock(t *testing.T) {
	before := time.Now()
	time.Sleep(3 * tick)

	assert.False(t, Now().Before(before))
	assert.WithinDuration(t, time.Now(), Now(), time.Second)
}

func TestSince(t *testing.T) {
	past := time.Now().Add(-time.Second)
	assert.GreaterOrEqual(t, Since(past), time.Second-tick)
}

func BenchmarkTimeNow(b *testing.B) {
	var t time.Time

	b.Run("time", func(b *testing.B) {
		for b.Loop() {
			t = time.Now()
		}
	})

	b.Run("coarsetime", func(b *testing.B) {
		for b.Loop() {
			t = Now()
		}
	})

	_ = t
}
