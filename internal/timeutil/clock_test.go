package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestRealClock_Since(t *testing.T) {
	past := time.Now().Add(-time.Second)
	assert.GreaterOrEqual(t, RealClock{}.Since(past), time.Second)
}

func TestMockClock_AdvanceFiresDueTickers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	fast := clock.NewTicker(20 * time.Millisecond)
	slow := clock.NewTicker(500 * time.Millisecond)

	clock.Advance(10 * time.Millisecond)
	assert.Empty(t, fast.C())

	clock.Advance(10 * time.Millisecond)
	select {
	case got := <-fast.C():
		assert.Equal(t, start.Add(20*time.Millisecond), got)
	default:
		t.Fatal("fast ticker should have fired")
	}
	assert.Empty(t, slow.C())

	for i := 0; i < 24; i++ {
		clock.Advance(20 * time.Millisecond)
	}
	assert.Len(t, slow.C(), 1)
	assert.Len(t, fast.C(), 1, "unread ticks are dropped beyond one")
	assert.Equal(t, start.Add(500*time.Millisecond), clock.Now())
}

func TestMockClock_StopSilencesTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)
	require.Equal(t, 1, clock.ActiveTickers())

	ticker.Stop()
	assert.Equal(t, 0, clock.ActiveTickers())
	clock.Advance(5 * time.Second)
	assert.Empty(t, ticker.C())
	assert.Equal(t, 5*time.Second, clock.Since(time.Unix(0, 0)))
}
