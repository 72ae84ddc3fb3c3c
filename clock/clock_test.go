package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/attendance-ledger/clock"
)

func TestFake_NowStandsStill(t *testing.T) {
	start := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := clock.Fake(start)

	assert.Equal(t, start, c.Now())
	c.Advance(16 * time.Minute)
	assert.Equal(t, start.Add(16*time.Minute), c.Now())
}

func TestFake_TickerFiresOnAdvance(t *testing.T) {
	c := clock.Fake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Hour)

	c.Advance(30 * time.Minute)
	select {
	case <-tk.C:
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(30 * time.Minute)
	select {
	case <-tk.C:
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	c.Advance(2 * time.Hour)
	select {
	case <-tk.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
