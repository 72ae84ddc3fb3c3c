package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/clock"
)

type fakeExpirer struct {
	calls atomic.Int32
	ran   chan struct{}
	err   error
}

func newFakeExpirer() *fakeExpirer {
	return &fakeExpirer{ran: make(chan struct{}, 16)}
}

func (f *fakeExpirer) ExpireDueCarryOvers(ctx context.Context) (int, error) {
	n := int(f.calls.Add(1))
	f.ran <- struct{}{}
	return n, f.err
}

func (f *fakeExpirer) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry sweep did not run")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpiryScheduler_RunsOnStartAndEveryTick(t *testing.T) {
	// GIVEN
	clk := clock.Fake(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	exp := newFakeExpirer()
	s := NewExpiryScheduler(exp, clk, quietLogger())
	s.CheckInterval = time.Hour

	// WHEN: started
	s.Start(context.Background())
	defer s.Stop()

	// THEN: an immediate sweep
	exp.wait(t)

	// AND: one per elapsed interval
	clk.Advance(time.Hour)
	exp.wait(t)
	assert.Equal(t, int32(2), exp.calls.Load())
}

func TestExpiryScheduler_StartTwiceIsNoop(t *testing.T) {
	clk := clock.Fake(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	exp := newFakeExpirer()
	s := NewExpiryScheduler(exp, clk, quietLogger())

	s.Start(context.Background())
	s.Start(context.Background())
	exp.wait(t)
	s.Stop()
	s.Stop()

	assert.Equal(t, int32(1), exp.calls.Load())
}

func TestExpiryScheduler_Disabled(t *testing.T) {
	exp := newFakeExpirer()
	s := NewExpiryScheduler(exp, clock.Fake(time.Now()), quietLogger())
	s.Enabled = false

	s.Start(context.Background())
	s.Stop()

	assert.Zero(t, exp.calls.Load())
}

func TestExpiryScheduler_RunNowReportsCount(t *testing.T) {
	exp := newFakeExpirer()
	s := NewExpiryScheduler(exp, clock.Fake(time.Now()), quietLogger())

	assert.Equal(t, 1, s.RunNow(context.Background()))

	exp.err = errors.New("store down")
	assert.Equal(t, 2, s.RunNow(context.Background()), "partial count survives an error")
}

func TestExpiryScheduler_NextRunTime(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	s := NewExpiryScheduler(newFakeExpirer(), clock.Fake(now), quietLogger())
	s.CheckInterval = 30 * time.Minute

	require.Equal(t, now.Add(30*time.Minute), s.NextRunTime())
}
