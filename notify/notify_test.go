package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	var (
		mu  sync.Mutex
		got []string
	)
	sink := func(name string) notify.Sink {
		return notify.SinkFunc(func(_ context.Context, e domain.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+string(e.Type))
			return nil
		})
	}

	d := notify.NewDispatcher(8, discardLogger(), sink("a"), sink("b"))
	d.Start(context.Background())
	d.Publish(domain.Event{Type: domain.EventAttendanceCreated})
	d.Stop()

	assert.ElementsMatch(t, []string{"a:attendance.created", "b:attendance.created"}, got)
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	// GIVEN: a dispatcher with a buffer of 1 and no worker running
	d := notify.NewDispatcher(1, discardLogger())

	// WHEN: three events are published
	done := make(chan struct{})
	go func() {
		d.Publish(domain.Event{}, domain.Event{}, domain.Event{})
		close(done)
	}()

	// THEN: Publish returns and the overflow is counted
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Equal(t, int64(2), d.Dropped())
}

func TestDispatcher_SinkErrorDoesNotStopDelivery(t *testing.T) {
	var delivered int
	var mu sync.Mutex
	failing := notify.SinkFunc(func(context.Context, domain.Event) error { return errors.New("smtp down") })
	counting := notify.SinkFunc(func(context.Context, domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})

	d := notify.NewDispatcher(4, discardLogger(), failing, counting)
	d.Start(context.Background())
	d.Publish(domain.Event{}, domain.Event{})
	d.Stop()

	assert.Equal(t, 2, delivered)
}

func TestLogSink_Alerts(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, sink.Deliver(context.Background(), domain.Event{
		Type: domain.EventAttendanceCreated, IsLate: true, LateMinutes: 16, WithinGeofence: true,
	}))
	assert.Contains(t, buf.String(), "late arrival")
	assert.Contains(t, buf.String(), "late_minutes=16")

	buf.Reset()
	require.NoError(t, sink.Deliver(context.Background(), domain.Event{
		Type: domain.EventAttendanceClosed, WithinGeofence: false, GeofenceEnforced: true, DistanceMeters: 150.5,
	}))
	assert.Contains(t, buf.String(), "check-out outside geofence")
	assert.Contains(t, buf.String(), "distance_m=150.5")

	buf.Reset()
	require.NoError(t, sink.Deliver(context.Background(), domain.Event{
		Type: domain.EventAttendanceClosed, WithinGeofence: false, GeofenceEnforced: false,
	}))
	assert.NotContains(t, buf.String(), "outside geofence", "unenforced fence raises no alert")

	buf.Reset()
	require.NoError(t, sink.Deliver(context.Background(), domain.Event{
		Type: domain.EventAttendanceCreated, IsLate: true, LateMinutes: 0, WithinGeofence: true,
	}))
	assert.NotContains(t, buf.String(), "late arrival", "zero late minutes raises no alert")
}

func TestRecorder(t *testing.T) {
	var r notify.Recorder
	r.Publish(domain.Event{Type: domain.EventLeaveDebited}, domain.Event{Type: domain.EventBalanceAdjusted})

	assert.Equal(t, []domain.EventType{domain.EventLeaveDebited, domain.EventBalanceAdjusted}, r.Types())
	r.Reset()
	assert.Empty(t, r.Events())
}
