/*
Package notify delivers committed domain events to sinks off the request path.

PURPOSE:
  Engines publish events only after their store transaction commits. The
  Dispatcher queues them on a buffered channel and a single worker
  goroutine hands each one to every Sink. Publishing never blocks: when
  the buffer is full the event is dropped and counted.

DELIVERY:
  At most once. A failing sink is logged and skipped; it never affects the
  operation that produced the event, which has already committed.

ALERT RULES (LogSink):
  - late alert:     attendance created, IsLate, LateMinutes > 0
  - geofence alert: attendance created, outside fence, tenant enforces it

USAGE:
  d := notify.NewDispatcher(256, logger, notify.NewLogSink(logger))
  d.Start(ctx)
  defer d.Stop()
  engine := attendance.New(store, clk, d, logger)

SEE ALSO:
  - domain/events.go: Event and Publisher
*/
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/warp/attendance-ledger/domain"
)

// Sink consumes events.
type Sink interface {
	Deliver(ctx context.Context, e domain.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e domain.Event) error

func (f SinkFunc) Deliver(ctx context.Context, e domain.Event) error { return f(ctx, e) }

// =============================================================================
// DISPATCHER
// =============================================================================

type Dispatcher struct {
	queue  chan domain.Event
	sinks  []Sink
	logger *slog.Logger

	dropped atomic.Int64

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewDispatcher(buffer int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  make(chan domain.Event, buffer),
		sinks:  sinks,
		logger: logger,
	}
}

// Publish enqueues events without blocking.
func (d *Dispatcher) Publish(events ...domain.Event) {
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			d.dropped.Add(1)
			d.logger.Warn("event dropped, queue full", "type", e.Type, "employee_id", e.EmployeeID)
		}
	}
}

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Start launches the worker. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go d.run(ctx, d.stop)
}

// Stop delivers whatever is already queued, then stops the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.running = false
}

func (d *Dispatcher) run(ctx context.Context, stop <-chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		case <-stop:
			d.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.deliver(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e domain.Event) {
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, e); err != nil {
			d.logger.Error("event delivery failed", "type", e.Type, "employee_id", e.EmployeeID, "err", err)
		}
	}
}

// =============================================================================
// SINKS
// =============================================================================

// LogSink writes events to a slog.Logger, raising alerts at Warn.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Deliver(ctx context.Context, e domain.Event) error {
	switch {
	case e.WantsLateAlert():
		s.Logger.WarnContext(ctx, "late arrival",
			"tenant_id", e.TenantID, "employee_id", e.EmployeeID,
			"attendance_id", e.AttendanceID, "late_minutes", e.LateMinutes)
	case e.WantsGeofenceAlert():
		s.Logger.WarnContext(ctx, "check-out outside geofence",
			"tenant_id", e.TenantID, "employee_id", e.EmployeeID,
			"attendance_id", e.AttendanceID, "distance_m", e.DistanceMeters)
	default:
		s.Logger.InfoContext(ctx, "event",
			"type", e.Type, "tenant_id", e.TenantID, "employee_id", e.EmployeeID,
			"leave_id", e.LeaveID, "balance_id", e.BalanceID, "days", e.Days.String())
	}
	return nil
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every published event in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Publish(events ...domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
