package impact

import (
	"context"
	"errors"
	"sync"
	"time"

	"impact/internal/core"
	"impact/internal/log"
	"impact/internal/recalc"
)

// DefaultStalenessThreshold is how old an aggregate may get before an
// observation asks for a recompute.
const DefaultStalenessThreshold = 6 * time.Hour

// ErrAlreadySyncing is returned by RecalculateNow while a manual recompute
// is still running.
var ErrAlreadySyncing = errors.New("recalculation already in progress")

// IsStale reports whether agg needs recomputing at now. An aggregate that
// was never computed is stale.
func IsStale(agg core.ImpactAggregate, now time.Time, threshold time.Duration) bool {
	if agg.LastRecalcAt == nil {
		return true
	}
	return now.Sub(*agg.LastRecalcAt) > threshold
}

// TriggerState tracks the on-open recompute for one session.
type TriggerState int

const (
	// NotTriggered: no on-open recompute has been requested yet.
	NotTriggered TriggerState = iota
	// Triggered: a recompute was requested and no fresh aggregate seen since.
	Triggered
	// Completed: a fresh aggregate was observed after the trigger.
	Completed
)

func (s TriggerState) String() string {
	switch s {
	case NotTriggered:
		return "not_triggered"
	case Triggered:
		return "triggered"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Monitor watches aggregate observations for one user. A stale observation
// schedules one on_open recompute; further observations do nothing until a
// fresh aggregate has been seen. Manual recomputes bypass that guard but
// never overlap.
type Monitor struct {
	userID    string
	threshold time.Duration
	scheduler recalc.Scheduler
	rc        recalc.Recalculator
	sink      recalc.AggregateSink
	logger    *log.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   TriggerState
	syncing bool
}

type MonitorOption func(*Monitor)

// WithSink stores aggregates produced by RecalculateNow.
func WithSink(s recalc.AggregateSink) MonitorOption {
	return func(m *Monitor) { m.sink = s }
}

func WithLogger(l *log.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = log.OrDiscard(l).WithComponent(log.ComponentStaleness) }
}

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor builds a Monitor. A non-positive threshold means
// DefaultStalenessThreshold.
func NewMonitor(userID string, threshold time.Duration, scheduler recalc.Scheduler, rc recalc.Recalculator, opts ...MonitorOption) *Monitor {
	if threshold <= 0 {
		threshold = DefaultStalenessThreshold
	}
	m := &Monitor{
		userID:    userID,
		threshold: threshold,
		scheduler: scheduler,
		rc:        rc,
		logger:    log.Discard().WithComponent(log.ComponentStaleness),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Monitor) State() TriggerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Syncing reports whether a manual recompute is running.
func (m *Monitor) Syncing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

// Observe records that agg was shown to the user and reports whether it
// scheduled a recompute.
func (m *Monitor) Observe(ctx context.Context, agg core.ImpactAggregate) bool {
	stale := IsStale(agg, m.now(), m.threshold)

	m.mu.Lock()
	fire := false
	switch m.state {
	case NotTriggered, Completed:
		if stale {
			m.state = Triggered
			fire = true
		}
	case Triggered:
		if !stale {
			m.state = Completed
		}
	}
	m.mu.Unlock()

	if !fire {
		return false
	}

	fields := log.NewFields().
		WithOperation(log.OpRecalc).
		WithUser(m.userID).
		WithReason(string(recalc.ReasonOnOpen))
	if agg.LastRecalcAt != nil {
		fields["last_recalc_at"] = agg.LastRecalcAt.Format(time.RFC3339)
	}
	if err := m.scheduler.Schedule(ctx, m.userID, recalc.ReasonOnOpen); err != nil {
		m.logger.WarnContext(ctx, "Failed to schedule stale aggregate recompute", fields.WithError(err).ToSlice()...)
	} else {
		m.logger.InfoContext(ctx, "Stale aggregate, recompute scheduled", fields.ToSlice()...)
	}
	return true
}

// RecalculateNow runs a manual recompute and waits for it. It fails with
// ErrAlreadySyncing if one is already running. The result is stored
// through the sink when one is configured.
func (m *Monitor) RecalculateNow(ctx context.Context) (core.ImpactAggregate, error) {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return core.ImpactAggregate{}, ErrAlreadySyncing
	}
	m.syncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	start := m.now()
	agg, err := m.rc.Recalculate(ctx, m.userID, recalc.ReasonManual)
	fields := log.NewFields().
		WithOperation(log.OpRecalc).
		WithUser(m.userID).
		WithReason(string(recalc.ReasonManual)).
		WithDuration(m.now().Sub(start))
	if err != nil {
		m.logger.WarnContext(ctx, "Manual recompute failed", fields.WithError(err).ToSlice()...)
		return core.ImpactAggregate{}, core.Recalculation(err)
	}
	if m.sink != nil {
		if err := m.sink.SaveAggregate(ctx, m.userID, agg); err != nil {
			m.logger.ErrorContext(ctx, "Failed to store recomputed aggregate", fields.WithError(err).ToSlice()...)
		}
	}
	m.logger.InfoContext(ctx, "Manual recompute completed", fields.ToSlice()...)
	return agg, nil
}
