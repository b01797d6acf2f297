package recalc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"impact/internal/core"
	"impact/internal/log"
)

// ErrQueueFull is returned when a job cannot be buffered.
var ErrQueueFull = errors.New("recalc queue is full")

// AggregateSink receives successfully recomputed aggregates.
type AggregateSink interface {
	SaveAggregate(ctx context.Context, userID string, a core.ImpactAggregate) error
}

// QueueConfig holds configuration for the queue
type QueueConfig struct {
	// Size is how many users may wait for a worker (default: 64)
	Size int

	// Workers is the number of concurrent recompute calls (default: 2)
	Workers int
}

// DefaultQueueConfig returns sensible defaults
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{Size: 64, Workers: 2}
}

// userJob tracks one user who is queued, in flight, or both.
type userJob struct {
	reason   Reason
	queued   bool
	inFlight bool
	// follow-up requested while in flight
	again       bool
	againReason Reason
}

// Queue runs recompute jobs on a fixed worker pool. At most one job per
// user is in flight; jobs scheduled meanwhile coalesce into a single
// follow-up run carrying the latest reason.
type Queue struct {
	rc       Recalculator
	sink     AggregateSink
	onResult func(Result)
	config   QueueConfig
	logger   *log.Logger

	jobs chan string

	mu    sync.Mutex
	users map[string]*userJob
	idle  chan struct{}

	// Lifecycle management
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// QueueOption configures optional collaborators.
type QueueOption func(*Queue)

// WithSink stores every successful result.
func WithSink(s AggregateSink) QueueOption {
	return func(q *Queue) { q.sink = s }
}

// WithOnResult registers a hook called after every job.
func WithOnResult(fn func(Result)) QueueOption {
	return func(q *Queue) { q.onResult = fn }
}

func WithLogger(l *log.Logger) QueueOption {
	return func(q *Queue) { q.logger = log.OrDiscard(l).WithComponent(log.ComponentRecalc) }
}

func NewQueue(rc Recalculator, config QueueConfig, opts ...QueueOption) *Queue {
	def := DefaultQueueConfig()
	if config.Size < 1 {
		config.Size = def.Size
	}
	if config.Workers < 1 {
		config.Workers = def.Workers
	}
	idle := make(chan struct{})
	close(idle)
	q := &Queue{
		rc:     rc,
		config: config,
		logger: log.Discard().WithComponent(log.ComponentRecalc),
		jobs:   make(chan string, config.Size),
		users:  map[string]*userJob{},
		idle:   idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule enqueues a recompute for userID. It never waits for the job.
func (q *Queue) Schedule(ctx context.Context, userID string, reason Reason) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if !reason.Valid() {
		return fmt.Errorf("schedule: unknown reason %q", reason)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.users[userID]; ok {
		switch {
		case j.queued:
			j.reason = reason
		case j.inFlight:
			j.again = true
			j.againReason = reason
		}
		q.logger.DebugContext(ctx, "Recalculation coalesced",
			log.FieldUserID, userID, log.FieldReason, string(reason))
		return nil
	}

	j := &userJob{reason: reason, queued: true}
	if !q.offerLocked(userID, j) {
		q.logger.WarnContext(ctx, "Recalculation dropped",
			log.NewFields().
				WithUser(userID).
				WithReason(string(reason)).
				WithError(ErrQueueFull).
				ToSlice()...)
		return ErrQueueFull
	}
	return nil
}

// offerLocked registers j and pushes userID without blocking.
func (q *Queue) offerLocked(userID string, j *userJob) bool {
	select {
	case q.jobs <- userID:
	default:
		return false
	}
	if len(q.users) == 0 {
		q.idle = make(chan struct{})
	}
	q.users[userID] = j
	return true
}

func (q *Queue) forgetLocked(userID string) {
	delete(q.users, userID)
	if len(q.users) == 0 {
		close(q.idle)
	}
}

// Start launches the workers. Returns an error if already running.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("recalc queue is already running")
	}
	q.running = true
	q.stopCh = make(chan struct{})

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, q.stopCh)
	}

	q.logger.InfoContext(ctx, "Recalc queue started",
		"workers", q.config.Workers,
		"size", q.config.Size)
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.InfoContext(ctx, "Recalc queue stopped gracefully")
		return nil
	case <-ctx.Done():
		q.logger.WarnContext(ctx, "Recalc queue stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the workers are running
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Wait blocks until no job is queued or in flight.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context, stopCh <-chan struct{}) {
	defer q.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case userID := <-q.jobs:
			q.run(ctx, userID)
		}
	}
}

func (q *Queue) run(ctx context.Context, userID string) {
	q.mu.Lock()
	j := q.users[userID]
	j.queued = false
	j.inFlight = true
	reason := j.reason
	q.mu.Unlock()

	start := time.Now()
	agg, err := q.rc.Recalculate(ctx, userID, reason)
	res := Result{UserID: userID, Reason: reason, Aggregate: agg, Duration: time.Since(start), Err: err}

	fields := log.NewFields().
		WithOperation(log.OpRecalc).
		WithUser(userID).
		WithReason(string(reason)).
		WithDuration(res.Duration)
	if err != nil {
		q.logger.WarnContext(ctx, "Recalculation failed", fields.WithError(err).ToSlice()...)
	} else {
		if q.sink != nil {
			if serr := q.sink.SaveAggregate(ctx, userID, agg); serr != nil {
				q.logger.ErrorContext(ctx, "Failed to store recalculated aggregate",
					log.NewFields().WithUser(userID).WithError(serr).ToSlice()...)
			}
		}
		q.logger.InfoContext(ctx, "Recalculation completed", fields.ToSlice()...)
	}
	if q.onResult != nil {
		q.onResult(res)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	j.inFlight = false
	if !j.again {
		q.forgetLocked(userID)
		return
	}
	j.again = false
	j.reason = j.againReason
	j.queued = true
	select {
	case q.jobs <- userID:
	default:
		q.forgetLocked(userID)
		q.logger.WarnContext(ctx, "Recalculation follow-up dropped",
			log.NewFields().WithUser(userID).WithReason(string(j.reason)).WithError(ErrQueueFull).ToSlice()...)
	}
}
