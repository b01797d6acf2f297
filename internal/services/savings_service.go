package services

import (
	"context"
	"fmt"
	"time"

	"impact/internal/core"
	"impact/internal/log"
	"impact/internal/persistence"
	"impact/internal/recalc"
)

// SavingsService validates writes, forwards them to the persistence port
// and schedules a background recalculation after each successful mutation.
type SavingsService struct {
	store     persistence.EventStore
	scheduler recalc.Scheduler
	logger    *log.Logger
	now       func() time.Time
}

// NewSavingsService wires the service. scheduler may be nil, in which case
// no recalculation is requested.
func NewSavingsService(store persistence.EventStore, scheduler recalc.Scheduler, logger *log.Logger) *SavingsService {
	return &SavingsService{
		store:     store,
		scheduler: scheduler,
		logger:    log.OrDiscard(logger).WithComponent(log.ComponentSavings),
		now:       time.Now,
	}
}

// Create stores a new event. Verified is always false on the way in.
func (s *SavingsService) Create(ctx context.Context, userID string, in core.NewEvent) (core.SavingsEvent, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.SavingsEvent{}, err
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.SavingsEvent{}, err
	}

	created, err := s.store.CreateEvent(ctx, userID, in.Event(s.now().UTC()))
	if err != nil {
		return core.SavingsEvent{}, fmt.Errorf("create savings event: %w", err)
	}

	s.logger.InfoContext(ctx, "Savings event created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithUser(userID).
			WithEvent(created.ID).
			WithSaving(created.Amount, created.Period).
			ToSlice()...)
	s.schedule(ctx, userID, recalc.ReasonCreate)
	return created, nil
}

// Update applies the whitelisted patch to an existing event. A patch with
// no editable field only checks that the event exists.
func (s *SavingsService) Update(ctx context.Context, userID, eventID string, patch core.EventPatch) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsEmpty() {
		if _, err := s.store.GetEvent(ctx, userID, eventID); err != nil {
			return fmt.Errorf("update savings event: %w", err)
		}
		return nil
	}

	if err := s.store.UpdateEvent(ctx, userID, eventID, patch); err != nil {
		return fmt.Errorf("update savings event: %w", err)
	}

	s.logger.InfoContext(ctx, "Savings event updated",
		log.NewFields().WithOperation(log.OpUpdate).WithUser(userID).WithEvent(eventID).ToSlice()...)
	s.schedule(ctx, userID, recalc.ReasonUpdate)
	return nil
}

// UpdateFields is Update for loosely typed input. Keys outside the
// editable set are dropped.
func (s *SavingsService) UpdateFields(ctx context.Context, userID, eventID string, fields map[string]any) error {
	patch, err := core.PatchFromFields(fields)
	if err != nil {
		return err
	}
	return s.Update(ctx, userID, eventID, patch)
}

func (s *SavingsService) Delete(ctx context.Context, userID, eventID string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := s.store.DeleteEvent(ctx, userID, eventID); err != nil {
		return fmt.Errorf("delete savings event: %w", err)
	}

	s.logger.InfoContext(ctx, "Savings event deleted",
		log.NewFields().WithOperation(log.OpDelete).WithUser(userID).WithEvent(eventID).ToSlice()...)
	s.schedule(ctx, userID, recalc.ReasonDelete)
	return nil
}

// Restore recreates a deleted event under its original id. Verified is
// reset to false and the original CreatedAt is kept when present.
func (s *SavingsService) Restore(ctx context.Context, userID, eventID string, snapshot core.SavingsEvent) (core.SavingsEvent, error) {
	if err := core.RequireUser(userID); err != nil {
		return core.SavingsEvent{}, err
	}
	in := core.NewEvent{
		Title:   snapshot.Title,
		QuestID: snapshot.QuestID,
		Amount:  snapshot.Amount,
		Period:  snapshot.Period,
		Source:  snapshot.Source,
		Proof:   snapshot.Proof,
	}.Normalize()
	if err := in.Validate(); err != nil {
		return core.SavingsEvent{}, err
	}

	now := s.now().UTC()
	e := snapshot.Clone()
	e.ID = eventID
	e.Title, e.QuestID, e.Source, e.Proof = in.Title, in.QuestID, in.Source, in.Proof
	e.Verified = false
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	if err := s.store.PutEvent(ctx, userID, e); err != nil {
		return core.SavingsEvent{}, fmt.Errorf("restore savings event: %w", err)
	}

	s.logger.InfoContext(ctx, "Savings event restored",
		log.NewFields().WithOperation(log.OpRestore).WithUser(userID).WithEvent(eventID).ToSlice()...)
	s.schedule(ctx, userID, recalc.ReasonRestore)
	return e, nil
}

// List returns the user's events, newest first.
func (s *SavingsService) List(ctx context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error) {
	if err := core.RequireUser(userID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, userID, q)
	if err != nil {
		return nil, fmt.Errorf("list savings events: %w", err)
	}
	return events, nil
}

// AggregateLocally sums raw amounts per period bucket.
func (s *SavingsService) AggregateLocally(events []core.SavingsEvent, period *core.Period) core.LocalSummary {
	return core.AggregateLocally(events, period)
}

// schedule never fails the caller: the mutation already succeeded.
func (s *SavingsService) schedule(ctx context.Context, userID string, reason recalc.Reason) {
	if s.scheduler == nil {
		s.logger.DebugContext(ctx, "No recalc scheduler configured, skipping",
			log.FieldUserID, userID, log.FieldReason, string(reason))
		return
	}
	if err := s.scheduler.Schedule(ctx, userID, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to schedule recalculation",
			log.NewFields().
				WithUser(userID).
				WithReason(string(reason)).
				WithError(core.Recalculation(err)).
				ToSlice()...)
	}
}
