// Package local keeps the current user's events in memory and applies
// mutations optimistically, rolling back when persistence fails.
package local

import (
	"context"
	"slices"
	"sync"
	"time"

	"impact/internal/core"
	"impact/internal/log"
)

// Service is the persistence-facing half of every mutation.
type Service interface {
	Create(ctx context.Context, userID string, in core.NewEvent) (core.SavingsEvent, error)
	Update(ctx context.Context, userID, eventID string, patch core.EventPatch) error
	Delete(ctx context.Context, userID, eventID string) error
	Restore(ctx context.Context, userID, eventID string, snapshot core.SavingsEvent) (core.SavingsEvent, error)
	List(ctx context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error)
}

// Listener receives a copy of the list after every change.
type Listener func(events []core.SavingsEvent)

type subscription struct {
	id int
	fn Listener
}

// entity sequences the persistence calls for one event id. Calls run in
// the order they were initiated; each waits for the previous one.
type entity struct {
	tail      chan struct{}
	busy      int
	deleting  bool
	restoring bool
	confirmed core.SavingsEvent
	pending   []*core.EventPatch
}

// view is the confirmed state with every still-pending patch applied.
func (e *entity) view(now time.Time) core.SavingsEvent {
	v := e.confirmed.Clone()
	for _, p := range e.pending {
		v = p.ApplyTo(v, now)
	}
	return v
}

func (e *entity) dropPending(p *core.EventPatch) {
	e.pending = slices.DeleteFunc(e.pending, func(q *core.EventPatch) bool { return q == p })
}

// Store is one session's read-through cache of the user's events, newest
// first. Persistence stays authoritative.
type Store struct {
	svc    Service
	userID string
	undo   *UndoManager
	logger *log.Logger
	now    func() time.Time

	mu       sync.Mutex
	items    []core.SavingsEvent
	entities map[string]*entity
	subs     []subscription
	nextSub  int
}

func NewStore(svc Service, userID string, logger *log.Logger) *Store {
	logger = log.OrDiscard(logger)
	return &Store{
		svc:      svc,
		userID:   userID,
		undo:     NewUndoManager(logger),
		logger:   logger.WithComponent(log.ComponentLocalStore),
		now:      time.Now,
		entities: map[string]*entity{},
	}
}

func (s *Store) UserID() string { return s.userID }

// Undo exposes the store's single undo slot.
func (s *Store) Undo() *UndoManager { return s.undo }

// Subscribe registers fn and returns a func that removes it.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	}
}

// Events returns a copy of the current list.
func (s *Store) Events() []core.SavingsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneItemsLocked()
}

// AnnualSum is the annualized total of the loaded events.
func (s *Store) AnnualSum() float64 {
	return core.AnnualSum(s.Events())
}

// Summary sums raw amounts of the loaded events.
func (s *Store) Summary(period *core.Period) core.LocalSummary {
	return core.AggregateLocally(s.Events(), period)
}

// Load replaces the list with what persistence returns. Events with
// mutations still in flight keep their optimistic view, including
// restores that persistence does not list yet.
func (s *Store) Load(ctx context.Context, q core.ListQuery) error {
	events, err := s.svc.List(ctx, s.userID, q)
	if err != nil {
		return err
	}

	s.mu.Lock()
	now := s.now().UTC()
	items := make([]core.SavingsEvent, 0, len(events))
	listed := make(map[string]bool, len(events))
	for _, e := range events {
		if ent, ok := s.entities[e.ID]; ok {
			switch {
			case ent.restoring:
				// persistence may still list the pre-delete record
			case ent.deleting:
				continue
			default:
				ent.confirmed = e
			}
			e = ent.view(now)
		}
		listed[e.ID] = true
		items = append(items, e)
	}
	for id, ent := range s.entities {
		if ent.restoring && !listed[id] {
			items = slices.Insert(items, 0, ent.view(now))
		}
	}
	s.items = items
	s.unlockAndNotify()
	return nil
}

// Create persists a new event and then adds it to the head of the list.
// The id is assigned by persistence, so unlike the other mutations the
// list only changes once the call has returned.
func (s *Store) Create(ctx context.Context, in core.NewEvent) (core.SavingsEvent, error) {
	if err := in.Validate(); err != nil {
		return core.SavingsEvent{}, err
	}
	created, err := s.svc.Create(ctx, s.userID, in)
	if err != nil {
		s.logFailure(ctx, log.OpCreate, "", err)
		return core.SavingsEvent{}, err
	}

	s.mu.Lock()
	if i := s.indexLocked(created.ID); i >= 0 {
		s.items[i] = created
	} else {
		s.items = slices.Insert(s.items, 0, created)
	}
	s.unlockAndNotify()
	return created, nil
}

// Update applies patch to the list immediately, persists it, and rolls
// the event back if persistence fails. Invalid patches are rejected before
// anything changes. A patch with no editable field is a no-op, but the
// event must still exist.
func (s *Store) Update(ctx context.Context, eventID string, patch core.EventPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	idx := s.indexLocked(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return core.NotFound("event", eventID)
	}
	if patch.IsEmpty() {
		s.mu.Unlock()
		return nil
	}
	ent, prev, done := s.beginLocked(eventID, s.items[idx])
	p := &patch
	ent.pending = append(ent.pending, p)
	s.items[idx] = p.ApplyTo(s.items[idx], s.now().UTC())
	s.unlockAndNotify()

	err := await(ctx, prev)
	if err == nil {
		err = s.svc.Update(ctx, s.userID, eventID, patch)
	}

	s.mu.Lock()
	now := s.now().UTC()
	ent.dropPending(p)
	if err == nil {
		ent.confirmed = patch.ApplyTo(ent.confirmed, now)
	} else if i := s.indexLocked(eventID); i >= 0 && !ent.deleting {
		s.items[i] = ent.view(now)
	}
	s.finishLocked(eventID, ent, done)
	s.unlockAndNotify()

	if err != nil {
		s.logFailure(ctx, log.OpUpdate, eventID, err)
	}
	return err
}

// UpdateFields is Update for loosely typed input. Keys outside the
// editable set are dropped.
func (s *Store) UpdateFields(ctx context.Context, eventID string, fields map[string]any) error {
	patch, err := core.PatchFromFields(fields)
	if err != nil {
		return err
	}
	return s.Update(ctx, eventID, patch)
}

// Delete removes the event from the list, keeps a snapshot for undo and
// persists the deletion. On failure the event is put back where it was
// and the previous undo snapshot, if any, is reinstated.
func (s *Store) Delete(ctx context.Context, eventID string) error {
	s.mu.Lock()
	idx := s.indexLocked(eventID)
	if idx < 0 {
		s.mu.Unlock()
		return core.NotFound("event", eventID)
	}
	removed := s.items[idx]
	ent, prev, done := s.beginLocked(eventID, removed)
	ent.deleting = true
	s.items = slices.Delete(s.items, idx, idx+1)
	superseded := s.undo.offer(DeletedSnapshot{ID: eventID, Data: removed, DeletedAt: s.now()})
	s.unlockAndNotify()

	err := await(ctx, prev)
	if err == nil {
		err = s.svc.Delete(ctx, s.userID, eventID)
	}

	s.mu.Lock()
	ent.deleting = false
	if err != nil {
		if s.indexLocked(eventID) < 0 {
			s.items = slices.Insert(s.items, min(idx, len(s.items)), ent.view(s.now().UTC()))
		}
		s.undo.revert(eventID, superseded)
	}
	s.finishLocked(eventID, ent, done)
	s.unlockAndNotify()

	if err != nil {
		s.logFailure(ctx, log.OpDelete, eventID, err)
	}
	return err
}

// Restore brings back the last deleted event under its original id. It is
// shown at the head of the list right away and removed again if
// persistence fails; either way the undo slot is spent.
func (s *Store) Restore(ctx context.Context) (core.SavingsEvent, error) {
	s.mu.Lock()
	snap, ok := s.undo.take()
	if !ok {
		s.mu.Unlock()
		return core.SavingsEvent{}, ErrNothingToUndo
	}
	optimistic := snap.Data.Clone()
	optimistic.Verified = false
	ent, prev, done := s.beginLocked(snap.ID, optimistic)
	ent.restoring = true
	ent.confirmed = optimistic.Clone()
	if i := s.indexLocked(snap.ID); i >= 0 {
		s.items[i] = optimistic
	} else {
		s.items = slices.Insert(s.items, 0, optimistic)
	}
	s.unlockAndNotify()

	var restored core.SavingsEvent
	err := await(ctx, prev)
	if err == nil {
		restored, err = s.svc.Restore(ctx, s.userID, snap.ID, snap.Data)
	}

	s.mu.Lock()
	ent.restoring = false
	if err != nil {
		if i := s.indexLocked(snap.ID); i >= 0 {
			s.items = slices.Delete(s.items, i, i+1)
		}
		s.undo.restoreFailed()
	} else {
		ent.confirmed = restored
		view := ent.view(s.now().UTC())
		if i := s.indexLocked(snap.ID); i >= 0 {
			s.items[i] = view
		} else {
			s.items = slices.Insert(s.items, 0, view)
		}
	}
	s.finishLocked(snap.ID, ent, done)
	s.unlockAndNotify()

	if err != nil {
		s.logFailure(ctx, log.OpRestore, snap.ID, err)
		return core.SavingsEvent{}, err
	}
	s.logger.InfoContext(ctx, "Deleted event restored",
		log.NewFields().WithOperation(log.OpUndo).WithUser(s.userID).WithEvent(snap.ID).ToSlice()...)
	return restored, nil
}

// beginLocked queues an operation on id behind any earlier one.
func (s *Store) beginLocked(id string, current core.SavingsEvent) (ent *entity, prev <-chan struct{}, done chan struct{}) {
	ent, ok := s.entities[id]
	if !ok {
		ent = &entity{confirmed: current.Clone()}
		s.entities[id] = ent
	}
	if ent.tail != nil {
		prev = ent.tail
	}
	done = make(chan struct{})
	ent.tail = done
	ent.busy++
	return ent, prev, done
}

func (s *Store) finishLocked(id string, ent *entity, done chan struct{}) {
	ent.busy--
	if ent.busy == 0 {
		delete(s.entities, id)
	}
	close(done)
}

// await waits for the previous operation on the same event. It always
// waits so that ordering holds, then reports ctx cancellation.
func await(ctx context.Context, prev <-chan struct{}) error {
	if prev != nil {
		<-prev
	}
	return ctx.Err()
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(e core.SavingsEvent) bool { return e.ID == id })
}

func (s *Store) cloneItemsLocked() []core.SavingsEvent {
	out := make([]core.SavingsEvent, len(s.items))
	for i, e := range s.items {
		out[i] = e.Clone()
	}
	return out
}

// unlockAndNotify releases s.mu and then calls every listener.
func (s *Store) unlockAndNotify() {
	subs := slices.Clone(s.subs)
	var events []core.SavingsEvent
	if len(subs) > 0 {
		events = s.cloneItemsLocked()
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(events)
	}
}

func (s *Store) logFailure(ctx context.Context, op, eventID string, err error) {
	s.logger.WarnContext(ctx, "Mutation failed, local list rolled back",
		log.NewFields().
			WithOperation(op).
			WithUser(s.userID).
			WithEvent(eventID).
			WithError(err).
			ToSlice()...)
}
