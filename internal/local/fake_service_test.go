package local

import (
	"context"
	"sync"
	"time"

	"impact/internal/core"
	"impact/internal/persistence/memory"
)

// fakeService persists to a memory store. Failures can be injected per
// operation and calls can be held at a gate.
type fakeService struct {
	store *memory.Store

	mu    sync.Mutex
	fail  map[string][]error
	gates map[string]chan struct{}
	calls []string
	tick  time.Time
}

func newFakeService() *fakeService {
	return &fakeService{
		store: memory.NewWithUsers("u1"),
		fail:  map[string][]error{},
		gates: map[string]chan struct{}{},
		tick:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// failNext queues errors returned by the next calls of op, in order. A nil
// entry lets that call through.
func (f *fakeService) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], errs...)
}

// hold makes calls of op wait for one token each on the returned channel.
func (f *fakeService) hold(op string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[op] = ch
	return ch
}

func (f *fakeService) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeService) enter(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	gate := f.gates[op]
	var err error
	if q := f.fail[op]; len(q) > 0 {
		err = q[0]
		f.fail[op] = q[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeService) Create(ctx context.Context, userID string, in core.NewEvent) (core.SavingsEvent, error) {
	if err := f.enter("create"); err != nil {
		return core.SavingsEvent{}, err
	}
	f.mu.Lock()
	f.tick = f.tick.Add(time.Minute)
	at := f.tick
	f.mu.Unlock()
	return f.store.CreateEvent(ctx, userID, in.Normalize().Event(at))
}

func (f *fakeService) Update(ctx context.Context, userID, eventID string, patch core.EventPatch) error {
	if err := f.enter("update"); err != nil {
		return err
	}
	return f.store.UpdateEvent(ctx, userID, eventID, patch)
}

func (f *fakeService) Delete(ctx context.Context, userID, eventID string) error {
	if err := f.enter("delete"); err != nil {
		return err
	}
	return f.store.DeleteEvent(ctx, userID, eventID)
}

func (f *fakeService) Restore(ctx context.Context, userID, eventID string, snapshot core.SavingsEvent) (core.SavingsEvent, error) {
	if err := f.enter("restore"); err != nil {
		return core.SavingsEvent{}, err
	}
	e := snapshot.Clone()
	e.ID = eventID
	e.Verified = false
	if err := f.store.PutEvent(ctx, userID, e); err != nil {
		return core.SavingsEvent{}, err
	}
	return e, nil
}

func (f *fakeService) List(ctx context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error) {
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	return f.store.ListEvents(ctx, userID, q)
}
