package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"impact/internal/core"
)

type user struct {
	aggregate core.ImpactAggregate
	events    map[string]core.SavingsEvent
}

// Store keeps users and their events in process memory.
type Store struct {
	mu    sync.Mutex
	users map[string]*user
	now   func() time.Time
}

func New() *Store {
	return &Store{users: map[string]*user{}, now: time.Now}
}

// NewWithUsers returns a store with the given users already present.
func NewWithUsers(userIDs ...string) *Store {
	s := New()
	for _, id := range userIDs {
		s.users[id] = &user{events: map[string]core.SavingsEvent{}}
	}
	return s
}

func (s *Store) EnsureUser(_ context.Context, userID string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		s.users[userID] = &user{events: map[string]core.SavingsEvent{}}
	}
	return nil
}

func (s *Store) user(userID string) (*user, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, core.NotFound("user", userID)
	}
	return u, nil
}

func (s *Store) GetEvent(_ context.Context, userID, eventID string) (core.SavingsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return core.SavingsEvent{}, err
	}
	e, ok := u.events[eventID]
	if !ok {
		return core.SavingsEvent{}, core.NotFound("event", eventID)
	}
	return e.Clone(), nil
}

// CreateEvent assigns a new random id.
func (s *Store) CreateEvent(_ context.Context, userID string, e core.SavingsEvent) (core.SavingsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return core.SavingsEvent{}, err
	}
	e = e.Clone()
	e.ID = uuid.NewString()
	u.events[e.ID] = e
	return e.Clone(), nil
}

func (s *Store) PutEvent(_ context.Context, userID string, e core.SavingsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.events[e.ID] = e.Clone()
	return nil
}

func (s *Store) UpdateEvent(_ context.Context, userID, eventID string, patch core.EventPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	e, ok := u.events[eventID]
	if !ok {
		return core.NotFound("event", eventID)
	}
	u.events[eventID] = patch.ApplyTo(e, s.now().UTC())
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	if _, ok := u.events[eventID]; !ok {
		return core.NotFound("event", eventID)
	}
	delete(u.events, eventID)
	return nil
}

func (s *Store) ListEvents(_ context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error) {
	q = q.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.SavingsEvent, 0, len(u.events))
	for _, e := range u.events {
		if q.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) GetAggregate(_ context.Context, userID string) (core.ImpactAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return core.ImpactAggregate{}, err
	}
	return u.aggregate, nil
}

func (s *Store) SaveAggregate(_ context.Context, userID string, a core.ImpactAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.aggregate = a
	return nil
}
