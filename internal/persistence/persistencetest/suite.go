// Package persistencetest holds the behaviour every persistence.Store
// adapter must share.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/core"
	"impact/internal/persistence"
)

// Run exercises store against the common contract. newStore must return an
// empty store.
func Run(t *testing.T, newStore func(t *testing.T) persistence.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	event := func(title string, amount float64, p core.Period, at time.Time) core.SavingsEvent {
		return core.NewEvent{Title: title, Amount: amount, Period: p, Proof: &core.Proof{}}.Normalize().Event(at)
	}

	t.Run("create assigns id and get returns it", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))

		created, err := s.CreateEvent(ctx, "u1", event("Coffee", 10, core.PeriodMonth, base))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)

		got, err := s.GetEvent(ctx, "u1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Coffee", got.Title)
		assert.Equal(t, 10.0, got.Amount)
		assert.Equal(t, core.PeriodMonth, got.Period)
		assert.Equal(t, core.ManualQuestID, got.QuestID)
		assert.False(t, got.Verified)
		assert.True(t, base.Equal(got.CreatedAt))
		require.NotNil(t, got.Proof)
		assert.Equal(t, core.DefaultProofType, got.Proof.Type)
	})

	t.Run("create for unknown user is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateEvent(ctx, "ghost", event("x", 1, core.PeriodYear, base))
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("ensure user is idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))
		require.NoError(t, s.SaveAggregate(ctx, "u1", core.ImpactAggregate{ImpactAnnualEstimated: 5}))
		require.NoError(t, s.EnsureUser(ctx, "u1"))

		a, err := s.GetAggregate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 5.0, a.ImpactAnnualEstimated)
	})

	t.Run("missing event is not found", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))

		_, err := s.GetEvent(ctx, "u1", "nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.ErrorIs(t, s.DeleteEvent(ctx, "u1", "nope"), core.ErrNotFound)
		title := "t"
		assert.ErrorIs(t, s.UpdateEvent(ctx, "u1", "nope", core.EventPatch{Title: &title}), core.ErrNotFound)
	})

	t.Run("update applies only patched fields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))
		created, err := s.CreateEvent(ctx, "u1", event("Coffee", 10, core.PeriodMonth, base))
		require.NoError(t, err)

		amount := 25.5
		require.NoError(t, s.UpdateEvent(ctx, "u1", created.ID, core.EventPatch{Amount: &amount}))

		got, err := s.GetEvent(ctx, "u1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, 25.5, got.Amount)
		assert.Equal(t, "Coffee", got.Title)
		assert.Equal(t, core.PeriodMonth, got.Period)
		assert.True(t, base.Equal(got.CreatedAt))
		assert.False(t, got.Verified)
	})

	t.Run("put restores under original id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))
		created, err := s.CreateEvent(ctx, "u1", event("Gym", 30, core.PeriodMonth, base))
		require.NoError(t, err)
		require.NoError(t, s.DeleteEvent(ctx, "u1", created.ID))

		_, err = s.GetEvent(ctx, "u1", created.ID)
		require.ErrorIs(t, err, core.ErrNotFound)

		require.NoError(t, s.PutEvent(ctx, "u1", created))
		got, err := s.GetEvent(ctx, "u1", created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("list is newest first with filters and limit", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))
		require.NoError(t, s.EnsureUser(ctx, "u2"))

		for i, title := range []string{"a", "b", "c"} {
			_, err := s.CreateEvent(ctx, "u1", event(title, float64(i+1), core.PeriodMonth, base.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}
		quest := core.NewEvent{Title: "q", QuestID: "quest-1", Amount: 9, Period: core.PeriodYear}.Normalize().Event(base.Add(-time.Hour))
		_, err := s.CreateEvent(ctx, "u1", quest)
		require.NoError(t, err)
		_, err = s.CreateEvent(ctx, "u2", event("other", 1, core.PeriodYear, base))
		require.NoError(t, err)

		all, err := s.ListEvents(ctx, "u1", core.ListQuery{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"c", "b", "a", "q"}, titles(all))

		limited, err := s.ListEvents(ctx, "u1", core.ListQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, titles(limited))

		byQuest, err := s.ListEvents(ctx, "u1", core.ListQuery{QuestID: "quest-1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"q"}, titles(byQuest))

		verified := true
		none, err := s.ListEvents(ctx, "u1", core.ListQuery{Verified: &verified})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("aggregate round trip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.EnsureUser(ctx, "u1"))

		fresh, err := s.GetAggregate(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, fresh.IsZero())
		assert.Nil(t, fresh.LastRecalcAt)

		at := base.Add(30 * time.Minute)
		want := core.ImpactAggregate{
			ImpactAnnualEstimated: 480,
			ImpactAnnualVerified:  120,
			ProofsVerifiedCount:   2,
			LastRecalcAt:          &at,
		}
		require.NoError(t, s.SaveAggregate(ctx, "u1", want))

		got, err := s.GetAggregate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 480.0, got.ImpactAnnualEstimated)
		assert.Equal(t, 120.0, got.ImpactAnnualVerified)
		assert.Equal(t, 2, got.ProofsVerifiedCount)
		require.NotNil(t, got.LastRecalcAt)
		assert.True(t, at.Equal(*got.LastRecalcAt))

		_, err = s.GetAggregate(ctx, "ghost")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func titles(events []core.SavingsEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Title
	}
	return out
}
