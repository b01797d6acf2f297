package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/core"
	"impact/internal/persistence"
	"impact/internal/persistence/persistencetest"
)

func TestStoreContract(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Store { return New() })
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewWithUsers("u1")
	created, err := s.CreateEvent(ctx, "u1", core.SavingsEvent{Title: "x", Amount: 1, Period: core.PeriodYear, Proof: &core.Proof{Type: "note"}})
	require.NoError(t, err)

	created.Proof.Note = "mutated"
	got, err := s.GetEvent(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Proof.Note)
}

func TestEnsureUser_RequiresID(t *testing.T) {
	assert.ErrorIs(t, New().EnsureUser(context.Background(), ""), core.ErrUnauthenticated)
}
