package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact/internal/core"
)

func TestUndoManager_Lifecycle(t *testing.T) {
	u := NewUndoManager(nil)
	assert.Equal(t, UndoActive, u.State())
	_, ok := u.Pending()
	assert.False(t, ok)

	now := time.Now()
	prev := u.offer(DeletedSnapshot{ID: "a", Data: core.SavingsEvent{ID: "a", Amount: 1}, DeletedAt: now})
	assert.Nil(t, prev)
	assert.Equal(t, UndoPending, u.State())

	prev = u.offer(DeletedSnapshot{ID: "b", DeletedAt: now})
	require.NotNil(t, prev)
	assert.Equal(t, "a", prev.ID)

	assert.False(t, u.Dismiss("a"), "superseded snapshot is no longer held")
	assert.True(t, u.Dismiss("b"))
	assert.Equal(t, UndoPurged, u.State())

	_, ok = u.take()
	assert.False(t, ok)
}

func TestUndoManager_OfferValid(t *testing.T) {
	u := NewUndoManager(nil)
	deletedAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	u.offer(DeletedSnapshot{ID: "a", DeletedAt: deletedAt})

	assert.True(t, u.OfferValid(deletedAt.Add(9*time.Second), 10*time.Second))
	assert.False(t, u.OfferValid(deletedAt.Add(10*time.Second), 10*time.Second))

	// the data itself does not expire
	snap, ok := u.Pending()
	require.True(t, ok)
	assert.Equal(t, "a", snap.ID)
}

func TestUndoManager_ExpireAfter(t *testing.T) {
	u := NewUndoManager(nil)
	u.offer(DeletedSnapshot{ID: "a", DeletedAt: time.Now()})
	u.ExpireAfter("a", 5*time.Millisecond)

	require.Eventually(t, func() bool { return u.State() == UndoPurged }, time.Second, time.Millisecond)
}

func TestUndoManager_ExpiryIgnoresNewerSnapshot(t *testing.T) {
	u := NewUndoManager(nil)
	u.offer(DeletedSnapshot{ID: "a", DeletedAt: time.Now()})
	stop := u.ExpireAfter("a", time.Hour)
	defer stop()

	u.offer(DeletedSnapshot{ID: "b", DeletedAt: time.Now()})
	assert.False(t, u.Dismiss("a"))
	_, ok := u.Pending()
	assert.True(t, ok)
}

func TestUndoManager_Revert(t *testing.T) {
	u := NewUndoManager(nil)
	prev := u.offer(DeletedSnapshot{ID: "a"})
	u.revert("a", prev)
	assert.Equal(t, UndoActive, u.State())

	first := u.offer(DeletedSnapshot{ID: "a"})
	assert.Nil(t, first)
	second := u.offer(DeletedSnapshot{ID: "b"})
	u.revert("b", second)
	snap, ok := u.Pending()
	require.True(t, ok)
	assert.Equal(t, "a", snap.ID)
}

func TestUndoState_String(t *testing.T) {
	assert.Equal(t, "pending_undo", UndoPending.String())
	assert.Equal(t, "purged", UndoPurged.String())
	assert.Equal(t, "active", UndoActive.String())
}
