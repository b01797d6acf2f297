package local

import (
	"errors"
	"sync"
	"time"

	"impact/internal/core"
	"impact/internal/log"
)

// ErrNothingToUndo is returned by Restore when no deletion is pending.
var ErrNothingToUndo = errors.New("nothing to undo")

// UndoState is the lifecycle of the single undo slot.
type UndoState int

const (
	// UndoActive: no deletion is waiting to be undone.
	UndoActive UndoState = iota
	// UndoPending: a snapshot of the last deleted event is held.
	UndoPending
	// UndoPurged: the snapshot was discarded without a restore.
	UndoPurged
)

func (s UndoState) String() string {
	switch s {
	case UndoActive:
		return "active"
	case UndoPending:
		return "pending_undo"
	case UndoPurged:
		return "purged"
	}
	return "unknown"
}

// DeletedSnapshot is the full record of a deleted event as it was
// immediately before deletion.
type DeletedSnapshot struct {
	ID        string
	Data      core.SavingsEvent
	DeletedAt time.Time
}

// UndoManager holds at most one DeletedSnapshot. A new deletion silently
// supersedes the previous one. The snapshot never expires by itself; the
// caller decides how long the offer to restore stays valid.
type UndoManager struct {
	mu     sync.Mutex
	slot   *DeletedSnapshot
	state  UndoState
	logger *log.Logger
}

func NewUndoManager(logger *log.Logger) *UndoManager {
	return &UndoManager{
		state:  UndoActive,
		logger: log.OrDiscard(logger).WithComponent(log.ComponentUndo),
	}
}

func (u *UndoManager) State() UndoState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Pending returns the held snapshot, if any.
func (u *UndoManager) Pending() (DeletedSnapshot, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.slot == nil {
		return DeletedSnapshot{}, false
	}
	return cloneSnapshot(*u.slot), true
}

// OfferValid reports whether a restore should still be offered at now.
func (u *UndoManager) OfferValid(now time.Time, window time.Duration) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.slot != nil && now.Sub(u.slot.DeletedAt) < window
}

// Dismiss purges the slot if it holds id. An empty id purges whatever is
// held. It reports whether anything was purged.
func (u *UndoManager) Dismiss(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.slot == nil || (id != "" && u.slot.ID != id) {
		return false
	}
	u.logger.Debug("Undo snapshot purged", log.FieldOperation, log.OpPurge, log.FieldEventID, u.slot.ID)
	u.slot = nil
	u.state = UndoPurged
	return true
}

// ExpireAfter purges the slot for id once window has elapsed, unless it
// was restored or superseded first. The returned func cancels the timer.
func (u *UndoManager) ExpireAfter(id string, window time.Duration) (stop func() bool) {
	t := time.AfterFunc(window, func() { u.Dismiss(id) })
	return t.Stop
}

// offer stores s and returns the snapshot it superseded.
func (u *UndoManager) offer(s DeletedSnapshot) *DeletedSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	prev := u.slot
	if prev != nil {
		u.logger.Debug("Undo snapshot superseded",
			log.FieldOperation, log.OpPurge, log.FieldEventID, prev.ID)
	}
	snap := cloneSnapshot(s)
	u.slot = &snap
	u.state = UndoPending
	return prev
}

// revert undoes offer after the deletion itself failed.
func (u *UndoManager) revert(id string, prev *DeletedSnapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.slot == nil || u.slot.ID != id {
		return
	}
	u.slot = prev
	if prev != nil {
		u.state = UndoPending
	} else {
		u.state = UndoActive
	}
}

// take empties the slot for a restore attempt.
func (u *UndoManager) take() (DeletedSnapshot, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.slot == nil {
		return DeletedSnapshot{}, false
	}
	s := *u.slot
	u.slot = nil
	u.state = UndoActive
	return s, true
}

// restoreFailed marks a taken snapshot as lost.
func (u *UndoManager) restoreFailed() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.slot == nil {
		u.state = UndoPurged
	}
}

func cloneSnapshot(s DeletedSnapshot) DeletedSnapshot {
	s.Data = s.Data.Clone()
	return s
}
