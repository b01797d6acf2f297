// Package recalc talks to the aggregate recompute endpoint and schedules
// recompute jobs in the background.
package recalc

import (
	"context"
	"fmt"
)

// Reason tags a recompute request with what caused it.
type Reason string

const (
	ReasonCreate  Reason = "create"
	ReasonUpdate  Reason = "update"
	ReasonDelete  Reason = "delete"
	ReasonRestore Reason = "restore"
	ReasonOnOpen  Reason = "on_open"
	ReasonManual  Reason = "manual_button"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonCreate, ReasonUpdate, ReasonDelete, ReasonRestore, ReasonOnOpen, ReasonManual:
		return true
	}
	return false
}

func ParseReason(s string) (Reason, error) {
	r := Reason(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown recalc reason %q", s)
	}
	return r, nil
}

// Scheduler accepts background recompute jobs. Implementations never block
// on the recompute itself.
type Scheduler interface {
	Schedule(ctx context.Context, userID string, reason Reason) error
}
