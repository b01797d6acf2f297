package persistence

import (
	"context"

	"impact/internal/core"
)

// Ports for outbound adapters. Records are scoped per user, mirroring the
// document layout users/{uid} and users/{uid}/savingsEvents/{eventId}.
type (
	EventStore interface {
		// GetEvent returns core.ErrNotFound when the event does not exist.
		GetEvent(ctx context.Context, userID, eventID string) (core.SavingsEvent, error)

		// CreateEvent stores e under a freshly assigned id and returns it.
		CreateEvent(ctx context.Context, userID string, e core.SavingsEvent) (core.SavingsEvent, error)

		// PutEvent stores e under e.ID, replacing any existing record.
		PutEvent(ctx context.Context, userID string, e core.SavingsEvent) error

		// UpdateEvent applies patch to an existing event.
		UpdateEvent(ctx context.Context, userID, eventID string, patch core.EventPatch) error

		DeleteEvent(ctx context.Context, userID, eventID string) error

		// ListEvents returns events newest first.
		ListEvents(ctx context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error)
	}

	AggregateStore interface {
		// GetAggregate returns core.ErrNotFound when the user record is missing.
		GetAggregate(ctx context.Context, userID string) (core.ImpactAggregate, error)

		SaveAggregate(ctx context.Context, userID string, a core.ImpactAggregate) error
	}

	UserStore interface {
		// EnsureUser creates the user record if it does not exist yet.
		EnsureUser(ctx context.Context, userID string) error
	}

	// Store is the full persistence port.
	Store interface {
		EventStore
		AggregateStore
		UserStore
	}
)
