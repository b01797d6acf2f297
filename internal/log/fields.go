package log

import (
	"sort"
	"time"

	"impact/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldUserID    = "user_id"
	FieldEventID   = "event_id"
	FieldReason    = "reason"
	FieldAmount    = "amount"
	FieldPeriod    = "period"
	FieldError     = "error"
	FieldErrorKind = "error_kind"
	FieldDuration  = "duration_ms"
	FieldAttempt   = "attempt"
	FieldQueue     = "queue"
	FieldBackend   = "backend"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentSavings    = "savings"
	ComponentLocalStore = "local_store"
	ComponentUndo       = "undo"
	ComponentAggregate  = "aggregate"
	ComponentStaleness  = "staleness"
	ComponentRecalc     = "recalc"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
	ComponentCLI        = "cli"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpRestore  = "restore"
	OpList     = "list"
	OpRecalc   = "recalc"
	OpRollback = "rollback"
	OpUndo     = "undo"
	OpPurge    = "purge"
	OpMigrate  = "migrate"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the user id
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithEvent adds the savings event id
func (f LogFields) WithEvent(eventID string) LogFields {
	f[FieldEventID] = eventID
	return f
}

// WithReason adds the recalculation reason
func (f LogFields) WithReason(reason string) LogFields {
	f[FieldReason] = reason
	return f
}

// WithSaving adds amount and period of a savings event
func (f LogFields) WithSaving(amount float64, period core.Period) LogFields {
	f[FieldAmount] = amount
	f[FieldPeriod] = string(period)
	return f
}

// WithError adds error and error_kind fields
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorKind] = core.KindOf(err)
	}
	return f
}

// WithDuration adds the elapsed time in milliseconds
func (f LogFields) WithDuration(d time.Duration) LogFields {
	f[FieldDuration] = d.Milliseconds()
	return f
}

// ToSlice converts LogFields to a slice for slog, sorted by key
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}
