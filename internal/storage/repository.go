package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"impact/internal/core"
	"impact/internal/log"
)

// SQLiteRepository implements persistence.Store on a local SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

// DSN builds the modernc connection string with foreign keys enabled.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  log.OrDiscard(logger).WithComponent(log.ComponentStorage),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) EnsureUser(ctx context.Context, userID string) error {
	if err := core.RequireUser(userID); err != nil {
		return err
	}
	if err := r.queries.EnsureUser(ctx, userID, r.now().UTC().UnixNano()); err != nil {
		return core.Persistence("ensure user", err)
	}
	return nil
}

func (r *SQLiteRepository) GetEvent(ctx context.Context, userID, eventID string) (core.SavingsEvent, error) {
	row, err := r.queries.GetEvent(ctx, userID, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsEvent{}, core.NotFound("event", eventID)
	}
	if err != nil {
		return core.SavingsEvent{}, core.Persistence("get event", err)
	}
	return fromRow(row), nil
}

func (r *SQLiteRepository) CreateEvent(ctx context.Context, userID string, e core.SavingsEvent) (core.SavingsEvent, error) {
	e = e.Clone()
	e.ID = uuid.NewString()
	err := r.inTx(ctx, func(q *Queries) error {
		if err := r.requireUser(ctx, q, userID); err != nil {
			return err
		}
		return q.UpsertEvent(ctx, toRow(userID, e))
	})
	if err != nil {
		return core.SavingsEvent{}, core.Persistence("create event", err)
	}

	r.logger.DebugContext(ctx, "Savings event stored",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithUser(userID).
			WithEvent(e.ID).
			WithSaving(e.Amount, e.Period).
			ToSlice()...)
	return e, nil
}

func (r *SQLiteRepository) PutEvent(ctx context.Context, userID string, e core.SavingsEvent) error {
	if e.ID == "" {
		return core.Persistence("put event", errors.New("event id is empty"))
	}
	err := r.inTx(ctx, func(q *Queries) error {
		if err := r.requireUser(ctx, q, userID); err != nil {
			return err
		}
		return q.UpsertEvent(ctx, toRow(userID, e))
	})
	if err != nil {
		return core.Persistence("put event", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateEvent(ctx context.Context, userID, eventID string, patch core.EventPatch) error {
	err := r.inTx(ctx, func(q *Queries) error {
		row, err := q.GetEvent(ctx, userID, eventID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound("event", eventID)
		}
		if err != nil {
			return err
		}
		updated := patch.ApplyTo(fromRow(row), r.now().UTC())
		return q.UpsertEvent(ctx, toRow(userID, updated))
	})
	if err != nil {
		return core.Persistence("update event", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteEvent(ctx context.Context, userID, eventID string) error {
	n, err := r.queries.DeleteEvent(ctx, userID, eventID)
	if err != nil {
		return core.Persistence("delete event", err)
	}
	if n == 0 {
		return core.NotFound("event", eventID)
	}
	return nil
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, userID string, q core.ListQuery) ([]core.SavingsEvent, error) {
	q = q.Normalize()
	params := ListEventsParams{
		UserID:  userID,
		QuestID: q.QuestID,
		Limit:   int64(q.Limit),
	}
	if q.Verified != nil {
		params.Verified = sql.NullBool{Bool: *q.Verified, Valid: true}
	}
	rows, err := r.queries.ListEvents(ctx, params)
	if err != nil {
		return nil, core.Persistence("list events", err)
	}
	out := make([]core.SavingsEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func (r *SQLiteRepository) GetAggregate(ctx context.Context, userID string) (core.ImpactAggregate, error) {
	u, err := r.queries.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImpactAggregate{}, core.NotFound("user", userID)
	}
	if err != nil {
		return core.ImpactAggregate{}, core.Persistence("get aggregate", err)
	}
	a := core.ImpactAggregate{
		ImpactAnnualEstimated: u.ImpactAnnualEstimated,
		ImpactAnnualVerified:  u.ImpactAnnualVerified,
		ProofsVerifiedCount:   int(u.ProofsVerifiedCount),
	}
	if u.LastImpactRecalcAt.Valid {
		t := time.Unix(0, u.LastImpactRecalcAt.Int64).UTC()
		a.LastRecalcAt = &t
	}
	return a, nil
}

func (r *SQLiteRepository) SaveAggregate(ctx context.Context, userID string, a core.ImpactAggregate) error {
	params := UpdateAggregateParams{
		ImpactAnnualEstimated: a.ImpactAnnualEstimated,
		ImpactAnnualVerified:  a.ImpactAnnualVerified,
		ProofsVerifiedCount:   int64(a.ProofsVerifiedCount),
		ID:                    userID,
	}
	if a.LastRecalcAt != nil {
		params.LastImpactRecalcAt = sql.NullInt64{Int64: a.LastRecalcAt.UnixNano(), Valid: true}
	}
	n, err := r.queries.UpdateAggregate(ctx, params)
	if err != nil {
		return core.Persistence("save aggregate", err)
	}
	if n == 0 {
		return core.NotFound("user", userID)
	}
	return nil
}

func (r *SQLiteRepository) requireUser(ctx context.Context, q *Queries, userID string) error {
	if _, err := q.GetUser(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound("user", userID)
		}
		return err
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func toRow(userID string, e core.SavingsEvent) SavingsEventRow {
	row := SavingsEventRow{
		UserID:    userID,
		ID:        e.ID,
		Title:     e.Title,
		QuestID:   e.QuestID,
		Amount:    e.Amount,
		Period:    string(e.Period),
		Source:    string(e.Source),
		Verified:  e.Verified,
		CreatedAt: e.CreatedAt.UTC().UnixNano(),
		UpdatedAt: e.UpdatedAt.UTC().UnixNano(),
	}
	if e.Proof != nil {
		row.ProofType = sql.NullString{String: e.Proof.Type, Valid: true}
		row.ProofNote = sql.NullString{String: e.Proof.Note, Valid: e.Proof.Note != ""}
	}
	return row
}

func fromRow(row SavingsEventRow) core.SavingsEvent {
	e := core.SavingsEvent{
		ID:        row.ID,
		Title:     row.Title,
		QuestID:   row.QuestID,
		Amount:    row.Amount,
		Period:    core.Period(row.Period),
		Source:    core.Source(row.Source),
		Verified:  row.Verified,
		CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
	}
	if row.ProofType.Valid {
		e.Proof = &core.Proof{Type: row.ProofType.String, Note: row.ProofNote.String}
	}
	return e
}
