package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type User struct {
	ID                    string
	ImpactAnnualEstimated float64
	ImpactAnnualVerified  float64
	ProofsVerifiedCount   int64
	LastImpactRecalcAt    sql.NullInt64
	CreatedAt             int64
}

type SavingsEventRow struct {
	UserID    string
	ID        string
	Title     string
	QuestID   string
	Amount    float64
	Period    string
	Source    string
	ProofType sql.NullString
	ProofNote sql.NullString
	Verified  bool
	CreatedAt int64
	UpdatedAt int64
}

const ensureUser = `INSERT INTO users (id, created_at) VALUES (?, ?)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) EnsureUser(ctx context.Context, id string, createdAt int64) error {
	_, err := q.db.ExecContext(ctx, ensureUser, id, createdAt)
	return err
}

const getUser = `SELECT id, impact_annual_estimated, impact_annual_verified,
    proofs_verified_count, last_impact_recalc_at, created_at
FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(
		&u.ID,
		&u.ImpactAnnualEstimated,
		&u.ImpactAnnualVerified,
		&u.ProofsVerifiedCount,
		&u.LastImpactRecalcAt,
		&u.CreatedAt,
	)
	return u, err
}

type UpdateAggregateParams struct {
	ImpactAnnualEstimated float64
	ImpactAnnualVerified  float64
	ProofsVerifiedCount   int64
	LastImpactRecalcAt    sql.NullInt64
	ID                    string
}

const updateAggregate = `UPDATE users SET
    impact_annual_estimated = ?,
    impact_annual_verified = ?,
    proofs_verified_count = ?,
    last_impact_recalc_at = ?
WHERE id = ?`

func (q *Queries) UpdateAggregate(ctx context.Context, arg UpdateAggregateParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateAggregate,
		arg.ImpactAnnualEstimated,
		arg.ImpactAnnualVerified,
		arg.ProofsVerifiedCount,
		arg.LastImpactRecalcAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const eventColumns = `user_id, id, title, quest_id, amount, period, source,
    proof_type, proof_note, verified, created_at, updated_at`

const upsertEvent = `INSERT INTO savings_events (` + eventColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    title = excluded.title,
    quest_id = excluded.quest_id,
    amount = excluded.amount,
    period = excluded.period,
    source = excluded.source,
    proof_type = excluded.proof_type,
    proof_note = excluded.proof_note,
    verified = excluded.verified,
    created_at = excluded.created_at,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertEvent(ctx context.Context, arg SavingsEventRow) error {
	_, err := q.db.ExecContext(ctx, upsertEvent,
		arg.UserID,
		arg.ID,
		arg.Title,
		arg.QuestID,
		arg.Amount,
		arg.Period,
		arg.Source,
		arg.ProofType,
		arg.ProofNote,
		arg.Verified,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getEvent = `SELECT ` + eventColumns + `
FROM savings_events WHERE user_id = ? AND id = ?`

func (q *Queries) GetEvent(ctx context.Context, userID, id string) (SavingsEventRow, error) {
	return scanEvent(q.db.QueryRowContext(ctx, getEvent, userID, id))
}

const deleteEvent = `DELETE FROM savings_events WHERE user_id = ? AND id = ?`

func (q *Queries) DeleteEvent(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteEvent, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ListEventsParams struct {
	UserID   string
	QuestID  string
	Verified sql.NullBool
	Limit    int64
}

const listEvents = `SELECT ` + eventColumns + `
FROM savings_events
WHERE user_id = ?
  AND (? = '' OR quest_id = ?)
  AND (? IS NULL OR verified = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListEvents(ctx context.Context, arg ListEventsParams) ([]SavingsEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listEvents,
		arg.UserID,
		arg.QuestID, arg.QuestID,
		arg.Verified, arg.Verified,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SavingsEventRow
	for rows.Next() {
		i, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (SavingsEventRow, error) {
	var i SavingsEventRow
	err := s.Scan(
		&i.UserID,
		&i.ID,
		&i.Title,
		&i.QuestID,
		&i.Amount,
		&i.Period,
		&i.Source,
		&i.ProofType,
		&i.ProofNote,
		&i.Verified,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
