package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, course, subject, batch, duration_minutes, gps_required, wifi_required, status, started_by, started_at, expires_at, closed_at`

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new session.
func (r *Repository) Insert(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.Course, s.Subject, s.Batch, s.DurationMinutes, s.GPSRequired, s.WifiRequired, s.Status, s.StartedBy, s.StartedAt, s.ExpiresAt, s.ClosedAt)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Get returns a session by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// Current returns the most recently started active session, or nil.
// Callers still re-check expiry; the stored flag may be stale.
func (r *Repository) Current(ctx context.Context) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, StatusActive)
	return scanSession(row)
}

// Close marks a session closed. The status guard makes the transition
// idempotent: a session already closed keeps its original closed_at.
func (r *Repository) Close(ctx context.Context, id string, closedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET status = $2, closed_at = $3
		WHERE id = $1 AND status = $4
	`, id, StatusClosed, closedAt, StatusActive)
	return err
}

// CloseExpired closes every active session whose window has passed and
// returns how many transitioned.
func (r *Repository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions
		SET status = $1, closed_at = $2
		WHERE status = $3 AND expires_at < $2
	`, StatusClosed, now, StatusActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// List returns recent sessions, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Course, &s.Subject, &s.Batch, &s.DurationMinutes, &s.GPSRequired, &s.WifiRequired, &s.Status, &s.StartedBy, &s.StartedAt, &s.ExpiresAt, &s.ClosedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Course, &s.Subject, &s.Batch, &s.DurationMinutes, &s.GPSRequired, &s.WifiRequired, &s.Status, &s.StartedBy, &s.StartedAt, &s.ExpiresAt, &s.ClosedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
