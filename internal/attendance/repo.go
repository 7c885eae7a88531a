package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate signals the unique constraint rejected a concurrent
// duplicate. The recorder maps it to the same "already marked" outcome as
// a successful pre-check.
var ErrDuplicate = errors.New("attendance already recorded")

const pgUniqueViolation = "23505"

// Repository persists attendance records and the daily ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindRecord returns the record for (session, student), or nil.
func (r *Repository) FindRecord(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, verification_type, ip, latitude, longitude, device, marked_at
		FROM smart_attendance_records
		WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.VerificationType, &rec.IP, &rec.Latitude, &rec.Longitude, &rec.Device, &rec.MarkedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes a new record, returning ErrDuplicate when the
// (session_id, student_id) constraint rejects it.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO smart_attendance_records (id, session_id, student_id, verification_type, ip, latitude, longitude, device, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.SessionID, rec.StudentID, rec.VerificationType, rec.IP, rec.Latitude, rec.Longitude, rec.Device, rec.MarkedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns all records for a session, newest first.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, verification_type, ip, latitude, longitude, device, marked_at
		FROM smart_attendance_records
		WHERE session_id = $1
		ORDER BY marked_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.VerificationType, &rec.IP, &rec.Latitude, &rec.Longitude, &rec.Device, &rec.MarkedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// FindLedger returns the ledger entry for (student, date), or nil.
func (r *Repository) FindLedger(ctx context.Context, studentID string, date time.Time) (*LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, date, status, marked_at, source
		FROM attendance_ledger
		WHERE student_id = $1 AND date = $2
	`, studentID, date.Format("2006-01-02"))
	var e LedgerEntry
	if err := row.Scan(&e.ID, &e.StudentID, &e.Date, &e.Status, &e.MarkedAt, &e.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// InsertLedger writes a daily entry. Racing writers for the same
// (student, date) collapse to the first row via ON CONFLICT DO NOTHING.
func (r *Repository) InsertLedger(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MarkedAt.IsZero() {
		e.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_ledger (id, student_id, date, status, marked_at, source)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, date) DO NOTHING
	`, e.ID, e.StudentID, e.Date.Format("2006-01-02"), e.Status, e.MarkedAt, e.Source)
	return err
}

// MarkLedgerPresent upserts today's entry to Present. An existing
// non-Present row is promoted; a Present row keeps its original
// marked_at and source.
func (r *Repository) MarkLedgerPresent(ctx context.Context, e LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.MarkedAt.IsZero() {
		e.MarkedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_ledger (id, student_id, date, status, marked_at, source)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, date) DO UPDATE
		SET status = EXCLUDED.status, marked_at = EXCLUDED.marked_at, source = EXCLUDED.source
		WHERE attendance_ledger.status <> EXCLUDED.status
	`, e.ID, e.StudentID, e.Date.Format("2006-01-02"), e.Status, e.MarkedAt, e.Source)
	return err
}

// ListLedger returns ledger entries for a calendar date.
func (r *Repository) ListLedger(ctx context.Context, date time.Time) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, date, status, marked_at, source
		FROM attendance_ledger
		WHERE date = $1
		ORDER BY marked_at
	`, date.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Date, &e.Status, &e.MarkedAt, &e.Source); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
