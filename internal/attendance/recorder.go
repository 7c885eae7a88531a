package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence surface the recorder needs.
type Store interface {
	FindRecord(ctx context.Context, sessionID, studentID string) (*Record, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	FindLedger(ctx context.Context, studentID string, date time.Time) (*LedgerEntry, error)
	InsertLedger(ctx context.Context, e LedgerEntry) error
	MarkLedgerPresent(ctx context.Context, e LedgerEntry) error
}

// Result distinguishes a newly committed record from an already-marked one.
type Result struct {
	Created bool
	Record  Record
}

// Recorder commits verified claims exactly once per (session, student) and
// mirrors them into the daily ledger on a best-effort basis.
type Recorder struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(store Store, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record commits one attendance fact. Submitting the same (session, student)
// twice returns the stored record with Created=false, never an error: the
// pre-check and the unique-constraint rejection under a race map to the same
// outcome. The ledger mirror is not part of the success criteria; its
// failure is logged and the request still succeeds.
func (r *Recorder) Record(ctx context.Context, rec Record) (Result, error) {
	existing, err := r.store.FindRecord(ctx, rec.SessionID, rec.StudentID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{Created: false, Record: *existing}, nil
	}

	rec.MarkedAt = r.now().UTC()
	stored, err := r.store.InsertRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race to a concurrent identical claim.
			if existing, ferr := r.store.FindRecord(ctx, rec.SessionID, rec.StudentID); ferr == nil && existing != nil {
				return Result{Created: false, Record: *existing}, nil
			}
			return Result{Created: false, Record: rec}, nil
		}
		return Result{}, err
	}

	r.mirrorLedger(ctx, stored.StudentID, stored.MarkedAt, SourceSmart)
	return Result{Created: true, Record: stored}, nil
}

// MarkPresentToday writes today's ledger entry directly, used by the
// camera path which has no session scope. Returns false only when the
// student already has a Present entry; an existing non-Present entry
// (a seeded absence) is promoted.
func (r *Recorder) MarkPresentToday(ctx context.Context, studentID, source string) (bool, LedgerEntry, error) {
	now := r.now().UTC()
	today := now.Truncate(24 * time.Hour)
	existing, err := r.store.FindLedger(ctx, studentID, today)
	if err != nil {
		return false, LedgerEntry{}, err
	}
	if existing != nil && existing.Status == StatusPresent {
		return false, *existing, nil
	}
	entry := LedgerEntry{
		StudentID: studentID,
		Date:      today,
		Status:    StatusPresent,
		MarkedAt:  now,
		Source:    source,
	}
	if err := r.store.MarkLedgerPresent(ctx, entry); err != nil {
		return false, LedgerEntry{}, err
	}
	return true, entry, nil
}

// PresentToday returns the student's Present ledger entry for today, or
// nil. Both marking paths share it as the cross-path duplicate check.
func (r *Recorder) PresentToday(ctx context.Context, studentID string) (*LedgerEntry, error) {
	today := r.now().UTC().Truncate(24 * time.Hour)
	existing, err := r.store.FindLedger(ctx, studentID, today)
	if err != nil {
		return nil, err
	}
	if existing == nil || existing.Status != StatusPresent {
		return nil, nil
	}
	return existing, nil
}

func (r *Recorder) mirrorLedger(ctx context.Context, studentID string, markedAt time.Time, source string) {
	entry := LedgerEntry{
		StudentID: studentID,
		Date:      markedAt.Truncate(24 * time.Hour),
		Status:    StatusPresent,
		MarkedAt:  markedAt,
		Source:    source,
	}
	if err := r.store.InsertLedger(ctx, entry); err != nil {
		r.log.Warn("ledger mirror write failed",
			zap.String("student_id", studentID),
			zap.Error(err),
		)
	}
}
