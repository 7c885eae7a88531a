package attendance

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRecordNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery("SELECT id, session_id, student_id").
		WithArgs("sess-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec, err := repo.FindRecord(context.Background(), "sess-1", "stu-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec("INSERT INTO smart_attendance_records").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "smart_attendance_records_session_id_student_id_key"})

	_, err = repo.InsertRecord(context.Background(), Record{SessionID: "sess-1", StudentID: "stu-1", VerificationType: "gps"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordFillsDefaults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectExec("INSERT INTO smart_attendance_records").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := repo.InsertRecord(context.Background(), Record{SessionID: "sess-1", StudentID: "stu-1", VerificationType: "wifi"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.MarkedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLedgerConflictIsSilent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	// ON CONFLICT DO NOTHING: zero rows affected, no error surfaced.
	mock.ExpectExec("INSERT INTO attendance_ledger").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.InsertLedger(context.Background(), LedgerEntry{
		StudentID: "stu-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:    StatusPresent,
		Source:    SourceSmart,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkLedgerPresentUpserts(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	// Promoting an Absent row updates it in place; the guard keeps a
	// Present row untouched.
	mock.ExpectExec(`INSERT INTO attendance_ledger .*ON CONFLICT \(student_id, date\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.MarkLedgerPresent(context.Background(), LedgerEntry{
		StudentID: "stu-1",
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Status:    StatusPresent,
		Source:    SourceCamera,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
