package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAttendanceStore struct {
	records map[string]Record // key session|student
	ledger  map[string]LedgerEntry

	insertRecordErr error
	insertLedgerErr error
	ledgerWrites    int
}

func newFakeAttendanceStore() *fakeAttendanceStore {
	return &fakeAttendanceStore{
		records: make(map[string]Record),
		ledger:  make(map[string]LedgerEntry),
	}
}

func recKey(sessionID, studentID string) string { return sessionID + "|" + studentID }

func ledgerKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (f *fakeAttendanceStore) FindRecord(_ context.Context, sessionID, studentID string) (*Record, error) {
	if rec, ok := f.records[recKey(sessionID, studentID)]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (f *fakeAttendanceStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	if f.insertRecordErr != nil {
		return Record{}, f.insertRecordErr
	}
	key := recKey(rec.SessionID, rec.StudentID)
	if _, ok := f.records[key]; ok {
		return Record{}, ErrDuplicate
	}
	rec.ID = "rec-" + key
	f.records[key] = rec
	return rec, nil
}

func (f *fakeAttendanceStore) FindLedger(_ context.Context, studentID string, date time.Time) (*LedgerEntry, error) {
	if e, ok := f.ledger[ledgerKey(studentID, date)]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeAttendanceStore) InsertLedger(_ context.Context, e LedgerEntry) error {
	f.ledgerWrites++
	if f.insertLedgerErr != nil {
		return f.insertLedgerErr
	}
	key := ledgerKey(e.StudentID, e.Date)
	if _, ok := f.ledger[key]; !ok {
		f.ledger[key] = e
	}
	return nil
}

func (f *fakeAttendanceStore) MarkLedgerPresent(_ context.Context, e LedgerEntry) error {
	f.ledgerWrites++
	if f.insertLedgerErr != nil {
		return f.insertLedgerErr
	}
	key := ledgerKey(e.StudentID, e.Date)
	if cur, ok := f.ledger[key]; ok && cur.Status == e.Status {
		return nil
	}
	f.ledger[key] = e
	return nil
}

func claim() Record {
	return Record{SessionID: "sess-1", StudentID: "stu-1", VerificationType: "gps", IP: "103.44.12.9"}
}

func TestRecordCreatesOnce(t *testing.T) {
	store := newFakeAttendanceStore()
	rec := NewRecorder(store, zap.NewNop())

	first, err := rec.Record(context.Background(), claim())
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Len(t, store.records, 1)
	assert.Len(t, store.ledger, 1)

	second, err := rec.Record(context.Background(), claim())
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	// No second record or ledger entry.
	assert.Len(t, store.records, 1)
	assert.Len(t, store.ledger, 1)
}

// raceStore simulates a concurrent writer landing between the pre-check
// and the insert: the first FindRecord sees nothing, the insert hits the
// unique constraint, and the retry read sees the winner's row.
type raceStore struct {
	*fakeAttendanceStore
	finds  int
	winner Record
}

func (r *raceStore) FindRecord(ctx context.Context, sessionID, studentID string) (*Record, error) {
	r.finds++
	if r.finds == 1 {
		return nil, nil
	}
	return &r.winner, nil
}

func (r *raceStore) InsertRecord(context.Context, Record) (Record, error) {
	return Record{}, ErrDuplicate
}

func TestRecordMapsConstraintRaceToAlreadyMarked(t *testing.T) {
	winner := Record{ID: "winner", SessionID: "sess-1", StudentID: "stu-1", MarkedAt: time.Now().UTC()}
	store := &raceStore{fakeAttendanceStore: newFakeAttendanceStore(), winner: winner}
	rec := NewRecorder(store, zap.NewNop())

	result, err := rec.Record(context.Background(), claim())
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "winner", result.Record.ID)
}

func TestRecordLedgerFailureDoesNotFailRequest(t *testing.T) {
	store := newFakeAttendanceStore()
	store.insertLedgerErr = errors.New("ledger down")
	rec := NewRecorder(store, zap.NewNop())

	result, err := rec.Record(context.Background(), claim())
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Len(t, store.records, 1)
	assert.Empty(t, store.ledger)
	assert.Equal(t, 1, store.ledgerWrites)
}

func TestMarkPresentTodayIdempotent(t *testing.T) {
	store := newFakeAttendanceStore()
	rec := NewRecorder(store, zap.NewNop())

	created, entry, err := rec.MarkPresentToday(context.Background(), "stu-9", SourceCamera)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPresent, entry.Status)
	assert.Equal(t, SourceCamera, entry.Source)

	created, again, err := rec.MarkPresentToday(context.Background(), "stu-9", SourceCamera)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entry.MarkedAt, again.MarkedAt)
}

func TestMarkPresentTodayPromotesAbsentEntry(t *testing.T) {
	store := newFakeAttendanceStore()
	rec := NewRecorder(store, zap.NewNop())

	today := time.Now().UTC().Truncate(24 * time.Hour)
	store.ledger[ledgerKey("stu-9", today)] = LedgerEntry{
		StudentID: "stu-9", Date: today, Status: StatusAbsent, Source: SourceSmart,
	}

	// An Absent row does not count as already marked; it is promoted.
	created, entry, err := rec.MarkPresentToday(context.Background(), "stu-9", SourceCamera)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusPresent, entry.Status)
	assert.Equal(t, StatusPresent, store.ledger[ledgerKey("stu-9", today)].Status)
}

func TestPresentTodayAcrossPaths(t *testing.T) {
	store := newFakeAttendanceStore()
	rec := NewRecorder(store, zap.NewNop())

	// Nothing marked yet.
	entry, err := rec.PresentToday(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Marked via a smart session first.
	_, err = rec.Record(context.Background(), claim())
	require.NoError(t, err)

	// The camera path the same day sees the student as already marked,
	// even though it checks a different uniqueness key.
	entry, err = rec.PresentToday(context.Background(), "stu-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, StatusPresent, entry.Status)

	created, _, err := rec.MarkPresentToday(context.Background(), "stu-1", SourceCamera)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestPresentTodayIgnoresAbsentEntry(t *testing.T) {
	store := newFakeAttendanceStore()
	rec := NewRecorder(store, zap.NewNop())

	today := time.Now().UTC().Truncate(24 * time.Hour)
	store.ledger[ledgerKey("stu-9", today)] = LedgerEntry{
		StudentID: "stu-9", Date: today, Status: StatusAbsent,
	}

	entry, err := rec.PresentToday(context.Background(), "stu-9")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
