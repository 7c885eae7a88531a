package store

import "database/sql"

// Migrate bootstraps the schema. The unique constraints on
// smart_attendance_records and attendance_ledger are what the recorder
// relies on for idempotence under concurrent submissions.
func Migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS students (
		id          UUID PRIMARY KEY,
		user_id     TEXT UNIQUE NOT NULL,
		name        TEXT NOT NULL,
		email       TEXT UNIQUE NOT NULL,
		roll_no     TEXT UNIQUE NOT NULL,
		class_name  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS face_templates (
		student_id  UUID PRIMARY KEY REFERENCES students(id),
		image       TEXT NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS campus_config (
		id               INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		latitude         DOUBLE PRECISION NOT NULL,
		longitude        DOUBLE PRECISION NOT NULL,
		allowed_radius_m DOUBLE PRECISION NOT NULL,
		campus_ip        TEXT NOT NULL DEFAULT '',
		campus_ip_range  TEXT NOT NULL DEFAULT '',
		gps_enabled      BOOLEAN NOT NULL DEFAULT TRUE,
		wifi_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS attendance_sessions (
		id               UUID PRIMARY KEY,
		course           TEXT NOT NULL,
		subject          TEXT NOT NULL,
		batch            TEXT NOT NULL DEFAULT '',
		duration_minutes INT NOT NULL,
		gps_required     BOOLEAN NOT NULL,
		wifi_required    BOOLEAN NOT NULL,
		status           TEXT NOT NULL DEFAULT 'active',
		started_by       TEXT NOT NULL,
		started_at       TIMESTAMPTZ NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		closed_at        TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_status ON attendance_sessions(status, started_at DESC);

	CREATE TABLE IF NOT EXISTS smart_attendance_records (
		id                UUID PRIMARY KEY,
		session_id        UUID NOT NULL REFERENCES attendance_sessions(id),
		student_id        UUID NOT NULL REFERENCES students(id),
		verification_type TEXT NOT NULL,
		ip                TEXT NOT NULL DEFAULT '',
		latitude          DOUBLE PRECISION,
		longitude         DOUBLE PRECISION,
		device            TEXT NOT NULL DEFAULT '',
		marked_at         TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS attendance_ledger (
		id         UUID PRIMARY KEY,
		student_id UUID NOT NULL REFERENCES students(id),
		date       DATE NOT NULL,
		status     TEXT NOT NULL,
		marked_at  TIMESTAMPTZ NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		UNIQUE (student_id, date)
	);
	`
	_, err := db.Exec(schema)
	return err
}
