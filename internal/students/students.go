// Package students holds the minimal student records the attendance paths
// depend on, plus the stored face templates.
package students

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrExists signals a unique constraint rejected the student: user_id,
// email, and roll_no must each be unique.
var ErrExists = errors.New("student already registered")

const pgUniqueViolation = "23505"

// Student is a registered student.
type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	RollNo    string    `json:"roll_no"`
	ClassName string    `json:"class_name"`
	CreatedAt time.Time `json:"created_at"`
}

// FaceTemplate is the single stored reference image per student,
// replace-on-register.
type FaceTemplate struct {
	StudentID string    `json:"student_id"`
	Image     string    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candidate pairs a student with their stored template for scanning.
type Candidate struct {
	Student Student
	Image   string
}

// Repository persists students and face templates in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create registers a student.
func (r *Repository) Create(ctx context.Context, st Student) (Student, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	st.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, user_id, name, email, roll_no, class_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, st.ID, st.UserID, st.Name, st.Email, st.RollNo, st.ClassName, st.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Student{}, ErrExists
		}
		return Student{}, err
	}
	return st, nil
}

// Get returns a student by id, or nil.
func (r *Repository) Get(ctx context.Context, id string) (*Student, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, roll_no, class_name, created_at
		FROM students WHERE id = $1
	`, id))
}

// GetByUserID resolves the student for an authenticated identity, or nil.
func (r *Repository) GetByUserID(ctx context.Context, userID string) (*Student, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, email, roll_no, class_name, created_at
		FROM students WHERE user_id = $1
	`, userID))
}

// List returns all students ordered by roll number.
func (r *Repository) List(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, email, roll_no, class_name, created_at
		FROM students ORDER BY roll_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.UserID, &st.Name, &st.Email, &st.RollNo, &st.ClassName, &st.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// UpsertFaceTemplate stores the reference image for a student, replacing
// any previous one.
func (r *Repository) UpsertFaceTemplate(ctx context.Context, studentID, image string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO face_templates (student_id, image, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (student_id) DO UPDATE SET image = EXCLUDED.image, updated_at = NOW()
	`, studentID, image)
	return err
}

// Candidates returns students with a stored template, optionally filtered
// by class, in stable roll-number order. Scan order is observable behavior
// for the first-match-wins camera path.
func (r *Repository) Candidates(ctx context.Context, classFilter string) ([]Candidate, error) {
	query := `
		SELECT s.id, s.user_id, s.name, s.email, s.roll_no, s.class_name, s.created_at, f.image
		FROM students s
		JOIN face_templates f ON f.student_id = s.id`
	args := []any{}
	if classFilter != "" {
		query += ` WHERE s.class_name = $1`
		args = append(args, classFilter)
	}
	query += ` ORDER BY s.roll_no`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Student.ID, &c.Student.UserID, &c.Student.Name, &c.Student.Email, &c.Student.RollNo, &c.Student.ClassName, &c.Student.CreatedAt, &c.Image); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) scanOne(row *sql.Row) (*Student, error) {
	var st Student
	if err := row.Scan(&st.ID, &st.UserID, &st.Name, &st.Email, &st.RollNo, &st.ClassName, &st.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}
