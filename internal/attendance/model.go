// Package attendance commits verified claims as durable attendance facts.
package attendance

import "time"

// Ledger status values.
const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Ledger source tags.
const (
	SourceSmart  = "smart"
	SourceCamera = "camera"
)

// Record is one smart-attendance fact, unique per (session, student).
type Record struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	StudentID        string    `json:"student_id"`
	VerificationType string    `json:"verification_type"`
	IP               string    `json:"ip"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Device           string    `json:"device,omitempty"`
	MarkedAt         time.Time `json:"marked_at"`
}

// LedgerEntry is the coarser daily record, unique per (student, date).
type LedgerEntry struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`
	Source    string    `json:"source"`
}
