// Package session manages attendance roll-call windows.
package session

import "time"

// Status values for a session.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Session is one roll-call event. It is created active and transitions
// exactly once to closed, either by staff action or on observed expiry.
type Session struct {
	ID              string     `json:"id"`
	Course          string     `json:"course"`
	Subject         string     `json:"subject"`
	Batch           string     `json:"batch"`
	DurationMinutes int        `json:"duration_minutes"`
	GPSRequired     bool       `json:"gps_required"`
	WifiRequired    bool       `json:"wifi_required"`
	Status          string     `json:"status"`
	StartedBy       string     `json:"started_by"`
	StartedAt       time.Time  `json:"started_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// Expired reports whether the window has passed at the given instant.
// A claim arriving exactly at ExpiresAt is still inside the window.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AcceptsClaims reports whether the session can take new claims at now.
// The stored status alone is never trusted; expiry is re-checked lazily.
func (s Session) AcceptsClaims(now time.Time) bool {
	return s.Status == StatusActive && !s.Expired(now)
}
