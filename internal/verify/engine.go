// Package verify decides which verification methods a claim satisfies
// against one session and the campus config. It has no side effects.
package verify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"campusattend/internal/campus"
	"campusattend/internal/geo"
	"campusattend/internal/session"
)

// Verification types recorded with an accepted claim.
const (
	TypeGPS  = "gps"
	TypeWifi = "wifi"
	TypeBoth = "both"
)

// UnknownIP is the placeholder for a claim whose network origin could not
// be derived. It is a valid input that always fails the wifi check.
const UnknownIP = "unknown"

// ErrSessionClosed is returned for claims against a closed or expired
// session. An expected, reportable outcome rather than a fault.
var ErrSessionClosed = errors.New("session has expired or is closed")

// Claim is the ephemeral verification request. StudentID is resolved from
// the authenticated caller; IP is server-derived, never client-supplied.
type Claim struct {
	SessionID string
	StudentID string
	Latitude  *float64
	Longitude *float64
	Device    string
	IP        string
}

// FailedError reports that neither method was satisfied, carrying the two
// booleans so the client can explain which check failed.
type FailedError struct {
	GPSSatisfied  bool
	WifiSatisfied bool
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("verification failed (gps=%t, wifi=%t)", e.GPSSatisfied, e.WifiSatisfied)
}

// Outcome is the verdict for an accepted claim.
type Outcome struct {
	GPSSatisfied  bool
	WifiSatisfied bool
	Type          string
}

// Evaluate checks one claim against a session and the campus config.
//
// A method the session does not require counts as satisfied, and the
// overall verdict is the OR of the two methods. A session with either
// requirement flag off is therefore satisfiable regardless of the
// remaining check's result.
func Evaluate(sess session.Session, claim Claim, cfg *campus.Config, now time.Time) (Outcome, error) {
	if !sess.AcceptsClaims(now) {
		return Outcome{}, ErrSessionClosed
	}

	gpsOK := !sess.GPSRequired
	if sess.GPSRequired && cfg != nil && claim.Latitude != nil && claim.Longitude != nil {
		dist := geo.DistanceMeters(*claim.Latitude, *claim.Longitude, cfg.Latitude, cfg.Longitude)
		gpsOK = dist <= cfg.AllowedRadiusM
	}

	wifiOK := !sess.WifiRequired
	if sess.WifiRequired && cfg != nil && cfg.CampusIP != "" && claim.IP != "" && claim.IP != UnknownIP {
		wifiOK = claim.IP == cfg.CampusIP ||
			(cfg.CampusIPRange != "" && strings.HasPrefix(claim.IP, cfg.CampusIPRange))
	}

	if !gpsOK && !wifiOK {
		return Outcome{}, &FailedError{GPSSatisfied: gpsOK, WifiSatisfied: wifiOK}
	}

	out := Outcome{GPSSatisfied: gpsOK, WifiSatisfied: wifiOK}
	switch {
	case gpsOK && wifiOK:
		out.Type = TypeBoth
	case gpsOK:
		out.Type = TypeGPS
	default:
		out.Type = TypeWifi
	}
	return out, nil
}
