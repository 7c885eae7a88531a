// Package metrics exposes the service's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimsTotal counts verification claims by result
	// (accepted, duplicate, rejected, expired, error).
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_claims_total",
		Help: "Attendance verification claims by result.",
	}, []string{"result"})

	// FaceScansTotal counts camera-path scans by result
	// (marked, already_marked, not_recognized, error).
	FaceScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_face_scans_total",
		Help: "Face-match scan attempts by result.",
	}, []string{"result"})

	// SessionsOpenedTotal counts roll-call windows opened by staff.
	SessionsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_opened_total",
		Help: "Attendance sessions opened.",
	})

	// SessionsSweptTotal counts sessions closed by the expiry sweeper.
	SessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_sessions_swept_total",
		Help: "Expired sessions closed by the background sweeper.",
	})
)
