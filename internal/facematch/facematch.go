// Package facematch is the best-effort camera attendance path: it scans
// stored face templates against a captured image and marks the first
// sufficiently confident match present for the day.
package facematch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/students"
	"campusattend/internal/vision"
)

// MatchThreshold is the minimum confidence for accepting a candidate.
const MatchThreshold = 0.65

// ErrNoCandidates is returned when no student has a stored template to
// scan against.
var ErrNoCandidates = errors.New("no enrolled face templates to compare")

// TemplateSource lists scan candidates in stable order.
type TemplateSource interface {
	Candidates(ctx context.Context, classFilter string) ([]students.Candidate, error)
}

// Marker is the ledger-backed idempotent day marker.
type Marker interface {
	PresentToday(ctx context.Context, studentID string) (*attendance.LedgerEntry, error)
	MarkPresentToday(ctx context.Context, studentID, source string) (bool, attendance.LedgerEntry, error)
}

// Outcome reports the result of one scan.
type Outcome struct {
	Recognized    bool
	AlreadyMarked bool
	Student       *students.Student
	Confidence    float64
	MarkedAt      time.Time
}

// Service runs the scan.
type Service struct {
	templates TemplateSource
	comparer  vision.Comparer
	marker    Marker
	log       *zap.Logger
}

// NewService creates a service.
func NewService(templates TemplateSource, comparer vision.Comparer, marker Marker, log *zap.Logger) *Service {
	return &Service{templates: templates, comparer: comparer, marker: marker, log: log}
}

// Recognize compares the captured image against each stored template in
// turn and accepts the first candidate with match=true and confidence at
// or above the threshold. A comparison error for one candidate is logged
// and treated as no-match for that candidate; the scan continues. Accepting
// a candidate checks the daily ledger before writing, so a student already
// marked present today (by any path) reports AlreadyMarked.
func (s *Service) Recognize(ctx context.Context, capturedImage, classFilter string) (Outcome, error) {
	candidates, err := s.templates.Candidates(ctx, classFilter)
	if err != nil {
		return Outcome{}, err
	}
	if len(candidates) == 0 {
		return Outcome{}, ErrNoCandidates
	}

	for _, cand := range candidates {
		verdict, err := s.comparer.Compare(ctx, capturedImage, cand.Image)
		if err != nil {
			if errors.Is(err, vision.ErrNotConfigured) {
				return Outcome{}, err
			}
			s.log.Warn("face comparison failed, skipping candidate",
				zap.String("student_id", cand.Student.ID),
				zap.Error(err),
			)
			continue
		}
		if !verdict.Match || verdict.Confidence < MatchThreshold {
			continue
		}

		student := cand.Student

		// No matter which path marked the student earlier today, a second
		// scan reports already-marked instead of rewriting the ledger.
		if existing, err := s.marker.PresentToday(ctx, student.ID); err != nil {
			return Outcome{}, err
		} else if existing != nil {
			return Outcome{
				Recognized:    true,
				AlreadyMarked: true,
				Student:       &student,
				Confidence:    verdict.Confidence,
				MarkedAt:      existing.MarkedAt,
			}, nil
		}

		created, entry, err := s.marker.MarkPresentToday(ctx, student.ID, attendance.SourceCamera)
		if err != nil {
			return Outcome{}, err
		}
		if !created {
			// A concurrent mark landed between the check and the write.
			return Outcome{
				Recognized:    true,
				AlreadyMarked: true,
				Student:       &student,
				Confidence:    verdict.Confidence,
				MarkedAt:      entry.MarkedAt,
			}, nil
		}
		return Outcome{
			Recognized: true,
			Student:    &student,
			Confidence: verdict.Confidence,
			MarkedAt:   entry.MarkedAt,
		}, nil
	}

	return Outcome{Recognized: false}, nil
}
