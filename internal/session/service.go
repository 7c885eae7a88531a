package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/campus"
)

// ErrNotFound is returned when the requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Current(ctx context.Context) (*Session, error)
	Close(ctx context.Context, id string, closedAt time.Time) error
	List(ctx context.Context, limit int) ([]Session, error)
}

// ConfigSource supplies the campus config snapshot used at session creation.
type ConfigSource interface {
	Get(ctx context.Context) (*campus.Config, error)
}

// Service owns the session lifecycle.
type Service struct {
	store  Store
	campus ConfigSource
	log    *zap.Logger
	now    func() time.Time
}

// NewService creates a service.
func NewService(store Store, campusCfg ConfigSource, log *zap.Logger) *Service {
	return &Service{store: store, campus: campusCfg, log: log, now: time.Now}
}

// OpenParams describes a new roll-call window.
type OpenParams struct {
	Course          string
	Subject         string
	Batch           string
	DurationMinutes int
	StartedBy       string
}

// Open creates a new active session. The gps/wifi requirement flags are
// copied from the campus config at creation time and may diverge from it
// later. Opening does not auto-close a prior active session.
func (s *Service) Open(ctx context.Context, p OpenParams) (Session, error) {
	if p.Course == "" || p.Subject == "" {
		return Session{}, errors.New("course and subject required")
	}
	if p.DurationMinutes <= 0 {
		return Session{}, errors.New("duration must be positive")
	}

	gpsRequired, wifiRequired := true, true
	cfg, err := s.campus.Get(ctx)
	if err != nil {
		return Session{}, err
	}
	if cfg != nil {
		gpsRequired = cfg.GPSEnabled
		wifiRequired = cfg.WifiEnabled
	}

	now := s.now().UTC()
	return s.store.Insert(ctx, Session{
		Course:          p.Course,
		Subject:         p.Subject,
		Batch:           p.Batch,
		DurationMinutes: p.DurationMinutes,
		GPSRequired:     gpsRequired,
		WifiRequired:    wifiRequired,
		Status:          StatusActive,
		StartedBy:       p.StartedBy,
		StartedAt:       now,
		ExpiresAt:       now.Add(time.Duration(p.DurationMinutes) * time.Minute),
	})
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Current returns the open session students should claim against, or nil
// when none is open. Observing an expired-but-still-active session triggers
// the close transition as a side effect.
func (s *Service) Current(ctx context.Context) (*Session, error) {
	sess, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	now := s.now().UTC()
	if sess.Expired(now) {
		if err := s.store.Close(ctx, sess.ID, now); err != nil {
			s.log.Warn("closing expired session failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, nil
	}
	return sess, nil
}

// Close ends a session by staff action.
func (s *Service) Close(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	if sess.Status == StatusActive {
		if err := s.store.Close(ctx, id, s.now().UTC()); err != nil {
			return nil, err
		}
	}
	return s.store.Get(ctx, id)
}

// List returns recent sessions for staff monitors.
func (s *Service) List(ctx context.Context, limit int) ([]Session, error) {
	return s.store.List(ctx, limit)
}
