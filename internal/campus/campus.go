// Package campus holds the singleton campus configuration read by the
// verification engine on every claim.
package campus

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Config is the campus reference point and network origin settings.
// Mutated only by staff.
type Config struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AllowedRadiusM float64   `json:"allowed_radius_m"`
	CampusIP       string    `json:"campus_ip"`
	CampusIPRange  string    `json:"campus_ip_range"`
	GPSEnabled     bool      `json:"gps_enabled"`
	WifiEnabled    bool      `json:"wifi_enabled"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Repository persists the campus config singleton.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the campus config, or nil when it has never been set.
func (r *Repository) Get(ctx context.Context) (*Config, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT latitude, longitude, allowed_radius_m, campus_ip, campus_ip_range, gps_enabled, wifi_enabled, updated_at
		FROM campus_config WHERE id = 1
	`)
	var cfg Config
	if err := row.Scan(&cfg.Latitude, &cfg.Longitude, &cfg.AllowedRadiusM, &cfg.CampusIP, &cfg.CampusIPRange, &cfg.GPSEnabled, &cfg.WifiEnabled, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// Upsert creates or replaces the singleton row.
func (r *Repository) Upsert(ctx context.Context, cfg Config) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campus_config (id, latitude, longitude, allowed_radius_m, campus_ip, campus_ip_range, gps_enabled, wifi_enabled, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			allowed_radius_m = EXCLUDED.allowed_radius_m,
			campus_ip = EXCLUDED.campus_ip,
			campus_ip_range = EXCLUDED.campus_ip_range,
			gps_enabled = EXCLUDED.gps_enabled,
			wifi_enabled = EXCLUDED.wifi_enabled,
			updated_at = NOW()
	`, cfg.Latitude, cfg.Longitude, cfg.AllowedRadiusM, cfg.CampusIP, cfg.CampusIPRange, cfg.GPSEnabled, cfg.WifiEnabled)
	return err
}
