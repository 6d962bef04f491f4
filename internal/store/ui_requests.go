package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/accessory"
)

// UIRequestRepository remembers the last speed, oscillation and night
// mode requested through the UI. It implements accessory.UIStore.
type UIRequestRepository struct {
	db *sql.DB
}

var _ accessory.UIStore = (*UIRequestRepository)(nil)

// NewUIRequestRepository creates a SQLite-backed UI request store.
func NewUIRequestRepository(db *sql.DB) *UIRequestRepository {
	return &UIRequestRepository{db: db}
}

// SaveUIRequests overwrites the stored requests.
func (r *UIRequestRepository) SaveUIRequests(ctx context.Context, applianceID string, req accessory.UIRequests) error {
	updated := req.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	const query = `INSERT INTO ui_requests (appliance_id, speed, oscillation, night_mode, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(appliance_id) DO UPDATE SET
			speed = excluded.speed,
			oscillation = excluded.oscillation,
			night_mode = excluded.night_mode,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query, applianceID, req.Speed,
		boolInt(req.Oscillation), boolInt(req.NightMode), formatTime(updated))
	if err != nil {
		return fmt.Errorf("saving ui requests for %s: %w", applianceID, err)
	}
	return nil
}

// LoadUIRequests returns the stored requests; ok is false when none exist.
func (r *UIRequestRepository) LoadUIRequests(ctx context.Context, applianceID string) (accessory.UIRequests, bool, error) {
	const query = `SELECT speed, oscillation, night_mode, updated_at FROM ui_requests WHERE appliance_id = ?`

	var (
		req                    accessory.UIRequests
		oscillation, nightMode int
		updated                string
	)
	err := r.db.QueryRowContext(ctx, query, applianceID).Scan(&req.Speed, &oscillation, &nightMode, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return accessory.UIRequests{}, false, nil
	}
	if err != nil {
		return accessory.UIRequests{}, false, fmt.Errorf("loading ui requests for %s: %w", applianceID, err)
	}
	req.Oscillation = oscillation != 0
	req.NightMode = nightMode != 0
	req.UpdatedAt = parseTime(updated)
	return req, true, nil
}
