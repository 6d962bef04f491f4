package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

// LastKnown is the persisted last-known state of one appliance. Either
// half may be missing if the appliance never reported it.
type LastKnown struct {
	ApplianceID string                  `json:"appliance_id"`
	Device      *purelink.DeviceState   `json:"device,omitempty"`
	Sensor      *purelink.SensorReading `json:"sensor,omitempty"`
}

// StateRepository keeps one overwritten row per appliance. Nothing is
// historized.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository creates a SQLite-backed state repository.
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// SaveDeviceState overwrites the stored device state.
func (r *StateRepository) SaveDeviceState(ctx context.Context, applianceID string, s purelink.DeviceState) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding device state: %w", err)
	}
	const query = `INSERT INTO appliance_state (appliance_id, device_state, device_updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(appliance_id) DO UPDATE SET
			device_state = excluded.device_state,
			device_updated_at = excluded.device_updated_at`
	if _, err := r.db.ExecContext(ctx, query, applianceID, string(payload), nullTime(s.UpdatedAt)); err != nil {
		return fmt.Errorf("saving device state for %s: %w", applianceID, err)
	}
	return nil
}

// SaveSensorReading overwrites the stored sensor reading.
func (r *StateRepository) SaveSensorReading(ctx context.Context, applianceID string, s purelink.SensorReading) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding sensor reading: %w", err)
	}
	const query = `INSERT INTO appliance_state (appliance_id, sensor_reading, sensor_updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(appliance_id) DO UPDATE SET
			sensor_reading = excluded.sensor_reading,
			sensor_updated_at = excluded.sensor_updated_at`
	if _, err := r.db.ExecContext(ctx, query, applianceID, string(payload), nullTime(s.UpdatedAt)); err != nil {
		return fmt.Errorf("saving sensor reading for %s: %w", applianceID, err)
	}
	return nil
}

// Load returns the stored state or ErrNotFound.
func (r *StateRepository) Load(ctx context.Context, applianceID string) (LastKnown, error) {
	const query = `SELECT device_state, sensor_reading FROM appliance_state WHERE appliance_id = ?`

	var device, sensor sql.NullString
	err := r.db.QueryRowContext(ctx, query, applianceID).Scan(&device, &sensor)
	if errors.Is(err, sql.ErrNoRows) {
		return LastKnown{}, fmt.Errorf("%w: state for %s", ErrNotFound, applianceID)
	}
	if err != nil {
		return LastKnown{}, fmt.Errorf("loading state for %s: %w", applianceID, err)
	}

	out := LastKnown{ApplianceID: applianceID}
	if device.Valid {
		var s purelink.DeviceState
		if err := json.Unmarshal([]byte(device.String), &s); err != nil {
			return LastKnown{}, fmt.Errorf("decoding device state for %s: %w", applianceID, err)
		}
		out.Device = &s
	}
	if sensor.Valid {
		var s purelink.SensorReading
		if err := json.Unmarshal([]byte(sensor.String), &s); err != nil {
			return LastKnown{}, fmt.Errorf("decoding sensor reading for %s: %w", applianceID, err)
		}
		out.Sensor = &s
	}
	return out, nil
}
