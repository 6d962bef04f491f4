package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/bridges/purelink"
)

// ApplianceRecord is one row of the appliance registry.
type ApplianceRecord struct {
	ID           string    `json:"id"`
	UUID         string    `json:"uuid"`
	DisplayName  string    `json:"display_name"`
	SerialNumber string    `json:"serial_number"`
	Model        string    `json:"model"`
	Address      string    `json:"address"`
	Valid        bool      `json:"valid"`
	Reason       string    `json:"reason,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordFor describes a registered appliance.
func RecordFor(a *purelink.Appliance) ApplianceRecord {
	id := a.Identity()
	return ApplianceRecord{
		ID:           id.DeviceID,
		UUID:         a.UUID().String(),
		DisplayName:  a.Name(),
		SerialNumber: id.Serial,
		Model:        id.Model,
		Address:      a.Address(),
		Valid:        true,
	}
}

// InvalidRecordFor describes an appliance excluded at registration. Its
// serial number doubles as the id since no device id could be parsed.
func InvalidRecordFor(inv purelink.InvalidAppliance) ApplianceRecord {
	id := inv.SerialNumber
	if id == "" {
		id = "unnamed:" + inv.DisplayName
	}
	return ApplianceRecord{
		ID:           id,
		DisplayName:  inv.DisplayName,
		SerialNumber: inv.SerialNumber,
		Valid:        false,
		Reason:       inv.Reason,
	}
}

// ApplianceRepository persists the appliance registry.
type ApplianceRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewApplianceRepository creates a SQLite-backed appliance registry.
func NewApplianceRepository(db *sql.DB) *ApplianceRepository {
	return &ApplianceRepository{db: db, now: time.Now}
}

// Upsert inserts or refreshes an appliance row.
func (r *ApplianceRepository) Upsert(ctx context.Context, rec ApplianceRecord) error {
	if rec.ID == "" {
		return ErrIDRequired
	}
	const query = `INSERT INTO appliances
		(id, uuid, display_name, serial_number, model, address, valid, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			display_name = excluded.display_name,
			serial_number = excluded.serial_number,
			model = excluded.model,
			address = excluded.address,
			valid = excluded.valid,
			reason = excluded.reason,
			updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UUID, rec.DisplayName, rec.SerialNumber, rec.Model, rec.Address,
		boolInt(rec.Valid), rec.Reason, formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("upserting appliance %s: %w", rec.ID, err)
	}
	return nil
}

// Sync records every registered and every excluded appliance of a bridge.
func (r *ApplianceRepository) Sync(ctx context.Context, b *purelink.Bridge) error {
	for _, a := range b.Appliances() {
		if err := r.Upsert(ctx, RecordFor(a)); err != nil {
			return err
		}
	}
	for _, inv := range b.Invalid() {
		if err := r.Upsert(ctx, InvalidRecordFor(inv)); err != nil {
			return err
		}
	}
	return nil
}

const selectAppliance = `SELECT id, uuid, display_name, serial_number, model, address,
	valid, reason, updated_at FROM appliances`

// List returns every appliance ordered by display name.
func (r *ApplianceRepository) List(ctx context.Context) ([]ApplianceRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectAppliance+` ORDER BY display_name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying appliances: %w", err)
	}
	defer rows.Close()

	var out []ApplianceRecord
	for rows.Next() {
		rec, err := scanAppliance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating appliances: %w", err)
	}
	return out, nil
}

// Get returns one appliance or ErrNotFound.
func (r *ApplianceRepository) Get(ctx context.Context, id string) (ApplianceRecord, error) {
	row := r.db.QueryRowContext(ctx, selectAppliance+` WHERE id = ?`, id)
	rec, err := scanAppliance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ApplianceRecord{}, fmt.Errorf("%w: appliance %s", ErrNotFound, id)
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppliance(s scanner) (ApplianceRecord, error) {
	var (
		rec     ApplianceRecord
		valid   int
		updated string
	)
	err := s.Scan(&rec.ID, &rec.UUID, &rec.DisplayName, &rec.SerialNumber, &rec.Model,
		&rec.Address, &valid, &rec.Reason, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ApplianceRecord{}, err
	}
	if err != nil {
		return ApplianceRecord{}, fmt.Errorf("scanning appliance: %w", err)
	}
	rec.Valid = valid != 0
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}
