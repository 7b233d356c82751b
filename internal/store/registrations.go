// registrations.go - wallet device registrations for update pushes.

package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// UpsertRegistration registers a device for updates to one pass. Registering
// the same (device, serial) pair again refreshes the push token and reports
// created=false, so the handler can answer 200 instead of 201.
func (s *Store) UpsertRegistration(ctx context.Context, deviceLibraryID, passTypeID, serial, pushToken string) (created bool, err error) {
	query, args, err := psql.Insert("device_registrations").
		Columns("id", "device_library_id", "pass_type_id", "serial_number", "push_token").
		Values(uuid.New(), deviceLibraryID, passTypeID, serial, pushToken).
		Suffix("ON CONFLICT (device_library_id, serial_number) DO UPDATE SET push_token = EXCLUDED.push_token, updated_at = now()").
		Suffix("RETURNING (xmax = 0)"). // xmax = 0 only for freshly inserted rows
		ToSql()
	if err != nil {
		return false, WrapInternalError(err, "failed to build registration upsert")
	}

	if err := s.pool.QueryRow(ctx, query, args...).Scan(&created); err != nil {
		return false, WrapInternalError(err, "failed to upsert registration")
	}
	return created, nil
}

// DeleteRegistration removes a device's registration for one pass. Deleting
// a registration that does not exist is not an error.
func (s *Store) DeleteRegistration(ctx context.Context, deviceLibraryID, serial string) error {
	query, args, err := psql.Delete("device_registrations").
		Where(sq.Eq{"device_library_id": deviceLibraryID, "serial_number": serial}).
		ToSql()
	if err != nil {
		return WrapInternalError(err, "failed to build registration delete")
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return WrapInternalError(err, "failed to delete registration")
	}
	return nil
}

// DeleteRegistrationsByToken removes every registration carrying a push
// token the push service rejected as permanently invalid.
func (s *Store) DeleteRegistrationsByToken(ctx context.Context, pushToken string) error {
	query, args, err := psql.Delete("device_registrations").
		Where(sq.Eq{"push_token": pushToken}).
		ToSql()
	if err != nil {
		return WrapInternalError(err, "failed to build registration prune")
	}

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return WrapInternalError(err, "failed to prune registrations")
	}
	return nil
}

// ListSerialsForDevice returns the serial numbers of passes the device is
// registered for that changed after updatedSince (all of them when
// updatedSince is zero), together with the most recent change stamp.
func (s *Store) ListSerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, updatedSince time.Time) ([]string, time.Time, error) {
	builder := psql.Select("p.serial_number", "p.updated_at").
		From("device_registrations r").
		Join("customer_passes p ON p.serial_number = r.serial_number").
		Where(sq.Eq{"r.device_library_id": deviceLibraryID, "r.pass_type_id": passTypeID}).
		OrderBy("p.updated_at ASC")
	if !updatedSince.IsZero() {
		builder = builder.Where(sq.Gt{"p.updated_at": updatedSince})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, time.Time{}, WrapInternalError(err, "failed to build serial listing")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, WrapInternalError(err, "failed to list serials")
	}
	defer rows.Close()

	var (
		serials     []string
		lastUpdated time.Time
	)
	for rows.Next() {
		var serial string
		var updatedAt time.Time
		if err := rows.Scan(&serial, &updatedAt); err != nil {
			return nil, time.Time{}, WrapInternalError(err, "failed to scan serial")
		}
		serials = append(serials, serial)
		if updatedAt.After(lastUpdated) {
			lastUpdated = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, WrapInternalError(err, "failed to read serials")
	}
	return serials, lastUpdated, nil
}

// ListRegistrationsBySerial returns every device registration for one pass.
func (s *Store) ListRegistrationsBySerial(ctx context.Context, serial string) ([]Registration, error) {
	query, args, err := psql.Select("id", "device_library_id", "pass_type_id", "serial_number", "push_token", "created_at", "updated_at").
		From("device_registrations").
		Where(sq.Eq{"serial_number": serial}).
		ToSql()
	if err != nil {
		return nil, WrapInternalError(err, "failed to build registration listing")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapInternalError(err, "failed to list registrations")
	}
	defer rows.Close()

	var registrations []Registration
	for rows.Next() {
		var r Registration
		if err := rows.Scan(&r.ID, &r.DeviceLibraryID, &r.PassTypeID, &r.SerialNumber, &r.PushToken, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, WrapInternalError(err, "failed to scan registration")
		}
		registrations = append(registrations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapInternalError(err, "failed to read registrations")
	}
	return registrations, nil
}
