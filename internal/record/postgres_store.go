package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/trust"
)

// PostgresStore persists activation records in the device_activation_records
// table. Update relies on a WHERE clause over the sequence number so that
// concurrent writers race on the database row, not on application locks.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `device_id, device_type, customer_id, installer_id, customer_type,
	hardware_id, mac_address, serial_number, model, manufacturer,
	firmware_version, firmware_checksum, image_digest,
	trust_category, status, activated_at, expires_at,
	sequence_number, renewal_count, offline_activation, token_digest,
	location_lat, location_lng, activation_attempts, last_attempt_at,
	tamper_detail, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, deviceID string) (*ActivationRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM device_activation_records WHERE device_id = $1`,
		deviceID,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get activation record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *ActivationRecord) error {
	var lat, lng *float64
	if rec.Location != nil {
		lat, lng = &rec.Location.Lat, &rec.Location.Lng
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO device_activation_records (
			device_id, device_type, customer_id, installer_id, customer_type,
			hardware_id, mac_address, serial_number, model, manufacturer,
			firmware_version, firmware_checksum, image_digest,
			trust_category, status, activated_at, expires_at,
			sequence_number, renewal_count, offline_activation, token_digest,
			location_lat, location_lng, activation_attempts, last_attempt_at, tamper_detail
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26
		)`,
		rec.DeviceID, rec.DeviceType, rec.CustomerID, rec.InstallerID, string(rec.CustomerType),
		rec.Identity.HardwareID, rec.Identity.MACAddress, rec.Identity.SerialNumber,
		rec.Identity.Model, rec.Identity.Manufacturer,
		rec.Identity.FirmwareVersion, rec.Identity.FirmwareChecksum, rec.Identity.ImageDigest,
		string(rec.TrustCategory), string(rec.Status), rec.ActivatedAt, rec.ExpiresAt,
		rec.SequenceNumber, rec.RenewalCount, rec.OfflineActivation, rec.TokenDigest,
		lat, lng, rec.ActivationAttempts, rec.LastAttemptAt, rec.TamperDetail,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create activation record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *ActivationRecord, expectedSeq int64) error {
	var lat, lng *float64
	if rec.Location != nil {
		lat, lng = &rec.Location.Lat, &rec.Location.Lng
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE device_activation_records SET
			device_type = $3, customer_id = $4, installer_id = $5, customer_type = $6,
			hardware_id = $7, mac_address = $8, serial_number = $9, model = $10, manufacturer = $11,
			firmware_version = $12, firmware_checksum = $13, image_digest = $14,
			trust_category = $15, status = $16, activated_at = $17, expires_at = $18,
			sequence_number = $19, renewal_count = $20, offline_activation = $21, token_digest = $22,
			location_lat = $23, location_lng = $24, activation_attempts = $25,
			last_attempt_at = $26, tamper_detail = $27, updated_at = now()
		WHERE device_id = $1 AND sequence_number = $2`,
		rec.DeviceID, expectedSeq,
		rec.DeviceType, rec.CustomerID, rec.InstallerID, string(rec.CustomerType),
		rec.Identity.HardwareID, rec.Identity.MACAddress, rec.Identity.SerialNumber,
		rec.Identity.Model, rec.Identity.Manufacturer,
		rec.Identity.FirmwareVersion, rec.Identity.FirmwareChecksum, rec.Identity.ImageDigest,
		string(rec.TrustCategory), string(rec.Status), rec.ActivatedAt, rec.ExpiresAt,
		rec.SequenceNumber, rec.RenewalCount, rec.OfflineActivation, rec.TokenDigest,
		lat, lng, rec.ActivationAttempts, rec.LastAttemptAt, rec.TamperDetail,
	)
	if err != nil {
		return fmt.Errorf("update activation record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the record is gone or another writer advanced the sequence.
		if _, getErr := s.Get(ctx, rec.DeviceID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrSequenceConflict
	}
	return nil
}

func scanRecord(row pgx.Row) (*ActivationRecord, error) {
	var (
		rec                    ActivationRecord
		customerType, category string
		status                 string
		lat, lng               *float64
	)
	err := row.Scan(
		&rec.DeviceID, &rec.DeviceType, &rec.CustomerID, &rec.InstallerID, &customerType,
		&rec.Identity.HardwareID, &rec.Identity.MACAddress, &rec.Identity.SerialNumber,
		&rec.Identity.Model, &rec.Identity.Manufacturer,
		&rec.Identity.FirmwareVersion, &rec.Identity.FirmwareChecksum, &rec.Identity.ImageDigest,
		&category, &status, &rec.ActivatedAt, &rec.ExpiresAt,
		&rec.SequenceNumber, &rec.RenewalCount, &rec.OfflineActivation, &rec.TokenDigest,
		&lat, &lng, &rec.ActivationAttempts, &rec.LastAttemptAt,
		&rec.TamperDetail, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CustomerType = policy.CustomerType(customerType)
	rec.TrustCategory = trust.Category(category)
	rec.Status = Status(status)
	if lat != nil && lng != nil {
		rec.Location = &Geolocation{Lat: *lat, Lng: *lng}
	}
	return &rec, nil
}
