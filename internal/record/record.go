package record

import (
	"context"
	"errors"
	"time"

	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/trust"
)

// Status is the per-device lifecycle state. A device with no record at all
// is unactivated.
type Status string

const (
	StatusActive        Status = "ACTIVE"
	StatusExpired       Status = "EXPIRED"
	StatusTamperFlagged Status = "TAMPER_FLAGGED"
)

var (
	ErrNotFound      = errors.New("activation record not found")
	ErrAlreadyExists = errors.New("activation record already exists")
	// ErrSequenceConflict means a concurrent writer advanced the record's
	// sequence number first. The caller's view of the record is stale.
	ErrSequenceConflict = errors.New("activation record sequence conflict")
)

type Geolocation struct {
	Lat float64
	Lng float64
}

// ActivationRecord is the single source of truth for a device's activation
// state. Created once per device at first successful activation; mutated
// only by renewal, tamper downgrade, expiry transition and failed-attempt
// accounting.
type ActivationRecord struct {
	DeviceID     string
	DeviceType   string
	CustomerID   string
	InstallerID  string
	CustomerType policy.CustomerType

	// Identity is the tamper baseline, immutable after first activation.
	Identity identity.Identity

	TrustCategory trust.Category
	Status        Status

	ActivatedAt    time.Time
	ExpiresAt      time.Time
	SequenceNumber int64
	RenewalCount   int

	OfflineActivation bool
	TokenDigest       string
	Location          *Geolocation

	ActivationAttempts int
	LastAttemptAt      *time.Time
	TamperDetail       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the validity window has passed at the given time.
func (r *ActivationRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// DaysUntilExpiry rounds down to whole days; 0 or negative means expired.
func (r *ActivationRecord) DaysUntilExpiry(now time.Time) int {
	return int(r.ExpiresAt.Sub(now).Hours() / 24)
}

// Store persists activation records keyed by device ID.
//
// Update is a compare-and-swap on the sequence number: it only applies when
// the stored record still carries expectedSeq, and fails with
// ErrSequenceConflict otherwise. The sequence number is the concurrency
// anchor that keeps two concurrent renewals from both minting valid tokens.
type Store interface {
	Get(ctx context.Context, deviceID string) (*ActivationRecord, error)
	Create(ctx context.Context, rec *ActivationRecord) error
	Update(ctx context.Context, rec *ActivationRecord, expectedSeq int64) error
}
