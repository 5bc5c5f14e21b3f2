package verification

import (
	"errors"
	"time"

	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/record"
	"github.com/smartwatts/device-verification/internal/tamper"
	"github.com/smartwatts/device-verification/internal/token"
	"github.com/smartwatts/device-verification/internal/trust"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAlreadyActive means the device holds an unexpired activation and
	// must renew rather than re-activate.
	ErrAlreadyActive = errors.New("device already has an active activation")
	// ErrStorageUnavailable covers record store and registry infrastructure
	// failures, including bounded-timeout expiry. Retryable by the caller.
	ErrStorageUnavailable = errors.New("verification storage unavailable")
)

// Stable reason codes surfaced in responses and audit entries. Clients key
// display logic and log correlation off these, so they never change.
const (
	ReasonActivated  = "ACTIVATED"
	ReasonValidated  = "VALIDATED"
	ReasonRenewed    = "RENEWED"

	ReasonInvalidIdentity    = "INVALID_IDENTITY"
	ReasonAlreadyActive      = "ALREADY_ACTIVE"
	ReasonDeviceNotFound     = "DEVICE_NOT_FOUND"
	ReasonTokenExpired       = "TOKEN_EXPIRED"
	ReasonTokenTampered      = "TOKEN_TAMPERED"
	ReasonTokenSuperseded    = "TOKEN_SUPERSEDED"
	ReasonTamperDetected     = "TAMPER_DETECTED"
	ReasonStorageUnavailable = "STORAGE_UNAVAILABLE"
	ReasonSigningError       = "SIGNING_ERROR"
)

// ReasonFor maps a failure to its stable reason code.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidIdentity):
		return ReasonInvalidIdentity
	case errors.Is(err, ErrAlreadyActive):
		return ReasonAlreadyActive
	case errors.Is(err, ErrDeviceNotFound):
		return ReasonDeviceNotFound
	case errors.Is(err, token.ErrExpired):
		return ReasonTokenExpired
	case errors.Is(err, token.ErrSuperseded):
		return ReasonTokenSuperseded
	case errors.Is(err, token.ErrTampered):
		return ReasonTokenTampered
	case errors.Is(err, tamper.ErrTamperDetected):
		return ReasonTamperDetected
	case errors.Is(err, token.ErrSigningKeyUnavailable):
		return ReasonSigningError
	case errors.Is(err, ErrStorageUnavailable):
		return ReasonStorageUnavailable
	default:
		return ReasonStorageUnavailable
	}
}

// ActivateRequest is the orchestrator-level activation request.
type ActivateRequest struct {
	DeviceID          string
	DeviceType        string
	CustomerType      string
	CustomerID        string
	InstallerID       string
	OfflineActivation bool
	OfflineProof      string
	Identity          identity.Claim
	Location          *record.Geolocation
}

// ActivationResult is returned on successful activation or re-activation.
type ActivationResult struct {
	DeviceID      string
	Token         string
	TrustCategory trust.Category
	CustomerType  policy.CustomerType
	ActivatedAt   time.Time
	ExpiresAt     time.Time
	ValidityDays  int
	Sequence      int64
}

// ValidationResult is returned when a validation succeeds.
type ValidationResult struct {
	DeviceID        string
	TrustCategory   trust.Category
	ExpiresAt       time.Time
	DaysUntilExpiry int
	RequiresRenewal bool
	ReasonCode      string
}

// RenewalResult is returned on successful renewal.
type RenewalResult struct {
	DeviceID     string
	Token        string
	ExpiresAt    time.Time
	ValidityDays int
	Sequence     int64
	RenewalCount int
}

// StatusResult is a read-only snapshot of a device's activation state.
type StatusResult struct {
	DeviceID        string
	Status          record.Status
	TrustCategory   trust.Category
	CustomerType    policy.CustomerType
	ActivatedAt     time.Time
	ExpiresAt       time.Time
	DaysUntilExpiry int
	RenewalCount    int
	TamperDetail    string
}
