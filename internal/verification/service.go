package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartwatts/device-verification/internal/audit"
	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/record"
	"github.com/smartwatts/device-verification/internal/registry"
	"github.com/smartwatts/device-verification/internal/tamper"
	"github.com/smartwatts/device-verification/internal/token"
	"github.com/smartwatts/device-verification/internal/trust"
)

const (
	defaultRenewalThresholdDays = 30
	defaultOpTimeout            = 5 * time.Second
)

// Config tunes the orchestrator.
type Config struct {
	RenewalThresholdDays int `mapstructure:"renewal_threshold_days"`
	OpTimeoutSeconds     int `mapstructure:"op_timeout_seconds"`
}

// Service orchestrates activation, validation and renewal. It owns the
// ActivationRecord lifecycle; token minting and verification are delegated
// to the issuer, which holds no state of its own.
type Service struct {
	resolver   *identity.Resolver
	classifier *trust.Classifier
	detector   *tamper.Detector
	issuer     *token.Issuer
	store      record.Store
	sink       audit.Sink

	renewalThresholdDays int
	opTimeout            time.Duration
	now                  func() time.Time
}

func NewService(store record.Store, sink audit.Sink, reg registry.Registry, issuer *token.Issuer, cfg Config) *Service {
	threshold := cfg.RenewalThresholdDays
	if threshold <= 0 {
		threshold = defaultRenewalThresholdDays
	}
	opTimeout := time.Duration(cfg.OpTimeoutSeconds) * time.Second
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	return &Service{
		resolver:             identity.NewResolver(),
		classifier:           trust.NewClassifier(reg),
		detector:             tamper.NewDetector(reg),
		issuer:               issuer,
		store:                store,
		sink:                 sink,
		renewalThresholdDays: threshold,
		opTimeout:            opTimeout,
		now:                  time.Now,
	}
}

// Activate processes a first activation or a re-activation of an expired or
// tamper-flagged device. Re-activation runs the full verification path
// again; nothing carries over from the previous generation except the
// customer type, which is fixed for the life of the device.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*ActivationResult, error) {
	deviceID := strings.TrimSpace(req.DeviceID)

	resolved, err := s.resolver.Resolve(identity.Request{
		DeviceID:          req.DeviceID,
		DeviceType:        req.DeviceType,
		CustomerType:      req.CustomerType,
		OfflineActivation: req.OfflineActivation,
		OfflineProof:      req.OfflineProof,
		Claim:             req.Identity,
	})
	if err != nil {
		s.deny(ctx, deviceID, "", err)
		s.noteFailedAttempt(ctx, deviceID)
		return nil, err
	}
	deviceID = resolved.DeviceID

	existing, err := s.loadRecord(ctx, deviceID)
	if err != nil && !errors.Is(err, record.ErrNotFound) {
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	if existing != nil {
		if existing.Status == record.StatusActive && !existing.Expired(s.now()) {
			err := fmt.Errorf("%w: renew instead of re-activating", ErrAlreadyActive)
			s.deny(ctx, deviceID, existing.TrustCategory, err)
			s.noteFailedAttempt(ctx, deviceID)
			return nil, err
		}
		if existing.CustomerType != resolved.CustomerType {
			err := fmt.Errorf("%w: customer type is fixed at first activation (recorded %s)",
				identity.ErrInvalidIdentity, existing.CustomerType)
			s.deny(ctx, deviceID, existing.TrustCategory, err)
			s.noteFailedAttempt(ctx, deviceID)
			return nil, err
		}
	}

	category, err := s.classify(ctx, resolved, req.OfflineProof != "")
	if err != nil {
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	now := s.now()
	expiry := policy.ExpiryFrom(now, resolved.CustomerType, false)
	validityDays := policy.ValidityDays(resolved.CustomerType, false)

	sequence := int64(1)
	if existing != nil {
		sequence = existing.SequenceNumber + 1
	}

	signed, err := s.issuer.Issue(deviceID, expiry, category, sequence)
	if err != nil {
		slog.Error("Token signing failed during activation", "device_id", deviceID, "error", err)
		s.deny(ctx, deviceID, category, err)
		return nil, err
	}

	rec := &record.ActivationRecord{
		DeviceID:          deviceID,
		DeviceType:        resolved.DeviceType,
		CustomerID:        strings.TrimSpace(req.CustomerID),
		InstallerID:       strings.TrimSpace(req.InstallerID),
		CustomerType:      resolved.CustomerType,
		Identity:          resolved.Identity,
		TrustCategory:     category,
		Status:            record.StatusActive,
		ActivatedAt:       now,
		ExpiresAt:         expiry,
		SequenceNumber:    sequence,
		RenewalCount:      0,
		OfflineActivation: resolved.Offline,
		TokenDigest:       token.Digest(signed),
		Location:          req.Location,
	}

	if err := s.saveNewGeneration(ctx, rec, existing); err != nil {
		s.deny(ctx, deviceID, category, err)
		return nil, err
	}

	s.audit(ctx, audit.EventActivate, deviceID, category, ReasonActivated,
		fmt.Sprintf("activated with %d day validity", validityDays))

	slog.Info("Device activated",
		"device_id", deviceID,
		"customer_type", resolved.CustomerType,
		"trust_category", category,
		"validity_days", validityDays,
		"offline", resolved.Offline,
		"seq", sequence)

	return &ActivationResult{
		DeviceID:      deviceID,
		Token:         signed,
		TrustCategory: category,
		CustomerType:  resolved.CustomerType,
		ActivatedAt:   now,
		ExpiresAt:     expiry,
		ValidityDays:  validityDays,
		Sequence:      sequence,
	}, nil
}

// Validate checks an activation token and, when the request carries identity
// fields, runs the tamper comparison against the recorded baseline.
func (s *Service) Validate(ctx context.Context, deviceID, tokenString string, reported *identity.Claim) (*ValidationResult, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		err := fmt.Errorf("%w: device_id is blank", identity.ErrInvalidIdentity)
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	binding, err := s.issuer.Verify(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			// Signature checked out; the window has simply passed.
			s.markExpired(ctx, deviceID)
		}
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	rec, err := s.loadRecord(ctx, deviceID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	if binding.DeviceID != deviceID {
		err := fmt.Errorf("%w: token bound to a different device", token.ErrTampered)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	if rec.Status == record.StatusTamperFlagged {
		err := fmt.Errorf("%w: device is tamper-flagged, re-activation required", tamper.ErrTamperDetected)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	now := s.now()
	if rec.Status == record.StatusExpired || rec.Expired(now) {
		if rec.Status == record.StatusActive {
			s.markExpired(ctx, deviceID)
		}
		err := fmt.Errorf("%w: activation window closed, renewal or re-activation required", token.ErrExpired)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	if binding.Sequence != rec.SequenceNumber {
		err := fmt.Errorf("%w: token seq %d, record seq %d", token.ErrSuperseded, binding.Sequence, rec.SequenceNumber)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	var softDetail string
	if reported != nil {
		reportedID := identity.Normalize(*reported)
		result, cmpErr := s.compare(ctx, rec.Identity, reportedID)
		if cmpErr != nil {
			s.deny(ctx, deviceID, rec.TrustCategory, cmpErr)
			return nil, cmpErr
		}
		if result.Tampered() {
			return nil, s.flagTamper(ctx, rec, result)
		}
		if len(result.Soft) > 0 {
			softDetail = result.Detail()
			slog.Info("Identity drift within tolerance", "device_id", deviceID, "detail", softDetail)
		}
	}

	days := rec.DaysUntilExpiry(now)
	s.audit(ctx, audit.EventValidate, deviceID, rec.TrustCategory, ReasonValidated, softDetail)

	return &ValidationResult{
		DeviceID:        deviceID,
		TrustCategory:   rec.TrustCategory,
		ExpiresAt:       rec.ExpiresAt,
		DaysUntilExpiry: days,
		RequiresRenewal: days <= s.renewalThresholdDays,
		ReasonCode:      ReasonValidated,
	}, nil
}

// Renew extends an active device's validity window and rotates its token.
// Expired and tamper-flagged devices cannot renew; both require a full
// re-activation.
func (s *Service) Renew(ctx context.Context, deviceID, tokenString string) (*RenewalResult, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		err := fmt.Errorf("%w: device_id is blank", identity.ErrInvalidIdentity)
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	binding, err := s.issuer.Verify(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.markExpired(ctx, deviceID)
		}
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	rec, err := s.loadRecord(ctx, deviceID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			err = fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		s.deny(ctx, deviceID, "", err)
		return nil, err
	}

	if binding.DeviceID != deviceID {
		err := fmt.Errorf("%w: token bound to a different device", token.ErrTampered)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	if rec.Status == record.StatusTamperFlagged {
		err := fmt.Errorf("%w: tamper-flagged devices cannot renew", tamper.ErrTamperDetected)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	now := s.now()
	if rec.Status == record.StatusExpired || rec.Expired(now) {
		if rec.Status == record.StatusActive {
			s.markExpired(ctx, deviceID)
		}
		err := fmt.Errorf("%w: expired devices require re-activation", token.ErrExpired)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	if binding.Sequence != rec.SequenceNumber {
		err := fmt.Errorf("%w: token seq %d, record seq %d", token.ErrSuperseded, binding.Sequence, rec.SequenceNumber)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	newExpiry := policy.ExpiryFrom(now, rec.CustomerType, true)
	if newExpiry.Before(rec.ExpiresAt) {
		// Renewal never shortens an unexpired window.
		newExpiry = rec.ExpiresAt
	}
	newSeq := rec.SequenceNumber + 1

	signed, err := s.issuer.Issue(deviceID, newExpiry, rec.TrustCategory, newSeq)
	if err != nil {
		slog.Error("Token signing failed during renewal", "device_id", deviceID, "error", err)
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	rec.ExpiresAt = newExpiry
	rec.SequenceNumber = newSeq
	rec.RenewalCount++
	rec.TokenDigest = token.Digest(signed)

	if err := s.updateRecord(ctx, rec, binding.Sequence); err != nil {
		if errors.Is(err, record.ErrSequenceConflict) {
			// A concurrent renewal won the sequence race; this caller's
			// token generation is stale.
			err = fmt.Errorf("%w: concurrent renewal completed first", token.ErrSuperseded)
		}
		s.deny(ctx, deviceID, rec.TrustCategory, err)
		return nil, err
	}

	s.audit(ctx, audit.EventRenew, deviceID, rec.TrustCategory, ReasonRenewed,
		fmt.Sprintf("renewal %d, %d day validity", rec.RenewalCount, policy.RenewalDays))

	slog.Info("Device renewed",
		"device_id", deviceID,
		"renewal_count", rec.RenewalCount,
		"expires_at", newExpiry,
		"seq", newSeq)

	return &RenewalResult{
		DeviceID:     deviceID,
		Token:        signed,
		ExpiresAt:    newExpiry,
		ValidityDays: policy.RenewalDays,
		Sequence:     newSeq,
		RenewalCount: rec.RenewalCount,
	}, nil
}

// Status returns a read-only snapshot without requiring a token. It never
// mutates state and produces no audit entry.
func (s *Service) Status(ctx context.Context, deviceID string) (*StatusResult, error) {
	deviceID = strings.TrimSpace(deviceID)

	rec, err := s.loadRecord(ctx, deviceID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return nil, err
	}

	now := s.now()
	status := rec.Status
	if status == record.StatusActive && rec.Expired(now) {
		status = record.StatusExpired
	}

	return &StatusResult{
		DeviceID:        rec.DeviceID,
		Status:          status,
		TrustCategory:   rec.TrustCategory,
		CustomerType:    rec.CustomerType,
		ActivatedAt:     rec.ActivatedAt,
		ExpiresAt:       rec.ExpiresAt,
		DaysUntilExpiry: rec.DaysUntilExpiry(now),
		RenewalCount:    rec.RenewalCount,
		TamperDetail:    rec.TamperDetail,
	}, nil
}

// flagTamper downgrades trust one step, flags the device and invalidates
// the current token generation. Repeated tamper hits keep the category at
// its floor; they never move it back up.
func (s *Service) flagTamper(ctx context.Context, rec *record.ActivationRecord, result tamper.Result) error {
	downgraded := rec.TrustCategory.Downgraded()
	if downgraded.LowerThan(rec.TrustCategory) {
		rec.TrustCategory = downgraded
	}
	prevSeq := rec.SequenceNumber
	rec.Status = record.StatusTamperFlagged
	rec.SequenceNumber++
	rec.TamperDetail = result.Detail()

	if err := s.updateRecord(ctx, rec, prevSeq); err != nil && !errors.Is(err, record.ErrSequenceConflict) {
		// The deny stands even if the downgrade could not be persisted.
		slog.Error("Failed to persist tamper downgrade", "device_id", rec.DeviceID, "error", err)
	}

	s.audit(ctx, audit.EventTamperDetected, rec.DeviceID, rec.TrustCategory, ReasonTamperDetected, result.Detail())

	slog.Warn("Tamper detected",
		"device_id", rec.DeviceID,
		"trust_category", rec.TrustCategory,
		"detail", result.Detail())

	return fmt.Errorf("%w: %s", tamper.ErrTamperDetected, result.Detail())
}

// markExpired transitions an ACTIVE record to EXPIRED once its own window has
// passed. The record is the source of truth: an expired token from an old
// generation never moves an unexpired record. Best effort: a lost sequence
// race means another caller already moved the record on.
func (s *Service) markExpired(ctx context.Context, deviceID string) {
	rec, err := s.loadRecord(ctx, deviceID)
	if err != nil || rec.Status != record.StatusActive || !rec.Expired(s.now()) {
		return
	}
	rec.Status = record.StatusExpired
	if err := s.updateRecord(ctx, rec, rec.SequenceNumber); err != nil && !errors.Is(err, record.ErrSequenceConflict) {
		slog.Warn("Failed to mark device expired", "device_id", deviceID, "error", err)
	}
}

// noteFailedAttempt bumps the failed-activation counter on an existing
// record. Best effort; attempt accounting never blocks a denial response.
func (s *Service) noteFailedAttempt(ctx context.Context, deviceID string) {
	if deviceID == "" {
		return
	}
	rec, err := s.loadRecord(ctx, deviceID)
	if err != nil {
		return
	}
	now := s.now()
	rec.ActivationAttempts++
	rec.LastAttemptAt = &now
	if err := s.updateRecord(ctx, rec, rec.SequenceNumber); err != nil {
		slog.Debug("Failed to record activation attempt", "device_id", deviceID, "error", err)
	}
}

func (s *Service) saveNewGeneration(ctx context.Context, rec *record.ActivationRecord, existing *record.ActivationRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var err error
	if existing == nil {
		err = s.store.Create(opCtx, rec)
		if errors.Is(err, record.ErrAlreadyExists) {
			return fmt.Errorf("%w: concurrent activation completed first", ErrAlreadyActive)
		}
	} else {
		err = s.store.Update(opCtx, rec, existing.SequenceNumber)
		if errors.Is(err, record.ErrSequenceConflict) {
			return fmt.Errorf("%w: concurrent activation completed first", ErrAlreadyActive)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Service) loadRecord(ctx context.Context, deviceID string) (*record.ActivationRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	rec, err := s.store.Get(opCtx, deviceID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, record.ErrNotFound
		}
		// Timeouts and connectivity failures are transient, never a tamper
		// signal.
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return rec, nil
}

func (s *Service) updateRecord(ctx context.Context, rec *record.ActivationRecord, expectedSeq int64) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	err := s.store.Update(opCtx, rec, expectedSeq)
	if err == nil || errors.Is(err, record.ErrSequenceConflict) || errors.Is(err, record.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

func (s *Service) classify(ctx context.Context, resolved identity.Resolved, proofPresent bool) (trust.Category, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	category, err := s.classifier.Classify(opCtx, resolved, proofPresent)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return category, nil
}

func (s *Service) compare(ctx context.Context, baseline, reported identity.Identity) (tamper.Result, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	result, err := s.detector.Compare(opCtx, baseline, reported)
	if err != nil {
		return tamper.Result{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return result, nil
}

// deny appends a DENY entry for a refused request. Auditing is never
// skipped on the error path.
func (s *Service) deny(ctx context.Context, deviceID string, category trust.Category, cause error) {
	s.audit(ctx, audit.EventDeny, deviceID, category, ReasonFor(cause), cause.Error())
}

func (s *Service) audit(ctx context.Context, event audit.EventType, deviceID string, category trust.Category, reason, detail string) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	entry := audit.Entry{
		ID:            uuid.New(),
		Event:         event,
		DeviceID:      deviceID,
		Timestamp:     s.now(),
		TrustCategory: category,
		ReasonCode:    reason,
		Detail:        detail,
	}
	if err := s.sink.Append(opCtx, entry); err != nil {
		slog.Error("Failed to append audit entry",
			"device_id", deviceID, "event", event, "reason", reason, "error", err)
	}
}
