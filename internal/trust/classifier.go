package trust

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/registry"
)

// Classifier assigns a trust category at activation time. Trust follows the
// strength of the verification channel: an online submission whose firmware
// cannot be confirmed against the allow-list earns no more trust than an
// incomplete one.
type Classifier struct {
	registry registry.Registry
}

func NewClassifier(reg registry.Registry) *Classifier {
	return &Classifier{registry: reg}
}

// Classify walks the decision table in order, first match wins:
//
//  1. offline activation with proof and complete identity -> OFFLINE_LOCKED
//  2. online activation, complete identity, checksum on allow-list -> OEM_LOCKED
//  3. everything else -> UNVERIFIED
//
// The registry lookup is the only collaborator call; its failure is an
// infrastructure error, never a silent downgrade.
func (c *Classifier) Classify(ctx context.Context, resolved identity.Resolved, offlineProofPresent bool) (Category, error) {
	complete := resolved.Identity.Complete()

	if resolved.Offline {
		if offlineProofPresent && complete {
			return CategoryOfflineLocked, nil
		}
		slog.Debug("Offline activation did not qualify for OFFLINE_LOCKED",
			"device_id", resolved.DeviceID,
			"proof_present", offlineProofPresent,
			"identity_complete", complete)
		return CategoryUnverified, nil
	}

	if !complete {
		return CategoryUnverified, nil
	}

	approved, err := c.registry.Lookup(ctx, resolved.Identity.FirmwareChecksum)
	if err != nil {
		return "", fmt.Errorf("firmware registry lookup: %w", err)
	}
	if approved {
		return CategoryOEMLocked, nil
	}

	slog.Info("Firmware checksum not on allow-list, classifying as UNVERIFIED",
		"device_id", resolved.DeviceID,
		"firmware_checksum", resolved.Identity.FirmwareChecksum)
	return CategoryUnverified, nil
}
