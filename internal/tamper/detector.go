package tamper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/registry"
)

// ErrTamperDetected is returned when a validation request's identity no
// longer matches the recorded baseline in a way that indicates hardware or
// firmware substitution.
var ErrTamperDetected = errors.New("device tamper detected")

// Mismatch describes one field that diverged from the baseline.
type Mismatch struct {
	Field    string
	Baseline string
	Reported string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: baseline %q, reported %q", m.Field, m.Baseline, m.Reported)
}

// Result separates deny-triggering mismatches from expected drift. Firmware
// version changes are normal upgrade behavior; a checksum change is only
// tolerated when it comes with a version change and the new checksum is on
// the allow-list.
type Result struct {
	Critical []Mismatch
	Soft     []Mismatch
}

func (r Result) Tampered() bool {
	return len(r.Critical) > 0
}

func (r Result) Detail() string {
	parts := make([]string, 0, len(r.Critical)+len(r.Soft))
	for _, m := range r.Critical {
		parts = append(parts, m.String())
	}
	for _, m := range r.Soft {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "; ")
}

// Detector compares a reported identity against the recorded baseline.
type Detector struct {
	registry registry.Registry
}

func NewDetector(reg registry.Registry) *Detector {
	return &Detector{registry: reg}
}

// Compare runs the field-by-field check. Hardware ID mismatches are always
// critical. Firmware checksum mismatches are critical unless the firmware
// version also changed and the new checksum is registry-approved, which is
// the legitimate upgrade path. Everything else is logged drift.
func (d *Detector) Compare(ctx context.Context, baseline, reported identity.Identity) (Result, error) {
	var res Result

	if reported.HardwareID != "" && reported.HardwareID != baseline.HardwareID {
		res.Critical = append(res.Critical, Mismatch{
			Field:    "hardware_id",
			Baseline: baseline.HardwareID,
			Reported: reported.HardwareID,
		})
	}

	if reported.FirmwareChecksum != "" && reported.FirmwareChecksum != baseline.FirmwareChecksum {
		m := Mismatch{
			Field:    "firmware_checksum",
			Baseline: baseline.FirmwareChecksum,
			Reported: reported.FirmwareChecksum,
		}
		versionBumped := reported.FirmwareVersion != "" && reported.FirmwareVersion != baseline.FirmwareVersion
		approved := false
		if versionBumped {
			var err error
			approved, err = d.registry.Lookup(ctx, reported.FirmwareChecksum)
			if err != nil {
				return Result{}, fmt.Errorf("firmware registry lookup: %w", err)
			}
		}
		if versionBumped && approved {
			res.Soft = append(res.Soft, m)
			slog.Info("Firmware checksum changed with approved version bump",
				"firmware_version", reported.FirmwareVersion,
				"firmware_checksum", reported.FirmwareChecksum)
		} else {
			res.Critical = append(res.Critical, m)
		}
	}

	for _, f := range []struct {
		name               string
		baseline, reported string
	}{
		{"mac_address", baseline.MACAddress, reported.MACAddress},
		{"serial_number", baseline.SerialNumber, reported.SerialNumber},
		{"model", baseline.Model, reported.Model},
		{"manufacturer", baseline.Manufacturer, reported.Manufacturer},
		{"firmware_version", baseline.FirmwareVersion, reported.FirmwareVersion},
		{"image_digest", baseline.ImageDigest, reported.ImageDigest},
	} {
		if f.reported != "" && f.reported != f.baseline {
			res.Soft = append(res.Soft, Mismatch{Field: f.name, Baseline: f.baseline, Reported: f.reported})
		}
	}

	return res, nil
}
