package identity

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/smartwatts/device-verification/internal/policy"
)

// ErrInvalidIdentity is returned when mandatory activation fields are blank
// or malformed. It maps to a caller error, never an infrastructure one.
var ErrInvalidIdentity = errors.New("invalid device identity")

// hardwareIDPattern matches the vendor-assigned hardware identifiers burned
// into meter boards: alphanumeric with separators, 4 to 64 characters.
var hardwareIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:_-]{3,63}$`)

// Identity is the normalized hardware/firmware identity of a device.
// Once recorded at first activation it becomes the immutable tamper baseline.
type Identity struct {
	HardwareID       string
	MACAddress       string
	SerialNumber     string
	Model            string
	Manufacturer     string
	FirmwareVersion  string
	FirmwareChecksum string
	ImageDigest      string
}

// Complete reports whether every field required for a locked trust category
// is present. ImageDigest is optional; not every device runs containerized
// firmware.
func (id Identity) Complete() bool {
	return id.HardwareID != "" &&
		id.MACAddress != "" &&
		id.SerialNumber != "" &&
		id.Model != "" &&
		id.Manufacturer != "" &&
		id.FirmwareVersion != "" &&
		id.FirmwareChecksum != ""
}

// Claim carries the raw, untrusted identity fields from an activation or
// validation request.
type Claim struct {
	HardwareID       string
	MACAddress       string
	SerialNumber     string
	Model            string
	Manufacturer     string
	FirmwareVersion  string
	FirmwareChecksum string
	ImageDigest      string
}

// Request is the raw activation request as seen by the resolver.
type Request struct {
	DeviceID          string
	DeviceType        string
	CustomerType      string
	OfflineActivation bool
	OfflineProof      string
	Claim             Claim
}

// Resolved is the validated, normalized form of a Request.
type Resolved struct {
	DeviceID     string
	DeviceType   string
	CustomerType policy.CustomerType
	Offline      bool
	Identity     Identity
}

// Resolver validates and normalizes activation request fields. It has no
// side effects and no collaborators.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve checks mandatory fields and produces a normalized identity.
// All failures wrap ErrInvalidIdentity with the offending field named.
func (r *Resolver) Resolve(req Request) (Resolved, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return Resolved{}, fmt.Errorf("%w: device_id is blank", ErrInvalidIdentity)
	}

	deviceType := strings.TrimSpace(req.DeviceType)
	if deviceType == "" {
		return Resolved{}, fmt.Errorf("%w: device_type is blank", ErrInvalidIdentity)
	}

	customerType, err := policy.ParseCustomerType(req.CustomerType)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	hardwareID := strings.TrimSpace(req.Claim.HardwareID)
	if hardwareID == "" {
		return Resolved{}, fmt.Errorf("%w: hardware_id is blank", ErrInvalidIdentity)
	}
	if !hardwareIDPattern.MatchString(hardwareID) {
		return Resolved{}, fmt.Errorf("%w: hardware_id %q is malformed", ErrInvalidIdentity, hardwareID)
	}

	mac, err := normalizeMAC(req.Claim.MACAddress)
	if err != nil {
		return Resolved{}, err
	}

	// The offline path needs a signed proof alongside the request. Verifying
	// the proof is the manifest service's concern; the resolver only insists
	// that one is present.
	if req.OfflineActivation && strings.TrimSpace(req.OfflineProof) == "" {
		return Resolved{}, fmt.Errorf("%w: offline activation requested without offline proof", ErrInvalidIdentity)
	}

	return Resolved{
		DeviceID:     deviceID,
		DeviceType:   deviceType,
		CustomerType: customerType,
		Offline:      req.OfflineActivation,
		Identity:     NormalizeClaim(req.Claim, hardwareID, mac),
	}, nil
}

// NormalizeClaim produces an Identity from raw claim fields with the already
// validated hardware ID and MAC substituted in.
func NormalizeClaim(c Claim, hardwareID, mac string) Identity {
	return Identity{
		HardwareID:       hardwareID,
		MACAddress:       mac,
		SerialNumber:     strings.TrimSpace(c.SerialNumber),
		Model:            strings.TrimSpace(c.Model),
		Manufacturer:     strings.TrimSpace(c.Manufacturer),
		FirmwareVersion:  strings.TrimSpace(c.FirmwareVersion),
		FirmwareChecksum: strings.ToLower(strings.TrimSpace(c.FirmwareChecksum)),
		ImageDigest:      strings.ToLower(strings.TrimSpace(c.ImageDigest)),
	}
}

// Normalize converts a validation-time claim into a comparable Identity
// without enforcing activation-level completeness rules.
func Normalize(c Claim) Identity {
	mac := strings.TrimSpace(c.MACAddress)
	if hw, err := net.ParseMAC(mac); err == nil {
		mac = strings.ToLower(hw.String())
	}
	return NormalizeClaim(c, strings.TrimSpace(c.HardwareID), mac)
}

func normalizeMAC(raw string) (string, error) {
	mac := strings.TrimSpace(raw)
	if mac == "" {
		return "", nil
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("%w: mac_address %q is malformed", ErrInvalidIdentity, mac)
	}
	return strings.ToLower(hw.String()), nil
}
