package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwatts/device-verification/internal/policy"
)

func validRequest() Request {
	return Request{
		DeviceID:     "dev-1",
		DeviceType:   "SMART_METER",
		CustomerType: "RESIDENTIAL",
		Claim: Claim{
			HardwareID:       "HW-METER-001",
			MACAddress:       "AA:BB:CC:DD:EE:FF",
			SerialNumber:     "SN-001",
			Model:            "SW-M300",
			Manufacturer:     "SmartWatts",
			FirmwareVersion:  "2.4.1",
			FirmwareChecksum: "ABC123DEF456",
		},
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver()

	resolved, err := r.Resolve(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "dev-1", resolved.DeviceID)
	assert.Equal(t, policy.CustomerResidential, resolved.CustomerType)
	assert.False(t, resolved.Offline)

	// MAC and checksum are normalized to lowercase canonical form.
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", resolved.Identity.MACAddress)
	assert.Equal(t, "abc123def456", resolved.Identity.FirmwareChecksum)
	assert.True(t, resolved.Identity.Complete())
}

func TestResolveTrimsWhitespace(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.DeviceID = "  dev-1  "
	req.Claim.SerialNumber = " SN-001 "

	resolved, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", resolved.DeviceID)
	assert.Equal(t, "SN-001", resolved.Identity.SerialNumber)
}

func TestResolveBlankDeviceID(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.DeviceID = "   "

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveBlankDeviceType(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.DeviceType = ""

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveUnknownCustomerType(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.CustomerType = "INDUSTRIAL"

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveBlankHardwareID(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.Claim.HardwareID = ""

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveMalformedHardwareID(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.Claim.HardwareID = "hw!"

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	req.Claim.HardwareID = "a/b/c/d"
	_, err = r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveMalformedMAC(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.Claim.MACAddress = "not-a-mac"

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveEmptyMACAllowed(t *testing.T) {
	// A missing MAC costs trust, not validity; classification handles that.
	r := NewResolver()

	req := validRequest()
	req.Claim.MACAddress = ""

	resolved, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Empty(t, resolved.Identity.MACAddress)
	assert.False(t, resolved.Identity.Complete())
}

func TestResolveOfflineWithoutProof(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.OfflineActivation = true

	_, err := r.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidIdentity)
}

func TestResolveOfflineWithProof(t *testing.T) {
	r := NewResolver()

	req := validRequest()
	req.OfflineActivation = true
	req.OfflineProof = "signed-manifest-proof"

	resolved, err := r.Resolve(req)
	require.NoError(t, err)
	assert.True(t, resolved.Offline)
}

func TestCompleteOptionalImageDigest(t *testing.T) {
	id := Identity{
		HardwareID:       "HW-1",
		MACAddress:       "aa:bb:cc:dd:ee:ff",
		SerialNumber:     "SN",
		Model:            "M",
		Manufacturer:     "Mfg",
		FirmwareVersion:  "1.0",
		FirmwareChecksum: "abc",
	}
	assert.True(t, id.Complete())

	id.FirmwareChecksum = ""
	assert.False(t, id.Complete())
}

func TestNormalize(t *testing.T) {
	id := Normalize(Claim{
		HardwareID:       " HW-1 ",
		MACAddress:       "AA-BB-CC-DD-EE-FF",
		FirmwareChecksum: " ABCDEF ",
	})
	assert.Equal(t, "HW-1", id.HardwareID)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", id.MACAddress)
	assert.Equal(t, "abcdef", id.FirmwareChecksum)
}

func TestNormalizeKeepsUnparseableMAC(t *testing.T) {
	// Validation-time claims are compared, not rejected; a garbage MAC
	// surfaces as a mismatch against the baseline.
	id := Normalize(Claim{MACAddress: "garbage"})
	assert.Equal(t, "garbage", id.MACAddress)
}
