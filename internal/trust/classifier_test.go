package trust

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwatts/device-verification/internal/identity"
	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/registry"
)

func completeIdentity() identity.Identity {
	return identity.Identity{
		HardwareID:       "HW-METER-001",
		MACAddress:       "aa:bb:cc:dd:ee:ff",
		SerialNumber:     "SN-001",
		Model:            "SW-M300",
		Manufacturer:     "SmartWatts",
		FirmwareVersion:  "2.4.1",
		FirmwareChecksum: "abc123def456",
	}
}

func resolvedWith(id identity.Identity, offline bool) identity.Resolved {
	return identity.Resolved{
		DeviceID:     "dev-1",
		DeviceType:   "SMART_METER",
		CustomerType: policy.CustomerResidential,
		Offline:      offline,
		Identity:     id,
	}
}

func TestClassifyOEMLocked(t *testing.T) {
	reg := registry.NewMemoryRegistry("abc123def456")
	c := NewClassifier(reg)

	category, err := c.Classify(context.Background(), resolvedWith(completeIdentity(), false), false)
	require.NoError(t, err)
	assert.Equal(t, CategoryOEMLocked, category)
}

func TestClassifyChecksumNotApproved(t *testing.T) {
	reg := registry.NewMemoryRegistry("other-checksum")
	c := NewClassifier(reg)

	category, err := c.Classify(context.Background(), resolvedWith(completeIdentity(), false), false)
	require.NoError(t, err)
	assert.Equal(t, CategoryUnverified, category)
}

func TestClassifyIncompleteIdentity(t *testing.T) {
	reg := registry.NewMemoryRegistry("abc123def456")
	c := NewClassifier(reg)

	id := completeIdentity()
	id.SerialNumber = ""

	category, err := c.Classify(context.Background(), resolvedWith(id, false), false)
	require.NoError(t, err)
	assert.Equal(t, CategoryUnverified, category)
}

func TestClassifyOfflineLocked(t *testing.T) {
	// Offline path never consults the registry.
	c := NewClassifier(registry.NewMemoryRegistry())

	category, err := c.Classify(context.Background(), resolvedWith(completeIdentity(), true), true)
	require.NoError(t, err)
	assert.Equal(t, CategoryOfflineLocked, category)
}

func TestClassifyOfflineWithoutProof(t *testing.T) {
	c := NewClassifier(registry.NewMemoryRegistry())

	category, err := c.Classify(context.Background(), resolvedWith(completeIdentity(), true), false)
	require.NoError(t, err)
	assert.Equal(t, CategoryUnverified, category)
}

func TestClassifyOfflineIncomplete(t *testing.T) {
	c := NewClassifier(registry.NewMemoryRegistry())

	id := completeIdentity()
	id.Manufacturer = ""

	category, err := c.Classify(context.Background(), resolvedWith(id, true), true)
	require.NoError(t, err)
	assert.Equal(t, CategoryUnverified, category)
}

type failingRegistry struct{}

func (failingRegistry) Lookup(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func TestClassifyRegistryFailure(t *testing.T) {
	// An allow-list outage is an infrastructure error, not a downgrade.
	c := NewClassifier(failingRegistry{})

	_, err := c.Classify(context.Background(), resolvedWith(completeIdentity(), false), false)
	assert.Error(t, err)
}
