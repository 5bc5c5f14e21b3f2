package record

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwatts/device-verification/internal/policy"
	"github.com/smartwatts/device-verification/internal/trust"
)

func newRecord(deviceID string) *ActivationRecord {
	now := time.Now()
	return &ActivationRecord{
		DeviceID:       deviceID,
		DeviceType:     "SMART_METER",
		CustomerType:   policy.CustomerResidential,
		TrustCategory:  trust.CategoryOEMLocked,
		Status:         StatusActive,
		ActivatedAt:    now,
		ExpiresAt:      now.AddDate(0, 0, 365),
		SequenceNumber: 1,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord("dev-1")
	require.NoError(t, s.Create(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, int64(1), got.SequenceNumber)
}

func TestMemoryStoreGetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("dev-1")))
	err := s.Create(ctx, newRecord("dev-1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStoreUpdateCAS(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord("dev-1")
	require.NoError(t, s.Create(ctx, rec))

	rec.SequenceNumber = 2
	rec.RenewalCount = 1
	require.NoError(t, s.Update(ctx, rec, 1))

	got, err := s.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SequenceNumber)
	assert.Equal(t, 1, got.RenewalCount)

	// A second writer still holding seq 1 must lose.
	stale := newRecord("dev-1")
	stale.SequenceNumber = 2
	err = s.Update(ctx, stale, 1)
	assert.ErrorIs(t, err, ErrSequenceConflict)
}

func TestMemoryStoreUpdateNotFound(t *testing.T) {
	s := NewMemoryStore()

	err := s.Update(context.Background(), newRecord("missing"), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord("dev-1")
	rec.Location = &Geolocation{Lat: 52.52, Lng: 13.405}
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "dev-1")
	require.NoError(t, err)
	got.TrustCategory = trust.CategoryUnverified
	got.Location.Lat = 0

	again, err := s.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, trust.CategoryOEMLocked, again.TrustCategory)
	assert.Equal(t, 52.52, again.Location.Lat)
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRecord("dev-1")))

	// All writers compare against seq 1; exactly one may win.
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := newRecord("dev-1")
			rec.SequenceNumber = 2
			if err := s.Update(ctx, rec, 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	got, err := s.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SequenceNumber)
}

func TestExpired(t *testing.T) {
	rec := newRecord("dev-1")
	rec.ExpiresAt = time.Now().Add(-time.Hour)
	assert.True(t, rec.Expired(time.Now()))

	rec.ExpiresAt = time.Now().Add(time.Hour)
	assert.False(t, rec.Expired(time.Now()))
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := newRecord("dev-1")
	rec.ExpiresAt = now.AddDate(0, 0, 30)

	assert.Equal(t, 30, rec.DaysUntilExpiry(now))
	assert.Equal(t, 0, rec.DaysUntilExpiry(rec.ExpiresAt))
}
