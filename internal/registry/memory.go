package registry

import (
	"context"
	"strings"
	"sync"
)

// MemoryRegistry is an in-memory allow-list, used for development and tests.
type MemoryRegistry struct {
	mu       sync.RWMutex
	approved map[string]struct{}
}

func NewMemoryRegistry(checksums ...string) *MemoryRegistry {
	r := &MemoryRegistry{approved: make(map[string]struct{}, len(checksums))}
	for _, c := range checksums {
		r.approved[normalize(c)] = struct{}{}
	}
	return r
}

func (r *MemoryRegistry) Lookup(_ context.Context, firmwareChecksum string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.approved[normalize(firmwareChecksum)]
	return ok, nil
}

// Approve adds a checksum to the allow-list.
func (r *MemoryRegistry) Approve(_ context.Context, firmwareChecksum string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved[normalize(firmwareChecksum)] = struct{}{}
	return nil
}

func normalize(checksum string) string {
	return strings.ToLower(strings.TrimSpace(checksum))
}
