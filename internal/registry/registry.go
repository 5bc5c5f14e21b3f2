package registry

import "context"

// Registry is the firmware allow-list consulted during classification and
// firmware-upgrade checks. A checksum is either approved or unknown; the
// registry never vouches for anything beyond firmware integrity.
type Registry interface {
	// Lookup reports whether the checksum is on the allow-list.
	Lookup(ctx context.Context, firmwareChecksum string) (bool, error)
}
