package trust

// Category is the coarse-grained confidence level in a device's claimed
// identity. It is earned at activation and can only ever be downgraded.
type Category string

const (
	// CategoryOEMLocked requires complete identity fields and a firmware
	// checksum confirmed against the allow-list over the online path.
	CategoryOEMLocked Category = "OEM_LOCKED"
	// CategoryOfflineLocked is assigned on the offline-activation path when
	// a signed offline proof accompanies complete identity fields.
	CategoryOfflineLocked Category = "OFFLINE_LOCKED"
	// CategoryUnverified is the fallback for incomplete or unconfirmed
	// submissions, and the floor that tamper downgrades converge to.
	CategoryUnverified Category = "UNVERIFIED"
)

// rank orders categories from least to most trusted.
var rank = map[Category]int{
	CategoryUnverified:    0,
	CategoryOfflineLocked: 1,
	CategoryOEMLocked:     2,
}

func (c Category) Valid() bool {
	_, ok := rank[c]
	return ok
}

// Downgraded returns the category one step closer to UNVERIFIED.
// UNVERIFIED downgrades to itself.
func (c Category) Downgraded() Category {
	switch c {
	case CategoryOEMLocked:
		return CategoryOfflineLocked
	case CategoryOfflineLocked:
		return CategoryUnverified
	default:
		return CategoryUnverified
	}
}

// LowerThan reports whether c is strictly less trusted than other.
func (c Category) LowerThan(other Category) bool {
	return rank[c] < rank[other]
}
