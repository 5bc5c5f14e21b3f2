package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CustomerType is fixed at first activation and never changes afterwards.
type CustomerType string

const (
	CustomerResidential CustomerType = "RESIDENTIAL"
	CustomerCommercial  CustomerType = "COMMERCIAL"
)

var ErrUnknownCustomerType = errors.New("unknown customer type")

func ParseCustomerType(s string) (CustomerType, error) {
	switch CustomerType(strings.ToUpper(strings.TrimSpace(s))) {
	case CustomerResidential:
		return CustomerResidential, nil
	case CustomerCommercial:
		return CustomerCommercial, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCustomerType, s)
	}
}

// Dual validity system carried over from the activation contract:
// residential devices get 12 months up front, commercial devices 3 months,
// and every renewal grants 12 months regardless of customer type.
const (
	InitialResidentialDays = 365
	InitialCommercialDays  = 90
	RenewalDays            = 365
)

// ValidityDays returns the length of the validity window in days for a
// given customer type and activation kind.
func ValidityDays(ct CustomerType, renewal bool) int {
	if renewal {
		return RenewalDays
	}
	if ct == CustomerResidential {
		return InitialResidentialDays
	}
	return InitialCommercialDays
}

// ExpiryFrom computes the expiry timestamp for a window starting at now.
func ExpiryFrom(now time.Time, ct CustomerType, renewal bool) time.Time {
	return now.AddDate(0, 0, ValidityDays(ct, renewal))
}
