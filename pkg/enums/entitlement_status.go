package enums

import "fmt"

// EntitlementStatus tracks the billing standing of an entitlement.
type EntitlementStatus string

const (
	EntitlementStatusActive   EntitlementStatus = "active"
	EntitlementStatusPastDue  EntitlementStatus = "past_due"
	EntitlementStatusCanceled EntitlementStatus = "canceled"
	EntitlementStatusExpired  EntitlementStatus = "expired"
)

var validEntitlementStatuss = []EntitlementStatus{
	EntitlementStatusActive,
	EntitlementStatusPastDue,
	EntitlementStatusCanceled,
	EntitlementStatusExpired,
}

// String implements fmt.Stringer.
func (s EntitlementStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EntitlementStatus.
func (s EntitlementStatus) IsValid() bool {
	for _, candidate := range validEntitlementStatuss {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEntitlementStatus converts raw input into a EntitlementStatus.
func ParseEntitlementStatus(value string) (EntitlementStatus, error) {
	for _, candidate := range validEntitlementStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entitlement status %q", value)
}
