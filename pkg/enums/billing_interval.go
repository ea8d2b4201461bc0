package enums

import (
	"fmt"
	"time"
)

// BillingInterval defines the cadence for a paid plan.
type BillingInterval string

const (
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalYearly  BillingInterval = "yearly"
)

var validBillingIntervals = []BillingInterval{
	BillingIntervalMonthly,
	BillingIntervalYearly,
}

// String implements fmt.Stringer.
func (b BillingInterval) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingInterval.
func (b BillingInterval) IsValid() bool {
	for _, candidate := range validBillingIntervals {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBillingInterval converts raw input into a BillingInterval.
func ParseBillingInterval(value string) (BillingInterval, error) {
	for _, candidate := range validBillingIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing interval %q", value)
}

// AddTo advances ts by one billing period. Unknown intervals advance by a month.
func (b BillingInterval) AddTo(ts time.Time) time.Time {
	if b == BillingIntervalYearly {
		return ts.AddDate(1, 0, 0)
	}
	return ts.AddDate(0, 1, 0)
}
