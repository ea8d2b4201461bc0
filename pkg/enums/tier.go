package enums

import "fmt"

// Tier is the product plan a user is entitled to.
type Tier string

const (
	TierRitel  Tier = "ritel"
	TierSuhu   Tier = "suhu"
	TierBandar Tier = "bandar"
)

var validTiers = []Tier{
	TierRitel,
	TierSuhu,
	TierBandar,
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known Tier.
func (t Tier) IsValid() bool {
	for _, candidate := range validTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	for _, candidate := range validTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tier %q", value)
}

// IsPaid reports whether the tier requires an active payment.
func (t Tier) IsPaid() bool {
	return t == TierSuhu || t == TierBandar
}
