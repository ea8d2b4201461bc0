package enums

import "fmt"

// Feature names a daily metered capability.
type Feature string

const (
	FeatureBacktest Feature = "backtest"
	FeatureAIChat   Feature = "ai_chat"
)

var validFeatures = []Feature{
	FeatureBacktest,
	FeatureAIChat,
}

// String implements fmt.Stringer.
func (f Feature) String() string {
	return string(f)
}

// IsValid reports whether the value is a known Feature.
func (f Feature) IsValid() bool {
	for _, candidate := range validFeatures {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFeature converts raw input into a Feature.
func ParseFeature(value string) (Feature, error) {
	for _, candidate := range validFeatures {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feature %q", value)
}
