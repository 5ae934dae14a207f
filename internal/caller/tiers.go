package caller

import "fmt"

// Call quality tiers, written as the VCF FILTER value.
const (
	FilterPass   = "PASS"
	FilterMedium = "MediumQual"
	FilterLow    = "LowQual"
)

// Tiers holds the probability bounds of the quality tiers. A probability
// above High passes; one in [Medium, High] is medium quality; anything
// lower is low quality.
type Tiers struct {
	High   float64 `mapstructure:"high"`
	Medium float64 `mapstructure:"medium"`
}

// DefaultTiers returns the 0.9/0.7 tiers.
func DefaultTiers() Tiers {
	return Tiers{High: 0.9, Medium: 0.7}
}

// Validate checks 0 <= Medium <= High <= 1.
func (t Tiers) Validate() error {
	if t.Medium < 0 || t.High > 1 || t.Medium > t.High {
		return fmt.Errorf("invalid confidence tiers: need 0 <= medium (%g) <= high (%g) <= 1", t.Medium, t.High)
	}
	return nil
}

// Filter returns the tier of probability p.
func (t Tiers) Filter(p float64) string {
	switch {
	case p > t.High:
		return FilterPass
	case p >= t.Medium:
		return FilterMedium
	}
	return FilterLow
}
