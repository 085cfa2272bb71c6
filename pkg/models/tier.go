package models

// ModelTier selects which configured model a call class uses.
type ModelTier string

const (
	// TierFast is for high-volume, low-stakes calls (survey, map).
	TierFast ModelTier = "fast"
	// TierDeep is for planning, reduction, drafting, and audit calls.
	TierDeep ModelTier = "deep"
)

// Valid returns true if the tier is a known value.
func (t ModelTier) Valid() bool {
	switch t {
	case TierFast, TierDeep:
		return true
	default:
		return false
	}
}
