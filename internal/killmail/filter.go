package killmail

// Rules is the two-tier acceptance filter for killmails.
type Rules struct {
	// Regions is the allowlist of region ids worth notifying about.
	Regions []int64
	// MinValue is the minimum total value in ISK.
	MinValue float64
}

// Accept reports whether a kill in the given region with the given
// total value passes both tiers.
func (r Rules) Accept(regionID int64, totalValue float64) bool {
	if totalValue < r.MinValue {
		return false
	}
	for _, id := range r.Regions {
		if id == regionID {
			return true
		}
	}
	return false
}
