package models

import "time"

// TierPolicy holds the per-tier governance parameters.
type TierPolicy struct {
	Tier              int
	VetoEligible      bool
	MiningThreshold   float64 // percent of active mining weight
	EconomicThreshold float64 // percent of active economic weight
	ReviewPeriod      time.Duration
	SupportThreshold  float64 // combined vote weight needed to pass
}

const (
	MinTier = 1
	MaxTier = 5

	day = 24 * time.Hour
)

var tierPolicies = map[int]TierPolicy{
	1: {Tier: 1, SupportThreshold: 100},
	2: {Tier: 2, SupportThreshold: 500},
	3: {Tier: 3, VetoEligible: true, MiningThreshold: 30, EconomicThreshold: 40, ReviewPeriod: 90 * day, SupportThreshold: 1000},
	4: {Tier: 4, VetoEligible: true, MiningThreshold: 25, EconomicThreshold: 35, ReviewPeriod: 24 * time.Hour, SupportThreshold: 2500},
	5: {Tier: 5, VetoEligible: true, MiningThreshold: 50, EconomicThreshold: 60, ReviewPeriod: 180 * day, SupportThreshold: 5000},
}

// PolicyForTier returns the policy of tier and whether the tier exists.
func PolicyForTier(tier int) (TierPolicy, bool) {
	p, ok := tierPolicies[tier]
	return p, ok
}
