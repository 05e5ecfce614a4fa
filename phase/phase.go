// Package phase derives the governance maturity phase and the veto base
// thresholds that go with it.
package phase

import (
	"context"

	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/models"
)

type Phase int

const (
	Early Phase = iota
	Growth
	Mature
)

func (p Phase) String() string {
	switch p {
	case Early:
		return "early"
	case Growth:
		return "growth"
	case Mature:
		return "mature"
	}
	return "unknown"
}

// HeightSource reports the current block height.
type HeightSource interface {
	BlockHeight(ctx context.Context) (uint64, error)
}

// StaticHeight is a fixed block height.
type StaticHeight uint64

func (h StaticHeight) BlockHeight(context.Context) (uint64, error) { return uint64(h), nil }

// NodeSource yields the active node population.
type NodeSource interface {
	GetActiveNodes(ctx context.Context) ([]*models.Node, error)
}

// Metrics are the inputs of a phase decision.
type Metrics struct {
	BlockHeight  uint64 `json:"block_height"`
	ActiveNodes  int    `json:"active_nodes"`
	Contributors int    `json:"contributors"`
}

func byHeight(h uint64) Phase {
	switch {
	case h < 50_000:
		return Early
	case h < 200_000:
		return Growth
	}
	return Mature
}

func byNodes(n int) Phase {
	switch {
	case n < 10:
		return Early
	case n < 30:
		return Growth
	}
	return Mature
}

func byContributors(n int) Phase {
	switch {
	case n < 10:
		return Early
	case n < 100:
		return Growth
	}
	return Mature
}

// Determine returns the most conservative phase across the three metrics.
func Determine(m Metrics) Phase {
	p := byHeight(m.BlockHeight)
	if q := byNodes(m.ActiveNodes); q < p {
		p = q
	}
	if q := byContributors(m.Contributors); q < p {
		p = q
	}
	return p
}

// tier3 holds the tier-3 base thresholds per phase.
var tier3 = map[Phase][2]float64{
	Early:  {25, 35},
	Growth: {30, 40},
	Mature: {35, 45},
}

// Thresholds returns the base thresholds of tier in phase p. Tier 3 uses the
// phase table; other veto tiers scale their defaults by the same ratio.
func Thresholds(p Phase, tier int) (float64, float64, error) {
	policy, ok := models.PolicyForTier(tier)
	if !ok || !policy.VetoEligible {
		return 0, 0, errs.New(errs.Validation, "phase.Thresholds", "tier %d has no veto thresholds", tier)
	}
	ref, _ := models.PolicyForTier(3)
	t3, ok := tier3[p]
	if !ok {
		return 0, 0, errs.New(errs.Validation, "phase.Thresholds", "unknown phase %d", p)
	}
	mining := policy.MiningThreshold * t3[0] / ref.MiningThreshold
	economic := policy.EconomicThreshold * t3[1] / ref.EconomicThreshold
	return mining, economic, nil
}

// Calculator derives the phase from live data.
type Calculator struct {
	height HeightSource
	nodes  NodeSource
}

func NewCalculator(height HeightSource, nodes NodeSource) *Calculator {
	return &Calculator{height: height, nodes: nodes}
}

// Metrics gathers the phase inputs. Contributors are active commons
// contributors, counted by contributor id when one is present.
func (c *Calculator) Metrics(ctx context.Context) (Metrics, error) {
	h, err := c.height.BlockHeight(ctx)
	if err != nil {
		return Metrics{}, err
	}
	active, err := c.nodes.GetActiveNodes(ctx)
	if err != nil {
		return Metrics{}, err
	}
	contributors := make(map[string]struct{})
	for _, n := range active {
		if n.Type != models.CommonsContributor {
			continue
		}
		key := n.ID
		if n.Evidence.Commons != nil && n.Evidence.Commons.ContributorID != "" {
			key = n.Evidence.Commons.ContributorID
		}
		contributors[key] = struct{}{}
	}
	return Metrics{BlockHeight: h, ActiveNodes: len(active), Contributors: len(contributors)}, nil
}

// CurrentPhase returns the phase implied by live data.
func (c *Calculator) CurrentPhase(ctx context.Context) (Phase, Metrics, error) {
	m, err := c.Metrics(ctx)
	if err != nil {
		return Early, m, err
	}
	return Determine(m), m, nil
}

// BaseThresholds returns the phase-adjusted base thresholds for tier.
func (c *Calculator) BaseThresholds(ctx context.Context, tier int) (float64, float64, error) {
	p, m, err := c.CurrentPhase(ctx)
	if err != nil {
		return 0, 0, err
	}
	mining, economic, err := Thresholds(p, tier)
	if err != nil {
		return 0, 0, err
	}
	logger.Logger.Debug("Governance phase",
		zap.Stringer("phase", p),
		zap.Uint64("block_height", m.BlockHeight),
		zap.Int("active_nodes", m.ActiveNodes),
		zap.Int("contributors", m.Contributors),
		zap.Int("tier", tier))
	return mining, economic, nil
}
