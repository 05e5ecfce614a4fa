// Package consolidation measures how concentrated the active mining and
// economic populations are and raises veto thresholds accordingly.
package consolidation

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"commons-governance/logger"
	"commons-governance/models"
)

// NodeSource yields the live active node population.
type NodeSource interface {
	GetActiveNodes(ctx context.Context) ([]*models.Node, error)
}

// Share is one entity's part of a population.
type Share struct {
	NodeID     string  `json:"node_id"`
	EntityName string  `json:"entity_name"`
	Weight     float64 `json:"weight"`
	Percent    float64 `json:"percent"`
}

// MiningMetrics describes mining pool concentration.
type MiningMetrics struct {
	TopPoolName    string  `json:"top_pool_name,omitempty"`
	TopPoolPercent float64 `json:"top_pool_percent"`
	Top3Percent    float64 `json:"top_3_percent"`
	TotalPools     int     `json:"total_pools"`
	Pools          []Share `json:"pools"`
}

// EconomicMetrics describes concentration among non-mining nodes.
type EconomicMetrics struct {
	Top3Names   []string `json:"top_3_names"`
	Top3Percent float64  `json:"top_3_percent"`
	TotalNodes  int      `json:"total_nodes"`
	Nodes       []Share  `json:"nodes"`
}

// Report bundles both populations.
type Report struct {
	Mining   MiningMetrics   `json:"mining"`
	Economic EconomicMetrics `json:"economic"`
}

// Monitor is the ConsolidationMonitor. It reads the node population on every
// call and keeps nothing between calls.
type Monitor struct {
	nodes NodeSource
}

func NewMonitor(nodes NodeSource) *Monitor {
	return &Monitor{nodes: nodes}
}

// shares sorts the population by weight, heaviest first, with entity name as
// the tie-breaker so reports are stable.
func shares(nodes []*models.Node) ([]Share, float64) {
	var total float64
	out := make([]Share, 0, len(nodes))
	for _, n := range nodes {
		total += n.Weight
		out = append(out, Share{NodeID: n.ID, EntityName: n.EntityName, Weight: n.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].EntityName < out[j].EntityName
	})
	if total > 0 {
		for i := range out {
			out[i].Percent = out[i].Weight / total * 100
		}
	}
	return out, total
}

func topPercent(s []Share, n int) float64 {
	var sum float64
	for i := 0; i < n && i < len(s); i++ {
		sum += s[i].Percent
	}
	return sum
}

// Measure computes both metric sets from an already loaded active population.
func Measure(active []*models.Node) Report {
	var mining, economic []*models.Node
	for _, n := range active {
		if n.Status != models.StatusActive {
			continue
		}
		if n.Type.IsMining() {
			mining = append(mining, n)
		} else {
			economic = append(economic, n)
		}
	}

	var rep Report
	pools, _ := shares(mining)
	rep.Mining = MiningMetrics{
		TopPoolPercent: topPercent(pools, 1),
		Top3Percent:    topPercent(pools, 3),
		TotalPools:     len(pools),
		Pools:          pools,
	}
	if len(pools) > 0 {
		rep.Mining.TopPoolName = pools[0].EntityName
	}

	econ, _ := shares(economic)
	rep.Economic = EconomicMetrics{
		Top3Percent: topPercent(econ, 3),
		TotalNodes:  len(econ),
		Nodes:       econ,
		Top3Names:   []string{},
	}
	for i := 0; i < 3 && i < len(econ); i++ {
		rep.Economic.Top3Names = append(rep.Economic.Top3Names, econ[i].EntityName)
	}
	return rep
}

// Scale applies the concentration multipliers to base thresholds.
func (r Report) Scale(baseMining, baseEconomic float64) (float64, float64) {
	mining := baseMining
	switch {
	case r.Mining.TopPoolPercent > 30:
		mining *= 1.5
	case r.Mining.TopPoolPercent > 20:
		mining *= 1.25
	case r.Mining.Top3Percent > 70:
		mining *= 1.3
	case r.Mining.Top3Percent > 50:
		mining *= 1.15
	}

	economic := baseEconomic
	switch {
	case r.Economic.Top3Percent > 70:
		economic *= 1.2
	case r.Economic.Top3Percent > 50:
		economic *= 1.1
	}
	return mining, economic
}

// Report loads the active population and measures it.
func (m *Monitor) Report(ctx context.Context) (Report, error) {
	active, err := m.nodes.GetActiveNodes(ctx)
	if err != nil {
		return Report{}, err
	}
	return Measure(active), nil
}

// MiningConsolidation returns mining pool concentration.
func (m *Monitor) MiningConsolidation(ctx context.Context) (MiningMetrics, error) {
	rep, err := m.Report(ctx)
	return rep.Mining, err
}

// EconomicConsolidation returns concentration among non-mining nodes.
func (m *Monitor) EconomicConsolidation(ctx context.Context) (EconomicMetrics, error) {
	rep, err := m.Report(ctx)
	return rep.Economic, err
}

// AdaptThresholds scales base thresholds by the current concentration.
func (m *Monitor) AdaptThresholds(ctx context.Context, baseMining, baseEconomic float64) (float64, float64, error) {
	rep, err := m.Report(ctx)
	if err != nil {
		return 0, 0, err
	}
	mining, economic := rep.Scale(baseMining, baseEconomic)
	logger.Logger.Debug("Adaptive thresholds",
		zap.Float64("mining", mining), zap.Float64("base_mining", baseMining),
		zap.Float64("economic", economic), zap.Float64("base_economic", baseEconomic),
		zap.Float64("top_pool_percent", rep.Mining.TopPoolPercent),
		zap.Float64("economic_top3_percent", rep.Economic.Top3Percent))
	return mining, economic, nil
}
