package consolidation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"commons-governance/models"
)

type staticNodes struct {
	nodes []*models.Node
	err   error
}

func (s staticNodes) GetActiveNodes(context.Context) ([]*models.Node, error) {
	return s.nodes, s.err
}

func population(nodeType models.NodeType, weights ...float64) []*models.Node {
	out := make([]*models.Node, len(weights))
	for i, w := range weights {
		out[i] = &models.Node{
			ID:         fmt.Sprintf("%s-%d", nodeType, i),
			Type:       nodeType,
			EntityName: fmt.Sprintf("%s %c", nodeType, 'A'+i),
			Weight:     w,
			Status:     models.StatusActive,
		}
	}
	return out
}

func TestDominantPoolRaisesMiningThreshold(t *testing.T) {
	m := NewMonitor(staticNodes{nodes: population(models.MiningPool, 0.4, 0.3, 0.3)})

	metrics, err := m.MiningConsolidation(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 40.0, metrics.TopPoolPercent, 1e-9)
	require.InDelta(t, 100.0, metrics.Top3Percent, 1e-9)
	require.Equal(t, "mining_pool A", metrics.TopPoolName)
	require.Equal(t, 3, metrics.TotalPools)

	mining, economic, err := m.AdaptThresholds(context.Background(), 30, 40)
	require.NoError(t, err)
	require.InDelta(t, 45.0, mining, 1e-9)
	require.InDelta(t, 40.0, economic, 1e-9)
}

func TestMiningMultipliers(t *testing.T) {
	cases := []struct {
		name    string
		weights []float64
		want    float64
	}{
		{"top pool above 20%", []float64{0.25, 0.15, 0.15, 0.15, 0.15, 0.15}, 37.5},
		{"top three above 50%", []float64{0.19, 0.19, 0.19, 0.13, 0.10, 0.10, 0.10}, 34.5},
		{"decentralized", population20(), 30},
		{"no pools", nil, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := Measure(population(models.MiningPool, tc.weights...))
			mining, _ := rep.Scale(30, 40)
			require.InDelta(t, tc.want, mining, 1e-9)
		})
	}
}

func population20() []float64 {
	w := make([]float64, 20)
	for i := range w {
		w[i] = 0.05
	}
	return w
}

func TestEconomicMultipliers(t *testing.T) {
	rep := Measure(population(models.Exchange, 0.5, 0.2, 0.1, 0.1, 0.1))
	_, economic := rep.Scale(30, 40)
	require.InDelta(t, 48.0, economic, 1e-9)
	require.Equal(t, []string{"exchange A", "exchange B", "exchange C"}, rep.Economic.Top3Names)

	rep = Measure(population(models.Custodian, 0.2, 0.2, 0.15, 0.15, 0.15, 0.15))
	_, economic = rep.Scale(30, 40)
	require.InDelta(t, 44.0, economic, 1e-9)

	rep = Measure(population(models.MajorHolder, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1))
	_, economic = rep.Scale(30, 40)
	require.InDelta(t, 40.0, economic, 1e-9)
}

func TestMeasureSplitsPopulationsAndSkipsInactive(t *testing.T) {
	nodes := append(population(models.MiningPool, 0.5), population(models.Exchange, 0.9, 0.1)...)
	suspended := population(models.MiningPool, 0.9)[0]
	suspended.Status = models.StatusSuspended
	nodes = append(nodes, suspended)

	rep := Measure(nodes)
	require.Equal(t, 1, rep.Mining.TotalPools)
	require.InDelta(t, 100.0, rep.Mining.TopPoolPercent, 1e-9)
	require.Equal(t, 2, rep.Economic.TotalNodes)
	require.InDelta(t, 90.0, rep.Economic.Nodes[0].Percent, 1e-9)
}

func TestSourceErrorPropagates(t *testing.T) {
	boom := errors.New("store down")
	m := NewMonitor(staticNodes{err: boom})
	_, _, err := m.AdaptThresholds(context.Background(), 30, 40)
	require.ErrorIs(t, err, boom)
}
