package registry

import (
	"math"

	"go.uber.org/zap"

	"commons-governance/errs"
	"commons-governance/logger"
	"commons-governance/models"
	"commons-governance/pricing"
)

// WeightCalculator turns qualification evidence into a weight in [0,1].
type WeightCalculator struct {
	Thresholds Thresholds
	Price      pricing.Source
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

// CalculateWeight computes the weight for nodeType from its evidence. Missing
// evidence is an error; a weight is never defaulted.
func (w WeightCalculator) CalculateWeight(nodeType models.NodeType, ev models.QualificationEvidence) (float64, error) {
	const op = "registry.CalculateWeight"
	t := w.Thresholds

	switch nodeType {
	case models.MiningPool:
		if ev.Hashpower == nil {
			return 0, errs.New(errs.Validation, op, "hashpower evidence required")
		}
		return clamp01(ev.Hashpower.Percentage / 100), nil
	case models.Exchange:
		if ev.Holdings == nil || ev.Volume == nil {
			return 0, errs.New(errs.Validation, op, "holdings and volume evidence required")
		}
		holdings := clamp01(ev.Holdings.TotalBTC / t.ExchangeHoldingsBTC)
		volume := clamp01(ev.Volume.DailyVolumeUSD / t.ExchangeDailyVolumeUSD)
		return 0.7*holdings + 0.3*volume, nil
	case models.Custodian:
		if ev.Holdings == nil {
			return 0, errs.New(errs.Validation, op, "holdings evidence required")
		}
		return clamp01(ev.Holdings.TotalBTC / t.CustodianHoldingsBTC), nil
	case models.PaymentProcessor:
		if ev.Volume == nil {
			return 0, errs.New(errs.Validation, op, "volume evidence required")
		}
		return clamp01(ev.Volume.MonthlyVolumeUSD / t.PaymentProcessorMonthlyUSD), nil
	case models.MajorHolder:
		if ev.Holdings == nil {
			return 0, errs.New(errs.Validation, op, "holdings evidence required")
		}
		return clamp01(ev.Holdings.TotalBTC / t.MajorHolderHoldingsBTC), nil
	case models.CommonsContributor:
		if ev.Commons == nil {
			return 0, errs.New(errs.Validation, op, "commons evidence required")
		}
		return w.commonsWeight(op, ev.Commons)
	default:
		return 0, errs.New(errs.Validation, op, "unknown node type %q", nodeType)
	}
}

// commonsWeight is sqrt(total BTC / normalization), floored at the minimum
// weight and capped at 1. USD channels convert through the price source.
func (w WeightCalculator) commonsWeight(op string, proof *models.CommonsProof) (float64, error) {
	c := w.Thresholds.Commons
	var totalBTC float64
	for _, ch := range models.Channels {
		contrib, ok := proof.Contributions[ch]
		if !ok || contrib.Amount <= 0 {
			continue
		}
		if !ch.USDDenominated() {
			totalBTC += contrib.Amount
			continue
		}
		src := w.Price
		if src == nil {
			src = pricing.Static(pricing.DefaultPriceUSD)
		}
		btc, err := pricing.USDToBTC(src, contrib.Amount)
		if err != nil {
			return 0, errs.Wrap(errs.Validation, op, err, "convert %s", ch)
		}
		logger.Logger.Debug("Converted USD contribution",
			zap.String("channel", string(ch)),
			zap.Float64("usd", contrib.Amount),
			zap.Float64("btc", btc))
		totalBTC += btc
	}

	norm := c.NormalizationFactor
	if norm <= 0 {
		norm = 1
	}
	weight := math.Sqrt(totalBTC / norm)
	if weight < c.MinimumWeight {
		weight = c.MinimumWeight
	}
	return math.Min(weight, 1), nil
}
