package registry

import (
	"fmt"
	"strings"

	"commons-governance/errs"
	"commons-governance/models"
)

// shortfall describes one unmet qualification metric.
type shortfall struct {
	metric   string
	required float64
	actual   float64
}

func (s shortfall) String() string {
	return fmt.Sprintf("%s %.4f below required %.4f (short by %.4f)", s.metric, s.actual, s.required, s.required-s.actual)
}

func below(metric string, actual, required float64) []shortfall {
	if actual >= required {
		return nil
	}
	return []shortfall{{metric: metric, required: required, actual: actual}}
}

// CheckQualification returns a Qualification error naming every metric that
// falls short, or a Validation error if the evidence for the type is missing.
func (t Thresholds) CheckQualification(nodeType models.NodeType, ev models.QualificationEvidence) error {
	const op = "registry.CheckQualification"
	var short []shortfall

	switch nodeType {
	case models.MiningPool:
		if ev.Hashpower == nil {
			return errs.New(errs.Validation, op, "mining_pool requires hashpower evidence")
		}
		short = below("hashpower_percent", ev.Hashpower.Percentage, t.MiningHashpowerPercent)
	case models.Exchange:
		if ev.Holdings == nil || ev.Volume == nil {
			return errs.New(errs.Validation, op, "exchange requires holdings and volume evidence")
		}
		short = append(below("holdings_btc", ev.Holdings.TotalBTC, t.ExchangeHoldingsBTC),
			below("daily_volume_usd", ev.Volume.DailyVolumeUSD, t.ExchangeDailyVolumeUSD)...)
	case models.Custodian:
		if ev.Holdings == nil {
			return errs.New(errs.Validation, op, "custodian requires holdings evidence")
		}
		short = below("holdings_btc", ev.Holdings.TotalBTC, t.CustodianHoldingsBTC)
	case models.PaymentProcessor:
		if ev.Volume == nil {
			return errs.New(errs.Validation, op, "payment_processor requires volume evidence")
		}
		short = below("monthly_volume_usd", ev.Volume.MonthlyVolumeUSD, t.PaymentProcessorMonthlyUSD)
	case models.MajorHolder:
		if ev.Holdings == nil {
			return errs.New(errs.Validation, op, "major_holder requires holdings evidence")
		}
		short = below("holdings_btc", ev.Holdings.TotalBTC, t.MajorHolderHoldingsBTC)
	case models.CommonsContributor:
		if ev.Commons == nil || len(ev.Commons.Contributions) == 0 {
			return errs.New(errs.Validation, op, "commons_contributor requires contribution evidence")
		}
		return t.Commons.check(op, ev.Commons)
	default:
		return errs.New(errs.Validation, op, "unknown node type %q", nodeType)
	}

	if len(short) == 0 {
		return nil
	}
	parts := make([]string, len(short))
	for i, s := range short {
		parts[i] = s.String()
	}
	return errs.New(errs.Qualification, op, "%s: %s", nodeType, strings.Join(parts, "; "))
}

// check applies the per-channel minimums and combines them by Logic. A channel
// qualifies when its amount reaches the minimum over at least the measurement
// period.
func (c CommonsThresholds) check(op string, proof *models.CommonsProof) error {
	var passed, evaluated int
	var reasons []string
	for _, ch := range models.Channels {
		cfg, ok := c.Channels[ch]
		if !ok || !cfg.Enabled {
			continue
		}
		evaluated++
		contrib, ok := proof.Contributions[ch]
		switch {
		case !ok:
			reasons = append(reasons, fmt.Sprintf("%s: no contribution", ch))
		case contrib.Amount < cfg.Minimum:
			reasons = append(reasons, shortfall{metric: string(ch), required: cfg.Minimum, actual: contrib.Amount}.String())
		case contrib.PeriodDays < c.MeasurementPeriodDays:
			reasons = append(reasons, fmt.Sprintf("%s: period %d days below required %d", ch, contrib.PeriodDays, c.MeasurementPeriodDays))
		default:
			passed++
		}
	}

	if evaluated == 0 {
		return errs.New(errs.Qualification, op, "commons_contributor: no contribution channel is enabled")
	}
	if c.Logic == LogicAND && passed == evaluated {
		return nil
	}
	if c.Logic != LogicAND && passed > 0 {
		return nil
	}
	return errs.New(errs.Qualification, op, "commons_contributor (%s): %s", c.Logic, strings.Join(reasons, "; "))
}

// VerifyQualification reports whether the evidence meets the thresholds for nodeType.
func (t Thresholds) VerifyQualification(nodeType models.NodeType, ev models.QualificationEvidence) bool {
	return t.CheckQualification(nodeType, ev) == nil
}
