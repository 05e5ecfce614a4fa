package registry

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"commons-governance/errs"
	"commons-governance/models"
)

// Thresholds are the minimum qualification metrics per node type.
type Thresholds struct {
	MiningHashpowerPercent     float64
	ExchangeHoldingsBTC        float64
	ExchangeDailyVolumeUSD     float64
	CustodianHoldingsBTC       float64
	PaymentProcessorMonthlyUSD float64
	MajorHolderHoldingsBTC     float64
	Commons                    CommonsThresholds
}

// QualificationLogic combines per-channel commons qualifications.
type QualificationLogic string

const (
	LogicOR  QualificationLogic = "OR"
	LogicAND QualificationLogic = "AND"
)

// ChannelThreshold configures one commons contribution channel. Minimum is in
// BTC for BTC channels and USD for USD channels.
type ChannelThreshold struct {
	Enabled bool    `yaml:"enabled"`
	Minimum float64 `yaml:"minimum"`
}

// CommonsThresholds are the maintainer-configurable commons contributor rules.
type CommonsThresholds struct {
	MeasurementPeriodDays uint32                                          `yaml:"measurement_period_days"`
	Logic                 QualificationLogic                              `yaml:"qualification_logic"`
	Channels              map[models.ContributionChannel]ChannelThreshold `yaml:"channels"`
	NormalizationFactor   float64                                         `yaml:"normalization_factor"`
	MinimumWeight         float64                                         `yaml:"minimum_weight"`
}

// DefaultThresholds returns the documented defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MiningHashpowerPercent:     1.0,
		ExchangeHoldingsBTC:        10_000,
		ExchangeDailyVolumeUSD:     100_000_000,
		CustodianHoldingsBTC:       10_000,
		PaymentProcessorMonthlyUSD: 50_000_000,
		MajorHolderHoldingsBTC:     5_000,
		Commons:                    DefaultCommonsThresholds(),
	}
}

func DefaultCommonsThresholds() CommonsThresholds {
	return CommonsThresholds{
		MeasurementPeriodDays: 90,
		Logic:                 LogicOR,
		Channels: map[models.ContributionChannel]ChannelThreshold{
			models.ChannelMergeMining:   {Enabled: true, Minimum: 0.01},
			models.ChannelFeeForwarding: {Enabled: true, Minimum: 0.1},
			models.ChannelZaps:          {Enabled: true, Minimum: 0.01},
			models.ChannelMarketplace:   {Enabled: true, Minimum: 0.01},
			models.ChannelTreasurySales: {Enabled: false, Minimum: 500},
			models.ChannelServiceSales:  {Enabled: false, Minimum: 500},
		},
		NormalizationFactor: 1.0,
		MinimumWeight:       0.01,
	}
}

type commonsFile struct {
	Commons CommonsThresholds `yaml:"commons_contributor_thresholds"`
}

// LoadCommonsThresholds reads commons contributor thresholds from a YAML
// file. Keys missing from the file keep their defaults.
func LoadCommonsThresholds(path string) (CommonsThresholds, error) {
	const op = "registry.LoadCommonsThresholds"
	data, err := os.ReadFile(path)
	if err != nil {
		return CommonsThresholds{}, errs.Wrap(errs.Storage, op, err, "read %s", path)
	}
	file := commonsFile{Commons: DefaultCommonsThresholds()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return CommonsThresholds{}, errs.Wrap(errs.Validation, op, err, "parse %s", path)
	}
	c := file.Commons
	c.Logic = QualificationLogic(strings.ToUpper(string(c.Logic)))
	if err := c.Validate(); err != nil {
		return CommonsThresholds{}, err
	}
	return c, nil
}

// Validate rejects configurations that would make weights undefined.
func (c CommonsThresholds) Validate() error {
	const op = "registry.CommonsThresholds"
	if c.Logic != LogicOR && c.Logic != LogicAND {
		return errs.New(errs.Validation, op, "qualification_logic must be OR or AND, got %q", c.Logic)
	}
	if !(c.NormalizationFactor > 0) {
		return errs.New(errs.Validation, op, "normalization_factor must be positive, got %v", c.NormalizationFactor)
	}
	if c.MinimumWeight < 0 || c.MinimumWeight > 1 {
		return errs.New(errs.Validation, op, "minimum_weight must be in [0,1], got %v", c.MinimumWeight)
	}
	for ch := range c.Channels {
		if !knownChannel(ch) {
			return errs.New(errs.Validation, op, "unknown channel %q", ch)
		}
	}
	return nil
}

func knownChannel(ch models.ContributionChannel) bool {
	for _, c := range models.Channels {
		if c == ch {
			return true
		}
	}
	return false
}
