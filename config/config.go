// Package config loads service settings from config/config.yaml and
// GOVERNANCE_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	LevelDB  LevelDBConfig
	Veto     VetoConfig
	Phase    PhaseConfig
	Registry RegistryConfig
	Pricing  PricingConfig
	Sweep    SweepConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type LogConfig struct {
	AppLogFile string
	Level      string
}

type LevelDBConfig struct {
	Path string
}

type VetoConfig struct {
	PercentageMode string
	PhaseAdaptive  bool
	ParamTimeout   time.Duration
}

type PhaseConfig struct {
	BlockHeight uint64
}

type RegistryConfig struct {
	CommonsThresholdsFile string
}

type PricingConfig struct {
	WindowDays int
	DefaultUSD float64
}

type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("leveldb.path", "data/governance")
	v.SetDefault("veto.percentage_mode", "snapshot")
	v.SetDefault("veto.phase_adaptive", false)
	v.SetDefault("veto.param_timeout", "2s")
	v.SetDefault("phase.block_height", 0)
	v.SetDefault("registry.commons_thresholds_file", "")
	v.SetDefault("pricing.window_days", 30)
	v.SetDefault("pricing.default_usd", 50000.0)
	v.SetDefault("sweep.interval", "10m")
	v.SetDefault("sweep.concurrency", 4)
}

// Load reads path on top of the defaults. A missing file is an error only
// when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GOVERNANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Log: LogConfig{
			AppLogFile: v.GetString("log.app_log_file"),
			Level:      v.GetString("log.level"),
		},
		LevelDB: LevelDBConfig{Path: v.GetString("leveldb.path")},
		Veto: VetoConfig{
			PercentageMode: strings.ToLower(v.GetString("veto.percentage_mode")),
			PhaseAdaptive:  v.GetBool("veto.phase_adaptive"),
			ParamTimeout:   v.GetDuration("veto.param_timeout"),
		},
		Phase:    PhaseConfig{BlockHeight: v.GetUint64("phase.block_height")},
		Registry: RegistryConfig{CommonsThresholdsFile: v.GetString("registry.commons_thresholds_file")},
		Pricing: PricingConfig{
			WindowDays: v.GetInt("pricing.window_days"),
			DefaultUSD: v.GetFloat64("pricing.default_usd"),
		},
		Sweep: SweepConfig{
			Interval:    v.GetDuration("sweep.interval"),
			Concurrency: v.GetInt("sweep.concurrency"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Veto.PercentageMode {
	case "snapshot", "live":
	default:
		return errors.Errorf("veto.percentage_mode must be snapshot or live, got %q", c.Veto.PercentageMode)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Pricing.DefaultUSD <= 0 {
		return errors.Errorf("pricing.default_usd must be positive, got %v", c.Pricing.DefaultUSD)
	}
	if c.Pricing.WindowDays <= 0 {
		return errors.Errorf("pricing.window_days must be positive, got %d", c.Pricing.WindowDays)
	}
	return nil
}
