// Package config loads the engine and service parameters from TOML or YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gravitywell/native/fees"
	"gravitywell/native/scheduler"
)

// Config is the full daemon configuration. Engine parameters are immutable
// once the engine is built.
type Config struct {
	Curve     Curve     `toml:"curve" yaml:"curve"`
	Pool      Pool      `toml:"pool" yaml:"pool"`
	Treasury  Treasury  `toml:"treasury" yaml:"treasury"`
	Fees      Fees      `toml:"fees" yaml:"fees"`
	Router    Router    `toml:"router" yaml:"router"`
	Scheduler Scheduler `toml:"scheduler" yaml:"scheduler"`
	Service   Service   `toml:"service" yaml:"service"`
}

// Default returns a configuration that passes Validate.
func Default() Config {
	return Config{
		Curve: Curve{
			PriceInitial:  "0.001",
			Slope:         "0.001",
			UserPPM:       333_333,
			TreasuryPPM:   666_667,
			InitialSupply: "0",
		},
		Pool: Pool{FeePPM: 3_000},
		Treasury: Treasury{
			Buckets: []Bucket{
				{ID: "floor", WeightPPM: 700_000},
				{ID: "growth", WeightPPM: 200_000},
				{ID: "reserve", WeightPPM: 100_000},
			},
			MinZapSwap: "1",
		},
		Fees: Fees{
			MinSwapForeign:       "1",
			SlippageTolerancePPM: fees.DefaultSlippageTolerancePPM,
		},
		Router: Router{
			FeePPM:            5_000,
			MinSwapForeign:    "1",
			MinSwapNative:     "1",
			MinInitialForeign: "10",
		},
		Scheduler: Scheduler{Budget: scheduler.DefaultBudget},
		Service: Service{
			ListenAddress:   ":8090",
			DataDir:         "./tokenomics-data",
			SnapshotHistory: 64,
			IdempotencyTTL:  24 * time.Hour,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			Auth: Auth{
				Enabled:    true,
				ScopeClaim: "scope",
				ClockSkew:  2 * time.Minute,
			},
			RateLimit: RateLimit{RatePerSecond: 20, Burst: 40},
			Observability: Observability{
				ServiceName: "tokenomicsd",
				Environment: "dev",
				Metrics:     true,
			},
		},
	}
}

// Load reads path, decoding YAML for .yaml/.yml files and TOML otherwise,
// over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	// Bucket lists replace the defaults rather than merging into them.
	cfg.Treasury.Buckets = nil
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("decode config: unknown key %s", undecoded[0])
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	def := Default()
	if len(cfg.Treasury.Buckets) == 0 {
		cfg.Treasury.Buckets = def.Treasury.Buckets
	}
	if cfg.Scheduler.Budget == 0 {
		cfg.Scheduler.Budget = def.Scheduler.Budget
	}
	if cfg.Fees.SlippageTolerancePPM == 0 {
		cfg.Fees.SlippageTolerancePPM = def.Fees.SlippageTolerancePPM
	}
	if cfg.Service.Auth.ScopeClaim == "" {
		cfg.Service.Auth.ScopeClaim = def.Service.Auth.ScopeClaim
	}
	if cfg.Service.Auth.ClockSkew <= 0 {
		cfg.Service.Auth.ClockSkew = def.Service.Auth.ClockSkew
	}
	if cfg.Service.IdempotencyTTL <= 0 {
		cfg.Service.IdempotencyTTL = def.Service.IdempotencyTTL
	}
	if strings.TrimSpace(cfg.Service.Observability.ServiceName) == "" {
		cfg.Service.Observability.ServiceName = def.Service.Observability.ServiceName
	}
}
