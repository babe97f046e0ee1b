package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"gravitywell/core"
	coreerrors "gravitywell/core/errors"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/router"
	"gravitywell/native/treasury"
)

// Validate checks every engine parameter. Misconfiguration is fatal.
func (cfg Config) Validate() error {
	if _, err := cfg.EngineConfig(); err != nil {
		return err
	}
	if cfg.Service.Auth.Enabled && strings.TrimSpace(cfg.Service.Auth.HMACSecret) == "" && cfg.Service.Observability.Environment != "dev" {
		return fmt.Errorf("service.auth: hmacSecret required outside dev: %w", coreerrors.ErrValidation)
	}
	if cfg.Service.RateLimit.RatePerSecond < 0 || cfg.Service.RateLimit.Burst < 0 {
		return fmt.Errorf("service.rateLimit: negative limit: %w", coreerrors.ErrValidation)
	}
	return nil
}

// EngineConfig converts the human-unit parameters into the engine's scaled
// integers and validates them.
func (cfg Config) EngineConfig() (core.Config, error) {
	p := amounts{}
	out := core.Config{
		Curve: curve.Params{
			PriceInitial: p.parse("curve.priceInitial", cfg.Curve.PriceInitial),
			Slope:        p.parse("curve.slope", cfg.Curve.Slope),
			UserPPM:      cfg.Curve.UserPPM,
			TreasuryPPM:  cfg.Curve.TreasuryPPM,
		},
		InitialSupply: p.parse("curve.initialSupply", cfg.Curve.InitialSupply),
		PoolFeePPM:    cfg.Pool.FeePPM,
		Treasury: treasury.Config{
			MinZapSwap: p.parse("treasury.minZapSwap", cfg.Treasury.MinZapSwap),
		},
		Fees: fees.Config{
			MinSwapForeign:       p.parse("fees.minSwapForeign", cfg.Fees.MinSwapForeign),
			SlippageTolerancePPM: cfg.Fees.SlippageTolerancePPM,
		},
		Router: router.Config{
			FeePPM:            cfg.Router.FeePPM,
			MinSwapForeign:    p.parse("router.minSwapForeign", cfg.Router.MinSwapForeign),
			MinSwapNative:     p.parse("router.minSwapNative", cfg.Router.MinSwapNative),
			MinInitialForeign: p.parse("router.minInitialForeign", cfg.Router.MinInitialForeign),
		},
		RetryBudget: cfg.Scheduler.Budget,
	}
	if p.err != nil {
		return core.Config{}, p.err
	}
	for _, b := range cfg.Treasury.Buckets {
		out.Treasury.Buckets = append(out.Treasury.Buckets, treasury.BucketConfig{ID: b.ID, WeightPPM: b.WeightPPM})
	}
	if err := out.Curve.Validate(); err != nil {
		return core.Config{}, fmt.Errorf("curve: %w", err)
	}
	if cfg.Pool.FeePPM >= fp.PPM {
		return core.Config{}, fmt.Errorf("pool.feePpm must be below %d: %w", fp.PPM, coreerrors.ErrValidation)
	}
	if err := out.Treasury.Validate(); err != nil {
		return core.Config{}, err
	}
	if err := out.Router.Validate(); err != nil {
		return core.Config{}, err
	}
	if cfg.Fees.SlippageTolerancePPM > fp.PPM {
		return core.Config{}, fmt.Errorf("fees.slippageTolerancePpm above %d: %w", fp.PPM, coreerrors.ErrValidation)
	}
	return out, nil
}

// amounts keeps the first parse error so every field can be parsed inline.
type amounts struct{ err error }

func (a *amounts) parse(field, raw string) *uint256.Int {
	if a.err != nil {
		return fp.Zero()
	}
	v, err := ParseAmount(raw)
	if err != nil {
		a.err = fmt.Errorf("%s: %w", field, err)
		return fp.Zero()
	}
	return v
}
