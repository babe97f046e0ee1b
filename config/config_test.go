package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	coreerrors "gravitywell/core/errors"
	fp "gravitywell/native/fixedpoint"
)

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.Curve.PriceInitial.Uint64() != 1_000_000_000 {
		t.Fatalf("unexpected initial price %s", engine.Curve.PriceInitial)
	}
	if engine.Router.MinInitialForeign.Cmp(fp.Units(10)) != 0 {
		t.Fatalf("unexpected min initial %s", engine.Router.MinInitialForeign)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "tokenomics.toml", `
[curve]
PriceInitial = "0.002"
Slope = "0"
UserPPM = 500000
TreasuryPPM = 500000

[router]
FeePPM = 10000
MinSwapForeign = "0.5"
MinSwapNative = "0.5"
MinInitialForeign = "5"

[[treasury.Buckets]]
ID = "Floor"
WeightPPM = 600000

[[treasury.Buckets]]
ID = "ops"
WeightPPM = 400000

[service]
ListenAddress = "127.0.0.1:9000"
ReadTimeout = "5s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Treasury.Buckets) != 2 || cfg.Treasury.Buckets[1].ID != "ops" {
		t.Fatalf("buckets not replaced: %+v", cfg.Treasury.Buckets)
	}
	if cfg.Service.ListenAddress != "127.0.0.1:9000" || cfg.Service.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected service section: %+v", cfg.Service)
	}
	if cfg.Scheduler.Budget == 0 || cfg.Fees.SlippageTolerancePPM != 100_000 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Scheduler, cfg.Fees)
	}
	engine, err := cfg.EngineConfig()
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	if engine.Router.MinSwapForeign.Uint64() != 500_000_000_000 {
		t.Fatalf("unexpected min swap %s", engine.Router.MinSwapForeign)
	}
	if !engine.Curve.Slope.IsZero() {
		t.Fatalf("expected zero slope")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "tokenomics.yaml", `
pool:
  feePpm: 2500
treasury:
  buckets:
    - id: floor
      weightPpm: 1000000
service:
  listen: ":7070"
  rateLimit:
    ratePerSecond: 5
    burst: 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pool.FeePPM != 2_500 || len(cfg.Treasury.Buckets) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Service.RateLimit.Burst != 10 || cfg.Service.ListenAddress != ":7070" {
		t.Fatalf("unexpected service: %+v", cfg.Service)
	}
}

func TestLoadRejectsMisconfiguration(t *testing.T) {
	cases := map[string]string{
		"shares": `
[curve]
PriceInitial = "1"
UserPPM = 400000
TreasuryPPM = 400000
`,
		"weights": `
[[treasury.Buckets]]
ID = "a"
WeightPPM = 400000
`,
		"duplicate bucket": `
[[treasury.Buckets]]
ID = "a"
WeightPPM = 500000
[[treasury.Buckets]]
ID = "A"
WeightPPM = 500000
`,
		"fee": `
[router]
FeePPM = 1000000
`,
		"amount precision": `
[router]
MinSwapForeign = "0.0000000000001"
`,
		"unknown key": `
Bogus = 1
`,
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "bad.toml", contents)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		err  error
	}{
		{raw: "", want: "0"},
		{raw: "1", want: "1000000000000"},
		{raw: "0.001", want: "1000000000"},
		{raw: "12.5", want: "12500000000000"},
		{raw: "-1", err: coreerrors.ErrValidation},
		{raw: "abc", err: coreerrors.ErrValidation},
		{raw: "1e-13", err: coreerrors.ErrValidation},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.raw)
		if tc.err != nil {
			if !coreerrors.Is(err, tc.err) {
				t.Fatalf("%q: expected %v, got %v", tc.raw, tc.err, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tc.raw, err)
		}
		if got.Dec() != tc.want {
			t.Fatalf("%q: got %s want %s", tc.raw, got.Dec(), tc.want)
		}
	}
	if FormatAmount(fp.MustParse("12500000000000")) != "12.5" {
		t.Fatalf("unexpected format %s", FormatAmount(fp.MustParse("12500000000000")))
	}
}
