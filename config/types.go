package config

import "time"

// Curve configures the bonding curve. Prices are human decimal strings in
// foreign per native; shares are PPM.
type Curve struct {
	PriceInitial  string `toml:"PriceInitial" yaml:"priceInitial"`
	Slope         string `toml:"Slope" yaml:"slope"`
	UserPPM       uint64 `toml:"UserPPM" yaml:"userPpm"`
	TreasuryPPM   uint64 `toml:"TreasuryPPM" yaml:"treasuryPpm"`
	InitialSupply string `toml:"InitialSupply" yaml:"initialSupply"`
}

// Pool configures the constant-product market.
type Pool struct {
	FeePPM uint64 `toml:"FeePPM" yaml:"feePpm"`
}

// Bucket names one treasury LP bucket and its share.
type Bucket struct {
	ID        string `toml:"ID" yaml:"id"`
	WeightPPM uint64 `toml:"WeightPPM" yaml:"weightPpm"`
}

// Treasury configures the liquidity allocator.
type Treasury struct {
	Buckets    []Bucket `toml:"Buckets" yaml:"buckets"`
	MinZapSwap string   `toml:"MinZapSwap" yaml:"minZapSwap"`
}

// Fees configures the fee manager.
type Fees struct {
	MinSwapForeign       string `toml:"MinSwapForeign" yaml:"minSwapForeign"`
	SlippageTolerancePPM uint64 `toml:"SlippageTolerancePPM" yaml:"slippageTolerancePpm"`
}

// Router configures trade routing.
type Router struct {
	FeePPM            uint64 `toml:"FeePPM" yaml:"feePpm"`
	MinSwapForeign    string `toml:"MinSwapForeign" yaml:"minSwapForeign"`
	MinSwapNative     string `toml:"MinSwapNative" yaml:"minSwapNative"`
	MinInitialForeign string `toml:"MinInitialForeign" yaml:"minInitialForeign"`
}

// Scheduler bounds deferred work per cycle.
type Scheduler struct {
	Budget uint64 `toml:"Budget" yaml:"budget"`
}

// Auth configures bearer authentication for admin routes.
type Auth struct {
	Enabled    bool          `toml:"Enabled" yaml:"enabled"`
	HMACSecret string        `toml:"HMACSecret" yaml:"hmacSecret"`
	Issuer     string        `toml:"Issuer" yaml:"issuer"`
	Audience   string        `toml:"Audience" yaml:"audience"`
	ScopeClaim string        `toml:"ScopeClaim" yaml:"scopeClaim"`
	ClockSkew  time.Duration `toml:"ClockSkew" yaml:"clockSkew"`
	// Operators lists the token subjects allowed to unwind treasury buckets.
	// Empty allows any subject holding the admin scope.
	Operators  []string      `toml:"Operators" yaml:"operators"`
}

// RateLimit throttles each client.
type RateLimit struct {
	RatePerSecond float64 `toml:"RatePerSecond" yaml:"ratePerSecond"`
	Burst         int     `toml:"Burst" yaml:"burst"`
}

// Observability configures logs, metrics and traces.
type Observability struct {
	ServiceName  string `toml:"ServiceName" yaml:"serviceName"`
	Environment  string `toml:"Environment" yaml:"environment"`
	LogFile      string `toml:"LogFile" yaml:"logFile"`
	// Metrics registers the Prometheus engine collectors.
	Metrics      bool   `toml:"Metrics" yaml:"metrics"`
	// Tracing exports traces and OTel metrics to OTLPEndpoint.
	Tracing      bool   `toml:"Tracing" yaml:"tracing"`
	OTLPEndpoint string `toml:"OTLPEndpoint" yaml:"otlpEndpoint"`
	OTLPInsecure bool   `toml:"OTLPInsecure" yaml:"otlpInsecure"`
}

// Service configures the host daemon.
type Service struct {
	ListenAddress   string        `toml:"ListenAddress" yaml:"listen"`
	DataDir         string        `toml:"DataDir" yaml:"dataDir"`
	// JournalDSN overrides the SQLite journal under DataDir. postgres://
	// URLs select Postgres.
	JournalDSN      string        `toml:"JournalDSN" yaml:"journalDsn"`
	SnapshotHistory uint64        `toml:"SnapshotHistory" yaml:"snapshotHistory"`
	AllowedOrigins  []string      `toml:"AllowedOrigins" yaml:"allowedOrigins"`
	// IdempotencyTTL is how long replayable responses are retained.
	IdempotencyTTL  time.Duration `toml:"IdempotencyTTL" yaml:"idempotencyTtl"`
	ReadTimeout     time.Duration `toml:"ReadTimeout" yaml:"readTimeout"`
	WriteTimeout    time.Duration `toml:"WriteTimeout" yaml:"writeTimeout"`
	Auth            Auth          `toml:"Auth" yaml:"auth"`
	RateLimit       RateLimit     `toml:"RateLimit" yaml:"rateLimit"`
	Observability   Observability `toml:"Observability" yaml:"observability"`
}
