// Package observability exports Prometheus metrics for the settlement engine
// and its HTTP API.
package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"gravitywell/core/events"
	"gravitywell/core/types"
)

const namespace = "gravitywell"

var (
	tokenomicsOnce     sync.Once
	tokenomicsRegistry *TokenomicsMetrics

	requestMetricsOnce sync.Once
	requestRegistry    *RequestMetrics
)

// TokenomicsMetrics turns engine events and state views into Prometheus
// series. It implements events.Emitter.
type TokenomicsMetrics struct {
	trades        *prometheus.CounterVec
	volume        *prometheus.CounterVec
	feesCollected *prometheus.CounterVec
	supplyChanges *prometheus.CounterVec
	conversions   *prometheus.CounterVec
	zaps          prometheus.Counter
	zapLP         prometheus.Counter
	unwinds       *prometheus.CounterVec
	gauges        *prometheus.GaugeVec
	pending       *prometheus.GaugeVec
}

// Tokenomics returns the process-wide metrics registered with the default
// Prometheus registerer.
func Tokenomics() *TokenomicsMetrics {
	tokenomicsOnce.Do(func() {
		tokenomicsRegistry = NewTokenomicsMetrics(prometheus.DefaultRegisterer)
	})
	return tokenomicsRegistry
}

// NewTokenomicsMetrics builds and registers a metrics set with reg.
func NewTokenomicsMetrics(reg prometheus.Registerer) *TokenomicsMetrics {
	m := &TokenomicsMetrics{
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "trades_total",
			Help:      "Filled trades segmented by direction and route.",
		}, []string{"direction", "route"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "volume_in_tokens_total",
			Help:      "Gross trade input in whole tokens segmented by direction.",
		}, []string{"direction"}),
		feesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "fees_tokens_total",
			Help:      "Router fees in whole tokens segmented by direction.",
		}, []string{"direction"}),
		supplyChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supply",
			Name:      "changes_tokens_total",
			Help:      "Native minted or burned in whole tokens.",
		}, []string{"reason"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "conversions_total",
			Help:      "Foreign fee conversion attempts segmented by status and reason.",
		}, []string{"status", "reason"}),
		zaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "zaps_total",
			Help:      "Treasury liquidity deposits.",
		}),
		zapLP: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "lp_minted_total",
			Help:      "LP minted by treasury deposits, in whole tokens.",
		}),
		unwinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treasury",
			Name:      "unwinds_total",
			Help:      "Bucket unwinds segmented by bucket.",
		}, []string{"bucket"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "tokens",
			Help:      "Engine balances in whole tokens segmented by component.",
		}, []string{"component"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pending",
			Help:      "1 when the named deferred task has outstanding work.",
		}, []string{"task"}),
	}
	if reg != nil {
		reg.MustRegister(m.trades, m.volume, m.feesCollected, m.supplyChanges, m.conversions,
			m.zaps, m.zapLP, m.unwinds, m.gauges, m.pending)
	}
	return m
}

// Emit implements events.Emitter.
func (m *TokenomicsMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch e := evt.(type) {
	case events.TradeExecuted:
		m.trades.WithLabelValues(label(e.Direction), label(e.Route)).Inc()
		m.volume.WithLabelValues(label(e.Direction)).Add(tokens(e.AmountIn))
		m.feesCollected.WithLabelValues(label(e.Direction)).Add(tokens(e.Fee))
	case events.TokenSupply:
		m.supplyChanges.WithLabelValues(label(e.Reason)).Add(tokens(e.Delta))
	case events.FeeConversion:
		m.conversions.WithLabelValues(label(e.Status), label(e.Reason)).Inc()
	case events.ZapDeposited:
		m.zaps.Inc()
		m.zapLP.Add(tokens(e.LPMinted))
	case events.BucketUnwound:
		m.unwinds.WithLabelValues(label(e.Bucket)).Inc()
	}
}

// ObserveState refreshes the balance and pending-work gauges.
func (m *TokenomicsMetrics) ObserveState(view types.StateView, tasks []string) {
	if m == nil {
		return
	}
	set := func(component string, v *uint256.Int) {
		m.gauges.WithLabelValues(component).Set(tokens(v))
	}
	set("supply", view.Supply)
	set("circulating", view.Circulating)
	set("pool_native", view.ReserveNative)
	set("pool_foreign", view.ReserveForeign)
	set("treasury_buffer_native", view.TreasuryNative)
	set("treasury_buffer_foreign", view.TreasuryForeign)
	set("fee_buffer_native", view.FeeNative)
	set("fee_buffer_foreign", view.FeeForeign)
	set("burned", view.TotalNativeBurned)
	set("curve_price", view.CurvePrice)
	set("pool_price", view.PoolPrice)

	outstanding := make(map[string]bool, len(view.Pending))
	for _, name := range view.Pending {
		outstanding[name] = true
	}
	for _, name := range tasks {
		value := 0.0
		if outstanding[name] {
			value = 1
		}
		m.pending.WithLabelValues(name).Set(value)
	}
}

// RequestMetrics records HTTP handler activity.
type RequestMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// Requests returns the lazily registered HTTP metrics.
func Requests() *RequestMetrics {
	requestMetricsOnce.Do(func() {
		requestRegistry = &RequestMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "HTTP errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limiting.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(requestRegistry.requests, requestRegistry.errors,
			requestRegistry.latency, requestRegistry.throttles)
	})
	return requestRegistry
}

// Observe records one handled request. status is the code written to the
// client.
func (m *RequestMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route, method = label(route), label(method)
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request.
func (m *RequestMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason)).Inc()
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

var tokenScale = new(big.Float).SetFloat64(1e12)

// tokens converts a PRECISION-scaled amount to whole tokens for gauges.
// Precision loss is acceptable for monitoring.
func tokens(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Quo(f, tokenScale).Float64()
	return out
}
