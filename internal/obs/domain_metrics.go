package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache lookup outcomes recorded by CacheLookupsTotal.
const (
	CacheHitDelivered = "hit_delivered"
	CacheHitFresh     = "hit_fresh"
	CacheStale        = "stale"
	CacheMiss         = "miss"
	CachePoisoned     = "poisoned"
)

var (
	domainOnce sync.Once

	// CacheLookupsTotal counts cache consultations by outcome.
	CacheLookupsTotal *prometheus.CounterVec
	// CacheSavesTotal counts cache persistence attempts by result.
	CacheSavesTotal *prometheus.CounterVec
	// FetchTotal counts outbound carrier fetches by carrier and result.
	FetchTotal *prometheus.CounterVec
	// FetchRetriesTotal counts fetches retried with the postcode cleared.
	FetchRetriesTotal *prometheus.CounterVec
	// DispatchTotal counts per-URL dispatch outcomes by carrier and result.
	DispatchTotal *prometheus.CounterVec
	// BatchDuration records wall time per tracking batch in milliseconds.
	BatchDuration prometheus.Histogram
	// OutboundRequestsTotal counts outbound HTTP requests by host and status.
	OutboundRequestsTotal *prometheus.CounterVec
	// OutboundDuration records outbound HTTP latency per host in milliseconds.
	OutboundDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of tracking cache consultations by outcome.",
		}, []string{"outcome"})
		CacheSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_saves_total",
			Help:      "Count of cache persistence attempts by result.",
		}, []string{"result"})
		FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Count of carrier fetch attempts by carrier and result.",
		}, []string{"carrier", "result"})
		FetchRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Count of fetches retried without the default postcode.",
		}, []string{"carrier"})
		DispatchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Count of per-URL dispatch outcomes by carrier and result.",
		}, []string{"carrier", "result"})
		BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_ms",
			Help:      "Wall time per tracking batch in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		})
		OutboundRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_requests_total",
			Help:      "Count of outbound HTTP requests by host and status.",
		}, []string{"host", "status"})
		OutboundDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_request_duration_ms",
			Help:      "Latency of outbound HTTP requests per host in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"host"})

		mustRegisterCollector(reg, CacheLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CacheLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, CacheSavesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CacheSavesTotal = v
			}
		})
		mustRegisterCollector(reg, FetchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FetchTotal = v
			}
		})
		mustRegisterCollector(reg, FetchRetriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FetchRetriesTotal = v
			}
		})
		mustRegisterCollector(reg, DispatchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DispatchTotal = v
			}
		})
		mustRegisterCollector(reg, BatchDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				BatchDuration = v
			}
		})
		mustRegisterCollector(reg, OutboundRequestsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OutboundRequestsTotal = v
			}
		})
		mustRegisterCollector(reg, OutboundDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				OutboundDuration = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
