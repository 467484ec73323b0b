package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "thermo_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestErrors   *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	cacheLookups       *prometheus.CounterVec
	cacheInvalidations prometheus.Counter

	statsTotal   *prometheus.CounterVec
	statsLatency *prometheus.HistogramVec

	exportTotal *prometheus.CounterVec

	alertEventsTotal *prometheus.CounterVec
	streamClients    prometheus.Gauge
)

// Init registers metrics and the storage-backed readings gauge.
func Init(counter RowCounter) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total ingest submissions by transport and result",
			},
			[]string{"transport", "result"},
		)
		ingestErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_errors_total",
				Help: "Total ingest errors by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport", "result"},
		)

		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_lookups_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"outcome"},
		)
		cacheInvalidations = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "cache_invalidations_total",
				Help: "Total cache invalidations",
			},
		)

		statsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "statistics_total",
				Help: "Total statistics computations by result",
			},
			[]string{"result"},
		)
		statsLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statistics_latency_seconds",
				Help:    "Statistics computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total exports by format and result",
			},
			[]string{"format", "result"},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total fired alerts by sensor and direction",
			},
			[]string{"sensor", "operator"},
		)
		streamClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_clients",
				Help: "Connected live stream clients",
			},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestErrors,
			ingestLatency,
			cacheLookups,
			cacheInvalidations,
			statsTotal,
			statsLatency,
			exportTotal,
			alertEventsTotal,
			streamClients,
		)

		if counter != nil {
			registerStorageMetrics(counter)
		}
	})
}

// ObserveIngest records ingest duration and result for a transport.
func ObserveIngest(transport, result string, duration time.Duration) {
	if transport == "" {
		transport = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(transport, result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(transport, result).Observe(duration.Seconds())
	}
}

// IncIngestError increments ingest error counter.
func IncIngestError(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestErrors != nil {
		ingestErrors.WithLabelValues(reason).Inc()
	}
}

// IncCacheHit counts a lookup served from cache.
func IncCacheHit() {
	if cacheLookups != nil {
		cacheLookups.WithLabelValues("hit").Inc()
	}
}

// IncCacheMiss counts a lookup that ran the computation.
func IncCacheMiss() {
	if cacheLookups != nil {
		cacheLookups.WithLabelValues("miss").Inc()
	}
}

// IncCacheInvalidation counts an invalidate-all.
func IncCacheInvalidation() {
	if cacheInvalidations != nil {
		cacheInvalidations.Inc()
	}
}

// ObserveStatistics records statistics latency and result.
func ObserveStatistics(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if statsTotal != nil {
		statsTotal.WithLabelValues(result).Inc()
	}
	if statsLatency != nil {
		statsLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncExport counts an export by format and result.
func IncExport(format, result string) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
}

// IncAlertEvent increments fired alert counter.
func IncAlertEvent(sensor, operator string) {
	if sensor == "" {
		sensor = "unknown"
	}
	if operator == "" {
		operator = "unknown"
	}
	if alertEventsTotal != nil {
		alertEventsTotal.WithLabelValues(sensor, operator).Inc()
	}
}

// AddStreamClients adjusts the connected stream client gauge.
func AddStreamClients(delta int) {
	if streamClients != nil {
		streamClients.Add(float64(delta))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	TransportHTTP   = "http"
	TransportMQTT   = "mqtt"
	TransportLegacy = "legacy"
)
