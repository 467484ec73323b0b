package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const gaugeQueryTimeout = 2 * time.Second

// RowCounter reports the stored readings count.
type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

func registerStorageMetrics(counter RowCounter) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "readings_stored",
			Help: "Readings currently stored",
		},
		func() float64 {
			return queryCount(counter)
		},
	))
}

func queryCount(counter RowCounter) float64 {
	if counter == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), gaugeQueryTimeout)
	defer cancel()
	count, err := counter.Count(ctx)
	if err != nil {
		slog.Warn("metrics query failed", "error", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
