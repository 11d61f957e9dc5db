// Package metrics exposes Prometheus collectors for the face service.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/face-service/internal/face"
)

const namespace = "face_service"

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route and status code.",
}, []string{"route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "operations_total",
	Help:      "Extract and compare outcomes; result is ok, match, no_match or an error kind.",
}, []string{"operation", "result"})

var CompareDistance = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "compare_distance",
	Help:      "Euclidean distance of successful comparisons.",
	Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.5},
})

var BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "backend",
	Name:      "duration_seconds",
	Help:      "Face backend latency by stage.",
	Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"stage"})

var PoolInUse = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "pool_in_use",
	Help:      "Model instances currently borrowed from the pool.",
})

// instrumentedBackend times every backend call.
type instrumentedBackend struct {
	face.Backend
}

// InstrumentBackend wraps b so locate and encode latencies are observed.
func InstrumentBackend(b face.Backend) face.Backend {
	return &instrumentedBackend{Backend: b}
}

func (b *instrumentedBackend) Locate(ctx context.Context, img *face.Image) ([]face.Region, error) {
	defer observeSince("locate", time.Now())
	return b.Backend.Locate(ctx, img)
}

func (b *instrumentedBackend) Encode(ctx context.Context, img *face.Image, regions []face.Region) ([]face.Embedding, error) {
	defer observeSince("encode", time.Now())
	return b.Backend.Encode(ctx, img, regions)
}

func observeSince(stage string, start time.Time) {
	BackendDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
