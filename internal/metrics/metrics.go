package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/campusmarket/backend/internal/media"
)

// UploadObserver exports upload batch metrics to Prometheus.
type UploadObserver struct {
	batches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	assets   *prometheus.CounterVec
	bytesIn  *prometheus.CounterVec
	bytesOut *prometheus.CounterVec
}

// NewUploadObserver registers the upload metrics on reg (the default
// registerer when nil). Re-registering reuses the existing collectors.
func NewUploadObserver(namespace string, reg prometheus.Registerer) (*UploadObserver, error) {
	if namespace == "" {
		namespace = "marketplace"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &UploadObserver{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "batches_total",
			Help:      "Upload batches by category, final state and failure kind.",
		}, []string{"category", "state", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "batch_duration_seconds",
			Help:      "Time from admission to commit or rollback.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category", "state"}),
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "committed_assets_total",
			Help:      "Assets persisted by committed batches.",
		}, []string{"category"}),
		bytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "received_bytes_total",
			Help:      "Payload bytes received by committed batches.",
		}, []string{"category"}),
		bytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "stored_bytes_total",
			Help:      "Bytes written to disk by committed batches after recompression.",
		}, []string{"category"}),
	}

	if err := register(reg, &o.batches); err != nil {
		return nil, err
	}
	if err := register(reg, &o.duration); err != nil {
		return nil, err
	}
	for _, c := range []**prometheus.CounterVec{&o.assets, &o.bytesIn, &o.bytesOut} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// register swaps *c for the already registered collector when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				*c = existing
				return nil
			}
		}
		return fmt.Errorf("register upload metric: %w", err)
	}
	return nil
}

func (o *UploadObserver) ObserveBatch(r media.BatchReport) {
	if o == nil {
		return
	}
	cat := string(r.Category)
	o.batches.WithLabelValues(cat, string(r.State), string(r.Kind)).Inc()
	o.duration.WithLabelValues(cat, string(r.State)).Observe(r.Duration.Seconds())
	if r.State != media.StateCommitted {
		return
	}
	o.assets.WithLabelValues(cat).Add(float64(r.Assets))
	o.bytesIn.WithLabelValues(cat).Add(float64(r.BytesIn))
	o.bytesOut.WithLabelValues(cat).Add(float64(r.BytesOut))
}
