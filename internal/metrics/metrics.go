// Package metrics registers the Prometheus instrumentation for the
// authentication core and exposes the /metrics HTTP endpoint, following the
// MustRegisterNewCounter / MustRegisterNewTimerWithError helper pattern used
// by internal/gateway/metrics.go and internal/backend/mqttpubsub/metrics.go.
package metrics

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AstralVarkon/azure-iot-sdks/internal/config"
)

const namespace = "iothub_cbs_auth"

// Setup starts the Prometheus endpoint if enabled in config.
func Setup(conf config.Config) error {
	if !conf.Metrics.Prometheus.EndpointEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Metrics.Prometheus.Bind, mux); err != nil {
			panic(errors.Wrap(err, "metrics: prometheus endpoint error"))
		}
	}()

	return nil
}

// MustRegisterNewCounter registers a CounterVec under name and returns a
// closure that increments the series identified by labels.
func MustRegisterNewCounter(name, help string, labelNames []string) func(prometheus.Labels) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(c)

	return func(labels prometheus.Labels) {
		c.With(labels).Inc()
	}
}

// MustRegisterNewGauge registers a GaugeVec under name and returns a closure
// that sets the series identified by labels to value.
func MustRegisterNewGauge(name, help string, labelNames []string) func(prometheus.Labels, float64) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(g)

	return func(labels prometheus.Labels, value float64) {
		g.With(labels).Set(value)
	}
}

// MustRegisterNewTimerWithError registers a HistogramVec under name and
// returns a closure that times f, recording its duration regardless of
// whether f returns an error, and propagating that error to the caller.
func MustRegisterNewTimerWithError(name, help string, labelNames []string) func(prometheus.Labels, func() error) error {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labelNames)
	prometheus.MustRegister(h)

	return func(labels prometheus.Labels, f func() error) error {
		start := time.Now()
		err := f()
		h.With(labels).Observe(time.Since(start).Seconds())
		return err
	}
}
