// Package metrics exposes backup pipeline counters in Prometheus format.
//
// Available metrics:
//   - warden_backups_total{target,result}: finished pipelines (counter)
//   - warden_pipeline_failures_total{target,step}: failed steps (counter)
//   - warden_backups_deleted_total{target}: backups removed by retention (counter)
//   - warden_last_success_timestamp_seconds{target}: last successful pipeline (gauge)
//   - warden_workers_running: pipelines in flight (gauge)
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warden"

type Metrics struct {
	registry *prometheus.Registry

	BackupsTotal     *prometheus.CounterVec
	PipelineFailures *prometheus.CounterVec
	BackupsDeleted   *prometheus.CounterVec
	LastSuccess      *prometheus.GaugeVec
	WorkersRunning   prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BackupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Finished backup pipelines by result.",
		}, []string{"target", "result"}),
		PipelineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Failed pipeline steps.",
		}, []string{"target", "step"}),
		BackupsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_deleted_total",
			Help:      "Backups removed by the retention policy.",
		}, []string{"target"}),
		LastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pipeline.",
		}, []string{"target"}),
		WorkersRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_running",
			Help:      "Backup pipelines currently in flight.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveSuccess(target string, at time.Time) {
	m.BackupsTotal.WithLabelValues(target, "success").Inc()
	m.LastSuccess.WithLabelValues(target).Set(float64(at.Unix()))
}

func (m *Metrics) ObserveFailure(target, step string) {
	m.BackupsTotal.WithLabelValues(target, "failure").Inc()
	m.PipelineFailures.WithLabelValues(target, step).Inc()
}

func (m *Metrics) ObserveDeleted(target string, n int) {
	m.BackupsDeleted.WithLabelValues(target).Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics on addr until Shutdown is called.
type Server struct {
	srv *http.Server
}

func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start listens in the background. Listen errors are passed to onErr.
func (s *Server) Start(onErr func(error)) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	return nil
}
