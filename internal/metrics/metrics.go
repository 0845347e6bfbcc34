package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

const (
	namespace = "gslb"

	protocolLabel = "protocol"
	resultLabel   = "result"
	domainLabel   = "domain"
	kindLabel     = "kind"

	unsupportedProtocol = "unsupported"
)

// Metrics holds the controller's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	probes        *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	cycleDuration prometheus.Histogram
	domainErrors  *prometheus.CounterVec
	writes        *prometheus.CounterVec
	activeRegions *prometheus.GaugeVec
	serial        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Health probes by protocol and result",
		}, []string{protocolLabel, resultLabel}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Health probe latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{protocolLabel}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one reconciliation cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_errors_total",
			Help:      "Domains that failed to reconcile",
		}, []string{domainLabel}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Output writes by kind (zone, config) and result (changed, unchanged, error)",
		}, []string{kindLabel, resultLabel}),
		activeRegions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_regions",
			Help:      "Regions with at least one published record",
		}, []string{domainLabel}),
		serial: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "zone_serial",
			Help:      "Serial of the last reconciliation cycle",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.probes, m.probeDuration, m.cycleDuration, m.domainErrors, m.writes, m.activeRegions, m.serial)
	}
	return m
}

// ObserveProbe records a probe. Protocols other than tcp, http and https are
// counted as "unsupported".
func (m *Metrics) ObserveProbe(protocol string, healthy bool, d time.Duration) {
	if m == nil {
		return
	}
	switch protocol {
	case model.ProtocolTCP, model.ProtocolHTTP, model.ProtocolHTTPS:
	default:
		protocol = unsupportedProtocol
	}
	m.probes.With(prometheus.Labels{protocolLabel: protocol, resultLabel: healthyLabel(healthy)}).Inc()
	m.probeDuration.With(prometheus.Labels{protocolLabel: protocol}).Observe(d.Seconds())
}

func (m *Metrics) ObserveCycle(d time.Duration, serial int64) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	m.serial.Set(float64(serial))
}

func (m *Metrics) DomainError(domain string) {
	if m == nil {
		return
	}
	m.domainErrors.With(prometheus.Labels{domainLabel: domain}).Inc()
}

// ActiveRegions replaces the per-domain region gauges, dropping domains that
// are no longer published.
func (m *Metrics) ActiveRegions(meta model.DomainMeta) {
	if m == nil {
		return
	}
	m.activeRegions.Reset()
	for domain, regions := range meta {
		m.activeRegions.With(prometheus.Labels{domainLabel: domain}).Set(float64(len(regions)))
	}
}

// Write records an output write; kind is "zone" or "config".
func (m *Metrics) Write(kind string, changed bool, err error) {
	if m == nil {
		return
	}
	result := "unchanged"
	switch {
	case err != nil:
		result = "error"
	case changed:
		result = "changed"
	}
	m.writes.With(prometheus.Labels{kindLabel: kind, resultLabel: result}).Inc()
}

func healthyLabel(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}

// Serve exposes the gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, log *zap.Logger, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
