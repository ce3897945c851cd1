// Package metrics exposes session and gateway counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tOgg1/gatechat/internal/logging"
)

const namespace = "gatechat"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesIngested prometheus.Counter
	mutations        *prometheus.CounterVec
	superseded       *prometheus.CounterVec
	translations     *prometheus.CounterVec
	notices          *prometheus.CounterVec
	gatewayRequests  *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	openChats        prometheus.Gauge
	visibleMessages  prometheus.Gauge
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		messagesIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Messages appended to open chat logs.",
		}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Optimistic mutations by kind and terminal status.",
		}, []string{"kind", "status"}),
		superseded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_superseded_total",
			Help:      "Mutation responses discarded because a newer intent existed.",
		}, []string{"kind"}),
		translations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Translation cache fills by result.",
		}, []string{"result"}),
		notices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User-visible notices by level.",
		}, []string{"level"}),
		gatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Gateway requests by method and status code.",
		}, []string{"method", "code"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		openChats: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_chats",
			Help:      "Chat sessions with an open conversation.",
		}),
		visibleMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_visible_messages",
			Help:      "Materialized messages of the most recently updated window.",
		}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessagesIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesIngested.Add(float64(n))
}

// MutationResolved counts one terminal intent.
func (m *Metrics) MutationResolved(kind, status string, superseded bool) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, status).Inc()
	if superseded {
		m.superseded.WithLabelValues(kind).Inc()
	}
}

// Translation counts a cache fill outcome: "filled", "failed" or "cleared".
func (m *Metrics) Translation(result string) {
	if m == nil {
		return
	}
	m.translations.WithLabelValues(result).Inc()
}

func (m *Metrics) Notice(level string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(level).Inc()
}

// GatewayRequest records one round trip. status 0 means a transport error.
func (m *Metrics) GatewayRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.gatewayRequests.WithLabelValues(method, code).Inc()
	m.gatewayLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ChatOpened() {
	if m == nil {
		return
	}
	m.openChats.Inc()
}

func (m *Metrics) ChatClosed() {
	if m == nil {
		return
	}
	m.openChats.Dec()
}

func (m *Metrics) VisibleMessages(n int) {
	if m == nil {
		return
	}
	m.visibleMessages.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if m != nil {
		gatherer = m.registry
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Serve exposes Handler on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	logger := logging.Component("metrics")
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
