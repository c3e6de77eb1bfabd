// ABOUTME: Prometheus collectors for the progress transport and workflow session
// ABOUTME: Nil-safe recorders plus an HTTP endpoint serving a private registry

package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "research_flow"

// Transport records WebSocket transport activity. A nil *Transport is valid
// and records nothing.
type Transport struct {
	frames         prometheus.Counter
	decodeErrors   prometheus.Counter
	heartbeats     *prometheus.CounterVec
	reconnects     prometheus.Counter
	listenerPanics prometheus.Counter
	connected      prometheus.Gauge
}

// MustNewTransport registers transport collectors with reg.
func MustNewTransport(reg prometheus.Registerer) *Transport {
	t := &Transport{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_received_total",
			Help:      "Inbound WebSocket frames, including heartbeats and malformed frames.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "heartbeats_total",
			Help:      "Keepalive frames by direction.",
		}, []string{"direction"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		listenerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "listener_panics_total",
			Help:      "Listener invocations that panicked and were isolated.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "1 while the progress socket is open.",
		}),
	}
	reg.MustRegister(t.frames, t.decodeErrors, t.heartbeats, t.reconnects, t.listenerPanics, t.connected)
	return t
}

func (t *Transport) FrameReceived() {
	if t == nil {
		return
	}
	t.frames.Inc()
}

func (t *Transport) DecodeError() {
	if t == nil {
		return
	}
	t.decodeErrors.Inc()
}

func (t *Transport) HeartbeatSent() {
	if t == nil {
		return
	}
	t.heartbeats.WithLabelValues("out").Inc()
}

func (t *Transport) HeartbeatReceived() {
	if t == nil {
		return
	}
	t.heartbeats.WithLabelValues("in").Inc()
}

func (t *Transport) ReconnectAttempt() {
	if t == nil {
		return
	}
	t.reconnects.Inc()
}

func (t *Transport) ListenerPanic() {
	if t == nil {
		return
	}
	t.listenerPanics.Inc()
}

func (t *Transport) SetConnected(connected bool) {
	if t == nil {
		return
	}
	if connected {
		t.connected.Set(1)
		return
	}
	t.connected.Set(0)
}

// Session records workflow reconciliation activity. A nil *Session is valid.
type Session struct {
	events  *prometheus.CounterVec
	stages  *prometheus.CounterVec
	reports *prometheus.CounterVec
}

// MustNewSession registers session collectors with reg.
func MustNewSession(reg prometheus.Registerer) *Session {
	s := &Session{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "events_applied_total",
			Help:      "Progress events folded into workflow state.",
		}, []string{"agent", "status"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stage_entries_total",
			Help:      "Workflow stage transitions by target stage.",
		}, []string{"stage"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reports_total",
			Help:      "Report resolutions by outcome.",
		}, []string{"source"}),
	}
	reg.MustRegister(s.events, s.stages, s.reports)
	return s
}

func (s *Session) EventApplied(agent, status string) {
	if s == nil {
		return
	}
	s.events.WithLabelValues(agent, status).Inc()
}

func (s *Session) StageEntered(stage string) {
	if s == nil {
		return
	}
	s.stages.WithLabelValues(stage).Inc()
}

func (s *Session) ReportResolved(source string) {
	if s == nil {
		return
	}
	s.reports.WithLabelValues(source).Inc()
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve exposes reg on addr at path until ctx is cancelled.
func Serve(ctx context.Context, addr, path string, reg *prometheus.Registry, logger *slog.Logger) error {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

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

	logger.Info("metrics endpoint listening", "addr", addr, "path", path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
