// Package metrics exposes the server's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the server updates. One instance per
// process; components receive it by constructor injection.
type Metrics struct {
	registry *prometheus.Registry

	FramesIn  prometheus.Counter
	FramesOut prometheus.Counter
	BytesIn   prometheus.Counter
	BytesOut  prometheus.Counter

	Dispatched *prometheus.CounterVec
	Rejected   prometheus.Counter

	AckRetries prometheus.Counter
	AckDrops   prometheus.Counter

	Clients       prometheus.Gauge
	PendingAcks   prometheus.Gauge
	ActiveCombats prometheus.Gauge

	TickDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		FramesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_frames_in_total",
			Help: "Frames read from clients.",
		}),
		FramesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_frames_out_total",
			Help: "Frames written to clients.",
		}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_bytes_in_total",
			Help: "Payload bytes read from clients.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_bytes_out_total",
			Help: "Payload bytes written to clients.",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "echoarena_messages_dispatched_total",
			Help: "Inbound messages dispatched to handlers, by kind.",
		}, []string{"kind"}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_actions_rejected_total",
			Help: "Client actions rejected with a reason.",
		}),
		AckRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_ack_retries_total",
			Help: "Reliable messages retransmitted after an ack timeout.",
		}),
		AckDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "echoarena_ack_drops_total",
			Help: "Reliable messages abandoned after exhausting retries.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoarena_connected_clients",
			Help: "Currently connected clients.",
		}),
		PendingAcks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoarena_pending_acks",
			Help: "Reliable messages awaiting acknowledgement.",
		}),
		ActiveCombats: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "echoarena_active_combats",
			Help: "Combat simulations currently running.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "echoarena_tick_duration_seconds",
			Help:    "Orchestrator tick wall time.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}
	reg.MustRegister(
		m.FramesIn, m.FramesOut, m.BytesIn, m.BytesOut,
		m.Dispatched, m.Rejected,
		m.AckRetries, m.AckDrops,
		m.Clients, m.PendingAcks, m.ActiveCombats,
		m.TickDuration,
	)
	return m
}

// Serve exposes /metrics on addr until ctx is cancelled. Blocks.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
