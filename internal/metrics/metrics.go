package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Upstream analytics API
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Analytics API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mevbot",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Analytics API request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"endpoint"})

	// Scheduler
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "scheduler",
		Name:      "evaluations_total",
		Help:      "Per-subscriber evaluations by outcome",
	}, []string{"outcome"})

	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mevbot",
		Subsystem: "scheduler",
		Name:      "active_subscribers",
		Help:      "Subscribers with notifications enabled at the last tick",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mevbot",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one evaluation tick",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	SkippedTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "scheduler",
		Name:      "skipped_ticks_total",
		Help:      "Ticks dropped because the previous tick overran",
	})

	SurfacedBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "scheduler",
		Name:      "surfaced_blocks_total",
		Help:      "Blocks above a subscriber threshold included in notifications",
	})

	// Delivery
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "delivery",
		Name:      "notifications_total",
		Help:      "Notification deliveries by status",
	}, []string{"status"})

	// Dialog
	DialogReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mevbot",
		Subsystem: "dialog",
		Name:      "replies_total",
		Help:      "Handled chat messages by command and result",
	}, []string{"command", "result"})
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
