package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	LeaderboardBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leaderboard_build_seconds",
		Help:    "Время построения лидерборда",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
	LastfmPagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lastfm_pages_fetched_total",
		Help: "Количество загруженных страниц истории Last.fm",
	})
	LastfmFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lastfm_fetch_errors_total",
		Help: "Ошибки загрузки истории Last.fm",
	})
	RoleSyncErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "role_sync_errors_total",
		Help: "Ошибки синхронизации эксклюзивных ролей",
	})
	AnnouncementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "announcements_total",
		Help: "Количество опубликованных анонсов лидерборда",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		LeaderboardBuildSeconds,
		LastfmPagesFetched,
		LastfmFetchErrors,
		RoleSyncErrors,
		AnnouncementsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		<-ctx.Done()
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}
