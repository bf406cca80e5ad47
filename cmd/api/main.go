package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"lastfm-crown-bot/internal/adapters/repo"
	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/config"
	"lastfm-crown-bot/internal/infra/db"
	"lastfm-crown-bot/internal/infra/log"
	"lastfm-crown-bot/internal/infra/metrics"
)

// API отдаёт сохранённые снапшоты лидерборда только на чтение:
// пересчётом и ролями занимается бот-гейтвей.
func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("не удалось подготовить схему БД")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/v1/leaderboard/{year}/{month}", func(w http.ResponseWriter, r *http.Request) {
		year, err := strconv.Atoi(chi.URLParam(r, "year"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		month, err := strconv.Atoi(chi.URLParam(r, "month"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		period := domain.Period{Year: year, Month: month}
		if err := period.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		snapshot, ok, err := repoAdapter.GetSnapshot(r.Context(), period)
		if err != nil {
			logger.Error().Err(err).Str("period", period.Key()).Msg("не удалось прочитать снапшот")
			writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "no leaderboard for this period")
			return
		}

		entries := make([]leaderboardEntry, 0, len(snapshot.Data))
		for _, datum := range snapshot.Data {
			entries = append(entries, leaderboardEntry{
				UserDiscordID:     datum.UserDiscordID,
				NormalizedStreams: datum.NormalizedStreams,
			})
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].NormalizedStreams > entries[j].NormalizedStreams
		})
		writeJSON(w, leaderboardResponse{
			Period:    period.Key(),
			UpdatedMS: snapshot.UpdatedAtMillis,
			Entries:   entries,
		})
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("api запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

type leaderboardEntry struct {
	UserDiscordID     string `json:"user_discord_id"`
	NormalizedStreams int    `json:"normalized_streams"`
}

type leaderboardResponse struct {
	Period    string             `json:"period"`
	UpdatedMS int64              `json:"updated_ms"`
	Entries   []leaderboardEntry `json:"entries"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
