package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/config"
	"lastfm-crown-bot/internal/infra/log"
	"lastfm-crown-bot/internal/infra/metrics"
	"lastfm-crown-bot/internal/infra/queue"
)

// Планировщик только ставит задачи в очередь: публикует их воркер
// бот-гейтвея, у которого уже есть сессия Discord.
func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	jobs := queue.NewRedisAnnounceQueue(rdb, cfg.Queues.Announce)

	enqueue := func(typ domain.LeaderboardType, label string) {
		job := domain.AnnounceJob{ID: uuid.NewString(), Type: typ, EnqueuedAt: time.Now().UTC()}
		enqueueCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := jobs.Enqueue(enqueueCtx, job); err != nil {
			logger.Error().Err(err).Str("type", label).Msg("не удалось поставить анонс в очередь")
			return
		}
		logger.Info().Str("job", job.ID).Str("type", label).Msg("анонс поставлен в очередь")
	}

	// расписание месяца: промежуточные итоги 10-го и 20-го, коронация 1-го
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc("0 0 10,20 * *", func() { enqueue(domain.LeaderboardHeir, "heir") }); err != nil {
		logger.Fatal().Err(err).Msg("не удалось добавить расписание наследника")
	}
	if _, err := c.AddFunc("0 0 1 * *", func() { enqueue(domain.LeaderboardMonarch, "monarch") }); err != nil {
		logger.Fatal().Err(err).Msg("не удалось добавить расписание монарха")
	}
	c.Start()
	defer c.Stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Msg("планировщик запущен")
	<-ctx.Done()
	logger.Info().Msg("остановка планировщика")
}
