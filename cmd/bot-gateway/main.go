package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"lastfm-crown-bot/internal/adapters/discord"
	"lastfm-crown-bot/internal/adapters/lastfm"
	"lastfm-crown-bot/internal/adapters/repo"
	"lastfm-crown-bot/internal/infra/cache"
	"lastfm-crown-bot/internal/infra/config"
	"lastfm-crown-bot/internal/infra/db"
	"lastfm-crown-bot/internal/infra/log"
	"lastfm-crown-bot/internal/infra/metrics"
	"lastfm-crown-bot/internal/infra/queue"
	"lastfm-crown-bot/internal/usecase/leaderboard"
	"lastfm-crown-bot/internal/usecase/roles"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot-gateway")

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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	locker := cache.NewRedisLocker(rdb)
	jobs := queue.NewRedisAnnounceQueue(rdb, cfg.Queues.Announce)

	lastfmClient := lastfm.NewClient(lastfm.Config{
		APIKey:    cfg.Lastfm.APIKey,
		Secret:    cfg.Lastfm.Secret,
		PageDelay: time.Duration(cfg.Lastfm.PageDelayMS) * time.Millisecond,
	}, logger.With().Str("component", "lastfm").Logger())

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать сессию Discord")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	gateway := discord.NewGateway(session, cfg.Discord.GuildID, logger.With().Str("component", "gateway").Logger())
	roleService := roles.NewService(gateway, logger.With().Str("component", "roles").Logger())
	boardService := leaderboard.NewService(repoAdapter, repoAdapter, repoAdapter, lastfmClient, gateway, roleService, locker, logger.With().Str("component", "leaderboard").Logger())

	handler := discord.NewHandler(logger.With().Str("component", "commands").Logger(), boardService, repoAdapter, repoAdapter, lastfmClient, jobs)
	session.AddHandler(handler.HandleInteraction)

	if err := session.Open(); err != nil {
		logger.Fatal().Err(err).Msg("не удалось открыть соединение с Discord")
	}
	defer session.Close()

	if _, err := session.ApplicationCommandBulkOverwrite(cfg.Discord.AppID, cfg.Discord.GuildID, discord.Commands()); err != nil {
		logger.Fatal().Err(err).Msg("не удалось зарегистрировать команды")
	}

	// воркер анонсов: задачи ставят команда /announce и планировщик
	go func() {
		for {
			job, err := jobs.Pop(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Error().Err(err).Msg("не удалось прочитать задачу анонса")
				continue
			}
			logger.Info().Str("job", job.ID).Msg("публикуем анонс")
			if err := boardService.Announce(ctx, job.Type); err != nil {
				logger.Error().Err(err).Str("job", job.ID).Msg("не удалось опубликовать анонс")
			}
		}
	}()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Msg("бот запущен")
	<-ctx.Done()
	logger.Info().Msg("остановка бота")
}
