package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool. Снапшот лидерборда
// хранится документом в jsonb и заменяется целиком при каждой записи.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo        = (*Postgres)(nil)
	_ domain.ConfigRepo      = (*Postgres)(nil)
	_ domain.LeaderboardRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema создаёт таблицы, если их ещё нет. Вызывается при старте
// каждого сервиса: схема маленькая и идемпотентная, миграций нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	discord_id TEXT NOT NULL UNIQUE,
	lastfm_username TEXT NOT NULL,
	lastfm_session_key TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS guild_config (
	id INT PRIMARY KEY,
	artist_name TEXT NOT NULL DEFAULT '',
	heir_role TEXT NOT NULL DEFAULT '',
	monarch_role TEXT NOT NULL DEFAULT '',
	announcements_channel TEXT NOT NULL DEFAULT '',
	embed_color INT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS leaderboards (
	period_key TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_ms BIGINT NOT NULL DEFAULT 0
);
`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertUser реализует domain.UserRepo. Повторная авторизация обновляет
// имя и ключ сессии, запись никогда не удаляется автоматически.
func (p *Postgres) UpsertUser(ctx context.Context, user domain.StoredUser) (domain.StoredUser, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (discord_id, lastfm_username, lastfm_session_key)
VALUES ($1, $2, $3)
ON CONFLICT (discord_id) DO UPDATE SET lastfm_username = EXCLUDED.lastfm_username, lastfm_session_key = EXCLUDED.lastfm_session_key, updated_at = now()
RETURNING id, discord_id, lastfm_username, lastfm_session_key, created_at, updated_at
`, user.DiscordID, user.LastfmUsername, user.LastfmSessionKey)
	var out domain.StoredUser
	err := row.Scan(&out.ID, &out.DiscordID, &out.LastfmUsername, &out.LastfmSessionKey, &out.CreatedAt, &out.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "upsert_user", "users", start, err)
	if err != nil {
		return domain.StoredUser{}, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

// GetUserByDiscordID реализует domain.UserRepo.
func (p *Postgres) GetUserByDiscordID(ctx context.Context, discordID string) (domain.StoredUser, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, discord_id, lastfm_username, lastfm_session_key, created_at, updated_at
FROM users WHERE discord_id = $1
`, discordID)
	var out domain.StoredUser
	err := row.Scan(&out.ID, &out.DiscordID, &out.LastfmUsername, &out.LastfmSessionKey, &out.CreatedAt, &out.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "get_user", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredUser{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.StoredUser{}, fmt.Errorf("get user: %w", err)
	}
	return out, nil
}

// ListUsers реализует domain.UserRepo.
func (p *Postgres) ListUsers(ctx context.Context) ([]domain.StoredUser, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, discord_id, lastfm_username, lastfm_session_key, created_at, updated_at
FROM users ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "list_users", "users", start, err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []domain.StoredUser
	for rows.Next() {
		var u domain.StoredUser
		if err := rows.Scan(&u.ID, &u.DiscordID, &u.LastfmUsername, &u.LastfmSessionKey, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetConfig реализует domain.ConfigRepo. Конфигурация одна на процесс.
func (p *Postgres) GetConfig(ctx context.Context) (domain.GuildConfig, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT artist_name, heir_role, monarch_role, announcements_channel, embed_color
FROM guild_config WHERE id = 1
`)
	var cfg domain.GuildConfig
	err := row.Scan(&cfg.ArtistName, &cfg.HeirRoleID, &cfg.MonarchRoleID, &cfg.AnnouncementsChannelID, &cfg.EmbedColor)
	metrics.ObserveNetworkRequest("postgres", "get_config", "guild_config", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GuildConfig{}, nil
	}
	if err != nil {
		return domain.GuildConfig{}, fmt.Errorf("get config: %w", err)
	}
	return cfg, nil
}

// SetConfig реализует domain.ConfigRepo.
func (p *Postgres) SetConfig(ctx context.Context, cfg domain.GuildConfig) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO guild_config (id, artist_name, heir_role, monarch_role, announcements_channel, embed_color)
VALUES (1, $1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET artist_name = EXCLUDED.artist_name, heir_role = EXCLUDED.heir_role, monarch_role = EXCLUDED.monarch_role, announcements_channel = EXCLUDED.announcements_channel, embed_color = EXCLUDED.embed_color
`, cfg.ArtistName, cfg.HeirRoleID, cfg.MonarchRoleID, cfg.AnnouncementsChannelID, cfg.EmbedColor)
	metrics.ObserveNetworkRequest("postgres", "set_config", "guild_config", start, err)
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// GetSnapshot реализует domain.LeaderboardRepo.
func (p *Postgres) GetSnapshot(ctx context.Context, period domain.Period) (domain.LeaderboardSnapshot, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT data, updated_ms FROM leaderboards WHERE period_key = $1
`, period.Key())
	var (
		raw       []byte
		updatedMS int64
	)
	err := row.Scan(&raw, &updatedMS)
	metrics.ObserveNetworkRequest("postgres", "get_snapshot", "leaderboards", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardSnapshot{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardSnapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}

	var data []domain.LeaderboardDatum
	if err := json.Unmarshal(raw, &data); err != nil {
		return domain.LeaderboardSnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", period.Key(), err)
	}
	return domain.LeaderboardSnapshot{Period: period, Data: data, UpdatedAtMillis: updatedMS}, true, nil
}

// PutSnapshot реализует domain.LeaderboardRepo: полный upsert документа
// по ключу периода, частичных обновлений массива нет.
func (p *Postgres) PutSnapshot(ctx context.Context, snapshot domain.LeaderboardSnapshot) error {
	key := snapshot.Period.Key()
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("empty period key")
	}
	payload, err := json.Marshal(snapshot.Data)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO leaderboards (period_key, data, updated_ms)
VALUES ($1, $2, $3)
ON CONFLICT (period_key) DO UPDATE SET data = EXCLUDED.data, updated_ms = EXCLUDED.updated_ms
`, key, payload, snapshot.UpdatedAtMillis)
	metrics.ObserveNetworkRequest("postgres", "put_snapshot", "leaderboards", start, err)
	if err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}
