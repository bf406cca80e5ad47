package domain

import (
	"context"
	"time"
)

// ActivityClient выгружает историю прослушиваний пользователя за период.
// Реализация обязана ходить по страницам строго последовательно: лимит
// запросов Last.fm общий на всё приложение.
type ActivityClient interface {
	FetchPeriodStreams(ctx context.Context, username string, period Period, sinceMillis int64) ([]StreamEvent, error)
}

// UserRepo управляет привязками Discord-аккаунтов к Last.fm.
type UserRepo interface {
	UpsertUser(ctx context.Context, user StoredUser) (StoredUser, error)
	GetUserByDiscordID(ctx context.Context, discordID string) (StoredUser, error)
	ListUsers(ctx context.Context) ([]StoredUser, error)
}

// ConfigRepo хранит единственную конфигурацию сервера.
type ConfigRepo interface {
	GetConfig(ctx context.Context) (GuildConfig, error)
	SetConfig(ctx context.Context, cfg GuildConfig) error
}

// LeaderboardRepo хранит по одному снапшоту на период.
// PutSnapshot заменяет документ целиком, частичных обновлений нет.
type LeaderboardRepo interface {
	GetSnapshot(ctx context.Context, period Period) (LeaderboardSnapshot, bool, error)
	PutSnapshot(ctx context.Context, snapshot LeaderboardSnapshot) error
}

// ChatGateway — минимальный контракт чат-платформы: участники, роли,
// отправка сообщений. Все операции идемпотентны и повторяемы.
type ChatGateway interface {
	FetchMember(ctx context.Context, userID string) (Member, error)
	AddRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	SendEmbed(ctx context.Context, channelID string, embed Embed) error
}

// AnnounceQueue — очередь задач на публикацию анонсов.
type AnnounceQueue interface {
	Enqueue(ctx context.Context, job AnnounceJob) error
	Pop(ctx context.Context) (AnnounceJob, error)
}

// Locker выдаёт консультативные блокировки с TTL.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
