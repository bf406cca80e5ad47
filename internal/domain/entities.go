package domain

import "time"

// StoredUser описывает участника Discord, привязавшего аккаунт Last.fm.
type StoredUser struct {
	ID               int64
	DiscordID        string
	LastfmUsername   string
	LastfmSessionKey string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StreamEvent представляет одно прослушивание из истории Last.fm.
// UTS равен нулю, если трек играет прямо сейчас и ещё не имеет даты.
type StreamEvent struct {
	Artist string `json:"artist"`
	UTS    int64  `json:"uts,omitempty"`
}

// Dated сообщает, есть ли у прослушивания зафиксированная дата.
func (e StreamEvent) Dated() bool {
	return e.UTS > 0
}

// LeaderboardDatum хранит накопленную историю и нормализованный счёт
// одного участника за период.
type LeaderboardDatum struct {
	UserDiscordID     string        `json:"user_discord_id"`
	NormalizedStreams int           `json:"normalized_streams"`
	StreamData        []StreamEvent `json:"stream_data"`
}

// LeaderboardSnapshot — сохранённое состояние лидерборда за один период.
// UpdatedAtMillis задаёт нижнюю границу следующей дозагрузки истории.
type LeaderboardSnapshot struct {
	Period          Period
	Data            []LeaderboardDatum
	UpdatedAtMillis int64
}

// FindDatum возвращает запись участника, если она есть в снапшоте.
func (s *LeaderboardSnapshot) FindDatum(discordID string) *LeaderboardDatum {
	for i := range s.Data {
		if s.Data[i].UserDiscordID == discordID {
			return &s.Data[i]
		}
	}
	return nil
}

// LeaderboardType различает промежуточный (наследник) и финальный
// (монарх) лидерборды.
type LeaderboardType int

const (
	// LeaderboardHeir — промежуточный лидерборд текущего месяца.
	LeaderboardHeir LeaderboardType = iota
	// LeaderboardMonarch — финальный лидерборд закрытого месяца.
	LeaderboardMonarch
)

// GuildConfig — конфигурация сервера, хранимая оператором.
type GuildConfig struct {
	ArtistName             string
	HeirRoleID             string
	MonarchRoleID          string
	AnnouncementsChannelID string
	EmbedColor             int
}

// Member — участник Discord, каким его видит шлюз чата.
type Member struct {
	ID          string
	DisplayName string
	Roles       []string
}

// HasRole проверяет наличие роли у участника.
func (m Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Embed — платформо-независимое представление embed-сообщения.
type Embed struct {
	Title       string
	Description string
	FooterText  string
	Color       int
}

// AnnounceJob — задача на публикацию лидерборда в канал анонсов.
type AnnounceJob struct {
	ID         string          `json:"id"`
	Type       LeaderboardType `json:"type"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// RankedEntry — строка отсортированного лидерборда с уже разрешённым
// отображаемым именем участника.
type RankedEntry struct {
	Datum          LeaderboardDatum
	DisplayName    string
	LastfmUsername string
}

// LeaderboardView — результат построения лидерборда для показа пользователю.
type LeaderboardView struct {
	Title        string
	Description  string
	CacheExpired bool
	Entries      []RankedEntry
}
