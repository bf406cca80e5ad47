package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
	"lastfm-crown-bot/internal/usecase/roles"
)

// globalCacheWindow — окно свежести снапшота. Пока оно не истекло,
// Last.fm не опрашивается и отдаются закэшированные данные.
const globalCacheWindow = 5 * time.Minute

// lockTTL ограничивает жизнь консультативной блокировки обновления,
// чтобы упавший процесс не держал период заблокированным навсегда.
const lockTTL = 10 * time.Minute

const learnMoreLine = "\nWant to be on the leaderboard? Learn how [here](https://discord.com/channels/370645317881823232/1065062232200839208/1072793889842397214)."

// Service реализует агрегацию лидерборда: загрузку кэша, дозагрузку
// истории с Last.fm, пересчёт, сохранение и синхронизацию ролей.
type Service struct {
	users    domain.UserRepo
	configs  domain.ConfigRepo
	boards   domain.LeaderboardRepo
	activity domain.ActivityClient
	chat     domain.ChatGateway
	roles    *roles.Service
	locker   domain.Locker
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис лидерборда. locker может быть nil — тогда
// конкурирующие обновления одного периода не исключаются (last write wins).
func NewService(users domain.UserRepo, configs domain.ConfigRepo, boards domain.LeaderboardRepo, activity domain.ActivityClient, chat domain.ChatGateway, roleSvc *roles.Service, locker domain.Locker, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		configs:  configs,
		boards:   boards,
		activity: activity,
		chat:     chat,
		roles:    roleSvc,
		locker:   locker,
		log:      log,
		now:      time.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetLeaderboard строит лидерборд за период: обновляет снапшот при
// протухшем кэше, сортирует участников, собирает текст и синхронизирует
// эксклюзивную роль лидера.
func (s *Service) GetLeaderboard(ctx context.Context, typ domain.LeaderboardType, period domain.Period, useCache bool) (domain.LeaderboardView, error) {
	start := s.now()
	if err := period.Validate(); err != nil {
		return domain.LeaderboardView{}, err
	}

	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("%w: load config: %v", domain.ErrPersistence, err)
	}
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("%w: list users: %v", domain.ErrPersistence, err)
	}

	cached, cachedOK, err := s.boards.GetSnapshot(ctx, period)
	if err != nil {
		return domain.LeaderboardView{}, fmt.Errorf("%w: load snapshot: %v", domain.ErrPersistence, err)
	}

	// Претендент фиксируется по кэшу до пересчёта: даже при явном обходе
	// кэша строки о смене лидера должны опираться на прежнее состояние.
	incumbentID, hasIncumbent := incumbentFrom(cached, cachedOK)

	snapshot := cached
	if !cachedOK || !useCache {
		snapshot = emptySnapshot(period, users)
	}

	cacheExpired := s.now().UnixMilli()-snapshot.UpdatedAtMillis > globalCacheWindow.Milliseconds()
	refreshed := false
	if cacheExpired {
		refreshed, err = s.refreshAndPersist(ctx, &snapshot, users, cfg)
		if err != nil {
			return domain.LeaderboardView{}, err
		}
		if !refreshed && cachedOK {
			// обновление делает кто-то другой — отдаём прежний кэш
			snapshot = cached
		}
	}

	sortData(snapshot.Data, incumbentID)
	entries := s.resolveEntries(ctx, snapshot.Data, users)

	n := narrative{
		Type:         typ,
		Period:       period,
		ArtistName:   cfg.ArtistName,
		Entries:      entries,
		IncumbentID:  incumbentID,
		HasIncumbent: hasIncumbent,
	}
	view := domain.LeaderboardView{
		Title:        formatTitle(n),
		Description:  formatDescription(n),
		CacheExpired: refreshed,
		Entries:      entries,
	}

	s.syncLeaderRole(ctx, typ, cfg, snapshot, users)

	metrics.LeaderboardBuildSeconds.Observe(s.now().Sub(start).Seconds())
	return view, nil
}

// Announce строит лидерборд без кэша и публикует его в канал анонсов.
// Для монарха берётся предыдущий месяц, а роль наследника снимается со
// всех: трон переходит в новое состояние.
func (s *Service) Announce(ctx context.Context, typ domain.LeaderboardType) error {
	cfg, err := s.configs.GetConfig(ctx)
	if err != nil {
		return fmt.Errorf("%w: load config: %v", domain.ErrPersistence, err)
	}

	period := domain.CurrentPeriod(s.now())
	if typ == domain.LeaderboardMonarch {
		users, err := s.users.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("%w: list users: %v", domain.ErrPersistence, err)
		}
		s.roles.ClearSingleton(ctx, cfg.HeirRoleID, users)
		period = period.Previous()
	}

	view, err := s.GetLeaderboard(ctx, typ, period, false)
	if err != nil {
		return err
	}

	embed := domain.Embed{
		Title:       view.Title,
		Description: view.Description + learnMoreLine,
		Color:       cfg.EmbedColor,
	}
	if err := s.chat.SendEmbed(ctx, cfg.AnnouncementsChannelID, embed); err != nil {
		return fmt.Errorf("send announcement: %w", err)
	}
	metrics.AnnouncementsTotal.Inc()
	return nil
}

// refreshAndPersist дозагружает историю всех участников и сохраняет
// снапшот. Возвращает false без ошибки, если блокировка периода занята
// конкурирующим обновлением. Любая ошибка Last.fm прерывает обновление
// целиком: частичный снапшот не записывается.
func (s *Service) refreshAndPersist(ctx context.Context, snapshot *domain.LeaderboardSnapshot, users []domain.StoredUser, cfg domain.GuildConfig) (bool, error) {
	if s.locker != nil {
		key := "leaderboard:refresh:" + snapshot.Period.Key()
		acquired, err := s.locker.TryLock(ctx, key, lockTTL)
		if err != nil {
			s.log.Warn().Err(err).Msg("блокировка обновления недоступна, продолжаем без неё")
		} else if !acquired {
			return false, nil
		} else {
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
					s.log.Warn().Err(err).Msg("не удалось снять блокировку обновления")
				}
			}()
		}
	}

	artistLower := strings.ToLower(cfg.ArtistName)
	// строго последовательно: лимит запросов Last.fm общий на всех
	for _, user := range users {
		datum := snapshot.FindDatum(user.DiscordID)
		if datum == nil {
			snapshot.Data = append(snapshot.Data, emptyDatum(user.DiscordID))
			datum = &snapshot.Data[len(snapshot.Data)-1]
		}
		fresh, err := s.activity.FetchPeriodStreams(ctx, user.LastfmUsername, snapshot.Period, snapshot.UpdatedAtMillis)
		if err != nil {
			return false, fmt.Errorf("refresh %s: %w", user.LastfmUsername, err)
		}
		datum.StreamData = append(datum.StreamData, fresh...)
		sortStreams(datum.StreamData)
		datum.NormalizedStreams = Normalize(datum.StreamData, artistLower)
	}

	snapshot.UpdatedAtMillis = s.now().UnixMilli()
	// сохранение должно завершиться до возврата: вызывающие читают
	// только что записанный снапшот
	if err := s.boards.PutSnapshot(ctx, *snapshot); err != nil {
		return false, fmt.Errorf("%w: store snapshot: %v", domain.ErrPersistence, err)
	}
	return true, nil
}

// syncLeaderRole выдаёт эксклюзивную роль лидеру либо снимает её со всех
// при нулевом счёте. Сбои ролей не прерывают доставку лидерборда.
func (s *Service) syncLeaderRole(ctx context.Context, typ domain.LeaderboardType, cfg domain.GuildConfig, snapshot domain.LeaderboardSnapshot, users []domain.StoredUser) {
	roleID := cfg.HeirRoleID
	if typ == domain.LeaderboardMonarch {
		roleID = cfg.MonarchRoleID
	}
	if roleID == "" || len(snapshot.Data) == 0 {
		return
	}

	top := snapshot.Data[0]
	if top.NormalizedStreams == 0 {
		s.roles.ClearSingleton(ctx, roleID, users)
		return
	}
	if err := s.roles.UpdateSingleton(ctx, top.UserDiscordID, roleID, users, true); err != nil {
		metrics.RoleSyncErrors.Inc()
		s.log.Error().Err(err).Str("role", roleID).Msg("не удалось синхронизировать роль лидера")
	}
}

// resolveEntries превращает данные снапшота в строки для показа,
// подтягивая отображаемые имена из Discord. Недоступный участник не
// валит весь лидерборд: вместо имени показывается его ID.
func (s *Service) resolveEntries(ctx context.Context, data []domain.LeaderboardDatum, users []domain.StoredUser) []domain.RankedEntry {
	byDiscordID := make(map[string]domain.StoredUser, len(users))
	for _, u := range users {
		byDiscordID[u.DiscordID] = u
	}

	entries := make([]domain.RankedEntry, 0, len(data))
	for _, datum := range data {
		entry := domain.RankedEntry{Datum: datum, DisplayName: datum.UserDiscordID}
		if u, ok := byDiscordID[datum.UserDiscordID]; ok {
			entry.LastfmUsername = u.LastfmUsername
		}
		member, err := s.chat.FetchMember(ctx, datum.UserDiscordID)
		if err != nil {
			s.log.Warn().Err(err).Str("user", datum.UserDiscordID).Msg("не удалось получить участника")
		} else {
			entry.DisplayName = member.DisplayName
		}
		entries = append(entries, entry)
	}
	return entries
}

// emptyDatum — запись участника с нулевым счётом и пустой историей.
func emptyDatum(discordID string) domain.LeaderboardDatum {
	return domain.LeaderboardDatum{UserDiscordID: discordID, StreamData: []domain.StreamEvent{}}
}

// emptySnapshot — стартовый снапшот периода: по нулевой записи на каждого
// отслеживаемого участника, нижняя граница дозагрузки — начало эпохи.
func emptySnapshot(period domain.Period, users []domain.StoredUser) domain.LeaderboardSnapshot {
	data := make([]domain.LeaderboardDatum, 0, len(users))
	for _, u := range users {
		data = append(data, emptyDatum(u.DiscordID))
	}
	return domain.LeaderboardSnapshot{Period: period, Data: data}
}

// incumbentFrom достаёт текущего лидера из закэшированного снапшота.
// Пустой или нулевой кэш лидера не даёт.
func incumbentFrom(cached domain.LeaderboardSnapshot, ok bool) (string, bool) {
	if !ok || len(cached.Data) == 0 {
		return "", false
	}
	var total int
	for _, d := range cached.Data {
		total += d.NormalizedStreams
	}
	if total == 0 {
		return "", false
	}
	data := make([]domain.LeaderboardDatum, len(cached.Data))
	copy(data, cached.Data)
	sortData(data, "")
	return data[0].UserDiscordID, true
}

// sortData сортирует по убыванию счёта. Равные счета порядок не меняют,
// кроме претендента: при ничьей он встаёт первым в своей группе.
func sortData(data []domain.LeaderboardDatum, incumbentID string) {
	sort.SliceStable(data, func(i, j int) bool {
		if data[i].NormalizedStreams != data[j].NormalizedStreams {
			return data[i].NormalizedStreams > data[j].NormalizedStreams
		}
		return incumbentID != "" && data[i].UserDiscordID == incumbentID && data[j].UserDiscordID != incumbentID
	})
}

// sortStreams упорядочивает историю: сначала играющие прямо сейчас,
// дальше от новых к старым.
func sortStreams(events []domain.StreamEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Dated() {
			return events[j].Dated()
		}
		if !events[j].Dated() {
			return false
		}
		return events[i].UTS > events[j].UTS
	})
}
