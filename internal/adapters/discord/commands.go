package discord

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/adapters/lastfm"
	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/usecase/leaderboard"
)

// sessionPollInterval и sessionPollMax задают, как долго бот ждёт, пока
// пользователь подтвердит токен Last.fm по ссылке.
const (
	sessionPollInterval = 5 * time.Second
	sessionPollMax      = 24
)

const cacheFooter = "Data not updating? Results are cached for five minutes to reduce load on Last.fm API."

// Handler обслуживает slash-команды бота.
type Handler struct {
	log     zerolog.Logger
	boardUC *leaderboard.Service
	users   domain.UserRepo
	configs domain.ConfigRepo
	auth    *lastfm.Client
	jobs    domain.AnnounceQueue
}

// NewHandler создаёт обработчик команд.
func NewHandler(log zerolog.Logger, boardUC *leaderboard.Service, users domain.UserRepo, configs domain.ConfigRepo, auth *lastfm.Client, jobs domain.AnnounceQueue) *Handler {
	return &Handler{log: log, boardUC: boardUC, users: users, configs: configs, auth: auth, jobs: jobs}
}

// Commands описывает slash-команды для регистрации на сервере.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "leaderboard",
			Description: "Show the monthly streaming leaderboard for this month",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "use_cache",
					Description: "Set to false to disable the cache. True by default.",
				},
			},
		},
		{
			Name:        "announce",
			Description: "Trigger a post in the configured announcements channel (server manager only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "leaderboard_type",
					Description: "Choose whether to announce the current heir or monarch",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Heir", Value: "heir"},
						{Name: "Monarch", Value: "monarch"},
					},
				},
			},
		},
		{
			Name:        "config",
			Description: "Get or set config values for this server",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "announcements_channel",
					Description: "The channel where monthly and other periodic leaderboards will be shown",
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "monarch_role",
					Description: "The role the Monthly Streaming Monarch will have",
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "heir_role",
					Description: "The role the Monthly Streaming Heir will have",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "artist_name",
					Description: "The name of the artist tracked in this server",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "embed_color",
					Description: "The color of the embed border (hex)",
				},
			},
		},
		{
			Name:        "login",
			Description: "Log into Last.fm",
		},
		{
			Name:        "help",
			Description: "Show what this bot can do",
		},
	}
}

// HandleInteraction обрабатывает входящую slash-команду.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	name := i.ApplicationCommandData().Name
	switch name {
	case "leaderboard":
		h.handleLeaderboard(s, i)
	case "announce":
		h.handleAnnounce(s, i)
	case "config":
		h.handleConfig(s, i)
	case "login":
		h.handleLogin(s, i)
	case "help":
		h.handleHelp(s, i)
	default:
		h.log.Warn().Str("command", name).Msg("неизвестная команда")
	}
}

func (h *Handler) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	useCache := true
	if opt, ok := optionMap(i)["use_cache"]; ok {
		useCache = opt.BoolValue()
	}
	// обход кэша нагружает Last.fm, поэтому доступен только менеджерам
	if !useCache && !hasManagePermission(i) {
		h.replyText(s, i, "Only users with server manager permissions can disable the cache for this command")
		return
	}

	cfg, err := h.configs.GetConfig(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось загрузить конфиг")
		h.replyText(s, i, "There was an error updating the leaderboard.")
		return
	}

	h.replyEmbed(s, i, &discordgo.MessageEmbed{
		Color:       cfg.EmbedColor,
		Description: "Fetching leaderboard data...this may take a bit so we don't run into rate limit issues with Last.fm ⏳",
	})

	period := domain.CurrentPeriod(time.Now())
	view, err := h.boardUC.GetLeaderboard(ctx, domain.LeaderboardHeir, period, useCache)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось построить лидерборд")
		h.editEmbed(s, i, &discordgo.MessageEmbed{
			Color:       cfg.EmbedColor,
			Description: "There was an error updating the leaderboard.",
		})
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       view.Title,
		Description: view.Description,
		Color:       cfg.EmbedColor,
	}
	// подсказываем про кэш тем, кто в него попал
	if !view.CacheExpired {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: cacheFooter}
	}
	h.editEmbed(s, i, embed)
}

func (h *Handler) handleAnnounce(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !hasManagePermission(i) {
		h.replyText(s, i, "Only users with server manager permissions can use this command")
		return
	}

	typ := domain.LeaderboardHeir
	if opt, ok := optionMap(i)["leaderboard_type"]; ok && opt.StringValue() == "monarch" {
		typ = domain.LeaderboardMonarch
	}

	job := domain.AnnounceJob{ID: uuid.NewString(), Type: typ, EnqueuedAt: time.Now().UTC()}
	if err := h.jobs.Enqueue(context.Background(), job); err != nil {
		h.log.Error().Err(err).Msg("не удалось поставить анонс в очередь")
		h.replyText(s, i, "There was an error making an announcement leaderboard post.")
		return
	}
	h.replyText(s, i, "Queued announcement post...this may take a bit so we don't run into rate limit issues with Last.fm ⏳")
}

func (h *Handler) handleConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	cfg, err := h.configs.GetConfig(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось загрузить конфиг")
		h.replyText(s, i, "There was an error loading the server config.")
		return
	}

	opts := optionMap(i)
	if len(opts) > 0 {
		// менять конфиг могут только менеджеры, читать — все
		if !hasManagePermission(i) {
			h.replyText(s, i, "Only users with server manager permissions can update the server config")
			return
		}
		if opt, ok := opts["announcements_channel"]; ok {
			cfg.AnnouncementsChannelID = opt.ChannelValue(nil).ID
		}
		if opt, ok := opts["monarch_role"]; ok {
			cfg.MonarchRoleID = opt.RoleValue(nil, "").ID
		}
		if opt, ok := opts["heir_role"]; ok {
			cfg.HeirRoleID = opt.RoleValue(nil, "").ID
		}
		if opt, ok := opts["artist_name"]; ok {
			cfg.ArtistName = opt.StringValue()
		}
		if opt, ok := opts["embed_color"]; ok {
			color, err := parseHexColor(opt.StringValue())
			if err != nil {
				h.replyText(s, i, "Embed color must be a hex value like #7A36C9")
				return
			}
			cfg.EmbedColor = color
		}
		if err := h.configs.SetConfig(ctx, cfg); err != nil {
			h.log.Error().Err(err).Msg("не удалось сохранить конфиг")
			h.replyText(s, i, "There was an error saving the server config.")
			return
		}
	}

	table := fmt.Sprintf(
		"Announcements channel: <#%s>\nMonthly Streaming Monarch role: <@&%s>\nMonthly Streaming Heir role: <@&%s>\nArtist name: **%s**\nEmbed color: **#%06X**\n",
		cfg.AnnouncementsChannelID, cfg.MonarchRoleID, cfg.HeirRoleID, cfg.ArtistName, cfg.EmbedColor,
	)
	h.replyEmbed(s, i, &discordgo.MessageEmbed{Title: "Config", Description: table, Color: cfg.EmbedColor})
}

func (h *Handler) handleLogin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()
	discordID := interactionUserID(i)
	if discordID == "" {
		h.replyText(s, i, "Could not determine your Discord account.")
		return
	}

	token, err := h.auth.GetToken(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось получить токен last.fm")
		h.replyText(s, i, "There was an error retrieving an authentication token from Last.fm. Try again later.")
		return
	}

	h.replyText(s, i, "Click this link to log in: "+h.auth.AuthURL(token))

	// сессию можно получить только после подтверждения токена по ссылке,
	// поэтому опрашиваем Last.fm в фоне
	go h.pollSession(s, i, discordID, token)
}

func (h *Handler) pollSession(s *discordgo.Session, i *discordgo.InteractionCreate, discordID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), sessionPollMax*sessionPollInterval+time.Minute)
	defer cancel()

	for attempt := 0; attempt < sessionPollMax; attempt++ {
		time.Sleep(sessionPollInterval)
		session, err := h.auth.GetSession(ctx, token)
		if err != nil {
			continue
		}
		_, err = h.users.UpsertUser(ctx, domain.StoredUser{
			DiscordID:        discordID,
			LastfmUsername:   session.Username,
			LastfmSessionKey: session.SessionKey,
		})
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось сохранить пользователя")
			h.editText(s, i, "There was a problem while trying to authenticate. Try again later")
			return
		}
		h.editText(s, i, "Successfully authenticated!")
		return
	}
	h.editText(s, i, "There was a problem while trying to authenticate. Try again later")
}

func (h *Handler) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.replyText(s, i,
		"**/login** — link your Last.fm account\n"+
			"**/leaderboard** — show this month's streaming leaderboard\n"+
			"**/config** — view or change server settings\n"+
			"**/announce** — post the leaderboard to the announcements channel (managers)\n"+
			"**/help** — this message")
}

func (h *Handler) replyText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на команду")
	}
}

func (h *Handler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на команду")
	}
}

func (h *Handler) editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		h.log.Error().Err(err).Msg("не удалось отредактировать ответ")
	}
}

func (h *Handler) editText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		h.log.Error().Err(err).Msg("не удалось отредактировать ответ")
	}
}

func optionMap(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func hasManagePermission(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageServer != 0
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// parseHexColor разбирает цвет вида "#7A36C9" или "7A36C9".
func parseHexColor(raw string) (int, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(cleaned) != 6 {
		return 0, fmt.Errorf("invalid color %q", raw)
	}
	value, err := strconv.ParseUint(cleaned, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", raw, err)
	}
	return int(value), nil
}
