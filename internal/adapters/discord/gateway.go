package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
)

// Gateway реализует domain.ChatGateway поверх discordgo для одного
// сервера. Все операции идемпотентны на стороне Discord.
type Gateway struct {
	session *discordgo.Session
	guildID string
	log     zerolog.Logger
}

var _ domain.ChatGateway = (*Gateway)(nil)

// NewGateway создаёт шлюз для сервера guildID.
func NewGateway(session *discordgo.Session, guildID string, log zerolog.Logger) *Gateway {
	return &Gateway{session: session, guildID: guildID, log: log}
}

// FetchMember возвращает участника сервера.
func (g *Gateway) FetchMember(ctx context.Context, userID string) (domain.Member, error) {
	start := time.Now()
	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "guild_member", g.guildID, start, err)
	if err != nil {
		return domain.Member{}, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return domain.Member{ID: userID, DisplayName: displayName(member), Roles: member.Roles}, nil
}

// AddRole выдаёт роль участнику.
func (g *Gateway) AddRole(ctx context.Context, userID, roleID string) error {
	start := time.Now()
	err := g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "role_add", roleID, start, err)
	if err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// RemoveRole снимает роль с участника. Снятие отсутствующей роли Discord
// считает успехом.
func (g *Gateway) RemoveRole(ctx context.Context, userID, roleID string) error {
	start := time.Now()
	err := g.session.GuildMemberRoleRemove(g.guildID, userID, roleID, discordgo.WithContext(ctx))
	metrics.ObserveNetworkRequest("discord", "role_remove", roleID, start, err)
	if err != nil {
		return fmt.Errorf("remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// SendEmbed отправляет embed в канал. Слишком длинное описание
// разбивается на несколько сообщений по границам строк.
func (g *Gateway) SendEmbed(ctx context.Context, channelID string, embed domain.Embed) error {
	parts := SplitDescription(embed.Description)
	if len(parts) == 0 {
		parts = []string{""}
	}
	for i, part := range parts {
		msg := &discordgo.MessageEmbed{
			Description: part,
			Color:       embed.Color,
		}
		if i == 0 {
			msg.Title = embed.Title
		}
		if i == len(parts)-1 && embed.FooterText != "" {
			msg.Footer = &discordgo.MessageEmbedFooter{Text: embed.FooterText}
		}
		start := time.Now()
		_, err := g.session.ChannelMessageSendEmbed(channelID, msg, discordgo.WithContext(ctx))
		metrics.ObserveNetworkRequest("discord", "send_embed", channelID, start, err)
		if err != nil {
			return fmt.Errorf("send embed to %s: %w", channelID, err)
		}
	}
	return nil
}

// displayName выбирает самое человекочитаемое имя участника.
func displayName(member *discordgo.Member) string {
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		if member.User.GlobalName != "" {
			return member.User.GlobalName
		}
		return member.User.Username
	}
	return ""
}
