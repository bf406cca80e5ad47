package roles

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
)

// Service следит за тем, чтобы эксклюзивную роль держал максимум один
// отслеживаемый участник.
type Service struct {
	chat domain.ChatGateway
	log  zerolog.Logger
}

// NewService создаёт сервис ролей.
func NewService(chat domain.ChatGateway, log zerolog.Logger) *Service {
	return &Service{chat: chat, log: log}
}

// ClearSingleton снимает роль со всех отслеживаемых участников.
// Каждое снятие независимо: сбой одного не мешает остальным.
func (s *Service) ClearSingleton(ctx context.Context, roleID string, users []domain.StoredUser) {
	for _, user := range users {
		if err := s.chat.RemoveRole(ctx, user.DiscordID, roleID); err != nil {
			s.log.Warn().Err(err).Str("role", roleID).Str("user", user.DiscordID).Msg("не удалось снять роль")
		}
	}
}

// UpdateSingleton передаёт эксклюзивную роль участнику memberID.
// Если роль уже у него, считаем инвариант выполненным и ничего не делаем.
// Иначе роль снимается со всех, затем (при shouldHold) выдаётся новому
// держателю: чистка best-effort, попытка выдачи гарантирована.
func (s *Service) UpdateSingleton(ctx context.Context, memberID, roleID string, users []domain.StoredUser, shouldHold bool) error {
	member, err := s.chat.FetchMember(ctx, memberID)
	if err != nil {
		return fmt.Errorf("%w: fetch member %s: %v", domain.ErrRoleOperation, memberID, err)
	}
	if member.HasRole(roleID) {
		return nil
	}

	s.ClearSingleton(ctx, roleID, users)

	if !shouldHold {
		return nil
	}
	if err := s.chat.AddRole(ctx, memberID, roleID); err != nil {
		return fmt.Errorf("%w: add role %s to %s: %v", domain.ErrRoleOperation, roleID, memberID, err)
	}
	return nil
}
