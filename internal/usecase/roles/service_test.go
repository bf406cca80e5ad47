package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
)

// stubChat эмулирует шлюз чата с изменяемым состоянием ролей.
type stubChat struct {
	members    map[string]*domain.Member
	removeErr  map[string]error
	addErr     error
	addCalls   int
	fetchErr   error
	clearOrder []string
}

func newStubChat(ids ...string) *stubChat {
	members := make(map[string]*domain.Member, len(ids))
	for _, id := range ids {
		members[id] = &domain.Member{ID: id, DisplayName: id}
	}
	return &stubChat{members: members, removeErr: map[string]error{}}
}

func (c *stubChat) FetchMember(_ context.Context, userID string) (domain.Member, error) {
	if c.fetchErr != nil {
		return domain.Member{}, c.fetchErr
	}
	m, ok := c.members[userID]
	if !ok {
		return domain.Member{}, errors.New("unknown member")
	}
	return *m, nil
}

func (c *stubChat) AddRole(_ context.Context, userID, roleID string) error {
	c.addCalls++
	if c.addErr != nil {
		return c.addErr
	}
	m := c.members[userID]
	if !m.HasRole(roleID) {
		m.Roles = append(m.Roles, roleID)
	}
	return nil
}

func (c *stubChat) RemoveRole(_ context.Context, userID, roleID string) error {
	c.clearOrder = append(c.clearOrder, userID)
	if err := c.removeErr[userID]; err != nil {
		return err
	}
	m := c.members[userID]
	kept := m.Roles[:0]
	for _, r := range m.Roles {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.Roles = kept
	return nil
}

func (c *stubChat) SendEmbed(context.Context, string, domain.Embed) error { return nil }

func holders(c *stubChat, roleID string) []string {
	var out []string
	for id, m := range c.members {
		if m.HasRole(roleID) {
			out = append(out, id)
		}
	}
	return out
}

func trackedUsers(ids ...string) []domain.StoredUser {
	users := make([]domain.StoredUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, domain.StoredUser{DiscordID: id})
	}
	return users
}

func TestUpdateSingletonMovesRoleBetweenHolders(t *testing.T) {
	chat := newStubChat("a", "b", "c")
	svc := NewService(chat, zerolog.Nop())
	users := trackedUsers("a", "b", "c")

	if err := svc.UpdateSingleton(context.Background(), "a", "crown", users, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := svc.UpdateSingleton(context.Background(), "b", "crown", users, true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	got := holders(chat, "crown")
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("ожидали единственного держателя b, получили %v", got)
	}
}

func TestUpdateSingletonShortCircuitsCurrentHolder(t *testing.T) {
	chat := newStubChat("a", "b")
	chat.members["a"].Roles = []string{"crown"}
	// инвариант нарушен извне, но короткое замыкание ему доверяет
	chat.members["b"].Roles = []string{"crown"}
	svc := NewService(chat, zerolog.Nop())

	if err := svc.UpdateSingleton(context.Background(), "a", "crown", trackedUsers("a", "b"), true); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(chat.clearOrder) != 0 || chat.addCalls != 0 {
		t.Fatal("при уже выданной роли не должно быть операций")
	}
}

func TestUpdateSingletonClearFailureDoesNotBlockGrant(t *testing.T) {
	chat := newStubChat("a", "b", "c")
	chat.members["b"].Roles = []string{"crown"}
	chat.removeErr["b"] = errors.New("discord down")
	svc := NewService(chat, zerolog.Nop())

	if err := svc.UpdateSingleton(context.Background(), "a", "crown", trackedUsers("a", "b", "c"), true); err != nil {
		t.Fatalf("сбой одной чистки не должен ронять выдачу: %v", err)
	}
	if !chat.members["a"].HasRole("crown") {
		t.Fatal("новый держатель не получил роль")
	}
}

func TestUpdateSingletonWithoutHoldOnlyClears(t *testing.T) {
	chat := newStubChat("a", "b")
	chat.members["b"].Roles = []string{"crown"}
	svc := NewService(chat, zerolog.Nop())

	if err := svc.UpdateSingleton(context.Background(), "a", "crown", trackedUsers("a", "b"), false); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got := holders(chat, "crown"); got != nil {
		t.Fatalf("роль должна быть снята со всех, держат %v", got)
	}
	if chat.addCalls != 0 {
		t.Fatal("без shouldHold роль выдаваться не должна")
	}
}

func TestUpdateSingletonAddFailureReturnsRoleError(t *testing.T) {
	chat := newStubChat("a", "b")
	chat.addErr = errors.New("missing permissions")
	svc := NewService(chat, zerolog.Nop())

	err := svc.UpdateSingleton(context.Background(), "a", "crown", trackedUsers("a", "b"), true)
	if !errors.Is(err, domain.ErrRoleOperation) {
		t.Fatalf("ожидали ErrRoleOperation, получили %v", err)
	}
}

func TestClearSingletonRemovesFromEveryone(t *testing.T) {
	chat := newStubChat("a", "b", "c")
	chat.members["a"].Roles = []string{"crown"}
	chat.members["c"].Roles = []string{"crown"}
	svc := NewService(chat, zerolog.Nop())

	svc.ClearSingleton(context.Background(), "crown", trackedUsers("a", "b", "c"))
	if got := holders(chat, "crown"); got != nil {
		t.Fatalf("после чистки роль держат %v", got)
	}
}
