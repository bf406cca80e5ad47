package leaderboard

import (
	"fmt"
	"strings"

	"lastfm-crown-bot/internal/domain"
)

// narrative — исходные данные для текстового представления лидерборда.
type narrative struct {
	Type         domain.LeaderboardType
	Period       domain.Period
	ArtistName   string
	Entries      []domain.RankedEntry
	IncumbentID  string
	HasIncumbent bool
}

// formatTitle строит заголовок embed-сообщения.
func formatTitle(n narrative) string {
	if n.Type == domain.LeaderboardMonarch {
		if len(n.Entries) == 0 || n.Entries[0].Datum.NormalizedStreams == 0 {
			return fmt.Sprintf("The Monthly Streaming Monarch Leaderboard - %s", n.Period.Title())
		}
		top := n.Entries[0]
		return fmt.Sprintf("The Monthly Streaming Monarch for %s is %s with %d %s streams!",
			n.Period.Title(), top.DisplayName, top.Datum.NormalizedStreams, n.ArtistName)
	}
	return fmt.Sprintf("Monthly Streaming Heir Leaderboard - %s", n.Period.Title())
}

// formatDescription строит ранжированный список с медальным маркером и
// строками о смене лидера. При нулевом топе список заменяется сообщением
// о том, что никто ещё не слушал артиста.
func formatDescription(n narrative) string {
	if len(n.Entries) == 0 || n.Entries[0].Datum.NormalizedStreams == 0 {
		if n.Type == domain.LeaderboardHeir {
			return fmt.Sprintf("No one has listened to any %s songs yet this month. That means to become the heir to the throne, you just have to listen to one song!", n.ArtistName)
		}
		return fmt.Sprintf("Well this is awkward...no one listened to %s the whole month.", n.ArtistName)
	}

	var b strings.Builder
	for i, entry := range n.Entries {
		marker := fmt.Sprintf("%d.", i+1)
		if i == 0 {
			marker = "👑"
		}
		streams := entry.Datum.NormalizedStreams
		plural := "plays"
		if streams == 1 {
			plural = "play"
		}
		fmt.Fprintf(&b, "%s [%s](https://last.fm/user/%s) - **%d** %s %s\n",
			marker, entry.DisplayName, entry.LastfmUsername, streams, n.ArtistName, plural)
	}

	top := n.Entries[0]
	switch {
	case !n.HasIncumbent:
		fmt.Fprintf(&b, "\n<@%s> is the new heir to the throne!", top.Datum.UserDiscordID)
	case n.IncumbentID != top.Datum.UserDiscordID:
		fmt.Fprintf(&b, "\n<@%s> overtook <@%s> and is now heir to the throne!", top.Datum.UserDiscordID, n.IncumbentID)
	}
	return strings.TrimRight(b.String(), "\n")
}
