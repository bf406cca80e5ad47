package leaderboard

import (
	"testing"
	"time"

	"lastfm-crown-bot/internal/domain"
)

const testArtist = "interlucid"

// streamsOnDay генерирует прослушивания в пределах одних суток UTC.
func streamsOnDay(day time.Time, artist string, count int) []domain.StreamEvent {
	events := make([]domain.StreamEvent, 0, count)
	base := time.Date(day.Year(), day.Month(), day.Day(), 1, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		events = append(events, domain.StreamEvent{
			Artist: artist,
			UTS:    base.Add(time.Duration(i) * time.Minute).Unix(),
		})
	}
	return events
}

func day(n int) time.Time {
	return time.Date(2026, 8, n, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeZeroEvents(t *testing.T) {
	if got := Normalize(nil, testArtist); got != 0 {
		t.Fatalf("ожидали 0 на пустой истории, получили %d", got)
	}
}

func TestNormalizeZeroArtistStreams(t *testing.T) {
	events := streamsOnDay(day(1), "Someone Else", 40)
	if got := Normalize(events, testArtist); got != 0 {
		t.Fatalf("ожидали 0 без прослушиваний артиста, получили %d", got)
	}
}

func TestNormalizeArtistMatchIsCaseInsensitiveSubstring(t *testing.T) {
	events := append(
		streamsOnDay(day(1), "INTERLUCID feat. Friend", 10),
		streamsOnDay(day(2), "other artist", 10)...,
	)
	got := Normalize(events, testArtist)
	if got != 10 {
		t.Fatalf("ожидали 10 при регистронезависимом вхождении, получили %d", got)
	}
}

func TestNormalizeIgnoresNowPlaying(t *testing.T) {
	events := append(
		streamsOnDay(day(1), "Interlucid", 5),
		streamsOnDay(day(1), "other", 5)...,
	)
	// играющий сейчас трек не имеет даты и не должен влиять на счёт
	withNowPlaying := append(events, domain.StreamEvent{Artist: "Interlucid"})
	if Normalize(events, testArtist) != Normalize(withNowPlaying, testArtist) {
		t.Fatal("трек без даты не должен менять счёт")
	}
}

func TestNormalizeBoundedByTotalEvents(t *testing.T) {
	histories := [][]domain.StreamEvent{
		streamsOnDay(day(1), "Interlucid", 30),
		append(streamsOnDay(day(1), "Interlucid", 300), streamsOnDay(day(2), "other", 50)...),
		append(streamsOnDay(day(3), "Interlucid", 10), streamsOnDay(day(4), "other", 10)...),
	}
	for i, events := range histories {
		got := Normalize(events, testArtist)
		if got < 0 || got > len(events) {
			t.Fatalf("история %d: счёт %d вне диапазона [0, %d]", i, got, len(events))
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	events := append(
		streamsOnDay(day(1), "Interlucid", 20),
		streamsOnDay(day(2), "other", 35)...,
	)
	first := Normalize(events, testArtist)
	second := Normalize(events, testArtist)
	if first != second {
		t.Fatalf("повторный вызов дал другой счёт: %d != %d", first, second)
	}
}

func TestNormalizeDampensImportDay(t *testing.T) {
	// обычные дни по ~50 прослушиваний и один день с импортом 500 треков артиста
	var events []domain.StreamEvent
	for d := 1; d <= 5; d++ {
		events = append(events, streamsOnDay(day(d), "other artist", 50)...)
	}
	events = append(events, streamsOnDay(day(10), "Interlucid", 500)...)

	got := Normalize(events, testArtist)

	// наивный подсчёт засчитал бы все 500: паритетный потолок тут не
	// ограничивает (250 других прослушиваний за обычные дни), поэтому
	// вся разница — заслуга дневной нормализации
	if got >= 250 {
		t.Fatalf("аномальный день не ужат: счёт %d", got)
	}
	if got == 0 {
		t.Fatal("аномальный день не должен обнуляться полностью")
	}
}

func TestNormalizeParityCap(t *testing.T) {
	// фанат слушает только артиста, обычный слушатель — 50/50 при том же объёме
	onlyArtist := append(
		streamsOnDay(day(1), "Interlucid", 40),
		streamsOnDay(day(2), "Interlucid", 40)...,
	)
	balanced := append(
		streamsOnDay(day(1), "Interlucid", 40),
		streamsOnDay(day(2), "other artist", 40)...,
	)

	onlyScore := Normalize(onlyArtist, testArtist)
	balancedScore := Normalize(balanced, testArtist)
	if onlyScore > balancedScore {
		t.Fatalf("слушающий только артиста обошёл сбалансированного: %d > %d", onlyScore, balancedScore)
	}
}

func TestNormalizeExactThresholdDayIsAnomalous(t *testing.T) {
	// день ровно в 250 прослушиваний уже считается аномальным
	normal := streamsOnDay(day(1), "other", 50)
	threshold := append(normal, streamsOnDay(day(2), "Interlucid", maxStreamsInNormalDay)...)

	got := Normalize(threshold, testArtist)
	if got >= maxStreamsInNormalDay {
		t.Fatalf("пороговый день не ужат: счёт %d", got)
	}
}
