package leaderboard

import (
	"math"
	"strings"
	"time"

	"lastfm-crown-bot/internal/domain"
)

// maxStreamsInNormalDay — порог, после которого день считается аномальным:
// больше 250 прослушиваний за сутки почти наверняка означает импорт
// скробблов, а не живое прослушивание.
const maxStreamsInNormalDay = 250

// Normalize считает нормализованный счёт участника по целевому артисту.
// Чистая функция: результат зависит только от набора прослушиваний и
// имени артиста в нижнем регистре.
//
// Сначала дни с импортом истории ужимаются до масштаба среднего обычного
// дня, затем вклад артиста ограничивается паритетом с остальными
// прослушиваниями, чтобы нельзя было фармить счёт, слушая только его.
func Normalize(events []domain.StreamEvent, artistLower string) int {
	days := bucketByDay(events)

	var normalStreams, normalDays int
	for _, day := range days {
		if len(day) < maxStreamsInNormalDay {
			normalStreams += len(day)
			normalDays++
		}
	}
	averageNormalDayStreams := float64(normalStreams) / math.Max(float64(normalDays), 1)

	var dayNormalized int
	for _, day := range days {
		total := len(day)
		artistCount := countArtistStreams(day, artistLower)
		if total >= maxStreamsInNormalDay {
			// День с импортом: берём долю артиста из выгрузки и приводим её
			// к объёму среднего обычного дня.
			scale := math.Max(float64(total)/math.Max(averageNormalDayStreams, 0.1), 1)
			dayNormalized += int(math.Round(float64(artistCount) / scale))
			continue
		}
		dayNormalized += artistCount
	}

	var totalStreams, totalArtistStreams int
	for _, ev := range events {
		if !ev.Dated() {
			continue
		}
		totalStreams++
		if strings.Contains(strings.ToLower(ev.Artist), artistLower) {
			totalArtistStreams++
		}
	}

	// Паритетный потолок: артисту засчитывается не больше прослушиваний,
	// чем всем остальным вместе взятым.
	otherStreams := totalStreams - totalArtistStreams
	favoriteWeight := totalArtistStreams
	if otherStreams < favoriteWeight {
		favoriteWeight = otherStreams
	}
	multiplier := float64(favoriteWeight) / math.Max(float64(totalArtistStreams), 1)

	return int(math.Round(multiplier * float64(dayNormalized)))
}

// bucketByDay раскладывает прослушивания по календарным суткам UTC.
// Треки без даты (играющие прямо сейчас) в подсчёте не участвуют.
func bucketByDay(events []domain.StreamEvent) map[string][]domain.StreamEvent {
	days := make(map[string][]domain.StreamEvent)
	for _, ev := range events {
		if !ev.Dated() {
			continue
		}
		day := time.Unix(ev.UTS, 0).UTC().Format(time.DateOnly)
		days[day] = append(days[day], ev)
	}
	return days
}

func countArtistStreams(events []domain.StreamEvent, artistLower string) int {
	var n int
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Artist), artistLower) {
			n++
		}
	}
	return n
}
