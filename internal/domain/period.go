package domain

import (
	"fmt"
	"time"
)

// Period — календарный месяц по UTC, окно подсчёта лидерборда.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// CurrentPeriod возвращает период, в который попадает момент now.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// Previous возвращает предыдущий календарный месяц.
func (p Period) Previous() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Validate отсекает неправдоподобные периоды до любых внешних вызовов.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d is out of range", ErrValidation, p.Month)
	}
	if p.Year < 2000 || p.Year > 2100 {
		return fmt.Errorf("%w: year %d is out of range", ErrValidation, p.Year)
	}
	return nil
}

// Key — каноничный ключ снапшота в хранилище. Формат фиксированный,
// с ведущим нулём месяца: смена формата потребует миграции данных.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Bounds возвращает первую и последнюю миллисекунды месяца по UTC.
func (p Period) Bounds() (startMillis, endMillis int64) {
	start := time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)
	return start.UnixMilli(), end.UnixMilli()
}

// Contains проверяет, попадает ли момент в период.
func (p Period) Contains(t time.Time) bool {
	startMillis, endMillis := p.Bounds()
	ms := t.UTC().UnixMilli()
	return ms >= startMillis && ms <= endMillis
}

// Title — название месяца для заголовков ("August 2026").
func (p Period) Title() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month).String(), p.Year)
}
