package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPeriodKeyIsZeroPadded(t *testing.T) {
	p := Period{Year: 2026, Month: 3}
	if p.Key() != "2026-03" {
		t.Fatalf("ожидали ключ 2026-03, получили %s", p.Key())
	}
}

func TestPeriodBounds(t *testing.T) {
	p := Period{Year: 2026, Month: 2}
	startMillis, endMillis := p.Bounds()
	start := time.UnixMilli(startMillis).UTC()
	end := time.UnixMilli(endMillis).UTC()
	if start.Day() != 1 || start.Month() != time.February {
		t.Fatalf("ожидали начало 1 февраля, получили %s", start)
	}
	if end.Month() != time.February || end.Day() != 28 {
		t.Fatalf("ожидали конец 28 февраля, получили %s", end)
	}
	if end.Sub(start) != 28*24*time.Hour-time.Millisecond {
		t.Fatalf("неверная длительность месяца: %s", end.Sub(start))
	}
}

func TestPeriodValidate(t *testing.T) {
	cases := []struct {
		name   string
		period Period
		ok     bool
	}{
		{"обычный месяц", Period{2026, 8}, true},
		{"нулевой месяц", Period{2026, 0}, false},
		{"тринадцатый месяц", Period{2026, 13}, false},
		{"слишком ранний год", Period{1999, 5}, false},
		{"слишком поздний год", Period{2101, 5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.period.Validate()
			if tc.ok && err != nil {
				t.Fatalf("не ожидали ошибку: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("ожидали ошибку валидации")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ожидали ErrValidation, получили %v", err)
				}
			}
		})
	}
}

func TestPeriodPreviousWrapsYear(t *testing.T) {
	p := Period{Year: 2026, Month: 1}
	prev := p.Previous()
	if prev.Year != 2025 || prev.Month != 12 {
		t.Fatalf("ожидали 2025-12, получили %s", prev.Key())
	}
}

func TestCurrentPeriodUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+14", 14*3600)
	// 31 декабря 23:00 UTC — в UTC+14 уже следующий год
	now := time.Date(2026, 1, 1, 13, 0, 0, 0, loc)
	p := CurrentPeriod(now)
	if p.Year != 2025 || p.Month != 12 {
		t.Fatalf("ожидали период 2025-12 по UTC, получили %s", p.Key())
	}
}
