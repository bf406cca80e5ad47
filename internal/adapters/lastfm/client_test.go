package lastfm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		APIKey:    "key",
		Secret:    "secret",
		BaseURL:   srv.URL,
		PageDelay: time.Millisecond,
	}, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }
	return c
}

func trackJSON(artist string, uts int64) string {
	if uts == 0 {
		return fmt.Sprintf(`{"artist":{"#text":%q}}`, artist)
	}
	return fmt.Sprintf(`{"artist":{"#text":%q},"date":{"uts":"%d"}}`, artist, uts)
}

func TestFetchPeriodStreamsPaginates(t *testing.T) {
	var pages []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		if r.URL.Query().Get("limit") != "200" {
			t.Errorf("ожидали limit=200, получили %s", r.URL.Query().Get("limit"))
		}
		body := `{"recenttracks":{"track":[` + trackJSON("Interlucid", 1785600000) + `,` + trackJSON("Other", 1785600100) + `],"@attr":{"totalPages":"2"}}}`
		if page == "2" {
			body = `{"recenttracks":{"track":[` + trackJSON("Interlucid", 1785600200) + `],"@attr":{"totalPages":"2"}}}`
		}
		fmt.Fprint(w, body)
	})

	events, err := c.FetchPeriodStreams(context.Background(), "ari", domain.Period{Year: 2026, Month: 8}, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("ожидали 3 прослушивания с двух страниц, получили %d", len(events))
	}
	if len(pages) != 2 || pages[0] != "1" || pages[1] != "2" {
		t.Fatalf("ожидали последовательные страницы 1,2, получили %v", pages)
	}
}

func TestFetchPeriodStreamsRespectsSinceBoundary(t *testing.T) {
	var gotFrom, gotTo string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		fmt.Fprint(w, `{"recenttracks":{"track":[],"@attr":{"totalPages":"1"}}}`)
	})

	period := domain.Period{Year: 2026, Month: 8}
	since := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	if _, err := c.FetchPeriodStreams(context.Background(), "ari", period, since); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	wantFrom := fmt.Sprintf("%d", since/1000)
	if gotFrom != wantFrom {
		t.Fatalf("ожидали from=%s (граница кэша), получили %s", wantFrom, gotFrom)
	}
	// верхняя граница — текущий момент, а не конец месяца
	wantTo := fmt.Sprintf("%d", time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC).Unix())
	if gotTo != wantTo {
		t.Fatalf("ожидали to=%s (сейчас), получили %s", wantTo, gotTo)
	}
}

func TestFetchPeriodStreamsPageErrorFailsWhole(t *testing.T) {
	var calls int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"error":29,"message":"Rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, `{"recenttracks":{"track":[`+trackJSON("Interlucid", 1785600000)+`],"@attr":{"totalPages":"3"}}}`)
	})

	events, err := c.FetchPeriodStreams(context.Background(), "ari", domain.Period{Year: 2026, Month: 8}, 0)
	if err == nil {
		t.Fatal("ожидали ошибку выгрузки")
	}
	if !errors.Is(err, domain.ErrExternalFetch) {
		t.Fatalf("ожидали ErrExternalFetch, получили %v", err)
	}
	if events != nil {
		t.Fatal("частичные результаты не должны возвращаться")
	}
}

func TestFetchPeriodStreamsMissingContainerEndsData(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})

	events, err := c.FetchPeriodStreams(context.Background(), "ari", domain.Period{Year: 2026, Month: 8}, 0)
	if err != nil {
		t.Fatalf("отсутствие контейнера не должно быть ошибкой: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("ожидали пустой результат, получили %d", len(events))
	}
}

func TestFetchPeriodStreamsSingleTrackObject(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"recenttracks":{"track":`+trackJSON("Interlucid", 0)+`,"@attr":{"totalPages":"1"}}}`)
	})

	events, err := c.FetchPeriodStreams(context.Background(), "ari", domain.Period{Year: 2026, Month: 8}, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("ожидали один трек-объект, получили %d", len(events))
	}
	if events[0].Dated() {
		t.Fatal("играющий сейчас трек не должен иметь даты")
	}
}

func TestFetchPeriodStreamsRejectsInvalidPeriod(t *testing.T) {
	var called bool
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.FetchPeriodStreams(context.Background(), "ari", domain.Period{Year: 2026, Month: 13}, 0)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
	if called {
		t.Fatal("валидация должна отсекать запрос до сети")
	}
}
