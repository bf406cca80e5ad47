package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// pageLimit — максимум треков на страницу, который отдаёт Last.fm.
const pageLimit = 200

// Config описывает параметры клиента Last.fm.
type Config struct {
	APIKey  string
	Secret  string
	BaseURL string
	// PageDelay — пауза между страницами. Last.fm ограничивает запросы
	// одним в секунду, по умолчанию ждём 1.2 секунды с запасом.
	PageDelay time.Duration
	Timeout   time.Duration
}

// Client ходит в Last.fm API. Страницы истории запрашиваются строго
// последовательно с паузой: лимит запросов общий на всё приложение.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	secret     string
	pageDelay  time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

var _ domain.ActivityClient = (*Client)(nil)

// NewClient создаёт клиент Last.fm.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	pageDelay := cfg.PageDelay
	if pageDelay == 0 {
		pageDelay = 1200 * time.Millisecond
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		secret:     cfg.Secret,
		pageDelay:  pageDelay,
		log:        log,
		now:        time.Now,
	}
}

// recentTracksResponse — формат ответа user.getRecentTracks.
// Поле track разбирается лениво: при единственном треке Last.fm может
// вернуть объект вместо массива.
type recentTracksResponse struct {
	RecentTracks *struct {
		Track json.RawMessage `json:"track"`
		Attr  struct {
			TotalPages string `json:"totalPages"`
		} `json:"@attr"`
	} `json:"recenttracks"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type trackPayload struct {
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
}

// FetchPeriodStreams выгружает историю прослушиваний пользователя за
// период, начиная с sinceMillis. Ошибка любой страницы роняет выгрузку
// целиком: частичные результаты не возвращаются.
func (c *Client) FetchPeriodStreams(ctx context.Context, username string, period domain.Period, sinceMillis int64) ([]domain.StreamEvent, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	startMillis, endMillis := period.Bounds()
	// не запрашиваем то, что уже лежит в снапшоте, и не выходим за
	// пределы периода или текущего момента
	fromMillis := max64(sinceMillis, startMillis)
	toMillis := min64(c.now().UTC().UnixMilli(), endMillis)

	var events []domain.StreamEvent
	lastPage := 1
	for page := 1; page <= lastPage; page++ {
		resp, err := c.fetchPage(ctx, username, fromMillis/1000, toMillis/1000, page)
		if err != nil {
			metrics.LastfmFetchErrors.Inc()
			return nil, err
		}
		metrics.LastfmPagesFetched.Inc()

		if resp.RecentTracks == nil || len(resp.RecentTracks.Track) == 0 {
			// контейнера нет — данных больше нет (например, остался только
			// играющий прямо сейчас трек)
			break
		}
		var tracks []trackPayload
		if err := json.Unmarshal(resp.RecentTracks.Track, &tracks); err != nil {
			// одиночный трек приходит объектом, а не массивом
			var single trackPayload
			if err := json.Unmarshal(resp.RecentTracks.Track, &single); err != nil {
				break
			}
			tracks = []trackPayload{single}
		}

		if pages, err := strconv.Atoi(resp.RecentTracks.Attr.TotalPages); err == nil {
			lastPage = pages
		}

		for _, track := range tracks {
			ev := domain.StreamEvent{Artist: track.Artist.Text}
			if track.Date != nil {
				if uts, err := strconv.ParseInt(track.Date.UTS, 10, 64); err == nil {
					ev.UTS = uts
				}
			}
			events = append(events, ev)
		}

		if page < lastPage {
			if err := c.sleep(ctx); err != nil {
				return nil, err
			}
		}
	}
	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, username string, fromSec, toSec int64, page int) (*recentTracksResponse, error) {
	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", username)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("page", strconv.Itoa(page))
	params.Set("from", strconv.FormatInt(fromSec, 10))
	params.Set("to", strconv.FormatInt(toSec, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrExternalFetch, err)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("lastfm", "user.getrecenttracks", username, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d for %s: %v", domain.ErrExternalFetch, page, username, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read page %d for %s: %v", domain.ErrExternalFetch, page, username, err)
	}

	var resp recentTracksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode page %d for %s: %v", domain.ErrExternalFetch, page, username, err)
	}
	// Last.fm кладёт ошибку в тело ответа, статус при этом может быть любым
	if resp.Error != 0 {
		return nil, fmt.Errorf("%w: lastfm error %d: %s", domain.ErrExternalFetch, resp.Error, resp.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: page %d for %s: status %d: %s", domain.ErrExternalFetch, page, username, httpResp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &resp, nil
}

func (c *Client) sleep(ctx context.Context) error {
	timer := time.NewTimer(c.pageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
