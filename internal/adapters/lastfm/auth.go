package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"lastfm-crown-bot/internal/domain"
	"lastfm-crown-bot/internal/infra/metrics"
)

// Session — авторизованная сессия пользователя Last.fm.
type Session struct {
	Username   string
	SessionKey string
}

// GetToken запрашивает одноразовый токен авторизации.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	var resp struct {
		Token   string `json:"token"`
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := c.signedCall(ctx, "auth.gettoken", nil, &resp); err != nil {
		return "", err
	}
	if resp.Error != 0 || resp.Token == "" {
		return "", fmt.Errorf("%w: auth.gettoken error %d: %s", domain.ErrExternalFetch, resp.Error, resp.Message)
	}
	return resp.Token, nil
}

// AuthURL — ссылка, по которой пользователь подтверждает токен.
func (c *Client) AuthURL(token string) string {
	return fmt.Sprintf("https://www.last.fm/api/auth/?api_key=%s&token=%s", url.QueryEscape(c.apiKey), url.QueryEscape(token))
}

// GetSession обменивает подтверждённый токен на ключ сессии.
func (c *Client) GetSession(ctx context.Context, token string) (Session, error) {
	var resp struct {
		Session struct {
			Name string `json:"name"`
			Key  string `json:"key"`
		} `json:"session"`
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := c.signedCall(ctx, "auth.getsession", map[string]string{"token": token}, &resp); err != nil {
		return Session{}, err
	}
	if resp.Error != 0 || resp.Session.Key == "" {
		return Session{}, fmt.Errorf("%w: auth.getsession error %d: %s", domain.ErrExternalFetch, resp.Error, resp.Message)
	}
	return Session{Username: resp.Session.Name, SessionKey: resp.Session.Key}, nil
}

// signedCall выполняет подписанный вызов метода API.
func (c *Client) signedCall(ctx context.Context, method string, extra map[string]string, out any) error {
	params := map[string]string{
		"method":  method,
		"api_key": c.apiKey,
	}
	for k, v := range extra {
		params[k] = v
	}
	params["api_sig"] = c.sign(params)

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	// format в подпись не входит
	values.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrExternalFetch, err)
	}
	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	metrics.ObserveNetworkRequest("lastfm", method, "auth", start, err)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrExternalFetch, method, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrExternalFetch, method, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrExternalFetch, method, err)
	}
	return nil
}

// sign считает api_sig: md5 от конкатенации отсортированных пар
// ключ-значение и общего секрета.
func (c *Client) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var raw string
	for _, k := range keys {
		raw += k + params[k]
	}
	raw += c.secret
	return fmt.Sprintf("%x", md5.Sum([]byte(raw)))
}
