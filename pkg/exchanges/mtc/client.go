package mtc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"trading-bot/pkg/exchanges/common"
)

const DefaultBaseURL = "https://boktoshi.com/api/v1"

// Client talks to the MTC trading API with bearer-token auth.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	Retry      common.RetryPolicy
}

var _ common.Venue = (*Client)(nil)

// NewClient creates a client; an empty apiKey leaves it usable for public
// endpoints only.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		Retry:      common.DefaultRetryPolicy(),
	}
}

// HasCredentials reports whether an API key is configured.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// RegisterBot registers a new bot and returns the venue response (which
// carries the issued API key).
func (c *Client) RegisterBot(ctx context.Context, name, description string) (common.Response, error) {
	payload := map[string]string{"name": name, "description": description}
	v, err := c.do(ctx, http.MethodPost, "/bots/register", nil, payload, false)
	if err != nil {
		return nil, fmt.Errorf("register bot: %w", err)
	}
	return asResponse(v), nil
}

// Account returns the BOKS balance view.
func (c *Client) Account(ctx context.Context) (common.Account, error) {
	v, err := c.do(ctx, http.MethodGet, "/account", nil, nil, true)
	if err != nil {
		return common.Account{}, fmt.Errorf("account: %w", err)
	}
	raw, _ := v.(map[string]any)
	acct := common.Account{Raw: raw}
	if boks, ok := raw["boks"].(map[string]any); ok {
		acct.Balance = toFloat(boks["balance"])
		acct.AvailableBalance = toFloat(boks["availableBalance"])
		acct.LockedMargin = toFloat(boks["lockedMargin"])
	}
	if notices, ok := raw["notices"].([]any); ok {
		acct.Notices = notices
	}
	return acct, nil
}

// Positions returns open positions. The venue answers either a bare list or
// {"positions": [...]}.
func (c *Client) Positions(ctx context.Context) ([]common.Position, error) {
	v, err := c.do(ctx, http.MethodGet, "/positions", nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	items := listField(v, "positions")
	out := make([]common.Position, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, common.Position{
			ID:            common.Response(m).PositionID(),
			Coin:          strings.ToUpper(fmt.Sprint(orEmpty(m["coin"]))),
			Side:          common.Side(strings.ToUpper(fmt.Sprint(orEmpty(m["side"])))),
			UnrealizedPnL: toFloat(m["unrealizedPnl"]),
			OpenedAt:      int64(toFloat(m["openedAt"])),
			Amount:        toFloat(m["positionAmount"]),
			Raw:           m,
		})
	}
	return out, nil
}

// History returns closed trade history, newest first as the venue orders it.
func (c *Client) History(ctx context.Context, limit int) ([]map[string]any, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	v, err := c.do(ctx, http.MethodGet, "/history", q, nil, true)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	items := listField(v, "history", "items")
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// OpenTrade opens a position.
func (c *Client) OpenTrade(ctx context.Context, req common.OpenRequest) (common.Response, error) {
	v, err := c.do(ctx, http.MethodPost, "/trade/open", nil, req, true)
	if err != nil {
		return nil, fmt.Errorf("open trade: %w", err)
	}
	return asResponse(v), nil
}

// CloseTrade closes a position by id.
func (c *Client) CloseTrade(ctx context.Context, req common.CloseRequest) (common.Response, error) {
	v, err := c.do(ctx, http.MethodPost, "/trade/close", nil, req, true)
	if err != nil {
		return nil, fmt.Errorf("close trade: %w", err)
	}
	return asResponse(v), nil
}

// DailyClaim claims the daily BOKS allowance. A claim inside the cooldown
// fails with code COOLDOWN.
func (c *Client) DailyClaim(ctx context.Context) (common.Response, error) {
	v, err := c.do(ctx, http.MethodPost, "/daily-claim", nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("daily claim: %w", err)
	}
	return asResponse(v), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, auth bool) (any, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body []byte
	if payload != nil {
		b, err := sonic.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		body = b
	}

	var out any
	err := c.Retry.Do(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth && c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		res, err := c.httpClient.Do(req)
		if err != nil {
			return &common.APIError{Message: "Network error: " + err.Error(), Err: err}
		}
		defer res.Body.Close()
		data, _ := io.ReadAll(res.Body)

		if res.StatusCode >= 400 {
			return decodeError(res.StatusCode, data)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			out = map[string]any{}
			return nil
		}
		if err := sonic.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
	return out, err
}

func decodeError(status int, data []byte) *common.APIError {
	apiErr := &common.APIError{Status: status, Message: strings.TrimSpace(string(data))}
	var body struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &body); err == nil {
		if body.Code != nil {
			apiErr.Code = fmt.Sprint(body.Code)
		}
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Error != "":
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func asResponse(v any) common.Response {
	if m, ok := v.(map[string]any); ok {
		return common.Response(m)
	}
	return common.Response{"result": v}
}

// listField returns v itself when it is a list, else the first list found
// under keys.
func listField(v any, keys ...string) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	for _, k := range keys {
		if list, ok := m[k].([]any); ok {
			return list
		}
	}
	return nil
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
