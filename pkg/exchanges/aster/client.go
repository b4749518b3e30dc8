package aster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"trading-bot/pkg/exchanges/common"
)

const DefaultBaseURL = "https://fapi.asterdex.com"

// ErrSymbolNotFound is returned when exchangeInfo does not list the symbol.
var ErrSymbolNotFound = errors.New("aster: symbol not available")

// Config holds Aster futures credentials.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int64 // ms
}

// Client is a read-mostly Aster USDT futures client (Binance-compatible
// fapi endpoints) used for order previews.
type Client struct {
	cfg        Config
	httpClient *http.Client
	timeSync   *common.TimeSync
	retry      common.RetryPolicy

	mu      sync.Mutex
	filters map[string][]SymbolFilter
}

// NewClient creates a new Aster futures client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      common.DefaultRetryPolicy(),
		filters:    make(map[string][]SymbolFilter),
	}
	c.timeSync = common.NewTimeSync(c.ServerTime, logger)
	return c
}

// HasCredentials reports whether signed endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// StartTimeSync keeps the signed-request clock offset fresh until ctx ends.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// SymbolFilter is one entry of a symbol's exchangeInfo filters.
type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinQty      string `json:"minQty"`
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string         `json:"symbol"`
		Filters []SymbolFilter `json:"filters"`
	} `json:"symbols"`
}

// SymbolFilters returns the exchange filters for symbol. Results are cached
// for the life of the client.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) ([]SymbolFilter, error) {
	symbol = strings.ToUpper(symbol)
	c.mu.Lock()
	cached, ok := c.filters[symbol]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	body, err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info exchangeInfo
	if err := sonic.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		if strings.EqualFold(s.Symbol, symbol) {
			c.mu.Lock()
			c.filters[symbol] = s.Filters
			c.mu.Unlock()
			return s.Filters, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// MarkPrice returns the premium index mark price for symbol.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	body, err := c.doPublic(ctx, "/fapi/v1/premiumIndex", q)
	if err != nil {
		return 0, err
	}
	var res struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := sonic.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode premium index: %w", err)
	}
	mark := parseFloat(res.MarkPrice)
	if mark <= 0 {
		return 0, fmt.Errorf("cannot resolve mark price for %s", symbol)
	}
	return mark, nil
}

// PositionRisk is the signed position view for a symbol.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	PositionSide     string `json:"positionSide"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
}

// Open reports whether the position has a non-zero amount.
func (p PositionRisk) Open() bool {
	amt := parseFloat(p.PositionAmt)
	return amt > 1e-12 || amt < -1e-12
}

// Positions returns open positions for symbol.
func (c *Client) Positions(ctx context.Context, symbol string) ([]PositionRisk, error) {
	if !c.HasCredentials() {
		return nil, errors.New("aster: API key/secret required")
	}
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}
	body, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}
	var all []PositionRisk
	if err := sonic.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	out := all[:0]
	for _, p := range all {
		if p.Open() {
			out = append(out, p)
		}
	}
	return out, nil
}

// ServerTime fetches futures server time in epoch ms.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.doPublic(ctx, "/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	var res struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := sonic.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return res.ServerTime, nil
}

func (c *Client) now() int64 {
	if c.timeSync != nil && c.timeSync.Offset() != 0 {
		return c.timeSync.Now()
	}
	return time.Now().UnixMilli()
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.send(ctx, http.MethodGet, endpoint, nil, "")
}

// doSigned handles signing and sending requests.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(c.now(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))
	params.Set("signature", sign(params.Encode(), c.cfg.APISecret))

	encoded := params.Encode()
	endpoint := c.cfg.BaseURL + path
	switch method {
	case http.MethodGet, http.MethodDelete:
		return c.send(ctx, method, endpoint+"?"+encoded, nil, c.cfg.APIKey)
	default:
		return c.send(ctx, method, endpoint, []byte(encoded), c.cfg.APIKey)
	}
}

func (c *Client) send(ctx context.Context, method, endpoint string, form []byte, apiKey string) ([]byte, error) {
	var out []byte
	err := c.retry.Do(ctx, func() error {
		var reader io.Reader
		if form != nil {
			reader = strings.NewReader(string(form))
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return err
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if apiKey != "" {
			req.Header.Set("X-MBX-APIKEY", apiKey)
		}
		res, err := c.httpClient.Do(req)
		if err != nil {
			return &common.APIError{Message: "Network error: " + err.Error(), Err: err}
		}
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode >= 300 {
			return decodeError(res.StatusCode, body)
		}
		out = body
		return nil
	})
	return out, err
}

func decodeError(status int, body []byte) *common.APIError {
	apiErr := &common.APIError{Status: status, Message: fmt.Sprintf("aster status %d: %s", status, string(body))}
	var res struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := sonic.Unmarshal(body, &res); err == nil && res.Msg != "" {
		apiErr.Code = strconv.Itoa(res.Code)
		apiErr.Message = res.Msg
	}
	return apiErr
}
