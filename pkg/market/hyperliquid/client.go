package hyperliquid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"trading-bot/pkg/market"
)

const DefaultInfoURL = "https://api.hyperliquid.xyz/info"

// Client fetches candle snapshots from the Hyperliquid info endpoint.
type Client struct {
	InfoURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

// NewClient creates a client with a bounded request timeout.
func NewClient(infoURL string) *Client {
	if infoURL == "" {
		infoURL = DefaultInfoURL
	}
	return &Client{
		InfoURL:    infoURL,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		Now:        time.Now,
	}
}

type snapshotRequest struct {
	Type string      `json:"type"`
	Req  snapshotReq `json:"req"`
}

type snapshotReq struct {
	Coin      string `json:"coin"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

type rawCandle struct {
	T int64   `json:"t"`
	E int64   `json:"T"`
	O numeric `json:"o"`
	H numeric `json:"h"`
	L numeric `json:"l"`
	C numeric `json:"c"`
	V numeric `json:"v"`
}

// numeric accepts both "123.4" and 123.4.
type numeric float64

func (n *numeric) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*n = numeric(f)
	return nil
}

// Candles returns roughly bars candles ending now, ascending by open time.
// The last candle may still be in progress.
func (c *Client) Candles(ctx context.Context, coin, interval string, bars int) ([]market.Candle, error) {
	step, err := market.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	now := c.Now().UnixMilli()
	payload, err := sonic.Marshal(snapshotRequest{
		Type: "candleSnapshot",
		Req: snapshotReq{
			Coin:      coin,
			Interval:  interval,
			StartTime: now - int64(bars)*step.Milliseconds(),
			EndTime:   now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode candle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.InfoURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid candles: %w", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("hyperliquid candles status %d: %s", res.StatusCode, string(body))
	}

	var raw []rawCandle
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode candles: %w", err)
	}
	out := make([]market.Candle, 0, len(raw))
	for _, r := range raw {
		out = append(out, market.Candle{
			OpenTime:  r.T,
			CloseTime: r.E,
			Open:      float64(r.O),
			High:      float64(r.H),
			Low:       float64(r.L),
			Close:     float64(r.C),
			Volume:    float64(r.V),
		})
	}
	return out, nil
}
