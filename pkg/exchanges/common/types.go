package common

import (
	"errors"
	"fmt"
	"strings"
)

// Side denotes position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Account is the venue balance view. Balance is free collateral, LockedMargin
// is collateral held by open positions.
type Account struct {
	Balance          float64        `json:"balance"`
	AvailableBalance float64        `json:"availableBalance"`
	LockedMargin     float64        `json:"lockedMargin"`
	Notices          []any          `json:"notices,omitempty"`
	Raw              map[string]any `json:"-"`
}

// Position is a venue-owned open position.
type Position struct {
	ID            string         `json:"positionId"`
	Coin          string         `json:"coin"`
	Side          Side           `json:"side"`
	UnrealizedPnL float64        `json:"unrealizedPnl"`
	OpenedAt      int64          `json:"openedAt"`
	Amount        float64        `json:"positionAmount"`
	Raw           map[string]any `json:"-"`
}

// IsLongOn reports whether p is a LONG on coin with a usable id.
func (p Position) IsLongOn(coin string) bool {
	return p.ID != "" && p.Side == SideLong && strings.EqualFold(p.Coin, coin)
}

// FindPosition returns the position with id, if open.
func FindPosition(positions []Position, id string) (Position, bool) {
	if id == "" {
		return Position{}, false
	}
	for _, p := range positions {
		if p.ID == id {
			return p, true
		}
	}
	return Position{}, false
}

// OpenRequest is the payload for opening a position.
type OpenRequest struct {
	Coin       string  `json:"coin"`
	Side       Side    `json:"side"`
	Margin     float64 `json:"margin"`
	Leverage   float64 `json:"leverage"`
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`
	Comment    string  `json:"comment"`
}

// CloseRequest is the payload for closing a position.
type CloseRequest struct {
	PositionID string `json:"positionId"`
	Comment    string `json:"comment"`
}

// Response is a decoded venue JSON object whose shape varies by endpoint.
type Response map[string]any

// PositionID looks for "positionId" at the top level, then under
// "position", "data" and "result".
func (r Response) PositionID() string {
	if id := idString(r["positionId"]); id != "" {
		return id
	}
	for _, key := range []string{"position", "data", "result"} {
		if nested, ok := r[key].(map[string]any); ok {
			if id := idString(nested["positionId"]); id != "" {
				return id
			}
		}
	}
	return ""
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}

// APIError is a venue failure with a machine-readable code and HTTP status.
// Status 0 means the request never got a response.
type APIError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable is true for network failures, 5xx and 429.
func (e *APIError) Retryable() bool {
	return e.Status == 0 || e.Status >= 500 || e.Status == 429
}

// HasCode reports whether err is an APIError carrying code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// ErrorCode returns the APIError code in err's chain, or "".
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
