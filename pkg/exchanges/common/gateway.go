package common

import "context"

// Venue abstracts the trading venue the runner talks to.
type Venue interface {
	HasCredentials() bool
	Account(ctx context.Context) (Account, error)
	Positions(ctx context.Context) ([]Position, error)
	History(ctx context.Context, limit int) ([]map[string]any, error)
	OpenTrade(ctx context.Context, req OpenRequest) (Response, error)
	CloseTrade(ctx context.Context, req CloseRequest) (Response, error)
	DailyClaim(ctx context.Context) (Response, error)
}
