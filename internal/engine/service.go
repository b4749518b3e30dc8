// Package engine is the boundary between the dashboard API and the bot
// runner. The API layer only talks to the runner through Service.
package engine

import (
	"context"

	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/exchanges/common"
)

// Service defines the operator-facing runner operations. Business rejections
// come back as ActionResult values; the error return is reserved for
// transport and storage failures.
type Service interface {
	// Queries
	Status(ctx context.Context) Status
	Account(ctx context.Context) (common.Account, error)
	ClassifyOpenPositions(ctx context.Context) (ownership.Classification, error)
	Strategies() []strategy.Definition
	Overlay(ctx context.Context, id strategy.Variant, interval string, bars int) (strategy.Overlay, error)

	// Manual actions
	ManualForceOpen(ctx context.Context, symbol, comment string) ActionResult
	ManualClose(ctx context.Context, positionID, comment string) ActionResult
	CloseStrategyPosition(ctx context.Context, comment string) ActionResult

	// Control
	Pause(ctx context.Context) ActionResult
	Resume(ctx context.Context) ActionResult
	ApplyRuntimeSettings(ctx context.Context, patch risk.SettingsPatch) (risk.Settings, error)
	SetActiveStrategy(ctx context.Context, id strategy.Variant) ActionResult
}

// Previewer computes order previews on the Aster venue.
type Previewer interface {
	Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error)
}
