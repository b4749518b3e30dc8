package strategy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// TrendParams configures the trend-confirm variant.
type TrendParams struct {
	MAPeriod      int `yaml:"ma_period" json:"ma_period"`
	Confirmations int `yaml:"confirmations" json:"confirmations"`
}

// MinCandles is the shortest series the trend evaluator accepts.
func (p TrendParams) MinCandles() int { return p.MAPeriod + p.Confirmations + 1 }

// MomentumParams configures the momentum variant.
type MomentumParams struct {
	FastPeriod int     `yaml:"fast_period" json:"fast_period"`
	SlowPeriod int     `yaml:"slow_period" json:"slow_period"`
	RSIPeriod  int     `yaml:"rsi_period" json:"rsi_period"`
	RSIMin     float64 `yaml:"rsi_min" json:"rsi_min"`
	RSIMax     float64 `yaml:"rsi_max" json:"rsi_max"`
}

// MinEntryCandles is the shortest series the momentum entry evaluator accepts.
func (p MomentumParams) MinEntryCandles() int { return max(p.SlowPeriod, p.RSIPeriod) + 5 }

// MinExitCandles is the shortest series the momentum exit evaluator accepts.
func (p MomentumParams) MinExitCandles() int { return p.SlowPeriod + 3 }

// Params is the top-level YAML structure.
type Params struct {
	Trend    TrendParams    `yaml:"trend" json:"trend"`
	Momentum MomentumParams `yaml:"momentum" json:"momentum"`
}

// DefaultParams returns the stock indicator settings.
func DefaultParams() Params {
	return Params{
		Trend:    TrendParams{MAPeriod: 50, Confirmations: 3},
		Momentum: MomentumParams{FastPeriod: 20, SlowPeriod: 50, RSIPeriod: 14, RSIMin: 50, RSIMax: 70},
	}
}

// Validate rejects settings the evaluators cannot run with.
func (p Params) Validate() error {
	switch {
	case p.Trend.MAPeriod <= 0 || p.Trend.Confirmations <= 0:
		return fmt.Errorf("trend: ma_period and confirmations must be > 0")
	case p.Momentum.FastPeriod <= 0 || p.Momentum.SlowPeriod <= 0 || p.Momentum.RSIPeriod <= 0:
		return fmt.Errorf("momentum: periods must be > 0")
	case p.Momentum.FastPeriod >= p.Momentum.SlowPeriod:
		return fmt.Errorf("momentum: fast_period must be below slow_period")
	case p.Momentum.RSIMin > p.Momentum.RSIMax:
		return fmt.Errorf("momentum: rsi_min must not exceed rsi_max")
	}
	return nil
}

// LoadParams reads strategy parameters from a YAML file. Keys missing from the
// file keep their defaults; a missing file yields the defaults.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return params, nil
	}
	if err != nil {
		return params, fmt.Errorf("read strategy config: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return DefaultParams(), fmt.Errorf("parse strategy config: %w", err)
	}
	if err := params.Validate(); err != nil {
		return DefaultParams(), err
	}
	return params, nil
}
