package risk

// Settings are the runtime trade sizing knobs editable from the dashboard.
type Settings struct {
	MarginBoks   float64 `json:"margin_boks"`
	Leverage     float64 `json:"leverage"`
	SLCapitalPct float64 `json:"sl_capital_pct"`
	TPCapitalPct float64 `json:"tp_capital_pct"`
}

// Clamp enforces the lower bounds: margin and leverage at least 1, stop-loss
// fraction at least 0.0001, take-profit fraction non-negative.
func (s Settings) Clamp() Settings {
	s.MarginBoks = max(s.MarginBoks, 1)
	s.Leverage = max(s.Leverage, 1)
	s.SLCapitalPct = max(s.SLCapitalPct, 0.0001)
	s.TPCapitalPct = max(s.TPCapitalPct, 0)
	return s
}

// SettingsPatch carries optional overrides; nil fields keep the current value.
type SettingsPatch struct {
	MarginBoks   *float64 `json:"margin_boks"`
	Leverage     *float64 `json:"leverage"`
	SLCapitalPct *float64 `json:"sl_capital_pct"`
	TPCapitalPct *float64 `json:"tp_capital_pct"`
}

// Apply overlays p on s and clamps the result.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.MarginBoks != nil {
		s.MarginBoks = *p.MarginBoks
	}
	if p.Leverage != nil {
		s.Leverage = *p.Leverage
	}
	if p.SLCapitalPct != nil {
		s.SLCapitalPct = *p.SLCapitalPct
	}
	if p.TPCapitalPct != nil {
		s.TPCapitalPct = *p.TPCapitalPct
	}
	return s.Clamp()
}
