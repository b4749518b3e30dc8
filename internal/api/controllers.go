package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trading-bot/internal/engine"
	"trading-bot/internal/ownership"
	"trading-bot/internal/risk"
	"trading-bot/internal/strategy"
	"trading-bot/pkg/db"
	"trading-bot/pkg/exchanges/common"
)

type settingsRequest struct {
	MarginBoks   *float64 `json:"margin_boks"`
	Leverage     *float64 `json:"leverage"`
	SLCapitalPct *float64 `json:"sl_capital_pct"`
	TPCapitalPct *float64 `json:"tp_capital_pct"`
	SLPercent    *float64 `json:"sl_percent"`
	TPPercent    *float64 `json:"tp_percent"`
}

// patch converts the request; percent fields win over fractions.
func (r settingsRequest) patch() risk.SettingsPatch {
	p := risk.SettingsPatch{
		MarginBoks:   r.MarginBoks,
		Leverage:     r.Leverage,
		SLCapitalPct: r.SLCapitalPct,
		TPCapitalPct: r.TPCapitalPct,
	}
	if r.SLPercent != nil {
		v := *r.SLPercent / 100
		p.SLCapitalPct = &v
	}
	if r.TPPercent != nil {
		v := *r.TPPercent / 100
		p.TPCapitalPct = &v
	}
	return p
}

type selectStrategyRequest struct {
	StrategyID string `json:"strategy_id"`
}

type forceOpenRequest struct {
	Symbol string `json:"symbol"`
}

type closePositionRequest struct {
	PositionID string `json:"position_id"`
}

type overlayQuery struct {
	StrategyID string `form:"strategy_id"`
	Interval   string `form:"interval"`
	Bars       int    `form:"bars"`
	Limit      int    `form:"limit"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// limitParam reads ?limit=, falling back to def and capping at max.
func limitParam(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, max)
}

// parseJSON decodes a stored kv value; non-JSON text comes back as is and
// an empty value as nil.
func parseJSON(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := sonic.UnmarshalString(raw, &v); err != nil {
		return raw
	}
	return v
}

func settingsView(s risk.Settings) gin.H {
	return gin.H{
		"margin_boks":    s.MarginBoks,
		"leverage":       s.Leverage,
		"sl_capital_pct": s.SLCapitalPct,
		"tp_capital_pct": s.TPCapitalPct,
		"sl_percent":     s.SLCapitalPct * 100,
		"tp_percent":     s.TPCapitalPct * 100,
	}
}

func (s *Server) kv(c *gin.Context) (map[string]string, bool) {
	kv, err := s.Store.AllKV(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return nil, false
	}
	return kv, true
}

func (s *Server) getStatus(c *gin.Context) {
	kv, ok := s.kv(c)
	if !ok {
		return
	}
	st := s.Engine.Status(c.Request.Context())
	state := "running"
	if st.Paused {
		state = "paused"
	}
	botStatus := kv["bot_status"]
	if botStatus == "" {
		botStatus = "unknown"
	}
	c.JSON(http.StatusOK, gin.H{
		"bot_status":     botStatus,
		"strategy_state": state,
		"last_tick":      kv["last_tick"],
		"account_ok":     kv["account_ok"],
		"dry_run":        st.DryRun,
		"idle":           st.Idle,
		"trade_pair":     st.TradeSymbol,
		"trade_coin":     st.TradeCoin,
		"strategy": gin.H{
			"id":             st.ActiveStrategy,
			"name":           st.Strategy.Label,
			"entry":          st.Strategy.Entry,
			"short_enabled":  false,
			"margin_boks":    st.Settings.MarginBoks,
			"leverage":       st.Settings.Leverage,
			"sl_capital_pct": st.Settings.SLCapitalPct,
			"tp_capital_pct": st.Settings.TPCapitalPct,
		},
		"last_signal": parseJSON(kv["last_signal"]),
		"runner":      st,
	})
}

func (s *Server) getAccount(c *gin.Context) {
	kv, ok := s.kv(c)
	if !ok {
		return
	}
	notices := parseJSON(kv["notices"])
	if notices == nil {
		notices = []any{}
	}
	c.JSON(http.StatusOK, gin.H{"account": parseJSON(kv["account"]), "notices": notices})
}

func (s *Server) getOpenPositions(c *gin.Context) {
	grouped, err := s.Engine.ClassifyOpenPositions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, venueCode(err), err.Error())
		return
	}
	manual := grouped.ManualPositions
	if manual == nil {
		manual = []common.Position{}
	}
	unknown := grouped.UnknownPositions
	if unknown == nil {
		unknown = []common.Position{}
	}
	items := grouped.Items
	if items == nil {
		items = []ownership.OwnedPosition{}
	}
	c.JSON(http.StatusOK, gin.H{
		"items":             items,
		"strategy_position": grouped.StrategyPosition,
		"manual_position":   grouped.ManualPosition,
		"manual_positions":  manual,
		"unknown_positions": unknown,
	})
}

func (s *Server) getTradeHistory(c *gin.Context) {
	ctx := c.Request.Context()
	trades, err := s.Store.Trades(ctx, limitParam(c, 300, 1000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	raw, err := s.Store.Value(ctx, "last_history")
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	remote, ok := parseJSON(raw).([]any)
	if !ok {
		remote = []any{}
	}
	c.JSON(http.StatusOK, gin.H{"local_exec": trades, "remote_history": remote})
}

func (s *Server) getPnLHistory(c *gin.Context) {
	curve, err := s.Store.EquityCurve(c.Request.Context(), limitParam(c, 1000, 5000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": curve})
}

func (s *Server) getSignals(c *gin.Context) {
	items, err := s.Store.Signals(c.Request.Context(), limitParam(c, 200, 1000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getLogs(c *gin.Context) {
	items, err := s.Store.Logs(c.Request.Context(), limitParam(c, 300, 1000))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsView(s.Engine.Status(c.Request.Context()).Settings))
}

func (s *Server) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	updated, err := s.Engine.ApplyRuntimeSettings(c.Request.Context(), req.patch())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "SETTINGS_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": settingsView(updated)})
}

func (s *Server) pause(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Pause(c.Request.Context()))
}

func (s *Server) resume(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Resume(c.Request.Context()))
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active": s.Engine.Status(c.Request.Context()).ActiveStrategy,
		"items":  s.Engine.Strategies(),
	})
}

func (s *Server) selectStrategy(c *gin.Context) {
	var req selectStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	res := s.Engine.SetActiveStrategy(c.Request.Context(), strategy.Variant(req.StrategyID))
	if !res.Success {
		respondError(c, http.StatusBadRequest, "INVALID_STRATEGY", res.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"active":  res.Strategy,
		"items":   s.Engine.Strategies(),
	})
}

func (s *Server) getOverlay(c *gin.Context) {
	var q overlayQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	bars := q.Bars
	if bars == 0 {
		bars = q.Limit
	}
	id := strategy.Variant(strings.ToUpper(strings.TrimSpace(q.StrategyID)))
	overlay, err := s.Engine.Overlay(c.Request.Context(), id, strings.TrimSpace(q.Interval), bars)
	if err != nil {
		respondError(c, http.StatusBadRequest, "OVERLAY_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, overlay)
}

func (s *Server) forceOpenLong(c *gin.Context) {
	var req forceOpenRequest
	_ = c.ShouldBindJSON(&req)
	if req.Symbol == "" {
		req.Symbol = s.Engine.Status(c.Request.Context()).TradeSymbol
	}
	res := s.Engine.ManualForceOpen(c.Request.Context(), req.Symbol, "Manual open LONG position from dashboard")
	s.logAction("force open", res)
	c.JSON(http.StatusOK, res)
}

func (s *Server) closeManualPosition(c *gin.Context) {
	var req closePositionRequest
	_ = c.ShouldBindJSON(&req)
	res := s.Engine.ManualClose(c.Request.Context(), req.PositionID, "Manual close LONG position from dashboard")
	s.logAction("manual close", res)
	c.JSON(http.StatusOK, res)
}

func (s *Server) closeStrategyPosition(c *gin.Context) {
	ctx := c.Request.Context()
	symbol := s.Engine.Status(ctx).TradeSymbol
	res := s.Engine.CloseStrategyPosition(ctx, "Manual close strategy LONG "+symbol+" from dashboard")
	s.logAction("strategy close", res)
	c.JSON(http.StatusOK, res)
}

func (s *Server) asterPreview(c *gin.Context) {
	if s.Preview == nil {
		respondError(c, http.StatusServiceUnavailable, "ASTER_DISABLED", "aster preview is not configured")
		return
	}
	var req engine.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	res, err := s.Preview.Preview(c.Request.Context(), req)
	if err != nil {
		respondError(c, http.StatusBadGateway, venueCode(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) logAction(action string, res engine.ActionResult) {
	s.Logger.Info("dashboard action",
		zap.String("action", action),
		zap.Bool("success", res.Success),
		zap.String("message", res.Message),
		zap.String("position_id", res.PositionID),
	)
}

func venueCode(err error) string {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr.Code
	}
	return "VENUE_ERROR"
}

// getMetrics returns the in-process counters and latency percentiles.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}
