package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trading-bot/internal/engine"
	"trading-bot/internal/events"
	"trading-bot/internal/monitor"
	"trading-bot/pkg/db"
)

// Server wires the dashboard endpoints around the runner.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	Store   db.Reader
	Engine  engine.Service
	Preview engine.Previewer
	Metrics *monitor.Metrics
	Logger  *zap.Logger
	Meta    SystemMeta
}

// SystemMeta describes the deployment shown to the UI.
type SystemMeta struct {
	BotName string
	Version string
}

// Config bundles the server dependencies. Preview and Metrics may be nil.
type Config struct {
	Bus       *events.Bus
	Store     db.Reader
	Engine    engine.Service
	Preview   engine.Previewer
	Metrics   *monitor.Metrics
	Logger    *zap.Logger
	Meta      SystemMeta
	RateLimit float64
	RateBurst int
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(newIPLimiter(cfg.RateLimit, cfg.RateBurst).Middleware(cfg.Logger))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Bus:     cfg.Bus,
		Store:   cfg.Store,
		Engine:  cfg.Engine,
		Preview: cfg.Preview,
		Metrics: cfg.Metrics,
		Logger:  cfg.Logger,
		Meta:    cfg.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/account", s.getAccount)
		api.GET("/open-positions", s.getOpenPositions)
		api.GET("/trade-history", s.getTradeHistory)
		api.GET("/pnl-history", s.getPnLHistory)
		api.GET("/signals", s.getSignals)
		api.GET("/logs", s.getLogs)

		api.GET("/bot/settings", s.getSettings)
		api.POST("/bot/settings", s.updateSettings)
		api.POST("/bot/pause", s.pause)
		api.POST("/bot/resume", s.resume)

		api.GET("/strategies", s.getStrategies)
		api.POST("/strategy/select", s.selectStrategy)
		api.GET("/strategy/overlay", s.getOverlay)

		api.POST("/manual/force-open-long", s.forceOpenLong)
		api.POST("/manual/close-position", s.closeManualPosition)
		api.POST("/manual/close-strategy-position", s.closeStrategyPosition)

		api.POST("/aster/preview", s.asterPreview)
		api.GET("/system/metrics", s.getMetrics)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bot": s.Meta.BotName, "version": s.Meta.Version})
}

// Handler exposes the router for an http.Server owned by the caller.
func (s *Server) Handler() http.Handler {
	return s.Router
}
