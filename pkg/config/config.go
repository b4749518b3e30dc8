package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot.
type Config struct {
	Port     string
	LogLevel string
	Language string // "en" or "zh"

	// Storage
	DBDriver    string // "sqlite" (default) or "postgres"
	DBPath      string
	DatabaseURL string

	// MTC venue
	MTCBaseURL string
	MTCAPIKey  string
	BotName    string

	// Runner
	PollInterval       time.Duration
	DryRun             bool
	TradeCoin          string
	MarginBoks         float64
	Leverage           float64
	SLCapitalPct       float64
	TPCapitalPct       float64
	MaxPositions       int
	ManualMaxPositions int
	ManualSymbols      []string
	StrategyConfigPath string

	// Market data
	HyperliquidInfoURL string

	// Aster (order preview)
	AsterBaseURL   string
	AsterAPIKey    string
	AsterAPISecret string
	AsterSymbol    string

	// Telegram
	TelegramToken  string
	TelegramChatID int64
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	poll := getEnvInt("POLL_SECONDS", 20)
	if poll < 5 {
		poll = 5
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Language:           getEnv("LANGUAGE", "en"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:             getEnv("DB_PATH", "./data/bot.db"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MTCBaseURL:         strings.TrimRight(getEnv("MTC_BASE_URL", "https://boktoshi.com/api/v1"), "/"),
		MTCAPIKey:          strings.TrimSpace(os.Getenv("MTC_API_KEY")),
		BotName:            getEnv("BOT_NAME", "eth-trend-bot"),
		PollInterval:       time.Duration(poll) * time.Second,
		DryRun:             getEnvBool("DRY_RUN", true),
		TradeCoin:          NormalizeCoin(getEnv("TRADE_COIN", "ETHUSDT")),
		MarginBoks:         getEnvFloat("MARGIN_BOKS", 100),
		Leverage:           getEnvFloat("LEVERAGE", 5),
		SLCapitalPct:       getEnvFloat("SL_CAPITAL_PCT", 0.01),
		TPCapitalPct:       getEnvFloat("TP_CAPITAL_PCT", 0.03),
		MaxPositions:       getEnvInt("MAX_POSITIONS", 5),
		ManualMaxPositions: getEnvInt("MANUAL_MAX_POSITIONS", 3),
		ManualSymbols:      splitAndTrim(getEnv("MANUAL_SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT,XRPUSDT,HYPEUSDT,PUMPUSDT,DOGEUSDT")),
		StrategyConfigPath: getEnv("STRATEGY_CONFIG", "./strategy.yaml"),
		HyperliquidInfoURL: getEnv("HYPERLIQUID_INFO_URL", "https://api.hyperliquid.xyz/info"),
		AsterBaseURL:       strings.TrimRight(getEnv("ASTER_BASE_URL", "https://fapi.asterdex.com"), "/"),
		AsterAPIKey:        os.Getenv("ASTER_API_KEY"),
		AsterAPISecret:     os.Getenv("ASTER_API_SECRET"),
		AsterSymbol:        strings.ToUpper(getEnv("ASTER_SYMBOL", "ETHUSDT")),
		TelegramToken:      os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID:     getEnvInt64("TELEGRAM_CHAT_ID", 0),
	}, nil
}

// NormalizeCoin turns "ethusdt" or "ETH" into the venue coin "ETH".
func NormalizeCoin(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "USDT") && len(s) > 4 {
		return strings.TrimSuffix(s, "USDT")
	}
	return s
}

// TradeSymbol is the USDT pair for the configured trade coin.
func (c *Config) TradeSymbol() string {
	return c.TradeCoin + "USDT"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}
