package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting         string
	ConfigLoaded     string
	UsingDatabase    string
	ServerListening  string
	ShuttingDown     string
	DryRunMode       string
	LiveMode         string
	ConfigLoadFailed string
	DBInitFailed     string
	APIServerError   string
	StateLoadFailed  string

	// Venue
	IdleMode          string
	BotRegistered     string
	BotRegisterFailed string

	// Runner
	RunnerStarted     string
	RunnerStopped     string
	RunnerStopTimeout string

	// Strategy
	StrategyConfigLoaded     string
	StrategyConfigLoadFailed string

	// Services
	TelegramEnabled     string
	TelegramFailed      string
	AlertsToLog         string
	AsterPreviewEnabled string
	CandleCachePurged   string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	// System
	Starting:         "Starting trading bot...",
	ConfigLoaded:     "Config loaded (Port: %s, coin: %s)",
	UsingDatabase:    "Using %s database",
	ServerListening:  "Server listening on :%s",
	ShuttingDown:     "Shutting down...",
	DryRunMode:       "DRY_RUN mode: no live orders will be sent",
	LiveMode:         "LIVE mode: orders are sent to the venue",
	ConfigLoadFailed: "Failed to load config: %v",
	DBInitFailed:     "Failed to open database: %v",
	APIServerError:   "API server error: %v",
	StateLoadFailed:  "Failed to restore runtime state: %v",

	// Venue
	IdleMode:          "MTC_API_KEY is not set; running in idle mode",
	BotRegistered:     "Bot registered: %s",
	BotRegisterFailed: "Bot registration failed: %v",

	// Runner
	RunnerStarted:     "Runner started (poll every %s, strategy %s)",
	RunnerStopped:     "Runner stopped",
	RunnerStopTimeout: "Runner did not stop within %s",

	// Strategy
	StrategyConfigLoaded:     "Strategy parameters loaded from %s",
	StrategyConfigLoadFailed: "Strategy parameters unusable, using defaults: %v",

	// Services
	TelegramEnabled:     "Telegram alerts enabled",
	TelegramFailed:      "Telegram unavailable, alerts go to the log: %v",
	AlertsToLog:         "Telegram not configured, alerts go to the log",
	AsterPreviewEnabled: "Aster order preview enabled for %s",
	CandleCachePurged:   "Candle cache purged %d entries",
}

// Chinese messages
var messagesZH = Messages{
	// System
	Starting:         "啟動交易機器人...",
	ConfigLoaded:     "設定已載入（埠號：%s，幣種：%s）",
	UsingDatabase:    "使用 %s 資料庫",
	ServerListening:  "服務監聽於 :%s",
	ShuttingDown:     "正在關閉...",
	DryRunMode:       "DRY_RUN 模式：不會送出真實訂單",
	LiveMode:         "實盤模式：訂單將送往交易所",
	ConfigLoadFailed: "載入設定失敗：%v",
	DBInitFailed:     "開啟資料庫失敗：%v",
	APIServerError:   "API 服務錯誤：%v",
	StateLoadFailed:  "恢復執行狀態失敗：%v",

	// Venue
	IdleMode:          "未設定 MTC_API_KEY，進入閒置模式",
	BotRegistered:     "機器人已註冊：%s",
	BotRegisterFailed: "機器人註冊失敗：%v",

	// Runner
	RunnerStarted:     "執行器已啟動（每 %s 輪詢，策略 %s）",
	RunnerStopped:     "執行器已停止",
	RunnerStopTimeout: "執行器未能在 %s 內停止",

	// Strategy
	StrategyConfigLoaded:     "已從 %s 載入策略參數",
	StrategyConfigLoadFailed: "策略參數無效，改用預設值：%v",

	// Services
	TelegramEnabled:     "Telegram 通知已啟用",
	TelegramFailed:      "Telegram 無法使用，通知改寫入日誌：%v",
	AlertsToLog:         "未設定 Telegram，通知寫入日誌",
	AsterPreviewEnabled: "Aster 下單預覽已啟用：%s",
	CandleCachePurged:   "K 線快取已清除 %d 筆",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
