package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Exchange
	BinanceAPIKey    string
	BinanceSecretKey string
	PaperTrading     bool
	PaperBalance     float64
	SellAllOnStart   bool

	// Telegram notifier (disabled when token is empty)
	TelegramToken  string
	TelegramChatID int64

	// Sentiment oracle (local OpenAI-compatible server) and fallback
	OracleURL          string
	OracleModel        string
	OracleProbeTimeout time.Duration
	OracleTimeout      time.Duration
	OracleRetries      int
	UseFallbackOracle  bool
	FallbackURL        string
	FallbackAPIKey     string
	FallbackModel      string

	// Signal collectors
	NewsAPIKey      string
	RedditUserAgent string

	// Selection
	CycleInterval     time.Duration
	MaxCoinsToAnalyze int
	MinQuoteVolume    float64
	ShortlistSize     int
	SentimentWorkers  int
	SentimentCacheTTL time.Duration
	CooldownTime      time.Duration
	KlineInterval     string
	KlineLimit        int

	// Technical scoring
	RSIBuyThreshold float64
	RSIOversold     float64

	// Risk parameters
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	StopLossMinPct       float64
	StopLossMaxPct       float64
	ATRMultiplier        float64
	RewardRatio          float64
	MinTakeProfitPct     float64
	UseTrailingStop      bool
	TrailingStopDistance float64

	// Position lifecycle
	MaxHoldTime      time.Duration
	ForceSellTime    time.Duration
	PerTradeFraction float64
	MinTradeNotional float64
	FeePct           float64

	// Risk governor
	MaxTradesPerDay      int
	MinTimeBetweenTrades time.Duration
	MaxDailyLoss         float64

	// Persistence
	DBPath    string
	StatePath string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	chatID := int64(0)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatal("Invalid TELEGRAM_CHAT_ID")
		}
		chatID = id
	}

	return &Config{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		PaperTrading:     envBool("PAPER_TRADING", true),
		PaperBalance:     envFloat("PAPER_BALANCE", 5000.0),
		SellAllOnStart:   envBool("SELL_ALL_ON_START", false),

		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: chatID,

		OracleURL:          envStr("ORACLE_URL", "http://localhost:8000"),
		OracleModel:        envStr("ORACLE_MODEL", "local-llm"),
		OracleProbeTimeout: envDuration("ORACLE_PROBE_TIMEOUT", 10*time.Second),
		OracleTimeout:      envDuration("ORACLE_TIMEOUT", 30*time.Second),
		OracleRetries:      envInt("ORACLE_RETRIES", 3),
		UseFallbackOracle:  envBool("USE_FALLBACK_ORACLE", false),
		FallbackURL:        envStr("FALLBACK_ORACLE_URL", "https://api.openai.com"),
		FallbackAPIKey:     os.Getenv("FALLBACK_ORACLE_API_KEY"),
		FallbackModel:      envStr("FALLBACK_ORACLE_MODEL", "gpt-3.5-turbo"),

		NewsAPIKey:      os.Getenv("NEWS_API_KEY"),
		RedditUserAgent: envStr("REDDIT_USER_AGENT", "crypto-bot"),

		CycleInterval:     envDuration("CYCLE_INTERVAL", 15*time.Minute),
		MaxCoinsToAnalyze: envInt("MAX_COINS_TO_ANALYZE", 20),
		MinQuoteVolume:    envFloat("MIN_QUOTE_VOLUME", 1_000_000),
		ShortlistSize:     envInt("SHORTLIST_SIZE", 5),
		SentimentWorkers:  envInt("SENTIMENT_WORKERS", 5),
		SentimentCacheTTL: envDuration("SENTIMENT_CACHE_TTL", time.Hour),
		CooldownTime:      envDuration("COOLDOWN_TIME", time.Hour),
		KlineInterval:     envStr("KLINE_INTERVAL", "1h"),
		KlineLimit:        envInt("KLINE_LIMIT", 250),

		RSIBuyThreshold: envFloat("RSI_BUY_THRESHOLD", 50),
		RSIOversold:     envFloat("RSI_OVERSOLD", 30),

		DefaultStopLossPct:   envFloat("DEFAULT_STOP_LOSS_PCT", 0.05),
		DefaultTakeProfitPct: envFloat("DEFAULT_TAKE_PROFIT_PCT", 0.10),
		StopLossMinPct:       envFloat("STOP_LOSS_MIN_PCT", 0.02),
		StopLossMaxPct:       envFloat("STOP_LOSS_MAX_PCT", 0.10),
		ATRMultiplier:        envFloat("ATR_MULTIPLIER", 2.0),
		RewardRatio:          envFloat("REWARD_RATIO", 2.0),
		MinTakeProfitPct:     envFloat("MIN_TAKE_PROFIT_PCT", 0.01),
		UseTrailingStop:      envBool("USE_TRAILING_STOP", true),
		TrailingStopDistance: envFloat("TRAILING_STOP_DISTANCE", 0.04),

		MaxHoldTime:      envDuration("MAX_HOLD_TIME", 24*time.Hour),
		ForceSellTime:    envDuration("FORCE_SELL_TIME", 48*time.Hour),
		PerTradeFraction: envFloat("PER_TRADE_FRACTION", 0.5),
		MinTradeNotional: envFloat("MIN_TRADE_NOTIONAL", 10.0),
		FeePct:           envFloat("FEE_PCT", 0.001),

		MaxTradesPerDay:      envInt("MAX_TRADES_PER_DAY", 10),
		MinTimeBetweenTrades: envDuration("MIN_TIME_BETWEEN_TRADES", 30*time.Minute),
		MaxDailyLoss:         envFloat("MAX_DAILY_LOSS", 50.0),

		DBPath:    os.Getenv("DB_PATH"),
		StatePath: envStr("STATE_PATH", "bot_state.json"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			return val
		}
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.ParseBool(v); err == nil {
			return val
		}
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if val, err := time.ParseDuration(v); err == nil {
			return val
		}
		log.Printf("Warning: invalid %s=%q, using default %v", key, v, def)
	}
	return def
}
