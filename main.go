package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/analysis"
	"github.com/DouglasAmaral0/BinanceBot/internal/collector"
	"github.com/DouglasAmaral0/BinanceBot/internal/engine"
	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
	"github.com/DouglasAmaral0/BinanceBot/internal/llm"
	"github.com/DouglasAmaral0/BinanceBot/internal/recorder"
	"github.com/DouglasAmaral0/BinanceBot/internal/selection"
	"github.com/DouglasAmaral0/BinanceBot/internal/sentiment"
	"github.com/DouglasAmaral0/BinanceBot/internal/telegram"
)

func main() {
	logger := newLogger()
	logger.Info().Msg("🚀 Starting Binance Spot Bot...")

	cfg := config.Load()

	spot := exchange.NewSpotClient(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.FeePct, cfg.MinQuoteVolume, logger)

	var ex exchange.ExchangeClient = spot
	if cfg.PaperTrading {
		logger.Info().Float64("balance", cfg.PaperBalance).Msg("📝 Paper trading mode, orders are simulated")
		ex = exchange.NewEmulatorClient(cfg.PaperBalance, cfg.FeePct, spot, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ex.Ping(ctx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("Binance unreachable")
	}
	cancel()

	primary := llm.NewClient(cfg.OracleURL, "", cfg.OracleModel, cfg.OracleProbeTimeout, cfg.OracleTimeout, logger)
	var fallback sentiment.Oracle
	if cfg.UseFallbackOracle && cfg.FallbackAPIKey != "" {
		fallback = llm.NewClient(cfg.FallbackURL, cfg.FallbackAPIKey, cfg.FallbackModel, cfg.OracleProbeTimeout, cfg.OracleTimeout, logger)
	}
	analyzer := sentiment.NewAnalyzer(primary, fallback, cfg.OracleRetries, cfg.SentimentCacheTTL, logger)

	ranker := selection.NewRanker(
		ex,
		analysis.NewScorer(cfg, logger),
		collector.NewHTTPCollector(cfg.NewsAPIKey, cfg.RedditUserAgent, logger),
		analyzer,
		cfg,
		logger,
	)

	var rec recorder.Recorder = recorder.Noop{}
	if cfg.DBPath != "" {
		sq, err := recorder.NewSQLite(cfg.DBPath, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite recorder unavailable")
		}
		defer sq.Close()
		rec = sq
	}

	risk := engine.NewRiskGovernor(cfg, logger)
	state := recorder.NewStateFile(cfg.StatePath)
	eng := engine.NewEngine(ex, ranker, risk, rec, state, analyzer, cfg, logger)

	if cfg.SellAllOnStart {
		if _, err := eng.SellAll(context.Background()); err != nil {
			logger.Error().Err(err).Msg("startup liquidation failed")
		}
	} else if err := eng.Restore(); err != nil {
		logger.Error().Err(err).Msg("state restore failed, starting clean")
	}

	var bot *telegram.Bot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		var err error
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.TelegramChatID, eng, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot init failed")
		}
		eng.SetCallbacks(bot.NotifyOpen, bot.NotifyClose)
		go bot.Start()
	}

	eng.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("🛑 Shutting down...")
	eng.Stop()
	if bot != nil {
		bot.Stop()
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
