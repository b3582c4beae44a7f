package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"github.com/DouglasAmaral0/BinanceBot/internal/engine"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// Bot is the Telegram control surface: it pushes trade notifications to
// the authorized chat and answers a small set of commands.
type Bot struct {
	bot          *tele.Bot
	engine       *engine.Engine
	authorizedID int64
	startTime    time.Time
	log          zerolog.Logger
}

func NewBot(token string, authorizedID int64, eng *engine.Engine, logger zerolog.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		bot:          b,
		engine:       eng,
		authorizedID: authorizedID,
		startTime:    time.Now(),
		log:          logger.With().Str("component", "telegram").Logger(),
	}

	bot.setupHandlers()
	return bot, nil
}

func (b *Bot) Start() {
	b.log.Info().Msg("📱 Telegram bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
}

func (b *Bot) setupHandlers() {
	// Middleware for authorization
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender().ID != b.authorizedID {
				return c.Send("⛔ Unauthorized")
			}
			return next(c)
		}
	})

	// Commands
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/stats", b.handleStats)
	b.bot.Handle("/position", b.handlePosition)

	// Buttons
	b.bot.Handle(&btnStartTrading, b.handleStartTrading)
	b.bot.Handle(&btnStopTrading, b.handleStopTrading)
	b.bot.Handle(&btnStats, b.handleStats)
	b.bot.Handle(&btnPosition, b.handlePosition)
	b.bot.Handle(&btnSellAll, b.handleSellAll)
	b.bot.Handle(&btnBack, b.handleStart)
}

var (
	btnStartTrading = tele.Btn{Text: "▶️ Start trading", Unique: "start_trading"}
	btnStopTrading  = tele.Btn{Text: "⏸️ Stop trading", Unique: "stop_trading"}
	btnStats        = tele.Btn{Text: "📊 Stats", Unique: "stats"}
	btnPosition     = tele.Btn{Text: "📋 Position", Unique: "position"}
	btnSellAll      = tele.Btn{Text: "🧹 Sell everything", Unique: "sell_all"}
	btnBack         = tele.Btn{Text: "🔙 Back", Unique: "back"}
)

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{}

	var startBtn tele.Btn
	if b.engine.IsRunning() {
		startBtn = btnStopTrading
	} else {
		startBtn = btnStartTrading
	}

	menu.Inline(
		menu.Row(startBtn),
		menu.Row(btnStats, btnPosition),
		menu.Row(btnSellAll),
	)

	status := "⏸️ Stopped"
	if b.engine.IsRunning() {
		status = "▶️ Running"
	}

	msg := fmt.Sprintf(`🤖 *Binance Spot Bot*

🔄 Status: %s
⏱ Uptime: %s

Choose an action:`, status, time.Since(b.startTime).Round(time.Minute))

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleStartTrading(c tele.Context) error {
	b.engine.Start()
	return b.handleStart(c)
}

func (b *Bot) handleStopTrading(c tele.Context) error {
	b.engine.Stop()
	return b.handleStart(c)
}

func (b *Bot) handleStats(c tele.Context) error {
	stats := b.engine.Stats()

	msg := fmt.Sprintf(`📊 *Trading statistics*

Trades: %d
Wins: %d | Losses: %d
Win rate: %.1f%%
Realized PnL: %.2f USDT
Avg hold time: %s`,
		stats.TotalTrades,
		stats.ProfitableTrades, stats.LosingTrades,
		stats.WinRate,
		stats.RealizedPnL,
		stats.AvgHoldTime.Round(time.Minute),
	)
	return c.Send(msg, tele.ModeMarkdown)
}

func (b *Bot) handlePosition(c tele.Context) error {
	pos := b.engine.CurrentPosition()
	if pos == nil {
		return c.Send("📭 No open position")
	}

	msg := fmt.Sprintf(`📋 *Open position*

%s
Entry: %.6f USDT
Quantity: %.6f
Cost: %.2f USDT
Stop loss: %.2f%%
Take profit: %.2f%%
Opened: %s ago`,
		pos.Symbol,
		pos.EntryPrice,
		pos.Quantity,
		pos.EntryCost,
		pos.StopLossPct*100,
		pos.TakeProfitPct*100,
		time.Since(pos.OpenTime).Round(time.Minute),
	)
	return c.Send(msg, tele.ModeMarkdown)
}

func (b *Bot) handleSellAll(c tele.Context) error {
	total, err := b.engine.SellAll(context.Background())
	if err != nil {
		return c.Send(fmt.Sprintf("❌ Liquidation failed: %v", err))
	}
	return c.Send(fmt.Sprintf("🧹 All holdings sold for %.2f USDT", total))
}

// NotifyOpen pushes a message when the engine opens a position.
func (b *Bot) NotifyOpen(pos *models.Position) {
	msg := fmt.Sprintf(`🟢 *Position opened*

%s
Entry: %.6f USDT
Quantity: %.6f
Stop loss: %.2f%% | Take profit: %.2f%%`,
		pos.Symbol, pos.EntryPrice, pos.Quantity,
		pos.StopLossPct*100, pos.TakeProfitPct*100)
	b.push(msg)
}

// NotifyClose pushes a message when the engine closes a trade.
func (b *Bot) NotifyClose(trade *models.Trade) {
	emoji := "💰"
	if trade.RealizedPnL < 0 {
		emoji = "🔻"
	}
	msg := fmt.Sprintf(`%s *Position closed* (%s)

%s
Exit: %.6f USDT
PnL: %.2f USDT (%.2f%%)
Held: %s`,
		emoji, trade.ExitReason,
		trade.Symbol, trade.ExitPrice,
		trade.RealizedPnL, trade.PnLPercent,
		trade.Duration.Round(time.Minute))
	b.push(msg)
}

func (b *Bot) push(msg string) {
	if _, err := b.bot.Send(tele.ChatID(b.authorizedID), msg, tele.ModeMarkdown); err != nil {
		b.log.Warn().Err(err).Msg("telegram notification failed")
	}
}
