package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
	"github.com/DouglasAmaral0/BinanceBot/internal/recorder"
)

// pruneEvery is the number of cycles between sentiment cache sweeps.
const pruneEvery = 12

// Selector picks the next buy candidate for a cycle.
type Selector interface {
	Pick(ctx context.Context, lastSold string, lastSoldAt time.Time) (*models.CandidateScore, error)
}

// CachePruner drops stale entries from the sentiment cache.
type CachePruner interface {
	Prune(maxAge time.Duration) int
}

// Engine runs the trading loop: one cycle either manages the single open
// position or hunts for a new entry. At most one position is open at any
// time.
type Engine struct {
	exchange exchange.ExchangeClient
	selector Selector
	risk     *RiskGovernor
	rec      recorder.Recorder
	state    *recorder.StateFile
	pruner   CachePruner
	cfg      *config.Config

	mu         sync.RWMutex
	isRunning  bool
	stopChan   chan struct{}
	position   *models.Position
	trades     []*models.Trade
	lastSold   string
	lastSoldAt time.Time
	cycleCount int

	onTradeOpen  func(*models.Position)
	onTradeClose func(*models.Trade)

	now func() time.Time
	log zerolog.Logger
}

func NewEngine(
	ex exchange.ExchangeClient,
	selector Selector,
	risk *RiskGovernor,
	rec recorder.Recorder,
	state *recorder.StateFile,
	pruner CachePruner,
	cfg *config.Config,
	logger zerolog.Logger,
) *Engine {
	if rec == nil {
		rec = recorder.Noop{}
	}
	return &Engine{
		exchange: ex,
		selector: selector,
		risk:     risk,
		rec:      rec,
		state:    state,
		pruner:   pruner,
		cfg:      cfg,
		stopChan: make(chan struct{}),
		now:      time.Now,
		log:      logger.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) SetCallbacks(onTradeOpen func(*models.Position), onTradeClose func(*models.Trade)) {
	e.onTradeOpen = onTradeOpen
	e.onTradeClose = onTradeClose
}

// Restore reloads the persisted position, trade history and risk
// counters.
func (e *Engine) Restore() error {
	if e.state == nil {
		return nil
	}
	st, err := e.state.Load()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.position = st.Position
	e.lastSold = st.LastSold
	e.lastSoldAt = st.LastSoldAt
	e.trades = st.Trades
	e.mu.Unlock()
	e.risk.Restore(st.Risk)

	if st.Position != nil {
		e.log.Info().Str("symbol", st.Position.Symbol).Float64("entry", st.Position.EntryPrice).Msg("🔄 Resumed open position from state file")
	}
	return nil
}

func (e *Engine) Start() {
	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.log.Info().Dur("interval", e.cfg.CycleInterval).Msg("🚀 Trading engine started")
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isRunning {
		return
	}
	e.isRunning = false
	close(e.stopChan)
	e.log.Info().Msg("⏸️ Trading engine stopped")
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}

func (e *Engine) loop() {
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	e.RunCycle(context.Background())
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.RunCycle(context.Background())
		}
	}
}

// RunCycle executes one decision cycle and reports whether an order was
// placed. A panic inside the cycle is logged and absorbed so the loop
// keeps running.
func (e *Engine) RunCycle(ctx context.Context) (placed bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("❌ Cycle aborted by panic")
			placed = false
		}
	}()

	e.mu.Lock()
	e.cycleCount++
	cycle := e.cycleCount
	hasPosition := e.position != nil
	e.mu.Unlock()

	if e.pruner != nil && cycle%pruneEvery == 0 {
		e.pruner.Prune(e.cfg.SentimentCacheTTL)
	}
	e.snapshotPortfolio(ctx)

	if hasPosition {
		return e.managePosition(ctx)
	}
	return e.tryOpen(ctx)
}

func (e *Engine) snapshotPortfolio(ctx context.Context) {
	value, err := e.exchange.PortfolioValue(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("portfolio valuation failed")
		return
	}
	if err := e.rec.RecordSnapshot(e.now(), value); err != nil {
		e.log.Warn().Err(err).Msg("snapshot not recorded")
	}
}

func (e *Engine) managePosition(ctx context.Context) bool {
	e.mu.RLock()
	if e.position == nil {
		e.mu.RUnlock()
		return false
	}
	pos := *e.position
	e.mu.RUnlock()

	price, err := e.exchange.GetPrice(ctx, pos.Symbol)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("price unavailable, position unchanged")
		return false
	}

	if e.cfg.UseTrailingStop && price > pos.HighestPrice {
		e.mu.Lock()
		if e.position == nil {
			e.mu.Unlock()
			return false
		}
		e.position.HighestPrice = price
		candidate := price * (1 - e.cfg.TrailingStopDistance)
		if candidate > pos.EntryPrice*(1-e.position.StopLossPct) {
			e.position.StopLossPct = 1 - candidate/pos.EntryPrice
			e.log.Info().
				Str("symbol", pos.Symbol).
				Float64("price", price).
				Float64("stop_price", candidate).
				Msg("📈 Trailing stop raised")
		}
		pos = *e.position
		e.mu.Unlock()
	}

	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice
	held := e.now().Sub(pos.OpenTime)

	var reason models.ExitReason
	switch {
	case held >= e.cfg.ForceSellTime:
		reason = models.ExitTimeoutHard
	case held >= e.cfg.MaxHoldTime && pnlPct > 0:
		reason = models.ExitTimeoutSoft
	case price <= pos.EntryPrice*(1-pos.StopLossPct):
		reason = models.ExitStopLoss
	case price >= pos.EntryPrice*(1+pos.TakeProfitPct):
		reason = models.ExitTakeProfit
	default:
		e.log.Debug().
			Str("symbol", pos.Symbol).
			Float64("price", price).
			Float64("pnl_pct", pnlPct*100).
			Dur("held", held).
			Msg("holding")
		return false
	}

	return e.closePosition(ctx, reason)
}

func (e *Engine) closePosition(ctx context.Context, reason models.ExitReason) bool {
	e.mu.RLock()
	if e.position == nil {
		e.mu.RUnlock()
		return false
	}
	pos := *e.position
	e.mu.RUnlock()

	// Sell the live balance when one is reported; a zero or failed read
	// falls back to the recorded quantity.
	qty := pos.Quantity
	if bal, err := e.exchange.GetBalance(ctx, pos.BaseAsset); err == nil && bal > 0 {
		qty = bal
	} else if err != nil {
		e.log.Warn().Err(err).Str("asset", pos.BaseAsset).Msg("balance lookup failed, selling recorded quantity")
	}

	if qty <= 0 {
		e.log.Error().Str("symbol", pos.Symbol).Msg("❌ No balance behind open position, resetting state")
		e.mu.Lock()
		e.position = nil
		e.mu.Unlock()
		e.persist()
		return false
	}

	fill, err := e.exchange.Sell(ctx, pos.Symbol, qty)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("❌ Sell failed, position retained for next cycle")
		return false
	}

	now := e.now()
	trade := &models.Trade{
		Symbol:      pos.Symbol,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   fill.AvgPrice,
		Quantity:    fill.Quantity,
		EntryCost:   pos.EntryCost,
		NetProceeds: fill.NetQuote(),
		RealizedPnL: fill.NetQuote() - pos.EntryCost,
		OpenTime:    pos.OpenTime,
		CloseTime:   now,
		Duration:    now.Sub(pos.OpenTime),
		ExitReason:  reason,
	}
	if pos.EntryCost > 0 {
		trade.PnLPercent = trade.RealizedPnL / pos.EntryCost * 100
	}

	e.risk.RecordClose(trade.RealizedPnL)

	e.mu.Lock()
	e.position = nil
	e.trades = append(e.trades, trade)
	e.lastSold = pos.BaseAsset
	e.lastSoldAt = now
	cb := e.onTradeClose
	e.mu.Unlock()

	if err := e.rec.RecordClose(trade); err != nil {
		e.log.Warn().Err(err).Msg("trade not recorded")
	}
	e.persist()

	e.log.Info().
		Str("symbol", trade.Symbol).
		Str("reason", string(reason)).
		Float64("pnl", trade.RealizedPnL).
		Float64("pnl_pct", trade.PnLPercent).
		Dur("held", trade.Duration).
		Msg("💰 Position closed")

	if cb != nil {
		cb(trade)
	}
	return true
}

func (e *Engine) tryOpen(ctx context.Context) bool {
	if ok, why := e.risk.CanTrade(); !ok {
		e.log.Info().Str("reason", why).Msg("⛔ Entries blocked by risk limits")
		return false
	}

	e.mu.RLock()
	lastSold, lastSoldAt := e.lastSold, e.lastSoldAt
	e.mu.RUnlock()

	candidate, err := e.selector.Pick(ctx, lastSold, lastSoldAt)
	if err != nil {
		e.log.Warn().Err(err).Msg("candidate selection failed")
		return false
	}
	if candidate == nil {
		return false
	}

	usdt, err := e.exchange.GetBalance(ctx, "USDT")
	if err != nil {
		e.log.Warn().Err(err).Msg("USDT balance unavailable")
		return false
	}
	portfolio, err := e.exchange.PortfolioValue(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("portfolio valuation unavailable")
		return false
	}

	amount := math.Min(usdt, portfolio*e.cfg.PerTradeFraction)
	if amount < e.cfg.MinTradeNotional {
		e.log.Info().
			Float64("amount", amount).
			Float64("min_notional", e.cfg.MinTradeNotional).
			Msg("available capital below minimum order size")
		return false
	}

	fill, err := e.exchange.Buy(ctx, candidate.Symbol, amount)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", candidate.Symbol).Msg("❌ Buy failed")
		return false
	}

	pos := &models.Position{
		ID:            uuid.NewString(),
		Symbol:        candidate.Symbol,
		BaseAsset:     strings.TrimSuffix(candidate.Symbol, "USDT"),
		EntryPrice:    fill.AvgPrice,
		Quantity:      fill.Quantity,
		EntryCost:     fill.GrossQuote + fill.FeesQuote,
		OpenTime:      e.now(),
		StopLossPct:   candidate.StopLossPct,
		TakeProfitPct: candidate.TakeProfitPct,
		HighestPrice:  fill.AvgPrice,
	}

	e.mu.Lock()
	e.position = pos
	cb := e.onTradeOpen
	e.mu.Unlock()

	if err := e.rec.RecordOpen(pos); err != nil {
		e.log.Warn().Err(err).Msg("position not recorded")
	}
	e.persist()

	e.log.Info().
		Str("symbol", pos.Symbol).
		Float64("entry", pos.EntryPrice).
		Float64("quantity", pos.Quantity).
		Float64("stop_loss_pct", pos.StopLossPct*100).
		Float64("take_profit_pct", pos.TakeProfitPct*100).
		Float64("final_score", candidate.FinalScore).
		Msg("🟢 Position opened")

	if cb != nil {
		cb(pos)
	}
	return true
}

// SellAll liquidates every non-USDT balance and clears the open
// position.
func (e *Engine) SellAll(ctx context.Context) (float64, error) {
	total, err := e.exchange.SellAll(ctx)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.position = nil
	e.mu.Unlock()
	e.persist()

	e.log.Info().Float64("proceeds", total).Msg("🧹 All holdings liquidated")
	return total, nil
}

func (e *Engine) persist() {
	if e.state == nil {
		return
	}

	e.mu.RLock()
	st := recorder.BotState{
		Position:   e.position,
		Risk:       e.risk.State(),
		LastSold:   e.lastSold,
		LastSoldAt: e.lastSoldAt,
		Trades:     e.trades,
	}
	e.mu.RUnlock()

	if err := e.state.Save(st); err != nil {
		e.log.Warn().Err(err).Msg("state file not saved")
	}
}

// CurrentPosition returns a copy of the open position, or nil.
func (e *Engine) CurrentPosition() *models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.position == nil {
		return nil
	}
	pos := *e.position
	return &pos
}

func (e *Engine) GetTrades() []*models.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()

	trades := make([]*models.Trade, len(e.trades))
	copy(trades, e.trades)
	return trades
}

// Stats aggregates the realized trade history.
func (e *Engine) Stats() models.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := models.Stats{TotalTrades: len(e.trades)}
	var totalHold time.Duration
	for _, t := range e.trades {
		stats.RealizedPnL += t.RealizedPnL
		totalHold += t.Duration
		if t.RealizedPnL > 0 {
			stats.ProfitableTrades++
		} else {
			stats.LosingTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.ProfitableTrades) / float64(stats.TotalTrades) * 100
		stats.AvgHoldTime = totalHold / time.Duration(stats.TotalTrades)
	}
	return stats
}
