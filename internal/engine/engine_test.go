package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
	"github.com/DouglasAmaral0/BinanceBot/internal/recorder"
)

type fakeExchange struct {
	price     float64
	priceErr  error
	balances  map[string]float64
	portfolio float64

	buyFill  *exchange.FillResult
	buyErr   error
	sellFill *exchange.FillResult
	sellErr  error

	buyCalls      int
	sellCalls     int
	lastBuyAmount float64
	lastSellQty   float64
}

func (f *fakeExchange) Ping(ctx context.Context) error                 { return nil }
func (f *fakeExchange) GetCoins(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	return nil, nil
}
func (f *fakeExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.priceErr
}
func (f *fakeExchange) GetBalance(ctx context.Context, asset string) (float64, error) {
	return f.balances[asset], nil
}
func (f *fakeExchange) PortfolioValue(ctx context.Context) (float64, error) {
	return f.portfolio, nil
}
func (f *fakeExchange) Buy(ctx context.Context, symbol string, quoteAmount float64) (*exchange.FillResult, error) {
	f.buyCalls++
	f.lastBuyAmount = quoteAmount
	return f.buyFill, f.buyErr
}
func (f *fakeExchange) Sell(ctx context.Context, symbol string, quantity float64) (*exchange.FillResult, error) {
	f.sellCalls++
	f.lastSellQty = quantity
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	return f.sellFill, nil
}
func (f *fakeExchange) SellAll(ctx context.Context) (float64, error) { return 0, nil }

type fakeSelector struct {
	candidate  *models.CandidateScore
	lastSold   string
	lastSoldAt time.Time
}

func (f *fakeSelector) Pick(ctx context.Context, lastSold string, lastSoldAt time.Time) (*models.CandidateScore, error) {
	f.lastSold = lastSold
	f.lastSoldAt = lastSoldAt
	return f.candidate, nil
}

func engineConfig() *config.Config {
	return &config.Config{
		CycleInterval:        15 * time.Minute,
		PerTradeFraction:     0.5,
		MinTradeNotional:     10,
		UseTrailingStop:      true,
		TrailingStopDistance: 0.04,
		MaxHoldTime:          24 * time.Hour,
		ForceSellTime:        48 * time.Hour,
		SentimentCacheTTL:    time.Hour,
		MaxTradesPerDay:      10,
		MaxDailyLoss:         1000,
	}
}

func newTestEngine(ex *fakeExchange, sel Selector, cfg *config.Config) (*Engine, *time.Time) {
	risk := NewRiskGovernor(cfg, zerolog.Nop())
	e := NewEngine(ex, sel, risk, recorder.Noop{}, nil, nil, cfg, zerolog.Nop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	e.now = func() time.Time { return *clock }
	risk.now = e.now
	return e, clock
}

func openPosition(e *Engine, entry, qty, cost, sl, tp float64, clock *time.Time) {
	e.position = &models.Position{
		ID:            "test",
		Symbol:        "ETHUSDT",
		BaseAsset:     "ETH",
		EntryPrice:    entry,
		Quantity:      qty,
		EntryCost:     cost,
		OpenTime:      *clock,
		StopLossPct:   sl,
		TakeProfitPct: tp,
		HighestPrice:  entry,
	}
}

func TestOpensPositionFromCandidate(t *testing.T) {
	ex := &fakeExchange{
		price:     100,
		balances:  map[string]float64{"USDT": 1000},
		portfolio: 1000,
		buyFill:   &exchange.FillResult{AvgPrice: 100, Quantity: 4.995, GrossQuote: 499.5, FeesQuote: 0.5},
	}
	sel := &fakeSelector{candidate: &models.CandidateScore{Symbol: "ETHUSDT", StopLossPct: 0.05, TakeProfitPct: 0.10}}
	e, _ := newTestEngine(ex, sel, engineConfig())

	require.True(t, e.RunCycle(context.Background()))
	assert.InDelta(t, 500.0, ex.lastBuyAmount, 1e-9)

	pos := e.CurrentPosition()
	require.NotNil(t, pos)
	assert.Equal(t, "ETHUSDT", pos.Symbol)
	assert.Equal(t, "ETH", pos.BaseAsset)
	assert.InDelta(t, 500.0, pos.EntryCost, 1e-9)
	assert.InDelta(t, 100.0, pos.HighestPrice, 1e-9)
	assert.NotEmpty(t, pos.ID)

	// With a position open the next cycle manages it, never buys again.
	e.RunCycle(context.Background())
	assert.Equal(t, 1, ex.buyCalls)
}

func TestRejectsBelowMinNotional(t *testing.T) {
	ex := &fakeExchange{
		balances:  map[string]float64{"USDT": 5},
		portfolio: 5,
	}
	sel := &fakeSelector{candidate: &models.CandidateScore{Symbol: "ETHUSDT"}}
	e, _ := newTestEngine(ex, sel, engineConfig())

	assert.False(t, e.RunCycle(context.Background()))
	assert.Equal(t, 0, ex.buyCalls)
	assert.Nil(t, e.CurrentPosition())
}

func TestTakeProfitClose(t *testing.T) {
	ex := &fakeExchange{
		price:     111,
		balances:  map[string]float64{"ETH": 5},
		sellFill:  &exchange.FillResult{AvgPrice: 111, Quantity: 5, GrossQuote: 555, FeesQuote: 0.555},
		portfolio: 555,
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)

	require.True(t, e.RunCycle(context.Background()))
	assert.InDelta(t, 5.0, ex.lastSellQty, 1e-9)
	assert.Nil(t, e.CurrentPosition())

	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitTakeProfit, trades[0].ExitReason)
	assert.InDelta(t, 554.445-500, trades[0].RealizedPnL, 1e-9)
	assert.Equal(t, "ETH", e.lastSold)
}

func TestStopLossClose(t *testing.T) {
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 5},
		sellFill: &exchange.FillResult{AvgPrice: 94, Quantity: 5, GrossQuote: 470, FeesQuote: 0.47},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)

	require.True(t, e.RunCycle(context.Background()))
	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitStopLoss, trades[0].ExitReason)
}

func TestTrailingStopLocksInProfit(t *testing.T) {
	ex := &fakeExchange{
		price:    120,
		balances: map[string]float64{"ETH": 5},
		sellFill: &exchange.FillResult{AvgPrice: 114, Quantity: 5, GrossQuote: 570, FeesQuote: 0.57},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.50, clock)

	// Rally to 120 raises the stop to 115.20 without selling.
	assert.False(t, e.RunCycle(context.Background()))
	pos := e.CurrentPosition()
	require.NotNil(t, pos)
	assert.InDelta(t, 120.0, pos.HighestPrice, 1e-9)
	assert.InDelta(t, 1-115.2/100, pos.StopLossPct, 1e-9)

	// Pullback through the raised stop exits as a stop loss.
	ex.price = 114
	require.True(t, e.RunCycle(context.Background()))
	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitStopLoss, trades[0].ExitReason)
}

func TestHardTimeoutBeatsStopLoss(t *testing.T) {
	ex := &fakeExchange{
		price:    90,
		balances: map[string]float64{"ETH": 5},
		sellFill: &exchange.FillResult{AvgPrice: 90, Quantity: 5, GrossQuote: 450, FeesQuote: 0.45},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)
	*clock = clock.Add(49 * time.Hour)

	require.True(t, e.RunCycle(context.Background()))
	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitTimeoutHard, trades[0].ExitReason)
}

func TestSoftTimeoutRequiresProfit(t *testing.T) {
	ex := &fakeExchange{
		price:    99,
		balances: map[string]float64{"ETH": 5},
		sellFill: &exchange.FillResult{AvgPrice: 101, Quantity: 5, GrossQuote: 505, FeesQuote: 0.505},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)
	*clock = clock.Add(25 * time.Hour)

	// Underwater: the soft timeout does not fire.
	assert.False(t, e.RunCycle(context.Background()))
	assert.Equal(t, 0, ex.sellCalls)

	// In profit it exits.
	ex.price = 101
	require.True(t, e.RunCycle(context.Background()))
	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitTimeoutSoft, trades[0].ExitReason)
}

func TestSellFailureRetainsPosition(t *testing.T) {
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 5},
		sellErr:  errors.New("exchange down"),
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)

	assert.False(t, e.RunCycle(context.Background()))
	assert.NotNil(t, e.CurrentPosition())
	assert.Empty(t, e.GetTrades())
}

func TestZeroBalanceSellsRecordedQuantity(t *testing.T) {
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 0},
		sellFill: &exchange.FillResult{AvgPrice: 94, Quantity: 5, GrossQuote: 470, FeesQuote: 0.47},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)

	// A zero balance read (dust rounding, lagging ledger) falls back to
	// the recorded quantity instead of abandoning the position.
	require.True(t, e.RunCycle(context.Background()))
	assert.Equal(t, 1, ex.sellCalls)
	assert.InDelta(t, 5.0, ex.lastSellQty, 1e-9)
	assert.Nil(t, e.CurrentPosition())
	require.Len(t, e.GetTrades(), 1)
}

func TestZeroQuantityForcesReset(t *testing.T) {
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 0},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, engineConfig())
	openPosition(e, 100, 0, 500, 0.05, 0.10, clock)

	assert.False(t, e.RunCycle(context.Background()))
	assert.Nil(t, e.CurrentPosition())
	assert.Equal(t, 0, ex.sellCalls)
	assert.Empty(t, e.GetTrades())
}

func TestCloseUpdatesRiskGovernor(t *testing.T) {
	cfg := engineConfig()
	cfg.MaxDailyLoss = 10
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 5, "USDT": 1000},
		sellFill: &exchange.FillResult{AvgPrice: 94, Quantity: 5, GrossQuote: 470, FeesQuote: 0.47},
	}
	e, clock := newTestEngine(ex, &fakeSelector{}, cfg)
	openPosition(e, 100, 5, 500, 0.05, 0.10, clock)

	require.True(t, e.RunCycle(context.Background()))
	ok, reason := e.risk.CanTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "loss limit")
}

func TestPersistAndRestore(t *testing.T) {
	cfg := engineConfig()
	state := recorder.NewStateFile(filepath.Join(t.TempDir(), "bot_state.json"))
	ex := &fakeExchange{
		price:     100,
		balances:  map[string]float64{"USDT": 1000},
		portfolio: 1000,
		buyFill:   &exchange.FillResult{AvgPrice: 100, Quantity: 4.995, GrossQuote: 499.5, FeesQuote: 0.5},
	}
	sel := &fakeSelector{candidate: &models.CandidateScore{Symbol: "ETHUSDT", StopLossPct: 0.05, TakeProfitPct: 0.10}}

	risk := NewRiskGovernor(cfg, zerolog.Nop())
	e := NewEngine(ex, sel, risk, recorder.Noop{}, state, nil, cfg, zerolog.Nop())
	require.True(t, e.RunCycle(context.Background()))

	fresh := NewEngine(ex, sel, NewRiskGovernor(cfg, zerolog.Nop()), recorder.Noop{}, state, nil, cfg, zerolog.Nop())
	require.NoError(t, fresh.Restore())
	pos := fresh.CurrentPosition()
	require.NotNil(t, pos)
	assert.Equal(t, "ETHUSDT", pos.Symbol)
}

func TestCachePrunedEveryTwelveCycles(t *testing.T) {
	ex := &fakeExchange{balances: map[string]float64{}, portfolio: 100}
	pruner := &countingPruner{}
	cfg := engineConfig()

	risk := NewRiskGovernor(cfg, zerolog.Nop())
	e := NewEngine(ex, &fakeSelector{}, risk, recorder.Noop{}, nil, pruner, cfg, zerolog.Nop())

	for i := 0; i < 24; i++ {
		e.RunCycle(context.Background())
	}
	assert.Equal(t, 2, pruner.calls)
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune(maxAge time.Duration) int {
	p.calls++
	return 0
}

type panickingSelector struct{}

func (panickingSelector) Pick(ctx context.Context, lastSold string, lastSoldAt time.Time) (*models.CandidateScore, error) {
	panic("selector blew up")
}

func TestCycleRecoversFromPanic(t *testing.T) {
	ex := &fakeExchange{balances: map[string]float64{"USDT": 1000}, portfolio: 1000}
	e, _ := newTestEngine(ex, panickingSelector{}, engineConfig())

	assert.NotPanics(t, func() {
		assert.False(t, e.RunCycle(context.Background()))
	})
	// The loop keeps cycling after an aborted one.
	assert.NotPanics(t, func() {
		e.RunCycle(context.Background())
	})
}

func TestManageWithPositionClearedConcurrently(t *testing.T) {
	ex := &fakeExchange{
		price:    94,
		balances: map[string]float64{"ETH": 5},
		sellFill: &exchange.FillResult{AvgPrice: 94, Quantity: 5, GrossQuote: 470, FeesQuote: 0.47},
	}
	e, _ := newTestEngine(ex, &fakeSelector{}, engineConfig())

	// SellAll from the Telegram goroutine can clear the position between
	// the cycle's snapshot and the sell path.
	assert.False(t, e.managePosition(context.Background()))
	assert.False(t, e.closePosition(context.Background(), models.ExitStopLoss))
	assert.Equal(t, 0, ex.sellCalls)
}
