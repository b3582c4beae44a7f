package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// EmulatorClient - paper trading client. Market data calls are delegated to
// the wrapped real client; orders only mutate an in-memory balance sheet.
type EmulatorClient struct {
	mu       sync.RWMutex
	balances map[string]float64 // asset -> free amount, "USDT" included
	feePct   float64
	baseAPI  ExchangeClient
	log      zerolog.Logger
}

func NewEmulatorClient(initialBalance, feePct float64, api ExchangeClient, logger zerolog.Logger) *EmulatorClient {
	return &EmulatorClient{
		balances: map[string]float64{"USDT": initialBalance},
		feePct:   feePct,
		baseAPI:  api,
		log:      logger.With().Str("component", "emulator").Logger(),
	}
}

func (e *EmulatorClient) Ping(ctx context.Context) error {
	return e.baseAPI.Ping(ctx)
}

func (e *EmulatorClient) GetCoins(ctx context.Context) ([]string, error) {
	return e.baseAPI.GetCoins(ctx)
}

func (e *EmulatorClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	return e.baseAPI.GetKlines(ctx, symbol, interval, limit)
}

func (e *EmulatorClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return e.baseAPI.GetPrice(ctx, symbol)
}

func (e *EmulatorClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balances[asset], nil
}

func (e *EmulatorClient) PortfolioValue(ctx context.Context) (float64, error) {
	e.mu.RLock()
	snapshot := make(map[string]float64, len(e.balances))
	for asset, amount := range e.balances {
		snapshot[asset] = amount
	}
	e.mu.RUnlock()

	total := 0.0
	for asset, amount := range snapshot {
		if amount <= 0 {
			continue
		}
		if asset == "USDT" {
			total += amount
			continue
		}
		price, err := e.GetPrice(ctx, asset+"USDT")
		if err != nil || price <= 0 {
			continue
		}
		total += amount * price
	}
	return total, nil
}

func (e *EmulatorClient) Buy(ctx context.Context, symbol string, quoteAmount float64) (*FillResult, error) {
	price, err := e.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %f for %s", price, symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balances["USDT"] < quoteAmount {
		return nil, fmt.Errorf("insufficient balance: %.2f USDT", e.balances["USDT"])
	}

	fees := quoteAmount * e.feePct
	gross := quoteAmount - fees
	qty := gross / price
	asset := baseAsset(symbol)

	e.balances["USDT"] -= quoteAmount
	e.balances[asset] += qty

	e.log.Info().Str("symbol", symbol).Float64("price", price).Float64("qty", qty).Msgf("✅ paper BUY for %.2f USDT", quoteAmount)
	return &FillResult{AvgPrice: price, Quantity: qty, GrossQuote: gross, FeesQuote: fees}, nil
}

func (e *EmulatorClient) Sell(ctx context.Context, symbol string, quantity float64) (*FillResult, error) {
	price, err := e.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %f for %s", price, symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	asset := baseAsset(symbol)
	if e.balances[asset] < quantity {
		return nil, fmt.Errorf("insufficient %s balance: have %.8f, want %.8f", asset, e.balances[asset], quantity)
	}

	gross := quantity * price
	fees := gross * e.feePct

	e.balances[asset] -= quantity
	e.balances["USDT"] += gross - fees

	e.log.Info().Str("symbol", symbol).Float64("price", price).Float64("qty", quantity).Msgf("🎯 paper SELL for %.2f USDT net", gross-fees)
	return &FillResult{AvgPrice: price, Quantity: quantity, GrossQuote: gross, FeesQuote: fees}, nil
}

func (e *EmulatorClient) SellAll(ctx context.Context) (float64, error) {
	e.mu.RLock()
	assets := make([]string, 0, len(e.balances))
	for asset, amount := range e.balances {
		if asset != "USDT" && amount > 0 {
			assets = append(assets, asset)
		}
	}
	e.mu.RUnlock()

	obtained := 0.0
	for _, asset := range assets {
		e.mu.RLock()
		qty := e.balances[asset]
		e.mu.RUnlock()
		fill, err := e.Sell(ctx, asset+"USDT", qty)
		if err != nil {
			e.log.Error().Err(err).Str("asset", asset).Msg("paper sell-all failed")
			continue
		}
		obtained += fill.GrossQuote
	}
	return obtained, nil
}

func baseAsset(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}
