package exchange

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		quantity float64
		step     string
		want     string
	}{
		{10.123, "0.01", "10.12"},
		{10.123, "0.1", "10.1"},
		{10.999, "1", "10"},
		{0.00034567, "0.0001", "0.0003"},
		{5.0, "0.001", "5"},
	}

	for _, tc := range cases {
		step, err := decimal.NewFromString(tc.step)
		require.NoError(t, err)
		got := floorToStep(tc.quantity, step)
		assert.Equal(t, tc.want, got.String(), "quantity %v step %v", tc.quantity, tc.step)
	}
}

func TestFloorToStepZeroStep(t *testing.T) {
	got := floorToStep(1.5, decimal.Zero)
	assert.Equal(t, "1.5", got.String())
}

// priceStub serves canned prices for the emulator's delegated data calls.
type priceStub struct {
	prices map[string]float64
}

func (s *priceStub) Ping(context.Context) error              { return nil }
func (s *priceStub) GetCoins(context.Context) ([]string, error) { return nil, nil }
func (s *priceStub) GetKlines(context.Context, string, string, int) ([]Kline, error) {
	return nil, nil
}
func (s *priceStub) GetPrice(_ context.Context, symbol string) (float64, error) {
	return s.prices[symbol], nil
}
func (s *priceStub) GetBalance(context.Context, string) (float64, error)  { return 0, nil }
func (s *priceStub) PortfolioValue(context.Context) (float64, error)      { return 0, nil }
func (s *priceStub) Buy(context.Context, string, float64) (*FillResult, error) {
	return nil, nil
}
func (s *priceStub) Sell(context.Context, string, float64) (*FillResult, error) {
	return nil, nil
}
func (s *priceStub) SellAll(context.Context) (float64, error) { return 0, nil }

func TestEmulatorBuySell(t *testing.T) {
	ctx := context.Background()
	base := &priceStub{prices: map[string]float64{"BTCUSDT": 100.0}}
	emu := NewEmulatorClient(1000.0, 0.001, base, zerolog.Nop())

	fill, err := emu.Buy(ctx, "BTCUSDT", 500.0)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, fill.AvgPrice, 1e-9)
	assert.InDelta(t, 0.5, fill.FeesQuote, 1e-9)
	assert.InDelta(t, 4.995, fill.Quantity, 1e-9)

	usdt, _ := emu.GetBalance(ctx, "USDT")
	assert.InDelta(t, 500.0, usdt, 1e-9)
	btc, _ := emu.GetBalance(ctx, "BTC")
	assert.InDelta(t, 4.995, btc, 1e-9)

	// Price doubles, sell everything.
	base.prices["BTCUSDT"] = 200.0
	sell, err := emu.Sell(ctx, "BTCUSDT", btc)
	require.NoError(t, err)
	assert.InDelta(t, 999.0, sell.GrossQuote, 1e-9)

	usdt, _ = emu.GetBalance(ctx, "USDT")
	assert.InDelta(t, 500.0+sell.NetQuote(), usdt, 1e-9)
	btc, _ = emu.GetBalance(ctx, "BTC")
	assert.InDelta(t, 0.0, btc, 1e-9)
}

func TestEmulatorRejectsOverspend(t *testing.T) {
	ctx := context.Background()
	base := &priceStub{prices: map[string]float64{"ETHUSDT": 50.0}}
	emu := NewEmulatorClient(100.0, 0.001, base, zerolog.Nop())

	_, err := emu.Buy(ctx, "ETHUSDT", 200.0)
	assert.Error(t, err)

	_, err = emu.Sell(ctx, "ETHUSDT", 1.0)
	assert.Error(t, err)
}

func TestEmulatorPortfolioValue(t *testing.T) {
	ctx := context.Background()
	base := &priceStub{prices: map[string]float64{"BTCUSDT": 100.0}}
	emu := NewEmulatorClient(1000.0, 0.0, base, zerolog.Nop())

	_, err := emu.Buy(ctx, "BTCUSDT", 400.0)
	require.NoError(t, err)

	// No fees: value is preserved regardless of the split.
	value, err := emu.PortfolioValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, value, 1e-9)
}
