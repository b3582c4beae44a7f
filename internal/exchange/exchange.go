package exchange

import (
	"context"
	"fmt"
	"time"
)

// ExchangeClient abstracts the order gateway and price provider. Implemented
// by SpotClient (real Binance spot) and EmulatorClient (paper trading).
type ExchangeClient interface {
	Ping(ctx context.Context) error
	// GetCoins returns base assets with a tradable USDT pair above the
	// configured 24h quote-volume floor.
	GetCoins(ctx context.Context) ([]string, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetBalance(ctx context.Context, asset string) (float64, error)
	PortfolioValue(ctx context.Context) (float64, error)
	// Buy spends approximately quoteAmount USDT on a market order.
	Buy(ctx context.Context, symbol string, quoteAmount float64) (*FillResult, error)
	Sell(ctx context.Context, symbol string, quantity float64) (*FillResult, error)
	// SellAll liquidates every non-USDT balance worth selling and returns
	// the gross USDT obtained.
	SellAll(ctx context.Context) (float64, error)
}

type Kline struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// FillResult aggregates the fills of one executed market order.
type FillResult struct {
	AvgPrice   float64
	Quantity   float64
	GrossQuote float64 // USDT value of the filled quantity
	FeesQuote  float64 // commissions converted to USDT
}

func (f *FillResult) NetQuote() float64 {
	return f.GrossQuote - f.FeesQuote
}

// Helper function
func parseFloat(s string) float64 {
	var f float64
	fmt.Sscanf(s, "%f", &f)
	return f
}
