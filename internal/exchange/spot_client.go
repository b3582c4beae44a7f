package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SpotClient - real Binance Spot client
type SpotClient struct {
	client         *binance.Client
	feePct         float64
	minQuoteVolume float64

	mu    sync.Mutex
	rules map[string]*symbolRules
	log   zerolog.Logger
}

type symbolRules struct {
	minQty      decimal.Decimal
	stepSize    decimal.Decimal
	minNotional float64
}

func NewSpotClient(apiKey, secretKey string, feePct, minQuoteVolume float64, logger zerolog.Logger) *SpotClient {
	return &SpotClient{
		client:         binance.NewClient(apiKey, secretKey),
		feePct:         feePct,
		minQuoteVolume: minQuoteVolume,
		rules:          make(map[string]*symbolRules),
		log:            logger.With().Str("component", "exchange").Logger(),
	}
}

func (s *SpotClient) Ping(ctx context.Context) error {
	return s.client.NewPingService().Do(ctx)
}

func (s *SpotClient) GetCoins(ctx context.Context) ([]string, error) {
	stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("24h stats: %w", err)
	}

	var coins []string
	for _, st := range stats {
		symbol := st.Symbol
		if !strings.HasSuffix(symbol, "USDT") ||
			strings.HasSuffix(symbol, "UPUSDT") ||
			strings.HasSuffix(symbol, "DOWNUSDT") ||
			strings.Contains(symbol, "BEAR") ||
			strings.Contains(symbol, "BULL") {
			continue
		}
		if parseFloat(st.QuoteVolume) > s.minQuoteVolume {
			coins = append(coins, strings.TrimSuffix(symbol, "USDT"))
		}
	}

	s.log.Info().Int("count", len(coins)).Float64("min_volume", s.minQuoteVolume).Msg("tradable USDT pairs")
	return coins, nil
}

func (s *SpotClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Kline, len(klines))
	for i, k := range klines {
		result[i] = Kline{
			OpenTime:  time.Unix(k.OpenTime/1000, 0),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
			CloseTime: time.Unix(k.CloseTime/1000, 0),
		}
	}
	return result, nil
}

func (s *SpotClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

func (s *SpotClient) GetBalance(ctx context.Context, asset string) (float64, error) {
	account, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}

	for _, balance := range account.Balances {
		if balance.Asset == asset {
			return parseFloat(balance.Free), nil
		}
	}
	return 0, nil
}

// PortfolioValue sums the USDT balance plus every other asset converted at
// its current USDT price. Assets without a price quote are skipped.
func (s *SpotClient) PortfolioValue(ctx context.Context) (float64, error) {
	account, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, balance := range account.Balances {
		amount := parseFloat(balance.Free) + parseFloat(balance.Locked)
		if amount <= 0.00000001 {
			continue
		}
		if balance.Asset == "USDT" {
			total += amount
			continue
		}
		price, err := s.GetPrice(ctx, balance.Asset+"USDT")
		if err != nil || price <= 0 {
			continue
		}
		total += amount * price
	}

	s.log.Info().Float64("total_usdt", total).Msg("💼 portfolio value")
	return total, nil
}

func (s *SpotClient) Buy(ctx context.Context, symbol string, quoteAmount float64) (*FillResult, error) {
	price, err := s.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", symbol, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %f for %s", price, symbol)
	}

	rules, err := s.tradeRules(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// Reserve the estimated fee so the spend stays within quoteAmount.
	target := quoteAmount * (1 - s.feePct) / price
	qty := floorToStep(target, rules.stepSize)

	if qty.LessThan(rules.minQty) || qty.IsZero() {
		return nil, fmt.Errorf("quantity %s below lot-size minimum %s for %s", qty, rules.minQty, symbol)
	}
	if notional := qty.InexactFloat64() * price; notional < rules.minNotional {
		return nil, fmt.Errorf("order value %.2f below min notional %.2f for %s", notional, rules.minNotional, symbol)
	}

	s.log.Info().Str("symbol", symbol).Str("qty", qty.String()).Float64("quote", quoteAmount).Msg("sending MARKET BUY")

	order, err := s.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market buy %s: %w", symbol, err)
	}

	return s.fillResult(ctx, order)
}

func (s *SpotClient) Sell(ctx context.Context, symbol string, quantity float64) (*FillResult, error) {
	price, err := s.GetPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("price for %s: %w", symbol, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid price %f for %s", price, symbol)
	}

	rules, err := s.tradeRules(ctx, symbol)
	if err != nil {
		return nil, err
	}

	qty := floorToStep(quantity, rules.stepSize)
	if qty.LessThan(rules.minQty) || qty.IsZero() {
		return nil, fmt.Errorf("quantity %s below lot-size minimum %s for %s", qty, rules.minQty, symbol)
	}
	if notional := qty.InexactFloat64() * price; notional < rules.minNotional {
		return nil, fmt.Errorf("order value %.2f below min notional %.2f for %s", notional, rules.minNotional, symbol)
	}

	s.log.Info().Str("symbol", symbol).Str("qty", qty.String()).Msg("sending MARKET SELL")

	order, err := s.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("market sell %s: %w", symbol, err)
	}

	return s.fillResult(ctx, order)
}

func (s *SpotClient) SellAll(ctx context.Context) (float64, error) {
	account, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, err
	}

	obtained := 0.0
	for _, balance := range account.Balances {
		asset := balance.Asset
		free := parseFloat(balance.Free)
		if asset == "USDT" || free <= 0 {
			continue
		}

		symbol := asset + "USDT"
		price, err := s.GetPrice(ctx, symbol)
		if err != nil || price <= 0 {
			continue
		}

		rules, err := s.tradeRules(ctx, symbol)
		if err != nil {
			continue
		}
		if free*price < rules.minNotional {
			s.log.Debug().Str("asset", asset).Float64("value", free*price).Msg("skipping dust balance")
			continue
		}

		fill, err := s.Sell(ctx, symbol, free)
		if err != nil {
			s.log.Error().Err(err).Str("symbol", symbol).Msg("sell-all order failed")
			continue
		}
		obtained += fill.GrossQuote
	}

	if obtained > 0 {
		s.log.Info().Float64("usdt", obtained).Msg("🧹 liquidated non-USDT balances")
	}
	return obtained, nil
}

// fillResult aggregates fills into average price, quantity, gross quote
// value and fees in USDT terms. Commissions charged in other assets are
// converted at their live price, or estimated from the fee rate when no
// quote is available.
func (s *SpotClient) fillResult(ctx context.Context, order *binance.CreateOrderResponse) (*FillResult, error) {
	if len(order.Fills) > 0 {
		var qty, gross float64
		commissions := make(map[string]float64)
		for _, fill := range order.Fills {
			q := parseFloat(fill.Quantity)
			qty += q
			gross += parseFloat(fill.Price) * q
			commissions[fill.CommissionAsset] += parseFloat(fill.Commission)
		}
		if qty <= 0 {
			return nil, fmt.Errorf("order %d executed zero quantity", order.OrderID)
		}

		fees := 0.0
		for asset, amount := range commissions {
			switch {
			case asset == "USDT":
				fees += amount
			case asset != "":
				price, err := s.GetPrice(ctx, asset+"USDT")
				if err == nil && price > 0 {
					fees += amount * price
				} else {
					fees += gross * s.feePct
					s.log.Warn().Str("asset", asset).Msgf("no price for commission asset, estimating fee as %.2f%%", s.feePct*100)
				}
			default:
				fees += gross * s.feePct
			}
		}

		return &FillResult{AvgPrice: gross / qty, Quantity: qty, GrossQuote: gross, FeesQuote: fees}, nil
	}

	// Some order responses carry only the aggregate totals.
	qty := parseFloat(order.ExecutedQuantity)
	gross := parseFloat(order.CummulativeQuoteQuantity)
	if qty <= 0 {
		return nil, fmt.Errorf("order %d has no fills or executed quantity", order.OrderID)
	}
	s.log.Warn().Int64("order_id", order.OrderID).Msg("no fill detail in order response, estimating fees")
	return &FillResult{AvgPrice: gross / qty, Quantity: qty, GrossQuote: gross, FeesQuote: gross * s.feePct}, nil
}

func (s *SpotClient) tradeRules(ctx context.Context, symbol string) (*symbolRules, error) {
	s.mu.Lock()
	if r, ok := s.rules[symbol]; ok {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	info, err := s.client.NewExchangeInfoService().Symbols(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info for %s: %w", symbol, err)
	}

	rules := &symbolRules{
		minQty:      decimal.Zero,
		stepSize:    decimal.NewFromInt(1),
		minNotional: 5.0, // common exchange default when the filter is missing
	}
	for _, sym := range info.Symbols {
		if sym.Symbol != symbol {
			continue
		}
		if f := sym.LotSizeFilter(); f != nil {
			if v, err := decimal.NewFromString(f.MinQuantity); err == nil {
				rules.minQty = v
			}
			if v, err := decimal.NewFromString(f.StepSize); err == nil && !v.IsZero() {
				rules.stepSize = v
			}
		}
		if f := sym.NotionalFilter(); f != nil {
			rules.minNotional = parseFloat(f.MinNotional)
		}
	}

	s.mu.Lock()
	s.rules[symbol] = rules
	s.mu.Unlock()
	return rules, nil
}

// floorToStep rounds a quantity down to the nearest lot-size step.
func floorToStep(quantity float64, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return decimal.NewFromFloat(quantity)
	}
	return decimal.NewFromFloat(quantity).Div(step).Floor().Mul(step)
}
