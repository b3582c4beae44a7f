package analysis

import (
	"math"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
	"github.com/rs/zerolog"
)

const (
	rsiPeriod        = 14
	volatilityWindow = 23
	smaFastPeriod    = 50
	smaSlowPeriod    = 200
	macdFast         = 12
	macdSlow         = 26
	macdSignal       = 9
	atrPeriod        = 14
	bollingerPeriod  = 20
	bollingerK       = 2.0
	volumeShort      = 6
	volumeLong       = 24
)

// Scorer turns a price series into a preliminary technical score plus
// adaptive stop-loss/take-profit parameters.
type Scorer struct {
	cfg *config.Config
	log zerolog.Logger
}

func NewScorer(cfg *config.Config, logger zerolog.Logger) *Scorer {
	return &Scorer{cfg: cfg, log: logger.With().Str("component", "scorer").Logger()}
}

// Evaluate scores one symbol. Returns nil when the symbol fails the RSI
// momentum filter or lacks the history for RSI or volatility; missing
// secondary indicators only forfeit their bonus.
func (s *Scorer) Evaluate(symbol string, klines []exchange.Kline) *models.CandidateScore {
	closes := Closes(klines)

	rsi, ok := RSI(closes, rsiPeriod)
	if !ok {
		return nil
	}
	if rsi >= s.cfg.RSIBuyThreshold {
		s.log.Debug().Str("symbol", symbol).Float64("rsi", rsi).Msgf("RSI >= %.0f, not considered", s.cfg.RSIBuyThreshold)
		return nil
	}

	vol, ok := Volatility(closes, volatilityWindow)
	if !ok {
		return nil
	}

	score := s.rsiBonus(rsi) + volatilityScore(vol)

	if smaFast, okF := SMA(closes, smaFastPeriod); okF {
		if smaSlow, okS := SMA(closes, smaSlowPeriod); okS {
			if smaFast > smaSlow {
				score += 10
			} else {
				score -= 10
			}
		}
	}

	if macd, signal, histogram, okM := MACD(closes, macdFast, macdSlow, macdSignal); okM {
		if macd > signal && histogram > 0 {
			score += 5
		} else if macd <= signal {
			score -= 5
		}
	}

	if ratio, okV := VolumeRatio(klines, volumeShort, volumeLong); okV && ratio > 1 {
		score += math.Min((ratio-1)*5, 10)
	}

	price := closes[len(closes)-1]
	if upper, _, lower, okB := Bollinger(closes, bollingerPeriod, bollingerK); okB {
		position := clamp01(BollingerPosition(price, upper, lower))
		score += (1 - position) * 10
	}

	stopLoss, takeProfit := s.riskParams(klines, price)

	s.log.Debug().
		Str("symbol", symbol).
		Float64("rsi", rsi).
		Float64("volatility", vol).
		Float64("tech_score", score).
		Float64("stop_loss_pct", stopLoss).
		Float64("take_profit_pct", takeProfit).
		Msg("technical evaluation")

	return &models.CandidateScore{
		Symbol:        symbol,
		RSI:           rsi,
		Volatility:    vol,
		TechScore:     score,
		StopLossPct:   stopLoss,
		TakeProfitPct: takeProfit,
	}
}

// rsiBonus rewards distance below the buy threshold, with extra weight
// once the symbol is properly oversold.
func (s *Scorer) rsiBonus(rsi float64) float64 {
	bonus := s.cfg.RSIBuyThreshold - rsi
	if rsi < s.cfg.RSIOversold {
		bonus += (s.cfg.RSIOversold - rsi) * 0.5
	}
	return bonus
}

// volatilityScore rewards moderate volatility most: dead markets offer no
// move to capture and unstable ones blow through stops.
func volatilityScore(vol float64) float64 {
	switch {
	case vol < 0.005:
		return vol * 200
	case vol < 0.03:
		return vol * 1000
	case vol < 0.08:
		return vol * 500
	default:
		return vol * 100
	}
}

// riskParams derives the stop-loss from ATR, clamped to the configured
// band, and the take-profit from the reward ratio with an absolute floor.
func (s *Scorer) riskParams(klines []exchange.Kline, price float64) (stopLoss, takeProfit float64) {
	stopLoss = s.cfg.DefaultStopLossPct
	if atr, ok := ATR(klines, atrPeriod); ok && atr > 0 && price > 0 {
		stopLoss = clamp(atr*s.cfg.ATRMultiplier/price, s.cfg.StopLossMinPct, s.cfg.StopLossMaxPct)
	}
	takeProfit = math.Max(s.cfg.MinTakeProfitPct, stopLoss*s.cfg.RewardRatio)
	return stopLoss, takeProfit
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
