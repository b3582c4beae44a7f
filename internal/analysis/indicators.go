package analysis

import (
	"math"

	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
)

// Pure indicator functions over ordered price series. Each returns
// (value, false) when the series is too short instead of failing.

// Closes extracts the close-price series from klines.
func Closes(klines []exchange.Kline) []float64 {
	prices := make([]float64, len(klines))
	for i, k := range klines {
		prices[i] = k.Close
	}
	return prices
}

// RSI computes the Wilder-style relative strength index over the last
// period bars. Needs period+1 closes.
func RSI(closes []float64, period int) (float64, bool) {
	if len(closes) < period+1 {
		return 0, false
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// SMA is the simple moving average of the last period closes.
func SMA(closes []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	sum := 0.0
	for _, p := range closes[len(closes)-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// EMA is the exponential moving average with smoothing 2/(period+1),
// seeded by the first value.
func EMA(closes []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	series := emaSeries(closes, period)
	return series[len(series)-1], true
}

func emaSeries(values []float64, period int) []float64 {
	multiplier := 2.0 / float64(period+1)
	series := make([]float64, len(values))
	series[0] = values[0]
	for i := 1; i < len(values); i++ {
		series[i] = values[i]*multiplier + series[i-1]*(1-multiplier)
	}
	return series
}

// MACD returns the MACD line, signal line and histogram.
// Needs slow+signal closes for the signal line to develop.
func MACD(closes []float64, fast, slow, signal int) (macd, signalLine, histogram float64, ok bool) {
	if len(closes) < slow+signal {
		return 0, 0, 0, false
	}

	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)
	macdValues := make([]float64, len(closes))
	for i := range closes {
		macdValues[i] = fastEMA[i] - slowEMA[i]
	}

	signalSeries := emaSeries(macdValues, signal)
	macd = macdValues[len(macdValues)-1]
	signalLine = signalSeries[len(signalSeries)-1]
	return macd, signalLine, macd - signalLine, true
}

// ATR is the rolling mean of the true range over the last period bars.
// Needs period+1 klines for the previous-close term.
func ATR(klines []exchange.Kline, period int) (float64, bool) {
	if len(klines) < period+1 {
		return 0, false
	}

	sum := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		tr := math.Max(klines[i].High-klines[i].Low,
			math.Max(math.Abs(klines[i].High-klines[i-1].Close),
				math.Abs(klines[i].Low-klines[i-1].Close)))
		sum += tr
	}
	return sum / float64(period), true
}

// Bollinger returns the upper, middle and lower bands: SMA(period) ± k·stddev.
func Bollinger(closes []float64, period int, k float64) (upper, middle, lower float64, ok bool) {
	middle, ok = SMA(closes, period)
	if !ok {
		return 0, 0, 0, false
	}

	variance := 0.0
	for _, p := range closes[len(closes)-period:] {
		d := p - middle
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(period))
	return middle + k*stddev, middle, middle - k*stddev, true
}

// BollingerPosition locates price within the bands: 0 at the lower band,
// 1 at the upper. Returns the neutral midpoint when the bands collapse.
func BollingerPosition(price, upper, lower float64) float64 {
	if upper == lower {
		return 0.5
	}
	return (price - lower) / (upper - lower)
}

// Volatility is the standard deviation of percentage returns over the
// trailing window. Needs window+1 closes.
func Volatility(closes []float64, window int) (float64, bool) {
	if len(closes) < window+1 {
		return 0, false
	}

	returns := make([]float64, 0, window)
	for i := len(closes) - window; i < len(closes); i++ {
		if closes[i-1] == 0 {
			return 0, false
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	// Sample standard deviation.
	return math.Sqrt(variance / float64(len(returns)-1)), true
}

// VolumeRatio divides the mean volume over a recent short window by the
// mean over a longer baseline window.
func VolumeRatio(klines []exchange.Kline, short, long int) (float64, bool) {
	if len(klines) < long || short <= 0 || long <= short {
		return 0, false
	}

	recent := 0.0
	for _, k := range klines[len(klines)-short:] {
		recent += k.Volume
	}
	recent /= float64(short)

	baseline := 0.0
	for _, k := range klines[len(klines)-long:] {
		baseline += k.Volume
	}
	baseline /= float64(long)

	if baseline == 0 {
		return 0, false
	}
	return recent / baseline, true
}
