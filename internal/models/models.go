package models

import "time"

// Recommendation is the oracle's explicit buy verdict.
type Recommendation string

const (
	RecommendBuy     Recommendation = "YES"
	RecommendAvoid   Recommendation = "NO"
	RecommendNeutral Recommendation = "NEUTRAL"
)

// ExitReason identifies which trigger closed a position.
type ExitReason string

const (
	ExitTimeoutHard ExitReason = "TIMEOUT_HARD"
	ExitTimeoutSoft ExitReason = "TIMEOUT_SOFT"
	ExitStopLoss    ExitReason = "STOP_LOSS"
	ExitTakeProfit  ExitReason = "TAKE_PROFIT"
)

// Position is the single open trade. StopLossPct and HighestPrice mutate
// under the trailing-stop rule; everything else is fixed at entry.
type Position struct {
	ID            string
	Symbol        string // trading pair, e.g. "BTCUSDT"
	BaseAsset     string // e.g. "BTC"
	EntryPrice    float64
	Quantity      float64
	EntryCost     float64 // USDT spent including fees
	OpenTime      time.Time
	StopLossPct   float64
	TakeProfitPct float64
	HighestPrice  float64
}

// Trade represents a closed round trip.
type Trade struct {
	Symbol      string
	EntryPrice  float64
	ExitPrice   float64
	Quantity    float64
	EntryCost   float64 // USDT including buy fees
	NetProceeds float64 // USDT after sell fees
	RealizedPnL float64
	PnLPercent  float64
	OpenTime    time.Time
	CloseTime   time.Time
	Duration    time.Duration
	ExitReason  ExitReason
}

// SentimentVerdict is a validated oracle response. Degraded marks the
// default-neutral verdict produced when every oracle attempt failed.
type SentimentVerdict struct {
	Sentiment         string
	Score             int // 0-100
	BuyRecommendation Recommendation
	KeyFactors        []string
	SourceSentiments  map[string]string
	Degraded          bool
	Err               string
}

// CandidateScore accumulates per-symbol scoring data during ranking.
type CandidateScore struct {
	Symbol            string
	RSI               float64
	Volatility        float64
	TechScore         float64
	StopLossPct       float64
	TakeProfitPct     float64
	SentimentScore    int
	Sentiment         string
	BuyRecommendation Recommendation
	KeyFactors        []string
	Degraded          bool
	FinalScore        float64
}

// DailyRiskState tracks per-UTC-day trading limits.
type DailyRiskState struct {
	Date          string // UTC date, "2006-01-02"
	CumulativePnL float64
	TradesCount   int
	LastTradeTime time.Time
}

// CorpusItem is one collected text snippet.
type CorpusItem struct {
	Title string
	Text  string
}

// Corpus is the raw text gathered for one coin before sentiment analysis.
type Corpus struct {
	Reddit []CorpusItem
	News   []CorpusItem
}

func (c Corpus) Empty() bool {
	return len(c.Reddit) == 0 && len(c.News) == 0
}

// Stats summarizes closed trades.
type Stats struct {
	TotalTrades      int
	ProfitableTrades int
	LosingTrades     int
	RealizedPnL      float64
	WinRate          float64
	AvgHoldTime      time.Duration
}
