package selection

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/analysis"
	"github.com/DouglasAmaral0/BinanceBot/internal/collector"
	"github.com/DouglasAmaral0/BinanceBot/internal/exchange"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// Analyst produces a sentiment verdict for a coin.
type Analyst interface {
	Analyze(ctx context.Context, coin string, corpus models.Corpus) models.SentimentVerdict
}

// Ranker scans the market, scores candidates technically, enriches the
// shortlist with sentiment and picks the best buy candidate.
type Ranker struct {
	exchange  exchange.ExchangeClient
	scorer    *analysis.Scorer
	collector collector.Collector
	analyst   Analyst
	cfg       *config.Config
	now       func() time.Time
	log       zerolog.Logger
}

func NewRanker(ex exchange.ExchangeClient, scorer *analysis.Scorer, col collector.Collector, analyst Analyst, cfg *config.Config, logger zerolog.Logger) *Ranker {
	return &Ranker{
		exchange:  ex,
		scorer:    scorer,
		collector: col,
		analyst:   analyst,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.With().Str("component", "ranker").Logger(),
	}
}

// Pick returns the top candidate for the current cycle, or nil when
// nothing is worth buying. The coin sold most recently is skipped while
// its cooldown lasts.
func (r *Ranker) Pick(ctx context.Context, lastSold string, lastSoldAt time.Time) (*models.CandidateScore, error) {
	coins, err := r.exchange.GetCoins(ctx)
	if err != nil {
		return nil, err
	}
	if len(coins) > r.cfg.MaxCoinsToAnalyze {
		coins = coins[:r.cfg.MaxCoinsToAnalyze]
	}

	candidates := make([]*models.CandidateScore, 0, len(coins))
	for _, coin := range coins {
		if coin == lastSold && r.now().Sub(lastSoldAt) < r.cfg.CooldownTime {
			r.log.Debug().Str("coin", coin).Msg("skipping, cooldown after recent sale")
			continue
		}

		symbol := coin + "USDT"
		klines, err := r.exchange.GetKlines(ctx, symbol, r.cfg.KlineInterval, r.cfg.KlineLimit)
		if err != nil {
			r.log.Warn().Err(err).Str("symbol", symbol).Msg("klines unavailable")
			continue
		}

		if candidate := r.scorer.Evaluate(symbol, klines); candidate != nil {
			candidates = append(candidates, candidate)
		}
	}

	if len(candidates) == 0 {
		r.log.Info().Msg("no technical candidates this cycle")
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TechScore > candidates[j].TechScore
	})
	if len(candidates) > r.cfg.ShortlistSize {
		candidates = candidates[:r.cfg.ShortlistSize]
	}

	r.enrichWithSentiment(ctx, candidates)

	allDegraded := true
	for _, c := range candidates {
		c.FinalScore = fuse(c)
		if !c.Degraded {
			allDegraded = false
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})

	best := candidates[0]
	if allDegraded && best.FinalScore < 0 {
		r.log.Warn().Msg("sentiment degraded and best candidate negative, standing aside")
		return nil, nil
	}

	r.log.Info().
		Str("symbol", best.Symbol).
		Float64("tech_score", best.TechScore).
		Int("sentiment_score", best.SentimentScore).
		Float64("final_score", best.FinalScore).
		Msg("🎯 Candidate selected")
	return best, nil
}

// enrichWithSentiment fans the shortlist out to the sentiment pipeline
// with a bounded number of workers. Each goroutine writes only its own
// candidate.
func (r *Ranker) enrichWithSentiment(ctx context.Context, candidates []*models.CandidateScore) {
	sem := make(chan struct{}, r.cfg.SentimentWorkers)
	var wg sync.WaitGroup

	for _, candidate := range candidates {
		wg.Add(1)
		go func(c *models.CandidateScore) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			coin := strings.TrimSuffix(c.Symbol, "USDT")
			corpus := r.collector.Collect(ctx, coin)
			verdict := r.analyst.Analyze(ctx, coin, corpus)

			c.Sentiment = verdict.Sentiment
			c.SentimentScore = verdict.Score
			c.BuyRecommendation = verdict.BuyRecommendation
			c.KeyFactors = verdict.KeyFactors
			c.Degraded = verdict.Degraded
		}(candidate)
	}
	wg.Wait()
}

// fuse combines the technical score with sentiment: 70/30 weighting over
// the centered sentiment score, plus a flat bump for an explicit
// recommendation either way.
func fuse(c *models.CandidateScore) float64 {
	normalized := float64(c.SentimentScore-50) * 2 * 5
	final := c.TechScore*0.7 + normalized*0.3
	switch c.BuyRecommendation {
	case models.RecommendBuy:
		final += 50
	case models.RecommendAvoid:
		final -= 50
	}
	return final
}
