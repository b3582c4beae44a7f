package sentiment

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/internal/llm"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

const neutralScore = 50

// Oracle is a chat completion backend for sentiment queries.
type Oracle interface {
	Live(ctx context.Context) bool
	Query(ctx context.Context, system, user string) (string, error)
}

type cacheEntry struct {
	at      time.Time
	verdict models.SentimentVerdict
}

// Analyzer turns a collected corpus into a sentiment verdict via the
// primary oracle, falling back to a secondary one, and finally to a
// neutral default so a dead oracle never stalls a trading cycle.
type Analyzer struct {
	primary  Oracle
	fallback Oracle
	retries  int
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	now   func() time.Time
	sleep func(time.Duration)
	log   zerolog.Logger
}

func NewAnalyzer(primary, fallback Oracle, retries int, cacheTTL time.Duration, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		primary:  primary,
		fallback: fallback,
		retries:  retries,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
		now:      time.Now,
		sleep:    time.Sleep,
		log:      logger.With().Str("component", "sentiment").Logger(),
	}
}

// Analyze returns the sentiment verdict for a coin, serving from the
// hourly cache when fresh. Degraded defaults are never cached.
func (a *Analyzer) Analyze(ctx context.Context, coin string, corpus models.Corpus) models.SentimentVerdict {
	key := a.cacheKey(coin)

	a.mu.Lock()
	if entry, ok := a.cache[key]; ok && a.now().Sub(entry.at) < a.cacheTTL {
		a.mu.Unlock()
		a.log.Debug().Str("coin", coin).Msg("sentiment served from cache")
		return entry.verdict
	}
	a.mu.Unlock()

	verdict := a.query(ctx, coin, corpus)
	if !verdict.Degraded {
		a.mu.Lock()
		a.cache[key] = cacheEntry{at: a.now(), verdict: verdict}
		a.mu.Unlock()
	}
	return verdict
}

// Prune drops cache entries older than maxAge.
func (a *Analyzer) Prune(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, entry := range a.cache {
		if a.now().Sub(entry.at) >= maxAge {
			delete(a.cache, key)
			removed++
		}
	}
	if removed > 0 {
		a.log.Info().Int("removed", removed).Msg("🧹 Sentiment cache pruned")
	}
	return removed
}

func (a *Analyzer) cacheKey(coin string) string {
	return fmt.Sprintf("%s_%d", coin, a.now().Unix()/3600)
}

func (a *Analyzer) query(ctx context.Context, coin string, corpus models.Corpus) models.SentimentVerdict {
	prompt := llm.SentimentPrompt(coin, corpus)

	if a.primary != nil && a.primary.Live(ctx) {
		retry := &backoff.Backoff{Min: time.Second, Factor: 2, Jitter: false}
		for attempt := 1; attempt <= a.retries; attempt++ {
			content, err := a.primary.Query(ctx, llm.SentimentSystemPrompt, prompt)
			if err == nil {
				if verdict, parseErr := parseVerdict(content); parseErr == nil {
					return verdict
				} else {
					err = parseErr
				}
			}
			a.log.Warn().Err(err).Str("coin", coin).Int("attempt", attempt).Msg("primary oracle attempt failed")
			if attempt < a.retries {
				a.sleep(retry.Duration())
			}
		}
	} else {
		a.log.Warn().Str("coin", coin).Msg("primary oracle offline")
	}

	if a.fallback != nil {
		content, err := a.fallback.Query(ctx, llm.SentimentSystemPrompt, prompt)
		if err == nil {
			if verdict, parseErr := parseVerdict(content); parseErr == nil {
				a.log.Info().Str("coin", coin).Msg("verdict from fallback oracle")
				return verdict
			} else {
				err = parseErr
			}
		}
		a.log.Warn().Err(err).Str("coin", coin).Msg("fallback oracle failed")
	}

	a.log.Error().Str("coin", coin).Msg("❌ All sentiment oracles exhausted, using neutral default")
	return DefaultVerdict("all sentiment oracles failed")
}

// DefaultVerdict is the neutral stand-in used when no oracle answered.
func DefaultVerdict(reason string) models.SentimentVerdict {
	return models.SentimentVerdict{
		Sentiment:         "neutral",
		Score:             neutralScore,
		BuyRecommendation: models.RecommendNeutral,
		Degraded:          true,
		Err:               reason,
	}
}

// parseVerdict extracts the JSON object from a raw completion and
// normalizes its fields.
func parseVerdict(content string) (models.SentimentVerdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return models.SentimentVerdict{}, fmt.Errorf("no JSON found in oracle response")
	}

	js, err := simplejson.NewJson([]byte(content[start : end+1]))
	if err != nil {
		return models.SentimentVerdict{}, fmt.Errorf("invalid JSON in oracle response: %w", err)
	}

	verdict := models.SentimentVerdict{
		Sentiment:         js.Get("sentiment").MustString("neutral"),
		Score:             parseScore(js.Get("score")),
		BuyRecommendation: parseRecommendation(js.Get("buy_recommendation").MustString()),
		KeyFactors:        parseKeyFactors(js.Get("key_factors")),
		SourceSentiments:  map[string]string{},
	}
	if s := js.Get("reddit_sentiment").MustString(); s != "" {
		verdict.SourceSentiments["reddit"] = s
	}
	if s := js.Get("news_sentiment").MustString(); s != "" {
		verdict.SourceSentiments["news"] = s
	}
	return verdict, nil
}

func parseScore(js *simplejson.Json) int {
	score := neutralScore
	if n, err := js.Int(); err == nil {
		score = n
	} else if f, err := js.Float64(); err == nil {
		score = int(f)
	} else if s, err := js.String(); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			score = n
		}
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// parseRecommendation tolerates the mixed vocabularies local models
// answer with, including Portuguese ones.
func parseRecommendation(raw string) models.Recommendation {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for _, marker := range []string{"SIM", "BUY", "COMPRA", "YES"} {
		if strings.Contains(normalized, marker) {
			return models.RecommendBuy
		}
	}
	for _, marker := range []string{"NÃO", "NAO", "NOT", "NO"} {
		if strings.Contains(normalized, marker) {
			return models.RecommendAvoid
		}
	}
	return models.RecommendNeutral
}

func parseKeyFactors(js *simplejson.Json) []string {
	if arr, err := js.StringArray(); err == nil {
		return arr
	}
	if s, err := js.String(); err == nil && s != "" {
		return []string{s}
	}
	return nil
}
