package sentiment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

const goodReply = `Here is my analysis:
{"sentiment": "positive", "score": 80, "buy_recommendation": "YES",
 "key_factors": ["strong on-chain activity", "ETF inflows"],
 "reddit_sentiment": "positive", "news_sentiment": "neutral"}`

type fakeOracle struct {
	live    bool
	replies []string
	errs    []error
	calls   int
}

func (f *fakeOracle) Live(ctx context.Context) bool { return f.live }

func (f *fakeOracle) Query(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func newTestAnalyzer(primary, fallback Oracle) (*Analyzer, *[]time.Duration, *time.Time) {
	a := NewAnalyzer(primary, fallback, 3, time.Hour, zerolog.Nop())
	sleeps := &[]time.Duration{}
	a.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	clock := &now
	a.now = func() time.Time { return *clock }
	return a, sleeps, clock
}

func TestAnalyzeParsesVerdict(t *testing.T) {
	primary := &fakeOracle{live: true, replies: []string{goodReply}}
	a, _, _ := newTestAnalyzer(primary, nil)

	v := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.Equal(t, 80, v.Score)
	assert.Equal(t, models.RecommendBuy, v.BuyRecommendation)
	assert.Equal(t, "positive", v.Sentiment)
	assert.Equal(t, []string{"strong on-chain activity", "ETF inflows"}, v.KeyFactors)
	assert.Equal(t, "positive", v.SourceSentiments["reddit"])
	assert.Equal(t, "neutral", v.SourceSentiments["news"])
	assert.False(t, v.Degraded)
}

func TestAnalyzeRetriesWithBackoff(t *testing.T) {
	boom := errors.New("timeout")
	primary := &fakeOracle{
		live:    true,
		errs:    []error{boom, boom, nil},
		replies: []string{"", "", goodReply},
	}
	a, sleeps, _ := newTestAnalyzer(primary, nil)

	v := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.False(t, v.Degraded)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestAnalyzeFallbackCalledOnce(t *testing.T) {
	boom := errors.New("timeout")
	primary := &fakeOracle{live: true, errs: []error{boom, boom, boom}}
	fallback := &fakeOracle{replies: []string{goodReply}}
	a, _, _ := newTestAnalyzer(primary, fallback)

	v := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.False(t, v.Degraded)
	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAnalyzeSkipsOfflinePrimary(t *testing.T) {
	primary := &fakeOracle{live: false}
	fallback := &fakeOracle{replies: []string{goodReply}}
	a, sleeps, _ := newTestAnalyzer(primary, fallback)

	v := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.False(t, v.Degraded)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Empty(t, *sleeps)
}

func TestAnalyzeDegradedDefaultNotCached(t *testing.T) {
	primary := &fakeOracle{live: false}
	a, _, _ := newTestAnalyzer(primary, nil)

	v := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.True(t, v.Degraded)
	assert.Equal(t, 50, v.Score)
	assert.Equal(t, models.RecommendNeutral, v.BuyRecommendation)

	// A recovered oracle must be consulted on the next call.
	primary.live = true
	primary.replies = []string{goodReply}
	v = a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.False(t, v.Degraded)
	assert.Equal(t, 1, primary.calls)
}

func TestAnalyzeServesFromCache(t *testing.T) {
	primary := &fakeOracle{live: true, replies: []string{goodReply, goodReply}}
	a, _, clock := newTestAnalyzer(primary, nil)

	first := a.Analyze(context.Background(), "BTC", models.Corpus{})
	second := a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, first, second)

	*clock = clock.Add(2 * time.Hour)
	a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.Equal(t, 2, primary.calls)
}

func TestPrune(t *testing.T) {
	primary := &fakeOracle{live: true, replies: []string{goodReply}}
	a, _, clock := newTestAnalyzer(primary, nil)

	a.Analyze(context.Background(), "BTC", models.Corpus{})
	assert.Equal(t, 0, a.Prune(time.Hour))

	*clock = clock.Add(3 * time.Hour)
	assert.Equal(t, 1, a.Prune(time.Hour))
}

func TestParseVerdictStringScore(t *testing.T) {
	v, err := parseVerdict(`{"sentiment": "neutral", "score": "75", "buy_recommendation": "NEUTRAL"}`)
	require.NoError(t, err)
	assert.Equal(t, 75, v.Score)
}

func TestParseVerdictClampsScore(t *testing.T) {
	v, err := parseVerdict(`{"score": 150, "buy_recommendation": "YES"}`)
	require.NoError(t, err)
	assert.Equal(t, 100, v.Score)

	v, err = parseVerdict(`{"score": -5, "buy_recommendation": "NO"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Score)
}

func TestParseVerdictInvalidScoreDefaults(t *testing.T) {
	v, err := parseVerdict(`{"score": "high", "buy_recommendation": "YES"}`)
	require.NoError(t, err)
	assert.Equal(t, 50, v.Score)
}

func TestParseVerdictKeyFactorsString(t *testing.T) {
	v, err := parseVerdict(`{"score": 60, "key_factors": "broad market rally"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"broad market rally"}, v.KeyFactors)
}

func TestParseVerdictNoJSON(t *testing.T) {
	_, err := parseVerdict("I cannot help with that.")
	assert.Error(t, err)
}

func TestParseRecommendation(t *testing.T) {
	cases := map[string]models.Recommendation{
		"YES":     models.RecommendBuy,
		"SIM":     models.RecommendBuy,
		"COMPRA":  models.RecommendBuy,
		"buy":     models.RecommendBuy,
		"NO":      models.RecommendAvoid,
		"NÃO":     models.RecommendAvoid,
		"nao":     models.RecommendAvoid,
		"NEUTRAL": models.RecommendNeutral,
		"neutro":  models.RecommendNeutral,
		"":        models.RecommendNeutral,
	}
	for raw, want := range cases {
		assert.Equal(t, want, parseRecommendation(raw), "input %q", raw)
	}
}
