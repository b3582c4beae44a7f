package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	simplejson "github.com/bitly/go-simplejson"
	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

const (
	redditSearchURL = "https://www.reddit.com/search.json"
	newsSearchURL   = "https://newsapi.org/v2/everything"
	maxRedditPosts  = 20
	maxNewsArticles = 5
	maxPostText     = 1000
)

// coinNames maps ticker symbols to full names for better search recall.
var coinNames = map[string]string{
	"BTC":  "Bitcoin",
	"ETH":  "Ethereum",
	"SOL":  "Solana",
	"ADA":  "Cardano",
	"DOT":  "Polkadot",
	"AVAX": "Avalanche",
	"DOGE": "Dogecoin",
	"SHIB": "Shiba Inu",
	"XRP":  "Ripple",
	"BNB":  "Binance Coin",
}

// Collector gathers public text about a coin for sentiment analysis.
// A source failure degrades to an empty section, never an error.
type Collector interface {
	Collect(ctx context.Context, coin string) models.Corpus
}

// HTTPCollector pulls recent Reddit posts and news articles.
type HTTPCollector struct {
	client     *http.Client
	newsAPIKey string
	userAgent  string
	log        zerolog.Logger
}

func NewHTTPCollector(newsAPIKey, userAgent string, logger zerolog.Logger) *HTTPCollector {
	return &HTTPCollector{
		client:     &http.Client{Timeout: 10 * time.Second},
		newsAPIKey: newsAPIKey,
		userAgent:  userAgent,
		log:        logger.With().Str("component", "collector").Logger(),
	}
}

func (c *HTTPCollector) Collect(ctx context.Context, coin string) models.Corpus {
	corpus := models.Corpus{
		Reddit: c.redditPosts(ctx, coin),
		News:   c.newsArticles(ctx, coin),
	}
	c.log.Info().
		Str("coin", coin).
		Int("reddit_posts", len(corpus.Reddit)).
		Int("news_articles", len(corpus.News)).
		Msg("📰 Corpus collected")
	return corpus
}

func (c *HTTPCollector) redditPosts(ctx context.Context, coin string) []models.CorpusItem {
	query := url.Values{}
	query.Set("q", searchTerm(coin))
	query.Set("sort", "new")
	query.Set("t", "week")
	query.Set("limit", fmt.Sprint(maxRedditPosts))

	js, err := c.getJSON(ctx, redditSearchURL+"?"+query.Encode())
	if err != nil {
		c.log.Warn().Err(err).Str("coin", coin).Msg("Reddit search failed")
		return nil
	}

	children := js.GetPath("data", "children")
	items := make([]models.CorpusItem, 0, maxRedditPosts)
	for i := 0; i < len(children.MustArray()); i++ {
		post := children.GetIndex(i).Get("data")
		text := post.Get("selftext").MustString()
		if text == "" {
			continue
		}
		if len(text) > maxPostText {
			text = text[:maxPostText]
		}
		items = append(items, models.CorpusItem{
			Title: post.Get("title").MustString(),
			Text:  text,
		})
	}
	return items
}

func (c *HTTPCollector) newsArticles(ctx context.Context, coin string) []models.CorpusItem {
	if c.newsAPIKey == "" {
		return nil
	}

	query := url.Values{}
	query.Set("q", searchTerm(coin))
	query.Set("sortBy", "publishedAt")
	query.Set("pageSize", fmt.Sprint(maxNewsArticles))
	query.Set("apiKey", c.newsAPIKey)

	js, err := c.getJSON(ctx, newsSearchURL+"?"+query.Encode())
	if err != nil {
		c.log.Warn().Err(err).Str("coin", coin).Msg("News search failed")
		return nil
	}

	articles := js.Get("articles")
	items := make([]models.CorpusItem, 0, maxNewsArticles)
	for i := 0; i < len(articles.MustArray()); i++ {
		article := articles.GetIndex(i)
		items = append(items, models.CorpusItem{
			Title: article.Get("title").MustString(),
			Text:  article.Get("description").MustString(),
		})
	}
	return items
}

func (c *HTTPCollector) getJSON(ctx context.Context, rawURL string) (*simplejson.Json, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return simplejson.NewFromReader(resp.Body)
}

func searchTerm(coin string) string {
	if name, ok := coinNames[coin]; ok {
		return name + " crypto"
	}
	return coin + " crypto"
}
