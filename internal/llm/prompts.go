package llm

import (
	"fmt"
	"strings"

	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

const (
	maxRedditPosts  = 3
	maxNewsArticles = 2
	maxPostChars    = 200
	maxArticleChars = 150
	maxPromptLength = 4000
)

// SentimentSystemPrompt primes the model before every sentiment request.
const SentimentSystemPrompt = "You are a cryptocurrency market sentiment analyst. " +
	"You answer strictly with a single JSON object and nothing else."

// SentimentPrompt renders the collected corpus for one coin into the chat
// prompt, capping the number of items per source and the total length.
func SentimentPrompt(coin string, corpus models.Corpus) string {
	redditSample := sampleItems(corpus.Reddit, maxRedditPosts, maxPostChars)
	newsSample := sampleItems(corpus.News, maxNewsArticles, maxArticleChars)

	prompt := renderSentimentPrompt(coin, redditSample, newsSample)
	if len(prompt) > maxPromptLength {
		excess := len(prompt) - maxPromptLength
		redditSample = shrink(redditSample, excess/2)
		newsSample = shrink(newsSample, excess/2)
		prompt = renderSentimentPrompt(coin, redditSample, newsSample)
	}
	return prompt
}

func renderSentimentPrompt(coin, redditSample, newsSample string) string {
	if redditSample == "" {
		redditSample = "No data available."
	}
	if newsSample == "" {
		newsSample = "No data available."
	}

	return fmt.Sprintf(`Analyze the market sentiment for the cryptocurrency %s based on the data below.

AVAILABLE DATA:

=== REDDIT ===
%s

=== NEWS ===
%s

INSTRUCTIONS:
Provide your analysis as JSON with the following fields:
- sentiment: "positive", "negative", "neutral", "very positive" or "very negative"
- score: a number from 0 to 100, where 0 is extremely negative and 100 is extremely positive
- buy_recommendation: "YES", "NO" or "NEUTRAL"
- key_factors: an array of 2-3 short sentences about the key factors driving the sentiment
- reddit_sentiment: "positive", "negative" or "neutral"
- news_sentiment: "positive", "negative" or "neutral"

Answer ONLY with the JSON, no additional explanation.`, coin, redditSample, newsSample)
}

func sampleItems(items []models.CorpusItem, maxItems, maxChars int) string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		text := item.Text
		if len(text) > maxChars {
			text = text[:maxChars] + "..."
		}
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, fmt.Sprintf("%s - %s", title, text))
	}
	return strings.Join(lines, "\n")
}

func shrink(sample string, by int) string {
	if by <= 0 || len(sample) <= by {
		return sample
	}
	return sample[:len(sample)-by]
}
