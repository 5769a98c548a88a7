// Package feed is the RSS/Atom source adapter.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"glp1-survey/fetch"
	"glp1-survey/match"
	"glp1-survey/pkg/survey"
)

const maxSummaryRunes = 500

// Adapter fetches feed entries and keeps the ones the matcher scores above
// zero.
type Adapter struct {
	client   *fetch.Client
	matcher  *match.Matcher
	logger   *slog.Logger
	parser   *gofeed.Parser
	maxItems int
}

// New creates a feed adapter.
func New(client *fetch.Client, matcher *match.Matcher, maxItems int, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:   client,
		matcher:  matcher,
		logger:   logger,
		parser:   gofeed.NewParser(),
		maxItems: maxItems,
	}
}

// Fetch retrieves and scores entries from the source's feed URL.
func (a *Adapter) Fetch(ctx context.Context, src survey.Source) ([]survey.Item, error) {
	feedURL := src.RSSURL
	if feedURL == "" {
		feedURL = src.URL
	}

	body, err := a.client.Get(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}

	parsed, err := a.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	now := time.Now()
	var items []survey.Item
	entries := parsed.Items
	if len(entries) > a.maxItems {
		entries = entries[:a.maxItems]
	}

	for _, entry := range entries {
		summary := stripHTML(entry.Description)

		score, matched := a.matcher.Score(entry.Title + " " + summary)
		if score <= 0 {
			continue
		}

		var published string
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.Format("2006-01-02")
		}

		link := entry.Link
		if link == "" {
			link = feedURL
		}

		items = append(items, survey.Item{
			Title:          entry.Title,
			URL:            link,
			Source:         src.Name,
			Category:       src.Category,
			Subcategory:    src.Subcategory,
			PublishedDate:  published,
			Summary:        summary,
			RelevanceScore: score,
			MatchedTerms:   matched,
			CollectedAt:    now,
		})
	}

	a.logger.Info("Feed fetched", "source", src.Name, "entries", len(entries), "relevant", len(items))
	return items, nil
}

// stripHTML flattens feed summary markup to plain text and truncates it.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err == nil {
		s = doc.Text()
	}
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > maxSummaryRunes {
		s = string(runes[:maxSummaryRunes])
	}
	return s
}
