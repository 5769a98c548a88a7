// Package scrape holds the HTML source adapters: generic news pages plus
// the FDA novel-approvals and warning-letters tables.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"glp1-survey/fetch"
	"glp1-survey/match"
	"glp1-survey/pkg/survey"
)

// Default selectors for generic pages; sources may override per-site.
const (
	defaultItemSelector  = "article, .news-item, .card"
	defaultTitleSelector = "h2, h3, .title"
	defaultLinkSelector  = "a"
	defaultDateSelector  = "time, .date"
)

// Adapter scrapes configured web pages for relevant items.
type Adapter struct {
	client   *fetch.Client
	matcher  *match.Matcher
	logger   *slog.Logger
	maxItems int
}

// New creates a scrape adapter.
func New(client *fetch.Client, matcher *match.Matcher, maxItems int, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:   client,
		matcher:  matcher,
		logger:   logger,
		maxItems: maxItems,
	}
}

// Fetch scrapes a generic news page using the source's selector set.
func (a *Adapter) Fetch(ctx context.Context, src survey.Source) ([]survey.Item, error) {
	body, err := a.client.Get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", src.URL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", src.URL, err)
	}

	items := a.parsePage(doc, src)
	a.logger.Info("Page scraped", "source", src.Name, "relevant", len(items))
	return items, nil
}

func (a *Adapter) parsePage(doc *goquery.Document, src survey.Source) []survey.Item {
	selector := func(key, fallback string) string {
		if v, ok := src.Selectors[key]; ok && v != "" {
			return v
		}
		return fallback
	}

	now := time.Now()
	var items []survey.Item

	doc.Find(selector("item", defaultItemSelector)).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(selector("title", defaultTitleSelector)).First().Text())
		if title == "" {
			return true
		}

		score, matched := a.matcher.Score(title)
		if score <= 0 {
			return true
		}

		link := ""
		if href, ok := sel.Find(selector("link", defaultLinkSelector)).First().Attr("href"); ok {
			link = resolveURL(src.URL, href)
		}
		if link == "" {
			// Identity invariant: persisted items always carry a URL.
			link = src.URL
		}

		published := strings.TrimSpace(sel.Find(selector("date", defaultDateSelector)).First().Text())

		items = append(items, survey.Item{
			Title:          title,
			URL:            link,
			Source:         src.Name,
			Category:       src.Category,
			Subcategory:    src.Subcategory,
			PublishedDate:  published,
			RelevanceScore: score,
			MatchedTerms:   matched,
			CollectedAt:    now,
		})
		return len(items) < a.maxItems
	})

	return items
}

// resolveURL joins href against base, tolerating malformed input.
func resolveURL(base, href string) string {
	if href == "" {
		return ""
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	hu, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(hu).String()
}
