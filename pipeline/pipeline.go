// Package pipeline runs the source adapters over the configured source
// list and merges their output into one deduplicated batch.
package pipeline

import (
	"context"
	"log/slog"

	"glp1-survey/pkg/survey"
)

// Fetcher is the common shape of a source adapter.
type Fetcher interface {
	Fetch(ctx context.Context, src survey.Source) ([]survey.Item, error)
}

// TableFetcher covers the FDA table scrapers, which ignore generic
// selectors and parse fixed page layouts instead.
type TableFetcher interface {
	FetchNovelApprovals(ctx context.Context, src survey.Source) ([]survey.Item, error)
	FetchWarningLetters(ctx context.Context, src survey.Source) ([]survey.Item, error)
}

// Pipeline fans the source list out to the adapters. Sources run in
// config order; one failing source never aborts the run.
type Pipeline struct {
	feeds  Fetcher
	pages  Fetcher
	tables TableFetcher
	logger *slog.Logger
	maxPer int
}

// New creates a pipeline over the given adapters.
func New(feeds, pages Fetcher, tables TableFetcher, maxPerSource int, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		feeds:  feeds,
		pages:  pages,
		tables: tables,
		logger: logger,
		maxPer: maxPerSource,
	}
}

// Run fetches every enabled source and returns the merged batch plus the
// updated seen-URL set. Items whose URL is already in seen are dropped
// unless includeSeen is set; either way every collected URL lands in the
// returned set. Items keep source order then adapter-yield order; any
// presentation sort is the caller's concern.
func (p *Pipeline) Run(ctx context.Context, sources []survey.Source, seen map[string]bool, includeSeen bool) ([]survey.Item, map[string]bool) {
	updated := make(map[string]bool, len(seen))
	for u := range seen {
		updated[u] = true
	}

	var all []survey.Item
	dropped := 0

	for _, src := range sources {
		items, err := p.fetchSource(ctx, src)
		if err != nil {
			p.logger.Warn("Source failed, continuing", "source", src.Name, "kind", src.Kind, "error", err)
			continue
		}
		if len(items) > p.maxPer {
			items = items[:p.maxPer]
		}

		for _, item := range items {
			if !includeSeen && seen[item.URL] {
				dropped++
				updated[item.URL] = true
				continue
			}
			updated[item.URL] = true
			all = append(all, item)
		}
	}

	p.logger.Info("Aggregation completed",
		"sources", len(sources),
		"items", len(all),
		"previously_seen", dropped)
	return all, updated
}

// fetchSource dispatches one source to its adapter. Shortage sources are
// skipped here: the shortage monitor handles them as a separate stage so
// their status reaches the snapshot as first-class data.
func (p *Pipeline) fetchSource(ctx context.Context, src survey.Source) ([]survey.Item, error) {
	if src.Subcategory == "drug_shortages" {
		return nil, nil
	}

	switch {
	case src.Kind == "rss":
		return p.feeds.Fetch(ctx, src)
	case src.Subcategory == "novel_approvals":
		return p.tables.FetchNovelApprovals(ctx, src)
	case src.Subcategory == "warning_letters":
		return p.tables.FetchWarningLetters(ctx, src)
	default:
		return p.pages.Fetch(ctx, src)
	}
}
