// Package report renders a run's results as HTML, Markdown, or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"glp1-survey/config"
	"glp1-survey/diff"
	"glp1-survey/pkg/survey"
)

// Supported output formats.
const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Per-section display caps keep reports readable when sources are noisy.
const (
	maxItemsPerCategory = 20
	maxFilings          = 30
)

// Data is everything one run produces, ready to render.
type Data struct {
	GeneratedAt   time.Time
	Items         []survey.Item
	ShortageItems []survey.Item
	Filings       []survey.Filing
	Diff          *diff.Result
}

// Renderer formats run results per the configured category layout.
type Renderer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a renderer.
func New(cfg *config.Config, logger *slog.Logger) *Renderer {
	return &Renderer{cfg: cfg, logger: logger}
}

// Render produces the report in the requested format. Unknown formats fall
// back to Markdown with a logged warning.
func (r *Renderer) Render(data *Data, format string) (string, error) {
	switch format {
	case FormatHTML:
		return r.renderHTML(data), nil
	case FormatJSON:
		return r.renderJSON(data)
	case FormatMarkdown:
		return r.renderMarkdown(data), nil
	default:
		r.logger.Warn("Unknown report format, falling back to markdown", "format", format)
		return r.renderMarkdown(data), nil
	}
}

// Extension returns the file extension for a report format.
func Extension(format string) string {
	switch format {
	case FormatHTML:
		return "html"
	case FormatJSON:
		return "json"
	default:
		return "md"
	}
}

// categorySection is one report section: a category's items, sorted for
// display (newly observed first, then score descending).
type categorySection struct {
	Key         string
	DisplayName string
	Items       []survey.Item
}

// sections groups items by category and orders the groups by configured
// priority. Categories absent from config render after configured ones, in
// name order.
func (r *Renderer) sections(items []survey.Item) []categorySection {
	grouped := make(map[string][]survey.Item)
	for _, item := range items {
		cat := item.Category
		if cat == "" {
			cat = "other"
		}
		grouped[cat] = append(grouped[cat], item)
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, iok := r.cfg.Categories[keys[i]]
		pj, jok := r.cfg.Categories[keys[j]]
		switch {
		case iok && jok && pi.Priority != pj.Priority:
			return pi.Priority < pj.Priority
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	var out []categorySection
	for _, key := range keys {
		group := grouped[key]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].IsNew != group[j].IsNew {
				return group[i].IsNew
			}
			return group[i].RelevanceScore > group[j].RelevanceScore
		})
		if len(group) > maxItemsPerCategory {
			group = group[:maxItemsPerCategory]
		}

		display := key
		if cat, ok := r.cfg.Categories[key]; ok && cat.DisplayName != "" {
			display = cat.DisplayName
		}
		out = append(out, categorySection{Key: key, DisplayName: display, Items: group})
	}
	return out
}

// keywordInventory counts matched-term frequency across all items, most
// frequent first; ties break alphabetically.
func keywordInventory(items []survey.Item) []struct {
	Term  string
	Count int
} {
	counts := make(map[string]int)
	for _, item := range items {
		for _, term := range item.MatchedTerms {
			counts[term]++
		}
	}

	out := make([]struct {
		Term  string
		Count int
	}, 0, len(counts))
	for term, n := range counts {
		out = append(out, struct {
			Term  string
			Count int
		}{term, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// filingItems normalizes filings into display items, capped for the
// report's filings section.
func filingItems(data *Data) []survey.Item {
	filings := data.Filings
	if len(filings) > maxFilings {
		filings = filings[:maxFilings]
	}
	items := make([]survey.Item, 0, len(filings))
	for i := range filings {
		items = append(items, filings[i].Item("Drugs@FDA", data.GeneratedAt))
	}
	return items
}

func (r *Renderer) renderJSON(data *Data) (string, error) {
	type payload struct {
		GeneratedAt   time.Time       `json:"generated_at"`
		Changes       *diff.Result    `json:"changes"`
		Items         []survey.Item   `json:"items"`
		ShortageItems []survey.Item   `json:"shortage_items"`
		Filings       []survey.Filing `json:"filings"`
	}

	out, err := json.MarshalIndent(payload{
		GeneratedAt:   data.GeneratedAt,
		Changes:       data.Diff,
		Items:         data.Items,
		ShortageItems: data.ShortageItems,
		Filings:       data.Filings,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(out), nil
}

func (r *Renderer) renderMarkdown(data *Data) string {
	var b strings.Builder

	b.WriteString("# GLP-1 Drug News Survey\n\n")
	b.WriteString("Generated: " + data.GeneratedAt.Format("2006-01-02 15:04 MST") + "\n\n")

	b.WriteString("## Changes since last run\n\n")
	d := data.Diff
	if d == nil || !d.HasPrevious {
		b.WriteString("First run: baseline established, everything below is newly observed.\n\n")
	} else {
		b.WriteString(fmt.Sprintf("Compared against snapshot from %s.\n\n", d.PreviousTimestamp.Format("2006-01-02 15:04 MST")))
		if !d.HasChanges() && d.RemovedItemCount == 0 {
			b.WriteString("No changes detected.\n\n")
		} else {
			for _, c := range d.ShortageChanges {
				b.WriteString(fmt.Sprintf("- **%s** (%s)\n", c.Message, c.Severity))
			}
			b.WriteString(fmt.Sprintf("- New items: %d\n", d.NewItemCount))
			b.WriteString(fmt.Sprintf("- Items no longer listed: %d\n", d.RemovedItemCount))
			b.WriteString(fmt.Sprintf("- New filings: %d\n", d.NewFilingCount))
			b.WriteString(fmt.Sprintf("- Item count delta: %+d, filing count delta: %+d\n\n", d.ItemsDelta, d.FilingsDelta))
		}
	}

	b.WriteString("## Summary\n\n")
	b.WriteString(fmt.Sprintf("- News items: %d\n", len(data.Items)))
	b.WriteString(fmt.Sprintf("- Shortage checks: %d\n", len(data.ShortageItems)))
	b.WriteString(fmt.Sprintf("- Regulatory filings: %d\n\n", len(data.Filings)))

	if len(data.ShortageItems) > 0 {
		b.WriteString("## Drug shortage status\n\n")
		for _, item := range data.ShortageItems {
			b.WriteString("- " + item.Title)
			if item.Summary != "" {
				b.WriteString(" - " + item.Summary)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(data.Filings) > 0 {
		b.WriteString("## Regulatory filings\n\n")
		for _, it := range filingItems(data) {
			b.WriteString("- ")
			if it.IsNew {
				b.WriteString("**new** ")
			}
			if it.URL != "" {
				b.WriteString(fmt.Sprintf("[%s](%s)", it.Title, it.URL))
			} else {
				b.WriteString(it.Title)
			}
			if it.Summary != "" {
				b.WriteString(" - " + it.Summary)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, section := range r.sections(data.Items) {
		b.WriteString("## " + section.DisplayName + "\n\n")
		for _, item := range section.Items {
			b.WriteString("- ")
			if item.IsNew {
				b.WriteString("**new** ")
			}
			if item.URL != "" {
				b.WriteString(fmt.Sprintf("[%s](%s)", item.Title, item.URL))
			} else {
				b.WriteString(item.Title)
			}
			b.WriteString(fmt.Sprintf(" (%s, score %.0f)", item.Source, item.RelevanceScore))
			if item.PublishedDate != "" {
				b.WriteString(" - " + item.PublishedDate)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	inventory := keywordInventory(data.Items)
	if len(inventory) > 0 {
		b.WriteString("## Matched keywords\n\n")
		for _, kw := range inventory {
			b.WriteString(fmt.Sprintf("- %s: %d\n", kw.Term, kw.Count))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func (r *Renderer) renderHTML(data *Data) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<title>GLP-1 Drug News Survey</title>\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 900px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString("h1 { border-bottom: 2px solid #2c7fb8; padding-bottom: 8px; }\n")
	b.WriteString("h2 { color: #2c7fb8; margin-top: 30px; }\n")
	b.WriteString(".item { margin-bottom: 12px; padding-bottom: 12px; border-bottom: 1px solid #eee; }\n")
	b.WriteString(".new { background: #fff8e1; padding: 2px 6px; border-radius: 3px; font-size: 0.8em; color: #b45309; font-weight: 600; }\n")
	b.WriteString(".high { color: #c0392b; font-weight: 600; }\n")
	b.WriteString(".info { color: #7f8c8d; }\n")
	b.WriteString(".meta { color: #7f8c8d; font-size: 0.9em; }\n")
	b.WriteString("a { color: #2c7fb8; text-decoration: none; }\n")
	b.WriteString("a:hover { text-decoration: underline; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<h1>GLP-1 Drug News Survey</h1>\n")
	b.WriteString(fmt.Sprintf("<p class=\"meta\">Generated %s</p>\n", escapeHTML(data.GeneratedAt.Format("2006-01-02 15:04 MST"))))

	b.WriteString("<h2>Changes since last run</h2>\n")
	d := data.Diff
	if d == nil || !d.HasPrevious {
		b.WriteString("<p>First run: baseline established, everything below is newly observed.</p>\n")
	} else {
		b.WriteString(fmt.Sprintf("<p class=\"meta\">Compared against snapshot from %s.</p>\n",
			escapeHTML(d.PreviousTimestamp.Format("2006-01-02 15:04 MST"))))
		if !d.HasChanges() && d.RemovedItemCount == 0 {
			b.WriteString("<p>No changes detected.</p>\n")
		} else {
			b.WriteString("<ul>\n")
			for _, c := range d.ShortageChanges {
				b.WriteString(fmt.Sprintf("<li class=\"%s\">%s</li>\n", escapeHTML(c.Severity), escapeHTML(c.Message)))
			}
			b.WriteString(fmt.Sprintf("<li>New items: %d</li>\n", d.NewItemCount))
			b.WriteString(fmt.Sprintf("<li>Items no longer listed: %d</li>\n", d.RemovedItemCount))
			b.WriteString(fmt.Sprintf("<li>New filings: %d</li>\n", d.NewFilingCount))
			b.WriteString(fmt.Sprintf("<li>Item count delta: %+d, filing count delta: %+d</li>\n", d.ItemsDelta, d.FilingsDelta))
			b.WriteString("</ul>\n")
		}
	}

	b.WriteString("<h2>Summary</h2>\n<ul>\n")
	b.WriteString(fmt.Sprintf("<li>News items: %d</li>\n", len(data.Items)))
	b.WriteString(fmt.Sprintf("<li>Shortage checks: %d</li>\n", len(data.ShortageItems)))
	b.WriteString(fmt.Sprintf("<li>Regulatory filings: %d</li>\n", len(data.Filings)))
	b.WriteString("</ul>\n")

	if len(data.ShortageItems) > 0 {
		b.WriteString("<h2>Drug shortage status</h2>\n<ul>\n")
		for _, item := range data.ShortageItems {
			b.WriteString("<li>")
			if item.URL != "" {
				b.WriteString(fmt.Sprintf("<a href=\"%s\">%s</a>", escapeHTML(item.URL), escapeHTML(item.Title)))
			} else {
				b.WriteString(escapeHTML(item.Title))
			}
			if item.Summary != "" {
				b.WriteString(fmt.Sprintf(" <span class=\"meta\">%s</span>", escapeHTML(item.Summary)))
			}
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}

	if len(data.Filings) > 0 {
		b.WriteString("<h2>Regulatory filings</h2>\n")
		for _, it := range filingItems(data) {
			b.WriteString("<div class=\"item\">\n")
			if it.IsNew {
				b.WriteString("<span class=\"new\">new</span> ")
			}
			if it.URL != "" {
				b.WriteString(fmt.Sprintf("<a href=\"%s\">%s</a>\n", escapeHTML(it.URL), escapeHTML(it.Title)))
			} else {
				b.WriteString(escapeHTML(it.Title) + "\n")
			}
			if it.Summary != "" {
				b.WriteString(fmt.Sprintf("<div class=\"meta\">%s</div>\n", escapeHTML(it.Summary)))
			}
			b.WriteString("</div>\n")
		}
	}

	for _, section := range r.sections(data.Items) {
		b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", escapeHTML(section.DisplayName)))
		for _, item := range section.Items {
			b.WriteString("<div class=\"item\">\n")
			if item.IsNew {
				b.WriteString("<span class=\"new\">new</span> ")
			}
			if item.URL != "" {
				b.WriteString(fmt.Sprintf("<a href=\"%s\">%s</a>\n", escapeHTML(item.URL), escapeHTML(item.Title)))
			} else {
				b.WriteString(escapeHTML(item.Title) + "\n")
			}
			b.WriteString(fmt.Sprintf("<div class=\"meta\">%s &bull; score %.0f", escapeHTML(item.Source), item.RelevanceScore))
			if item.PublishedDate != "" {
				b.WriteString(" &bull; " + escapeHTML(item.PublishedDate))
			}
			if len(item.MatchedTerms) > 0 {
				b.WriteString(" &bull; " + escapeHTML(strings.Join(item.MatchedTerms, ", ")))
			}
			b.WriteString("</div>\n")
			if item.Summary != "" {
				b.WriteString(fmt.Sprintf("<div>%s</div>\n", escapeHTML(item.Summary)))
			}
			b.WriteString("</div>\n")
		}
	}

	inventory := keywordInventory(data.Items)
	if len(inventory) > 0 {
		b.WriteString("<h2>Matched keywords</h2>\n<ul>\n")
		for _, kw := range inventory {
			b.WriteString(fmt.Sprintf("<li>%s: %d</li>\n", escapeHTML(kw.Term), kw.Count))
		}
		b.WriteString("</ul>\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
