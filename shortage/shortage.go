// Package shortage monitors the FDA drug shortage database for the
// configured watch list.
package shortage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"glp1-survey/config"
	"glp1-survey/fetch"
	"glp1-survey/pkg/survey"
)

const defaultDatabaseURL = "https://www.accessdata.fda.gov/scripts/drugshortages/default.cfm"

// cacheTTL bounds how long a fetched shortage list is reused within a run.
const cacheTTL = 5 * time.Minute

// Entry is one row of the shortage database, in page order.
type Entry struct {
	Key        string
	Name       string
	Status     string
	URL        string
	InShortage bool
}

// Monitor checks watch-listed drugs against the shortage database. The
// fetched list is cached as an explicit (value, fetchedAt) pair; staleness
// is checked at each call site.
type Monitor struct {
	client *fetch.Client
	cfg    *config.Config
	logger *slog.Logger

	cache     []Entry
	fetchedAt time.Time
	now       func() time.Time
}

// New creates a shortage monitor.
func New(client *fetch.Client, cfg *config.Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		client: client,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Monitor) databaseURL() string {
	if m.cfg.ShortageMonitor.DatabaseURL != "" {
		return m.cfg.ShortageMonitor.DatabaseURL
	}
	return defaultDatabaseURL
}

// NormalizeKey folds a drug display name for matching: case-folded with
// spaces and hyphens removed.
func NormalizeKey(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, "-", "")
}

// NormalizeDrugName folds a display name into the stable key used by the
// snapshot status map.
func NormalizeDrugName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// shortageList returns the cached shortage database rows in page order,
// refetching when the cache is stale.
func (m *Monitor) shortageList(ctx context.Context) []Entry {
	if !m.fetchedAt.IsZero() && m.now().Sub(m.fetchedAt) < cacheTTL {
		return m.cache
	}

	var entries []Entry

	body, err := m.client.Get(ctx, m.databaseURL())
	if err != nil {
		m.logger.Warn("Shortage database unreachable", "error", err)
		return entries
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		m.logger.Warn("Shortage database failed to parse", "error", err)
		return entries
	}

	doc.Find("table").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		link := cells.Eq(0).Find("a").First()
		name := strings.TrimSpace(link.Text())
		if name == "" {
			return
		}

		drugURL, _ := link.Attr("href")
		if drugURL != "" && !strings.HasPrefix(drugURL, "http") {
			drugURL = "https://www.accessdata.fda.gov/scripts/drugshortages/" + drugURL
		}

		status := strings.TrimSpace(cells.Eq(1).Text())
		entries = append(entries, Entry{
			Key:        NormalizeKey(name),
			Name:       name,
			Status:     status,
			URL:        drugURL,
			InShortage: strings.Contains(strings.ToLower(status), "currently in shortage"),
		})
	})

	m.cache = entries
	m.fetchedAt = m.now()
	m.logger.Info("Shortage database fetched", "entries", len(entries))
	return entries
}

// Check reports the shortage status of every watch-listed drug. Each
// returned item carries DrugName and ShortageStatus as data so the diff
// engine never parses titles.
func (m *Monitor) Check(ctx context.Context) []survey.Item {
	mc := m.cfg.ShortageMonitor
	if !mc.Enabled {
		return nil
	}

	now := m.now()
	list := m.shortageList(ctx)

	if len(list) == 0 {
		return []survey.Item{{
			Title:          "[warning] drug shortage database unreachable",
			URL:            m.databaseURL(),
			Source:         "FDA Drug Shortages",
			Category:       "government",
			Subcategory:    "drug_shortages",
			Summary:        "The FDA drug shortage database could not be fetched this run.",
			RelevanceScore: 5,
			CollectedAt:    now,
		}}
	}

	type watch struct {
		term    string
		display string
	}
	var watches []watch
	for _, drug := range mc.DrugsToMonitor {
		watches = append(watches, watch{term: drug, display: titleCase(drug)})
	}
	for _, brand := range mc.BrandsToMonitor {
		watches = append(watches, watch{term: brand, display: brand})
	}

	var items []survey.Item
	shortageCount := 0

	for _, w := range watches {
		term := strings.ToLower(w.term)

		// First matching row in page order wins, so a term that matches
		// several presentations of a drug always resolves to the same row.
		var found *Entry
		for i := range list {
			entry := &list[i]
			if strings.Contains(entry.Key, term) || strings.Contains(strings.ToLower(entry.Name), term) {
				found = entry
				break
			}
		}

		switch {
		case found != nil && found.InShortage:
			shortageCount++
			items = append(items, survey.Item{
				Title:          "[shortage] " + found.Name,
				URL:            found.URL,
				Source:         "FDA Drug Shortages",
				Category:       "government",
				Subcategory:    "drug_shortages",
				Summary:        fmt.Sprintf("status: %s. Verify supply before prescribing or dispensing.", found.Status),
				RelevanceScore: 10,
				MatchedTerms:   []string{strings.ToLower(w.display), "shortage", "supply"},
				CollectedAt:    now,
				DrugName:       NormalizeDrugName(found.Name),
				ShortageStatus: survey.StatusShortage,
			})
		case found != nil:
			if mc.ShowZero() {
				items = append(items, survey.Item{
					Title:          "[resolved] " + found.Name,
					URL:            found.URL,
					Source:         "FDA Drug Shortages",
					Category:       "government",
					Subcategory:    "drug_shortages",
					Summary:        fmt.Sprintf("status: %s. A previous shortage is resolved.", found.Status),
					RelevanceScore: 2,
					MatchedTerms:   []string{strings.ToLower(w.display), "resolved"},
					CollectedAt:    now,
					DrugName:       NormalizeDrugName(found.Name),
					ShortageStatus: survey.StatusNormal,
				})
			}
		default:
			if mc.ShowZero() {
				items = append(items, survey.Item{
					Title:          "[normal] " + w.display + " (not listed)",
					URL:            m.databaseURL(),
					Source:         "FDA Drug Shortages",
					Category:       "government",
					Subcategory:    "drug_shortages",
					Summary:        w.display + " is not listed in the FDA drug shortage database.",
					RelevanceScore: 1,
					MatchedTerms:   []string{strings.ToLower(w.display)},
					CollectedAt:    now,
					DrugName:       NormalizeDrugName(w.display),
					ShortageStatus: survey.StatusNormal,
				})
			}
		}
	}

	m.logger.Info("Shortage check completed", "watched", len(watches), "in_shortage", shortageCount)
	return items
}

// titleCase capitalizes the first letter of each space-separated word.
// Generic drug names are plain ASCII, so no locale handling is needed.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
