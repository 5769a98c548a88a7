// Package survey contains the core domain types for the GLP-1 survey tool.
package survey

import (
	"crypto/md5" //nolint:gosec // identity fingerprint, not security
	"encoding/hex"
	"time"
)

// Shortage status categories carried as data on shortage items.
const (
	StatusShortage = "shortage"
	StatusNormal   = "normal"
	StatusUnknown  = "unknown"
)

// Item is one collected record: a news article, a scraped table row, or a
// shortage check result folded into the unified stream.
type Item struct {
	Title            string    `json:"title"`
	URL              string    `json:"url"` // identity key, never empty when persisted
	Source           string    `json:"source"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory,omitempty"`
	PublishedDate    string    `json:"published_date,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	DosageForm       string    `json:"dosage_form,omitempty"`
	SubmissionStatus string    `json:"submission_status,omitempty"`
	RelevanceScore   float64   `json:"relevance_score"`
	MatchedTerms     []string  `json:"matched_terms,omitempty"`
	CollectedAt      time.Time `json:"collected_at"`

	// DrugName and ShortageStatus are set only on shortage-monitor items so
	// the diff engine can read status as data instead of parsing titles.
	DrugName       string `json:"drug_name,omitempty"`
	ShortageStatus string `json:"shortage_status,omitempty"`

	// IsNew is set only by the diff engine.
	IsNew bool `json:"is_new"`
}

// HashID returns a short stable fingerprint of the item URL, used by
// renderers as an anchor.
func (it *Item) HashID() string {
	sum := md5.Sum([]byte(it.URL)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:12]
}

// Truncate shortens s to at most n runes. Slicing runes rather than bytes
// keeps multi-byte characters intact.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Filing is a regulatory approval/submission record for a drug product.
type Filing struct {
	DrugName          string `json:"drug_name"`
	BrandName         string `json:"brand_name,omitempty"`
	Sponsor           string `json:"sponsor,omitempty"`
	ApplicationNumber string `json:"application_number,omitempty"`
	ApprovalDate      string `json:"approval_date,omitempty"`
	SubmissionDate    string `json:"submission_date,omitempty"`
	SubmissionStatus  string `json:"submission_status"`
	Indication        string `json:"indication,omitempty"`
	DosageForm        string `json:"dosage_form,omitempty"`
	Route             string `json:"route,omitempty"`
	Strength          string `json:"strength,omitempty"`
	URL               string `json:"url,omitempty"`
	IsNew             bool   `json:"is_new"`
}

// Key returns the filing identity key: the application number when present,
// otherwise a derived key that stays stable across runs.
func (f *Filing) Key() string {
	if f.ApplicationNumber != "" {
		return f.ApplicationNumber
	}
	return f.DrugName + "_" + f.BrandName
}

// Snapshot is the compact durable summary of one completed run, read by
// exactly the next run for comparison. It is never mutated after creation.
type Snapshot struct {
	Timestamp      time.Time         `json:"timestamp"`
	ItemURLs       []string          `json:"item_urls"`
	ShortageStatus map[string]string `json:"shortage_status"`
	FilingKeys     []string          `json:"filing_keys"`
	ItemCount      int               `json:"item_count"`
	FilingCount    int               `json:"filing_count"`
	ShortageCount  int               `json:"shortage_count"`
}

// NewSnapshot builds a snapshot from a run's accumulated records.
func NewSnapshot(now time.Time, items, shortageItems []Item, filings []Filing) *Snapshot {
	snap := &Snapshot{
		Timestamp:      now,
		ShortageStatus: make(map[string]string),
		ItemCount:      len(items),
		FilingCount:    len(filings),
		ShortageCount:  len(shortageItems),
	}
	for i := range items {
		snap.ItemURLs = append(snap.ItemURLs, items[i].URL)
	}
	for i := range shortageItems {
		it := &shortageItems[i]
		if it.DrugName != "" && it.ShortageStatus != "" {
			snap.ShortageStatus[it.DrugName] = it.ShortageStatus
		}
	}
	for i := range filings {
		snap.FilingKeys = append(snap.FilingKeys, filings[i].Key())
	}
	return snap
}

// URLSet returns the snapshot's item URLs as a set.
func (s *Snapshot) URLSet() map[string]bool {
	set := make(map[string]bool, len(s.ItemURLs))
	for _, u := range s.ItemURLs {
		set[u] = true
	}
	return set
}

// FilingKeySet returns the snapshot's filing keys as a set.
func (s *Snapshot) FilingKeySet() map[string]bool {
	set := make(map[string]bool, len(s.FilingKeys))
	for _, k := range s.FilingKeys {
		set[k] = true
	}
	return set
}

// Source describes one configured information source.
type Source struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	RSSURL      string            `yaml:"rss_url,omitempty"`
	Category    string            `yaml:"category"`
	Subcategory string            `yaml:"subcategory,omitempty"`
	Kind        string            `yaml:"kind"` // "rss" or "web"
	Enabled     bool              `yaml:"enabled"`
	Priority    int               `yaml:"priority,omitempty"`
	Selectors   map[string]string `yaml:"selectors,omitempty"`
}
