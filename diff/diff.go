// Package diff compares a run's aggregated records against the previous
// snapshot. Comparison is pure computation over already-materialized data;
// the same inputs always produce the same Result.
package diff

import (
	"sort"
	"time"

	"glp1-survey/pkg/survey"
)

// Change severities.
const (
	SeverityHigh = "high"
	SeverityInfo = "info"
)

// Change kinds.
const (
	ChangeNewShortage = "new_shortage"
	ChangeResolved    = "resolved"
)

// Change is one shortage status transition.
type Change struct {
	Drug     string `json:"drug"`
	Change   string `json:"change"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Result is the outcome of comparing the current run to the last snapshot.
type Result struct {
	HasPrevious       bool          `json:"has_previous"`
	PreviousTimestamp time.Time     `json:"previous_timestamp,omitempty"`
	NewItems          []survey.Item `json:"-"`
	NewItemCount      int           `json:"new_item_count"`
	RemovedItemCount  int           `json:"removed_item_count"`
	ShortageChanges   []Change      `json:"shortage_changes"`
	NewFilingCount    int           `json:"new_filing_count"`
	ItemsDelta        int           `json:"items_delta"`
	FilingsDelta      int           `json:"filings_delta"`
}

// HasChanges reports whether anything moved since the previous run.
func (r *Result) HasChanges() bool {
	return r.NewItemCount > 0 || len(r.ShortageChanges) > 0 || r.NewFilingCount > 0
}

// Compute classifies the current records against prev. With no previous
// snapshot (first run) every record is newly observed and no transition
// detection is attempted. IsNew flags are set on the passed slices.
func Compute(items, shortageItems []survey.Item, filings []survey.Filing, prev *survey.Snapshot) *Result {
	res := &Result{}

	if prev == nil {
		for i := range items {
			items[i].IsNew = true
			res.NewItems = append(res.NewItems, items[i])
		}
		for i := range filings {
			filings[i].IsNew = true
		}
		res.NewItemCount = len(items)
		res.NewFilingCount = len(filings)
		return res
	}

	res.HasPrevious = true
	res.PreviousTimestamp = prev.Timestamp

	prevURLs := prev.URLSet()
	currentURLs := make(map[string]bool, len(items))
	for i := range items {
		currentURLs[items[i].URL] = true
		if !prevURLs[items[i].URL] {
			items[i].IsNew = true
			res.NewItems = append(res.NewItems, items[i])
		}
	}
	res.NewItemCount = len(res.NewItems)

	for u := range prevURLs {
		if !currentURLs[u] {
			res.RemovedItemCount++
		}
	}

	res.ShortageChanges = shortageTransitions(prev.ShortageStatus, StatusMap(shortageItems))

	prevKeys := prev.FilingKeySet()
	for i := range filings {
		if !prevKeys[filings[i].Key()] {
			filings[i].IsNew = true
			res.NewFilingCount++
		}
	}

	res.ItemsDelta = len(items) - prev.ItemCount
	res.FilingsDelta = len(filings) - prev.FilingCount

	return res
}

// StatusMap derives the normalized-name to status map from shortage items.
// Status is read from the items' first-class fields, never from title text.
func StatusMap(shortageItems []survey.Item) map[string]string {
	m := make(map[string]string)
	for i := range shortageItems {
		it := &shortageItems[i]
		if it.DrugName != "" && it.ShortageStatus != "" {
			m[it.DrugName] = it.ShortageStatus
		}
	}
	return m
}

// shortageTransitions classifies status movements over the union of drugs
// from both maps. Only shortage onsets and resolutions produce events.
func shortageTransitions(prev, curr map[string]string) []Change {
	drugs := make(map[string]bool, len(prev)+len(curr))
	for d := range prev {
		drugs[d] = true
	}
	for d := range curr {
		drugs[d] = true
	}

	// Stable event order for rendering and tests.
	names := make([]string, 0, len(drugs))
	for d := range drugs {
		names = append(names, d)
	}
	sort.Strings(names)

	var changes []Change
	for _, drug := range names {
		prevStatus, ok := prev[drug]
		if !ok {
			prevStatus = survey.StatusUnknown
		}
		currStatus, ok := curr[drug]
		if !ok {
			currStatus = survey.StatusUnknown
		}
		if prevStatus == currStatus {
			continue
		}

		switch {
		case prevStatus == survey.StatusNormal && currStatus == survey.StatusShortage:
			changes = append(changes, Change{
				Drug:     drug,
				Change:   ChangeNewShortage,
				Message:  "new shortage: " + drug,
				Severity: SeverityHigh,
			})
		case prevStatus == survey.StatusShortage && currStatus == survey.StatusNormal:
			changes = append(changes, Change{
				Drug:     drug,
				Change:   ChangeResolved,
				Message:  "shortage resolved: " + drug,
				Severity: SeverityInfo,
			})
		case prevStatus == survey.StatusUnknown && currStatus == survey.StatusShortage:
			changes = append(changes, Change{
				Drug:     drug,
				Change:   ChangeNewShortage,
				Message:  "shortage detected: " + drug,
				Severity: SeverityHigh,
			})
		}
	}

	return changes
}
