package survey

import (
	"strings"
	"time"
)

// statusMarkers maps a submission-status category to its title prefix.
// First matching entry wins; unknown statuses fall back to markerDefault.
var statusMarkers = []struct {
	match  string
	marker string
}{
	{"approved", "[approved]"},
	{"tentative", "[tentative]"},
	{"filed", "[filed]"},
	{"submitted", "[submitted]"},
	{"review", "[review]"},
	{"pending", "[pending]"},
	{"not_approved", "[rejected]"},
	{"withdrawn", "[withdrawn]"},
}

const markerDefault = "[filing]"

const maxIndicationLen = 50

// StatusMarker returns the title marker for the filing's submission status.
func (f *Filing) StatusMarker() string {
	status := strings.ToLower(f.SubmissionStatus)
	for _, sm := range statusMarkers {
		if strings.Contains(status, sm.match) {
			return sm.marker
		}
	}
	return markerDefault
}

// Item converts the filing into a display-oriented Item so filings can be
// folded into the unified report stream. The conversion is pure and total:
// absent optional fields simply omit their segment.
func (f *Filing) Item(source string, now time.Time) Item {
	name := f.BrandName
	if name == "" {
		name = f.DrugName
	}

	title := f.StatusMarker() + " " + name
	if f.DosageForm != "" {
		title += " [" + f.DosageForm + "]"
	}
	if f.Indication != "" {
		title += " - " + Truncate(f.Indication, maxIndicationLen)
	}

	var parts []string
	appendPart := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	appendPart("status", f.SubmissionStatus)
	appendPart("approval date", f.ApprovalDate)
	appendPart("submission date", f.SubmissionDate)
	appendPart("sponsor", f.Sponsor)
	appendPart("dosage form", f.DosageForm)
	appendPart("route", f.Route)
	appendPart("application number", f.ApplicationNumber)

	published := f.ApprovalDate
	if published == "" {
		published = f.SubmissionDate
	}

	return Item{
		Title:            title,
		URL:              f.URL,
		Source:           source,
		Category:         "government",
		Subcategory:      "fda_approval",
		PublishedDate:    published,
		Summary:          strings.Join(parts, " | "),
		DosageForm:       f.DosageForm,
		SubmissionStatus: f.SubmissionStatus,
		CollectedAt:      now,
		IsNew:            f.IsNew,
	}
}
