package report

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"glp1-survey/config"
	"glp1-survey/diff"
	"glp1-survey/pkg/survey"
)

func testRenderer() *Renderer {
	cfg := config.Default()
	cfg.Categories = map[string]config.Category{
		"government": {DisplayName: "Government & Regulatory", Priority: 1},
		"news":       {DisplayName: "Industry News", Priority: 2},
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(cfg, logger)
}

func testData() *Data {
	return &Data{
		GeneratedAt: time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC),
		Items: []survey.Item{
			{
				Title:          "Semaglutide supply <update>",
				URL:            "https://example.com/news/1",
				Source:         "Example News",
				Category:       "news",
				RelevanceScore: 7,
				MatchedTerms:   []string{"semaglutide"},
				IsNew:          true,
			},
			{
				Title:          "[approved] FDA novel approval (2026): Examplutide",
				URL:            "https://fda.gov/approvals/1",
				Source:         "FDA Novel Drug Approvals 2026",
				Category:       "government",
				RelevanceScore: 9,
			},
		},
		ShortageItems: []survey.Item{
			{
				Title:          "[shortage] Semaglutide Injection",
				URL:            "https://fda.gov/shortages/semaglutide",
				Summary:        "status: Currently in Shortage.",
				DrugName:       "semaglutide injection",
				ShortageStatus: survey.StatusShortage,
			},
		},
		Filings: []survey.Filing{
			{
				DrugName:          "tirzepatide",
				BrandName:         "Zepbound",
				Sponsor:           "Eli Lilly",
				ApplicationNumber: "NDA217806",
				SubmissionStatus:  "approved",
				IsNew:             true,
			},
		},
		Diff: &diff.Result{
			HasPrevious:       true,
			PreviousTimestamp: time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC),
			NewItemCount:      1,
			ShortageChanges: []diff.Change{{
				Drug:     "semaglutide injection",
				Change:   diff.ChangeNewShortage,
				Message:  "new shortage: semaglutide injection",
				Severity: diff.SeverityHigh,
			}},
		},
	}
}

func TestRenderHTML(t *testing.T) {
	r := testRenderer()
	out, err := r.Render(testData(), FormatHTML)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"<!DOCTYPE html>",
		"new shortage: semaglutide injection",
		"Government &amp; Regulatory",
		"Industry News",
		"NDA217806",
		"[shortage] Semaglutide Injection",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
	if strings.Contains(out, "<update>") {
		t.Error("HTML report contains unescaped title markup")
	}
	// Government section (priority 1) renders before news.
	if strings.Index(out, "Government &amp; Regulatory") > strings.Index(out, "Industry News") {
		t.Error("category sections not in priority order")
	}
}

func TestRenderMarkdown(t *testing.T) {
	r := testRenderer()
	out, err := r.Render(testData(), FormatMarkdown)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	for _, want := range []string{
		"# GLP-1 Drug News Survey",
		"## Changes since last run",
		"new shortage: semaglutide injection",
		"**new** [approved] Zepbound",
		"application number: NDA217806",
		"- semaglutide: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown report missing %q", want)
		}
	}
}

func TestRenderMarkdownFirstRun(t *testing.T) {
	r := testRenderer()
	data := testData()
	data.Diff = &diff.Result{NewItemCount: 2}

	out, err := r.Render(data, FormatMarkdown)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "First run: baseline established") {
		t.Error("first-run report missing baseline notice")
	}
}

func TestRenderJSON(t *testing.T) {
	r := testRenderer()
	out, err := r.Render(testData(), FormatJSON)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var payload struct {
		Changes struct {
			NewItemCount int `json:"new_item_count"`
		} `json:"changes"`
		Items   []survey.Item   `json:"items"`
		Filings []survey.Filing `json:"filings"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("JSON report not parseable: %v", err)
	}
	if payload.Changes.NewItemCount != 1 {
		t.Errorf("new_item_count = %d, want 1", payload.Changes.NewItemCount)
	}
	if len(payload.Items) != 2 || len(payload.Filings) != 1 {
		t.Errorf("payload sizes = (%d items, %d filings), want (2, 1)", len(payload.Items), len(payload.Filings))
	}
}

func TestRenderUnknownFormatFallsBack(t *testing.T) {
	r := testRenderer()
	out, err := r.Render(testData(), "pdf")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "# GLP-1 Drug News Survey") {
		t.Error("unknown format did not fall back to markdown")
	}
}

func TestSectionsNewItemsFirst(t *testing.T) {
	r := testRenderer()
	items := []survey.Item{
		{Title: "old high", URL: "https://1", Category: "news", RelevanceScore: 9},
		{Title: "new low", URL: "https://2", Category: "news", RelevanceScore: 2, IsNew: true},
	}

	sections := r.sections(items)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Items[0].Title != "new low" {
		t.Errorf("first item = %q, want the new item ahead of higher-scored old ones", sections[0].Items[0].Title)
	}
}

func TestExtension(t *testing.T) {
	tests := []struct{ format, want string }{
		{FormatHTML, "html"},
		{FormatJSON, "json"},
		{FormatMarkdown, "md"},
		{"anything", "md"},
	}
	for _, tt := range tests {
		if got := Extension(tt.format); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}
