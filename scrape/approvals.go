package scrape

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"glp1-survey/pkg/survey"
)

// approvalsURLTemplate is the FDA novel drug approvals page; the year is
// substituted at fetch time so the source rolls over automatically.
const approvalsURLTemplate = "https://www.fda.gov/drugs/novel-drug-approvals-fda/novel-drug-approvals-%d"

var approvalDateRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

// FetchNovelApprovals scrapes the FDA novel drug approvals tables for the
// current and previous year. A missing year page (404 early in January) is
// logged and skipped.
func (a *Adapter) FetchNovelApprovals(ctx context.Context, src survey.Source) ([]survey.Item, error) {
	currentYear := time.Now().Year()
	var items []survey.Item

	for _, year := range []int{currentYear, currentYear - 1} {
		pageURL := fmt.Sprintf(approvalsURLTemplate, year)
		body, err := a.client.Get(ctx, pageURL)
		if err != nil {
			a.logger.Warn("Novel approvals page unavailable", "year", year, "error", err)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			a.logger.Warn("Novel approvals page failed to parse", "year", year, "error", err)
			continue
		}

		yearItems := a.parseApprovalTables(doc, src, pageURL, year)
		a.logger.Info("Novel approvals scraped", "year", year, "relevant", len(yearItems))
		items = append(items, yearItems...)
	}

	return items, nil
}

func (a *Adapter) parseApprovalTables(doc *goquery.Document, src survey.Source, pageURL string, year int) []survey.Item {
	now := time.Now()
	var items []survey.Item

	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		drugCell := cells.Eq(0)
		drugName := strings.TrimSpace(drugCell.Text())
		if drugName == "" {
			return
		}

		drugURL := ""
		if href, ok := drugCell.Find("a").First().Attr("href"); ok {
			drugURL = resolveURL(pageURL, href)
		}

		var cellTexts []string
		cells.Each(func(_ int, c *goquery.Selection) {
			cellTexts = append(cellTexts, strings.TrimSpace(c.Text()))
		})
		score, matched := a.matcher.Score(strings.Join(cellTexts, " "))
		if score <= 0 {
			return
		}

		ingredient := ""
		if cells.Length() > 1 {
			ingredient = strings.TrimSpace(cells.Eq(1).Text())
		}
		approvalDate := ""
		for _, text := range cellTexts {
			if approvalDateRe.MatchString(text) {
				approvalDate = text
				break
			}
		}

		title := fmt.Sprintf("[approved] FDA novel approval (%d): %s", year, drugName)
		if ingredient != "" && ingredient != drugName {
			title += " (" + ingredient + ")"
		}

		summary := ""
		if ingredient != "" {
			summary = "active ingredient: " + ingredient
		}

		itemURL := drugURL
		if itemURL == "" {
			itemURL = pageURL
		}

		items = append(items, survey.Item{
			Title:            title,
			URL:              itemURL,
			Source:           fmt.Sprintf("FDA Novel Drug Approvals %d", year),
			Category:         "government",
			Subcategory:      "novel_approvals",
			PublishedDate:    approvalDate,
			Summary:          summary,
			SubmissionStatus: "approved",
			RelevanceScore:   score,
			MatchedTerms:     matched,
			CollectedAt:      now,
		})
	})

	return items
}
