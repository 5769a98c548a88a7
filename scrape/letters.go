package scrape

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"glp1-survey/pkg/survey"
)

const lettersURL = "https://www.fda.gov/inspections-compliance-enforcement-and-criminal-investigations/compliance-actions-and-activities/warning-letters"

// drugOfficeBoost raises the score for letters issued by the drug center
// even when the keyword taxonomy alone scores them low.
const drugOfficeBoost = 2

// FetchWarningLetters scrapes the FDA warning letters table.
func (a *Adapter) FetchWarningLetters(ctx context.Context, src survey.Source) ([]survey.Item, error) {
	pageURL := src.URL
	if pageURL == "" {
		pageURL = lettersURL
	}

	body, err := a.client.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch warning letters: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse warning letters: %w", err)
	}

	items := a.parseLetterTable(doc, pageURL)
	a.logger.Info("Warning letters scraped", "relevant", len(items))
	return items, nil
}

func (a *Adapter) parseLetterTable(doc *goquery.Document, pageURL string) []survey.Item {
	now := time.Now()
	var items []survey.Item

	doc.Find("table").First().Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}

		postedDate := strings.TrimSpace(cells.Eq(0).Text())
		issueDate := strings.TrimSpace(cells.Eq(1).Text())

		companyCell := cells.Eq(2)
		companyLink := companyCell.Find("a").First()
		company := strings.TrimSpace(companyLink.Text())
		if company == "" {
			company = strings.TrimSpace(companyCell.Text())
		}
		letterURL := ""
		if href, ok := companyLink.Attr("href"); ok {
			letterURL = resolveURL(pageURL, href)
		}

		office := strings.TrimSpace(cells.Eq(3).Text())
		subject := ""
		if cells.Length() > 4 {
			subject = strings.TrimSpace(cells.Eq(4).Text())
		}

		score, matched := a.matcher.Score(company + " " + subject + " " + office)
		if strings.Contains(strings.ToLower(office), "cder") || strings.Contains(strings.ToLower(subject), "drug") {
			score += drugOfficeBoost
		}
		if score <= 0 {
			return
		}

		title := "[warning] FDA warning letter: " + company
		if subject != "" {
			title += " - " + survey.Truncate(subject, 50)
		}

		itemURL := letterURL
		if itemURL == "" {
			itemURL = pageURL
		}

		items = append(items, survey.Item{
			Title:          title,
			URL:            itemURL,
			Source:         "FDA Warning Letters",
			Category:       "government",
			Subcategory:    "warning_letters",
			PublishedDate:  postedDate,
			Summary:        fmt.Sprintf("issued: %s | office: %s | subject: %s", issueDate, office, subject),
			RelevanceScore: score,
			MatchedTerms:   matched,
			CollectedAt:    now,
		})
	})

	return items
}
