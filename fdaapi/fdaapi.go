// Package fdaapi queries the openFDA drug endpoints for approval and
// submission records.
package fdaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"glp1-survey/config"
	"glp1-survey/fetch"
	"glp1-survey/pkg/survey"
)

// Client talks to the openFDA API. Individual records that fail to parse
// are skipped; a 404 (no matches) yields an empty batch, not an error.
type Client struct {
	client *fetch.Client
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an openFDA client.
func New(client *fetch.Client, cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{client: client, cfg: cfg, logger: logger}
}

type drugsFDAResponse struct {
	Results []drugsFDAResult `json:"results"`
}

type drugsFDAResult struct {
	ApplicationNumber string `json:"application_number"`
	SponsorName       string `json:"sponsor_name"`
	OpenFDA           struct {
		GenericName []string `json:"generic_name"`
		BrandName   []string `json:"brand_name"`
	} `json:"openfda"`
	Products []struct {
		DosageForm        string `json:"dosage_form"`
		Route             string `json:"route"`
		ActiveIngredients []struct {
			Strength string `json:"strength"`
		} `json:"active_ingredients"`
	} `json:"products"`
	Submissions []struct {
		SubmissionStatus     string `json:"submission_status"`
		SubmissionStatusDate string `json:"submission_status_date"`
	} `json:"submissions"`
}

type labelResponse struct {
	Results []labelResult `json:"results"`
}

type labelResult struct {
	IndicationsAndUsage []string `json:"indications_and_usage"`
	OpenFDA             struct {
		GenericName      []string `json:"generic_name"`
		BrandName        []string `json:"brand_name"`
		ManufacturerName []string `json:"manufacturer_name"`
		DosageForm       []string `json:"dosage_form"`
		Route            []string `json:"route"`
	} `json:"openfda"`
}

// SearchDrug looks up filings by generic or brand name via Drugs@FDA.
func (c *Client) SearchDrug(ctx context.Context, name string, limit int) ([]survey.Filing, error) {
	search := fmt.Sprintf(`openfda.generic_name:%q OR openfda.brand_name:%q`, name, name)
	body, err := c.query(ctx, c.cfg.FDAAPI.DrugsFDAPath, search, limit)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var resp drugsFDAResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode drugsfda response: %w", err)
	}

	var filings []survey.Filing
	for i := range resp.Results {
		if f, ok := c.parseDrugsFDA(&resp.Results[i]); ok {
			filings = append(filings, f)
		}
	}
	return filings, nil
}

// SearchIndication looks up approved labels whose indication text mentions
// the given condition.
func (c *Client) SearchIndication(ctx context.Context, indication string, limit int) ([]survey.Filing, error) {
	search := fmt.Sprintf(`indications_and_usage:%q`, indication)
	body, err := c.query(ctx, c.cfg.FDAAPI.LabelPath, search, limit)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, nil
	}

	var resp labelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode label response: %w", err)
	}

	var filings []survey.Filing
	for i := range resp.Results {
		if f, ok := parseLabel(&resp.Results[i]); ok {
			filings = append(filings, f)
		}
	}
	return filings, nil
}

// SearchWatchlist runs the standing queries: the watched indications plus
// the first alias of every configured drug, deduplicated by identity key.
func (c *Client) SearchWatchlist(ctx context.Context) []survey.Filing {
	var results []survey.Filing

	for _, indication := range []string{"obesity", "weight loss", "type 2 diabetes"} {
		filings, err := c.SearchIndication(ctx, indication, 15)
		if err != nil {
			c.logger.Warn("Indication search failed", "indication", indication, "error", err)
			continue
		}
		results = append(results, filings...)
	}

	// Drugs are queried in sorted name order so the result order, and the
	// winner of each dedup collision, is stable across runs.
	for _, name := range slices.Sorted(maps.Keys(c.cfg.SearchTerms.DrugNames)) {
		drug := c.cfg.SearchTerms.DrugNames[name]
		if len(drug.Aliases) == 0 {
			continue
		}
		filings, err := c.SearchDrug(ctx, drug.Aliases[0], 5)
		if err != nil {
			c.logger.Warn("Drug search failed", "drug", drug.Aliases[0], "error", err)
			continue
		}
		results = append(results, filings...)
	}

	seen := make(map[string]bool)
	var unique []survey.Filing
	for _, f := range results {
		key := f.DrugName + "_" + f.ApplicationNumber
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, f)
	}

	c.logger.Info("Watchlist search completed", "raw", len(results), "unique", len(unique))
	return unique
}

// query performs one API call. Returns (nil, nil) when the API reports no
// matches via 404.
func (c *Client) query(ctx context.Context, path, search string, limit int) ([]byte, error) {
	params := url.Values{}
	params.Set("search", search)
	params.Set("limit", strconv.Itoa(limit))
	endpoint := c.cfg.FDAAPI.BaseURL + path + "?" + params.Encode()

	body, err := c.client.Get(ctx, endpoint)
	if err != nil {
		if fetch.IsStatusError(err) {
			return nil, nil
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) parseDrugsFDA(r *drugsFDAResult) (survey.Filing, bool) {
	drugName := first(r.OpenFDA.GenericName)
	if drugName == "" {
		drugName = r.SponsorName
	}
	if drugName == "" {
		return survey.Filing{}, false
	}

	f := survey.Filing{
		DrugName:          drugName,
		BrandName:         first(r.OpenFDA.BrandName),
		Sponsor:           r.SponsorName,
		ApplicationNumber: r.ApplicationNumber,
		SubmissionStatus:  survey.StatusUnknown,
	}

	if len(r.Products) > 0 {
		p := r.Products[0]
		f.DosageForm = p.DosageForm
		f.Route = p.Route
		if len(p.ActiveIngredients) > 0 {
			f.Strength = p.ActiveIngredients[0].Strength
		}
	}

	if len(r.Submissions) > 0 {
		s := r.Submissions[0]
		f.SubmissionStatus = c.cfg.DecodeStatus(s.SubmissionStatus)
		f.SubmissionDate = s.SubmissionStatusDate
		if strings.Contains(s.SubmissionStatus, "AP") {
			f.ApprovalDate = s.SubmissionStatusDate
		}
	}

	if r.ApplicationNumber != "" {
		f.URL = "https://www.accessdata.fda.gov/scripts/cder/daf/index.cfm?event=overview.process&ApplNo=" + url.QueryEscape(r.ApplicationNumber)
	}

	return f, true
}

func parseLabel(r *labelResult) (survey.Filing, bool) {
	drugName := first(r.OpenFDA.GenericName)
	if drugName == "" {
		return survey.Filing{}, false
	}

	indication := survey.Truncate(first(r.IndicationsAndUsage), 200)

	return survey.Filing{
		DrugName:         drugName,
		BrandName:        first(r.OpenFDA.BrandName),
		Sponsor:          first(r.OpenFDA.ManufacturerName),
		Indication:       indication,
		DosageForm:       first(r.OpenFDA.DosageForm),
		Route:            first(r.OpenFDA.Route),
		SubmissionStatus: "approved",
	}, true
}

func first(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}
