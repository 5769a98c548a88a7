package fdaapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"glp1-survey/config"
	"glp1-survey/fetch"
)

const drugsFDAFixture = `{
	"results": [{
		"application_number": "NDA209637",
		"sponsor_name": "NOVO NORDISK INC",
		"openfda": {
			"generic_name": ["SEMAGLUTIDE"],
			"brand_name": ["OZEMPIC"]
		},
		"products": [{
			"dosage_form": "SOLUTION",
			"route": "SUBCUTANEOUS",
			"active_ingredients": [{"strength": "2MG/1.5ML"}]
		}],
		"submissions": [{
			"submission_status": "AP",
			"submission_status_date": "20171205"
		}]
	}]
}`

const labelFixture = `{
	"results": [{
		"indications_and_usage": ["Indicated as an adjunct to diet and exercise for chronic weight management in adults with obesity."],
		"openfda": {
			"generic_name": ["TIRZEPATIDE"],
			"brand_name": ["ZEPBOUND"],
			"manufacturer_name": ["Eli Lilly and Company"],
			"dosage_form": ["SOLUTION"],
			"route": ["SUBCUTANEOUS"]
		}
	}]
}`

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.Default()
	if baseURL != "" {
		cfg.FDAAPI.BaseURL = baseURL
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(fetch.New(5*time.Second, 0, "test-agent", logger), cfg, logger)
}

func TestSearchDrug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/drug/drugsfda.json") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		search := r.URL.Query().Get("search")
		if !strings.Contains(search, "semaglutide") {
			t.Errorf("search param = %q, want the drug name", search)
		}
		if _, err := w.Write([]byte(drugsFDAFixture)); err != nil {
			t.Errorf("write fixture: %v", err)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filings, err := c.SearchDrug(context.Background(), "semaglutide", 5)
	if err != nil {
		t.Fatalf("SearchDrug: %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("got %d filings, want 1", len(filings))
	}

	f := filings[0]
	if f.DrugName != "SEMAGLUTIDE" || f.BrandName != "OZEMPIC" {
		t.Errorf("names = (%q, %q)", f.DrugName, f.BrandName)
	}
	if f.ApplicationNumber != "NDA209637" {
		t.Errorf("ApplicationNumber = %q", f.ApplicationNumber)
	}
	if f.SubmissionStatus != "approved" {
		t.Errorf("SubmissionStatus = %q, want decoded AP", f.SubmissionStatus)
	}
	if f.ApprovalDate != "20171205" {
		t.Errorf("ApprovalDate = %q, want the AP submission date", f.ApprovalDate)
	}
	if f.DosageForm != "SOLUTION" || f.Strength != "2MG/1.5ML" {
		t.Errorf("product fields = (%q, %q)", f.DosageForm, f.Strength)
	}
	if !strings.Contains(f.URL, "NDA209637") {
		t.Errorf("URL = %q, want a Drugs@FDA link", f.URL)
	}
}

func TestSearchDrugNoMatches(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filings, err := c.SearchDrug(context.Background(), "nosuchdrug", 5)
	if err != nil {
		t.Fatalf("SearchDrug on 404: %v, want nil (no matches)", err)
	}
	if filings != nil {
		t.Errorf("filings = %v, want nil", filings)
	}
}

func TestSearchIndication(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/drug/label.json") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if _, err := w.Write([]byte(labelFixture)); err != nil {
			t.Errorf("write fixture: %v", err)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	filings, err := c.SearchIndication(context.Background(), "obesity", 15)
	if err != nil {
		t.Fatalf("SearchIndication: %v", err)
	}
	if len(filings) != 1 {
		t.Fatalf("got %d filings, want 1", len(filings))
	}

	f := filings[0]
	if f.DrugName != "TIRZEPATIDE" || f.Sponsor != "Eli Lilly and Company" {
		t.Errorf("fields = (%q, %q)", f.DrugName, f.Sponsor)
	}
	if f.SubmissionStatus != "approved" {
		t.Errorf("SubmissionStatus = %q, want approved for labeled products", f.SubmissionStatus)
	}
	if !strings.Contains(f.Indication, "chronic weight management") {
		t.Errorf("Indication = %q", f.Indication)
	}
}

func TestParseDrugsFDASkipsEmptyRecords(t *testing.T) {
	c := testClient(t, "")

	var r drugsFDAResult
	if err := json.Unmarshal([]byte(`{"application_number": "NDA000"}`), &r); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.parseDrugsFDA(&r); ok {
		t.Error("record with no drug or sponsor name parsed, want skip")
	}
}

func TestParseLabelTruncatesIndication(t *testing.T) {
	r := labelResult{IndicationsAndUsage: []string{strings.Repeat("x", 500)}}
	r.OpenFDA.GenericName = []string{"drug"}

	f, ok := parseLabel(&r)
	if !ok {
		t.Fatal("parseLabel skipped a valid record")
	}
	if len(f.Indication) != 200 {
		t.Errorf("Indication length = %d, want 200", len(f.Indication))
	}
}

func TestSearchWatchlistQueryOrderStable(t *testing.T) {
	var mu sync.Mutex
	var searches []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/drug/drugsfda.json") {
			mu.Lock()
			searches = append(searches, r.URL.Query().Get("search"))
			mu.Unlock()
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	drugs := map[string]config.DrugTerm{
		"semaglutide": {Aliases: []string{"semaglutide"}},
		"tirzepatide": {Aliases: []string{"tirzepatide"}},
		"liraglutide": {Aliases: []string{"liraglutide"}},
		"dulaglutide": {Aliases: []string{"dulaglutide"}},
		"exenatide":   {Aliases: []string{"exenatide"}},
	}

	var first []string
	for run := 0; run < 10; run++ {
		mu.Lock()
		searches = nil
		mu.Unlock()

		c := testClient(t, server.URL)
		c.cfg.SearchTerms.DrugNames = drugs
		c.SearchWatchlist(context.Background())

		mu.Lock()
		got := append([]string(nil), searches...)
		mu.Unlock()
		if run == 0 {
			first = got
			if len(first) != len(drugs) {
				t.Fatalf("run 0 issued %d drug queries, want %d", len(first), len(drugs))
			}
			continue
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d query order %v, run 0 order %v", run, got, first)
		}
	}
}

func TestSearchWatchlistDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every query returns the same record.
		if strings.HasPrefix(r.URL.Path, "/drug/label.json") {
			_, _ = w.Write([]byte(labelFixture))
			return
		}
		_, _ = w.Write([]byte(drugsFDAFixture))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	c.cfg.SearchTerms.DrugNames = map[string]config.DrugTerm{
		"semaglutide": {Aliases: []string{"semaglutide"}},
		"liraglutide": {Aliases: []string{"liraglutide"}},
	}

	filings := c.SearchWatchlist(context.Background())

	keys := make(map[string]int)
	for i := range filings {
		f := &filings[i]
		keys[f.DrugName+"_"+f.ApplicationNumber]++
	}
	for key, n := range keys {
		if n > 1 {
			t.Errorf("identity key %q appears %d times, want 1", key, n)
		}
	}
	if len(filings) != 2 {
		t.Errorf("got %d unique filings, want 2 (one per fixture)", len(filings))
	}
}
