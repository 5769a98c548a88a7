// Package match scores free text against the configured keyword taxonomy.
package match

import (
	"maps"
	"slices"
	"strings"

	"glp1-survey/config"
)

// Keyword categories, in the order they are scored.
const (
	CategoryIndication = "indication"
	CategoryDrugClass  = "drug_class"
	CategoryDrugName   = "drug_name"
	CategoryBrandName  = "brand_name"
	CategoryCompany    = "company"
	CategoryRegulatory = "regulatory"
)

var categoryOrder = []string{
	CategoryIndication,
	CategoryDrugClass,
	CategoryDrugName,
	CategoryBrandName,
	CategoryCompany,
	CategoryRegulatory,
}

// defaultWeights apply when a category has no configured weight.
var defaultWeights = map[string]float64{
	CategoryIndication: 3,
	CategoryDrugClass:  3,
	CategoryDrugName:   4,
	CategoryBrandName:  4,
	CategoryCompany:    1,
	CategoryRegulatory: 2,
}

// Matcher holds the compiled keyword patterns. Construction compiles the
// taxonomy once; scoring is pure and deterministic after that.
type Matcher struct {
	patterns map[string][]string
	weights  map[string]float64
}

// New compiles a matcher from the configured search terms and weights.
func New(cfg *config.Config) *Matcher {
	m := &Matcher{
		patterns: make(map[string][]string),
		weights:  make(map[string]float64),
	}

	for cat, w := range defaultWeights {
		m.weights[cat] = w
	}
	for cat, w := range cfg.RelevanceWeights {
		m.weights[cat] = w
	}

	add := func(category, term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			m.patterns[category] = append(m.patterns[category], term)
		}
	}

	// Group names are iterated sorted so pattern order, and with it the
	// matched-term order, is identical for every matcher built from the
	// same configuration.
	for _, name := range slices.Sorted(maps.Keys(cfg.SearchTerms.Indications)) {
		for _, alias := range cfg.SearchTerms.Indications[name].Aliases {
			add(CategoryIndication, alias)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.SearchTerms.DrugClasses)) {
		for _, alias := range cfg.SearchTerms.DrugClasses[name].Aliases {
			add(CategoryDrugClass, alias)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.SearchTerms.DrugNames)) {
		drug := cfg.SearchTerms.DrugNames[name]
		for _, alias := range drug.Aliases {
			add(CategoryDrugName, alias)
		}
		for _, brand := range drug.Brands {
			add(CategoryBrandName, brand)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.SearchTerms.Companies)) {
		for _, alias := range cfg.SearchTerms.Companies[name].Aliases {
			add(CategoryCompany, alias)
		}
	}
	for _, alias := range cfg.SearchTerms.RegulatoryTerms.Aliases {
		add(CategoryRegulatory, alias)
	}

	return m
}

// Score returns the weighted relevance score for text and the matched
// keywords in insertion order with duplicates suppressed.
//
// Matching is case-insensitive substring containment rather than
// word-boundary matching, so "glp-1" matches inside "glp-1ra". That is a
// deliberate recall-over-precision trade-off the keyword lists rely on.
func (m *Matcher) Score(text string) (float64, []string) {
	if text == "" {
		return 0, nil
	}

	lower := strings.ToLower(text)
	var total float64
	var matched []string
	seen := make(map[string]bool)

	for _, category := range categoryOrder {
		weight := m.weights[category]
		for _, pattern := range m.patterns[category] {
			if strings.Contains(lower, pattern) {
				total += weight
				if !seen[pattern] {
					seen[pattern] = true
					matched = append(matched, pattern)
				}
			}
		}
	}

	return total, matched
}

// Relevant reports whether text meets the relevance threshold.
func (m *Matcher) Relevant(text string, threshold float64) bool {
	score, _ := m.Score(text)
	return score >= threshold
}
