package match

import (
	"reflect"
	"testing"

	"glp1-survey/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.SearchTerms = config.SearchTerms{
		Indications: map[string]config.TermGroup{
			"obesity": {Aliases: []string{"obesity", "weight loss"}},
		},
		DrugClasses: map[string]config.TermGroup{
			"glp1": {Aliases: []string{"glp-1"}},
		},
		DrugNames: map[string]config.DrugTerm{
			"semaglutide": {
				Aliases: []string{"semaglutide"},
				Brands:  []string{"Ozempic", "Wegovy"},
			},
		},
		Companies: map[string]config.TermGroup{
			"novo": {Aliases: []string{"novo nordisk"}},
		},
		RegulatoryTerms: config.TermGroup{Aliases: []string{"fda approval"}},
	}
	return cfg
}

func TestScore(t *testing.T) {
	m := New(testConfig())

	tests := []struct {
		name      string
		text      string
		wantScore float64
		wantTerms []string
	}{
		{
			name: "no match",
			text: "motorcycle maintenance tips for the winter",
		},
		{
			name:      "single drug name",
			text:      "Semaglutide supply update",
			wantScore: 4,
			wantTerms: []string{"semaglutide"},
		},
		{
			name:      "brand name case insensitive",
			text:      "OZEMPIC prices drop",
			wantScore: 4,
			wantTerms: []string{"ozempic"},
		},
		{
			name:      "substring containment matches inside larger token",
			text:      "New GLP-1RA candidates announced",
			wantScore: 3,
			wantTerms: []string{"glp-1"},
		},
		{
			name:      "weights accumulate across categories",
			text:      "Novo Nordisk wins FDA approval for semaglutide in obesity",
			wantScore: 3 + 4 + 1 + 2,
			wantTerms: []string{"obesity", "semaglutide", "novo nordisk", "fda approval"},
		},
		{
			name:      "repeated keyword counted once per pattern",
			text:      "obesity obesity obesity",
			wantScore: 3,
			wantTerms: []string{"obesity"},
		},
		{
			name: "empty text",
			text: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, terms := m.Score(tt.text)
			if score != tt.wantScore {
				t.Errorf("Score(%q) score = %v, want %v", tt.text, score, tt.wantScore)
			}
			if !reflect.DeepEqual(terms, tt.wantTerms) {
				t.Errorf("Score(%q) terms = %v, want %v", tt.text, terms, tt.wantTerms)
			}
		})
	}
}

func TestScoreZeroImpliesNoTerms(t *testing.T) {
	m := New(testConfig())

	for _, text := range []string{"", "unrelated text", "the quick brown fox"} {
		score, terms := m.Score(text)
		if score != 0 || len(terms) != 0 {
			t.Errorf("Score(%q) = (%v, %v), want (0, none)", text, score, terms)
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	m := New(testConfig())

	base := "semaglutide news"
	baseScore, _ := m.Score(base)
	extended := base + " from novo nordisk"
	extendedScore, _ := m.Score(extended)

	if extendedScore <= baseScore {
		t.Errorf("adding matching text lowered score: %v -> %v", baseScore, extendedScore)
	}
}

func TestConfiguredWeightsOverrideDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.RelevanceWeights = map[string]float64{CategoryDrugName: 10}

	m := New(cfg)
	score, _ := m.Score("semaglutide")
	if score != 10 {
		t.Errorf("Score with overridden weight = %v, want 10", score)
	}
}

func TestMatchedTermOrderStable(t *testing.T) {
	cfg := testConfig()
	cfg.SearchTerms.DrugNames = map[string]config.DrugTerm{
		"semaglutide": {Aliases: []string{"semaglutide"}, Brands: []string{"Ozempic", "Wegovy"}},
		"tirzepatide": {Aliases: []string{"tirzepatide"}, Brands: []string{"Zepbound"}},
		"liraglutide": {Aliases: []string{"liraglutide"}, Brands: []string{"Saxenda"}},
		"dulaglutide": {Aliases: []string{"dulaglutide"}, Brands: []string{"Trulicity"}},
		"exenatide":   {Aliases: []string{"exenatide"}, Brands: []string{"Byetta"}},
	}
	text := "Semaglutide, tirzepatide, liraglutide, dulaglutide and exenatide compared for obesity"

	_, first := New(cfg).Score(text)
	if len(first) == 0 {
		t.Fatal("no matched terms for a text full of configured drugs")
	}
	for i := 0; i < 30; i++ {
		_, terms := New(cfg).Score(text)
		if !reflect.DeepEqual(terms, first) {
			t.Fatalf("matcher %d returned %v, earlier matcher returned %v", i, terms, first)
		}
	}
}

func TestRelevant(t *testing.T) {
	m := New(testConfig())

	if !m.Relevant("semaglutide", 4) {
		t.Error("Relevant at exact threshold = false, want true")
	}
	if m.Relevant("semaglutide", 4.5) {
		t.Error("Relevant above threshold = true, want false")
	}
}
