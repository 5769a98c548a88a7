// Package config loads the survey configuration from YAML.
//
// A missing or malformed config file is never fatal: the loader logs the
// problem and falls back to defaults so a run can still complete.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"glp1-survey/pkg/survey"
)

// Config is the complete survey configuration.
type Config struct {
	General          GeneralConfig          `yaml:"general"`
	RelevanceWeights map[string]float64     `yaml:"relevance_weights"`
	SearchTerms      SearchTerms            `yaml:"search_terms"`
	Sources          []survey.Source        `yaml:"sources"`
	ShortageMonitor  ShortageConfig         `yaml:"shortage_monitor"`
	FDAAPI           FDAAPIConfig           `yaml:"fda_api"`
	SubmissionStatus map[string]StatusEntry `yaml:"submission_status"`
	Categories       map[string]Category    `yaml:"categories"`
}

// GeneralConfig holds run-wide settings.
type GeneralConfig struct {
	OutputDir         string `yaml:"output_dir"`
	SeenURLsFile      string `yaml:"seen_urls_file"`
	SnapshotFile      string `yaml:"snapshot_file"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	RequestDelayMs    int    `yaml:"request_delay_ms"`
	MaxItemsPerSource int    `yaml:"max_items_per_source"`
	UserAgent         string `yaml:"user_agent"`
	ReportKeep        int    `yaml:"report_keep"`
}

// SearchTerms is the keyword taxonomy the relevance matcher compiles.
type SearchTerms struct {
	Indications     map[string]TermGroup `yaml:"indications"`
	DrugClasses     map[string]TermGroup `yaml:"drug_classes"`
	DrugNames       map[string]DrugTerm  `yaml:"drug_names"`
	Companies       map[string]TermGroup `yaml:"companies"`
	RegulatoryTerms TermGroup            `yaml:"regulatory_terms"`
}

// TermGroup is a named keyword with its aliases.
type TermGroup struct {
	Aliases []string `yaml:"aliases"`
}

// DrugTerm is a drug with generic-name aliases and brand names.
type DrugTerm struct {
	Aliases []string `yaml:"aliases"`
	Brands  []string `yaml:"brands"`
}

// ShortageConfig controls the drug shortage monitor.
type ShortageConfig struct {
	Enabled         bool     `yaml:"enabled"`
	ShowZeroResults *bool    `yaml:"show_zero_results"`
	DrugsToMonitor  []string `yaml:"drugs_to_monitor"`
	BrandsToMonitor []string `yaml:"brands_to_monitor"`
	DatabaseURL     string   `yaml:"database_url"`
}

// ShowZero reports whether drugs without a shortage listing still produce
// a status item. An omitted show_zero_results key defaults to true.
func (s *ShortageConfig) ShowZero() bool {
	return s.ShowZeroResults == nil || *s.ShowZeroResults
}

// FDAAPIConfig points at the openFDA endpoints.
type FDAAPIConfig struct {
	BaseURL      string `yaml:"base_url"`
	DrugsFDAPath string `yaml:"drugsfda_path"`
	LabelPath    string `yaml:"label_path"`
}

// StatusEntry maps openFDA submission status codes to a display name.
type StatusEntry struct {
	Codes       []string `yaml:"codes"`
	DisplayName string   `yaml:"display_name"`
}

// Category describes a report section.
type Category struct {
	DisplayName string `yaml:"display_name"`
	Priority    int    `yaml:"priority"`
}

// Default returns the built-in fallback configuration.
func Default() *Config {
	cfg := &Config{
		General: GeneralConfig{
			OutputDir:         "survey_output",
			SeenURLsFile:      "seen_urls.json",
			SnapshotFile:      "last_snapshot.json",
			RequestTimeoutSec: 30,
			RequestDelayMs:    1000,
			MaxItemsPerSource: 50,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			ReportKeep:        20,
		},
		RelevanceWeights: map[string]float64{},
		SearchTerms:      SearchTerms{},
		ShortageMonitor:  ShortageConfig{},
		FDAAPI: FDAAPIConfig{
			BaseURL:      "https://api.fda.gov",
			DrugsFDAPath: "/drug/drugsfda.json",
			LabelPath:    "/drug/label.json",
		},
	}
	return cfg
}

// Load reads the YAML config at path. Missing or malformed files fall back
// to Default with a logged warning.
func Load(path string, logger *slog.Logger) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Config file not readable, using defaults", "path", path, "error", err)
		return Default()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Warn("Config file failed to parse, using defaults", "path", path, "error", err)
		return Default()
	}

	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills zero-valued settings from the built-in defaults.
func (c *Config) applyDefaults() {
	def := Default()
	if c.General.OutputDir == "" {
		c.General.OutputDir = def.General.OutputDir
	}
	if c.General.SeenURLsFile == "" {
		c.General.SeenURLsFile = def.General.SeenURLsFile
	}
	if c.General.SnapshotFile == "" {
		c.General.SnapshotFile = def.General.SnapshotFile
	}
	if c.General.RequestTimeoutSec <= 0 {
		c.General.RequestTimeoutSec = def.General.RequestTimeoutSec
	}
	if c.General.RequestDelayMs < 0 {
		c.General.RequestDelayMs = def.General.RequestDelayMs
	}
	if c.General.MaxItemsPerSource <= 0 {
		c.General.MaxItemsPerSource = def.General.MaxItemsPerSource
	}
	if c.General.UserAgent == "" {
		c.General.UserAgent = def.General.UserAgent
	}
	if c.General.ReportKeep <= 0 {
		c.General.ReportKeep = def.General.ReportKeep
	}
	if c.FDAAPI.BaseURL == "" {
		c.FDAAPI.BaseURL = def.FDAAPI.BaseURL
	}
	if c.FDAAPI.DrugsFDAPath == "" {
		c.FDAAPI.DrugsFDAPath = def.FDAAPI.DrugsFDAPath
	}
	if c.FDAAPI.LabelPath == "" {
		c.FDAAPI.LabelPath = def.FDAAPI.LabelPath
	}
}

// EnabledSources returns only enabled sources, in config order.
func (c *Config) EnabledSources() []survey.Source {
	var enabled []survey.Source
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.General.RequestTimeoutSec) * time.Second
}

// RequestDelay returns the mandatory delay before each outbound request.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.General.RequestDelayMs) * time.Millisecond
}

// DecodeStatus translates an openFDA submission status code into its
// configured display name. Unmapped codes get the built-in AP/TA/NA/WD
// decoding, or pass through unchanged.
func (c *Config) DecodeStatus(code string) string {
	upper := strings.ToUpper(code)
	for _, entry := range c.SubmissionStatus {
		for _, ec := range entry.Codes {
			if ec != "" && strings.Contains(upper, strings.ToUpper(ec)) {
				return entry.DisplayName
			}
		}
	}
	switch code {
	case "AP":
		return "approved"
	case "TA":
		return "tentative"
	case "NA":
		return "not_approved"
	case "WD":
		return "withdrawn"
	}
	return code
}
