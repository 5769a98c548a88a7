// Package main implements a batch survey run: aggregate GLP-1 drug news
// from the configured sources, compare against the previous snapshot, and
// write a report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/storage"

	"glp1-survey/config"
	"glp1-survey/diff"
	"glp1-survey/fdaapi"
	"glp1-survey/feed"
	"glp1-survey/fetch"
	"glp1-survey/match"
	"glp1-survey/pipeline"
	"glp1-survey/pkg/survey"
	"glp1-survey/report"
	"glp1-survey/scrape"
	"glp1-survey/shortage"
	"glp1-survey/snapshot"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	format := flag.String("format", report.FormatHTML, "report format: html, markdown, or json")
	includeSeen := flag.Bool("include-seen", false, "include previously seen items in the report")
	skipFDA := flag.Bool("skip-fda", false, "skip the openFDA filing search")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := config.Load(*configPath, logger)

	// Local directory mode is the default; a bucket takes over only when
	// LOCAL_STORAGE is unset and STORAGE_BUCKET is provided.
	localStorage := os.Getenv("LOCAL_STORAGE")
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket == "" && localStorage == "" {
		localStorage = cfg.General.OutputDir
		logger.Info("No STORAGE_BUCKET set, using local storage", "storage_path", localStorage)
	}

	var storageClient *storage.Client
	if localStorage != "" {
		if err := os.MkdirAll(localStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
	} else {
		var err error
		storageClient, err = storage.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
	}

	store := snapshot.New(storageClient, bucket, localStorage,
		cfg.General.SnapshotFile, cfg.General.SeenURLsFile, logger)

	client := fetch.New(cfg.RequestTimeout(), cfg.RequestDelay(), cfg.General.UserAgent, logger)
	matcher := match.New(cfg)
	feeds := feed.New(client, matcher, cfg.General.MaxItemsPerSource, logger)
	pages := scrape.New(client, matcher, cfg.General.MaxItemsPerSource, logger)
	pipe := pipeline.New(feeds, pages, pages, cfg.General.MaxItemsPerSource, logger)
	monitor := shortage.New(client, cfg, logger)
	fda := fdaapi.New(client, cfg, logger)
	renderer := report.New(cfg, logger)

	start := time.Now()
	logger.Info("Survey run starting",
		"sources", len(cfg.EnabledSources()),
		"format", *format,
		"include_seen", *includeSeen)

	prev := store.LoadSnapshot(ctx)
	seen := store.LoadSeen(ctx)

	items, updatedSeen := pipe.Run(ctx, cfg.EnabledSources(), seen, *includeSeen)
	// Highest relevance first; stable so source order breaks ties.
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})
	shortageItems := monitor.Check(ctx)

	var filings []survey.Filing
	if !*skipFDA {
		filings = fda.SearchWatchlist(ctx)
	}

	result := diff.Compute(items, shortageItems, filings, prev)

	now := time.Now()
	content, err := renderer.Render(&report.Data{
		GeneratedAt:   now,
		Items:         items,
		ShortageItems: shortageItems,
		Filings:       filings,
		Diff:          result,
	}, *format)
	if err != nil {
		logger.Error("Report rendering failed", "error", err)
		os.Exit(1)
	}

	reportName := fmt.Sprintf("%s.%s", now.Format("20060102_150405"), report.Extension(*format))
	snap := survey.NewSnapshot(now, items, shortageItems, filings)
	if err := finishRun(ctx, store, snap, updatedSeen, reportName, content, cfg.General.ReportKeep, logger); err != nil {
		logger.Error("Failed to archive report", "error", err)
		os.Exit(1)
	}

	logger.Info("Survey run completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"items", len(items),
		"shortage_checks", len(shortageItems),
		"filings", len(filings),
		"new_items", result.NewItemCount,
		"shortage_changes", len(result.ShortageChanges))
}

// finishRun persists the run's durable outputs. State goes first: a failed
// archive write is reported but never costs the snapshot or the seen-URL
// set, and state-write failures are never fatal. The next run then compares
// against whatever prior state survived.
func finishRun(ctx context.Context, store *snapshot.Store, snap *survey.Snapshot, seen map[string]bool, reportName, content string, keep int, logger *slog.Logger) error {
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		logger.Error("Failed to save snapshot", "error", err)
	}
	if err := store.SaveSeen(ctx, seen); err != nil {
		logger.Error("Failed to save seen-URL set", "error", err)
	}

	if err := store.SaveReport(ctx, reportName, content); err != nil {
		return err
	}
	if err := store.PruneReports(ctx, keep); err != nil {
		logger.Warn("Failed to prune report archive", "error", err)
	}
	return nil
}
