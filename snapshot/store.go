// Package snapshot persists run state: the single-slot snapshot, the
// seen-URL set, and the report archive. Storage is either a local
// directory or a GCS bucket, selected at construction.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"glp1-survey/pkg/survey"
)

const reportPrefix = "report-"

var errObjectMissing = errors.New("snapshot: object doesn't exist")

// Store handles survey state persistence.
type Store struct {
	client      *storage.Client
	logger      *slog.Logger
	localPath   string
	bucket      string
	snapshotKey string
	seenKey     string
}

// New creates a store. When localPath is non-empty it wins over the bucket.
func New(client *storage.Client, bucket, localPath, snapshotKey, seenKey string, logger *slog.Logger) *Store {
	return &Store{
		client:      client,
		logger:      logger,
		localPath:   localPath,
		bucket:      bucket,
		snapshotKey: snapshotKey,
		seenKey:     seenKey,
	}
}

// LoadSnapshot returns the previous run's snapshot, or nil when none is
// available. Missing or corrupt state is logged and treated as absent;
// it is never fatal.
func (s *Store) LoadSnapshot(ctx context.Context) *survey.Snapshot {
	data, err := s.read(ctx, s.snapshotKey)
	if err != nil {
		if errors.Is(err, errObjectMissing) {
			s.logger.Info("No previous snapshot (first run)")
		} else {
			s.logger.Warn("Previous snapshot unreadable, treating as first run", "error", err)
		}
		return nil
	}

	var snap survey.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Previous snapshot corrupt, treating as first run", "error", err)
		return nil
	}

	s.logger.Info("Previous snapshot loaded",
		"timestamp", snap.Timestamp.Format(time.RFC3339),
		"items", snap.ItemCount,
		"filings", snap.FilingCount)
	return &snap
}

// SaveSnapshot overwrites the persisted snapshot wholesale. There is no
// versioning: each run's snapshot supersedes the last.
func (s *Store) SaveSnapshot(ctx context.Context, snap *survey.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.write(ctx, s.snapshotKey, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info("Snapshot saved", "items", snap.ItemCount, "filings", snap.FilingCount)
	return nil
}

// LoadSeen returns the persisted seen-URL set, empty when missing/corrupt.
func (s *Store) LoadSeen(ctx context.Context) map[string]bool {
	seen := make(map[string]bool)

	data, err := s.read(ctx, s.seenKey)
	if err != nil {
		if !errors.Is(err, errObjectMissing) {
			s.logger.Warn("Seen-URL set unreadable, starting empty", "error", err)
		}
		return seen
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		s.logger.Warn("Seen-URL set corrupt, starting empty", "error", err)
		return seen
	}

	for _, u := range urls {
		seen[u] = true
	}
	return seen
}

// SaveSeen overwrites the persisted seen-URL set.
func (s *Store) SaveSeen(ctx context.Context, seen map[string]bool) error {
	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	data, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("marshal seen set: %w", err)
	}
	if err := s.write(ctx, s.seenKey, data); err != nil {
		return fmt.Errorf("save seen set: %w", err)
	}
	return nil
}

// SaveReport archives a rendered report under a timestamped name.
func (s *Store) SaveReport(ctx context.Context, name, content string) error {
	if err := s.write(ctx, reportPrefix+name, []byte(content)); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	s.logger.Info("Report archived", "name", reportPrefix+name, "bytes", len(content))
	return nil
}

// PruneReports deletes archived reports beyond the newest keep. Report
// names sort chronologically because they embed the run timestamp.
func (s *Store) PruneReports(ctx context.Context, keep int) error {
	names, err := s.listReports(ctx)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	if len(names) <= keep {
		return nil
	}

	sort.Strings(names)
	stale := names[:len(names)-keep]
	for _, name := range stale {
		if err := s.delete(ctx, name); err != nil {
			s.logger.Warn("Failed to prune report", "name", name, "error", err)
			continue
		}
	}

	s.logger.Info("Report archive pruned", "deleted", len(stale), "kept", keep)
	return nil
}

func (s *Store) listReports(ctx context.Context) ([]string, error) {
	if s.localPath != "" {
		entries, err := os.ReadDir(s.localPath)
		if err != nil {
			return nil, fmt.Errorf("read local storage directory: %w", err)
		}
		var names []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasPrefix(entry.Name(), reportPrefix) {
				names = append(names, entry.Name())
			}
		}
		return names, nil
	}

	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: reportPrefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errObjectMissing
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(errObjectMissing)
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, errObjectMissing) {
			return nil, errObjectMissing
		}
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

func (s *Store) write(ctx context.Context, key string, data []byte) error {
	if s.localPath != "" {
		path := filepath.Join(s.localPath, key)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	if s.localPath != "" {
		if err := os.Remove(filepath.Join(s.localPath, key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete from local storage: %w", err)
		}
		return nil
	}

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("delete from storage: %w", err)
	}
	return nil
}
