package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/api"
	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/resolver"
)

// CleanupSummary aggregates the outcome of one cleanup run.
type CleanupSummary struct {
	Units   int
	Skipped int

	// Matched counts items older than the bound whose identity was looked
	// up on disk; Deleted counts the files actually removed.
	Matched int
	Deleted int

	Elapsed time.Duration
}

// Cleanup deletes local files belonging to items created before the given
// instant. Each target is resolved and its image feed scanned in full;
// every item older than the bound has its same-identity files (*_<id>.*)
// removed from the unit's directory. Units run sequentially: deletion is
// destructive, so the run stays easy to follow and to interrupt.
func (r *Runner) Cleanup(ctx context.Context, targets []Target, before time.Time) CleanupSummary {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Str("mode", "cleanup").Logger()

	logger.Info().Int("targets", len(targets)).Time("before", before).Msg("Cleanup started")

	var summary CleanupSummary
	for _, target := range targets {
		if ctx.Err() != nil {
			logger.Warn().Msg("Cleanup cancelled, abandoning remaining targets")
			summary.Skipped += len(targets) - summary.Units - summary.Skipped
			break
		}

		matched, deleted, err := r.cleanupUnit(ctx, logger, target, before)
		if err != nil {
			summary.Skipped++
			continue
		}
		summary.Units++
		summary.Matched += matched
		summary.Deleted += deleted
	}

	summary.Elapsed = time.Since(start)

	logger.Info().
		Int("units", summary.Units).
		Int("skipped", summary.Skipped).
		Int("matched", summary.Matched).
		Int("deleted", summary.Deleted).
		Dur("elapsed", summary.Elapsed).
		Msg("Cleanup finished")

	return summary
}

// cleanupUnit scans one unit's metadata and removes the local files of
// items older than the bound. A unit whose directory does not exist has
// nothing to clean and succeeds vacuously.
func (r *Runner) cleanupUnit(ctx context.Context, logger zerolog.Logger, target Target, before time.Time) (matched, deleted int, err error) {
	logger = logger.With().Str("unit", target.Identifier).Str("kind", target.Kind).Logger()

	unit, err := r.resolve(ctx, target)
	if err != nil {
		unitsTotal.WithLabelValues(target.Kind, "skipped").Inc()
		logger.Warn().Err(err).Msg("Resolution failed, skipping unit")
		return 0, 0, err
	}
	logger = logger.With().Str("name", unit.Name).Int64("unit_id", unit.ID).Logger()

	dir := filepath.Join(r.cfg.OutputDir, dirName(unit))
	if _, serr := os.Stat(dir); serr != nil {
		logger.Info().Str("dir", dir).Msg("Unit directory not found, nothing to clean")
		unitsTotal.WithLabelValues(target.Kind, "ok").Inc()
		return 0, 0, nil
	}

	// The feed is newest-first and the old items sit at the end, so the
	// whole feed is scanned without a date bound.
	var q api.Query
	if unit.Kind == resolver.KindCollection {
		q = api.CollectionQuery(unit.ID, r.cfg.ExcludedTagIDs)
	} else {
		q = api.UserQuery(unit.Username, unit.ID)
	}

	list, err := r.cfg.Fetcher.FetchImages(ctx, q, api.FetchOptions{})
	if err != nil {
		unitsTotal.WithLabelValues(target.Kind, "skipped").Inc()
		logger.Warn().Err(err).Msg("Metadata fetch aborted, skipping unit")
		return 0, 0, err
	}

	for _, it := range list {
		if it.CreatedAt.IsZero() || !it.CreatedAt.Before(before) {
			continue
		}
		matched++
		deleted += r.deleteItemFiles(logger, dir, it)
	}

	unitsTotal.WithLabelValues(target.Kind, "ok").Inc()
	logger.Info().Int("matched", matched).Int("deleted", deleted).Msg("Unit cleaned")
	return matched, deleted, nil
}

// deleteItemFiles removes every local file carrying the item's identity
// suffix and returns the number removed.
func (r *Runner) deleteItemFiles(logger zerolog.Logger, dir string, it items.Item) int {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*_%d.*", it.ID)))
	if err != nil {
		logger.Warn().Err(err).Int64("item_id", it.ID).Msg("File scan failed")
		return 0
	}

	var deleted int
	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			logger.Warn().Err(err).Str("file", filepath.Base(match)).Msg("Failed to delete file")
			continue
		}
		cleanupDeletedTotal.Inc()
		logger.Debug().Str("file", filepath.Base(match)).Msg("Deleted file")
		deleted++
	}
	return deleted
}
