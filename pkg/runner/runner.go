// Package runner orchestrates whole download units: resolve the target,
// fetch its metadata from every source, merge, and hand the result to the
// download scheduler. Units run in a bounded pool and fail independently.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/api"
	"github.com/indigoray/civitai-downloader/pkg/download"
	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/logging"
	"github.com/indigoray/civitai-downloader/pkg/resolver"
)

// DefaultUnitConcurrency is the number of units processed simultaneously.
const DefaultUnitConcurrency = 2

// Fetcher pulls item metadata pages for a query.
type Fetcher interface {
	FetchImages(ctx context.Context, q api.Query, opts api.FetchOptions) ([]items.Item, error)
	FetchPosts(ctx context.Context, q api.Query, opts api.FetchOptions) ([]items.Item, error)
}

// ItemScheduler downloads a merged item list into a directory.
type ItemScheduler interface {
	Run(ctx context.Context, list []items.Item, dir string) download.Stats
}

// Target is one raw download target, as configured.
type Target struct {
	// Kind is resolver.KindUser or resolver.KindCollection.
	Kind string

	// Identifier is the raw username, id, or URL.
	Identifier string
}

// Summary aggregates the outcome of a whole run.
type Summary struct {
	Units    int
	Skipped  int
	Items    int
	Download download.Stats
	Elapsed  time.Duration
}

// Config assembles a runner.
type Config struct {
	Fetcher            Fetcher
	Scheduler          ItemScheduler
	UserResolver       resolver.Resolver
	CollectionResolver resolver.Resolver

	// OutputDir is the root below which each unit gets its own directory.
	OutputDir string

	// After drops items created before this instant. Zero disables the
	// bound.
	After time.Time

	// ExcludedTagIDs is forwarded to collection queries.
	ExcludedTagIDs []int64

	// Concurrency is the unit pool size (default DefaultUnitConcurrency).
	Concurrency int
}

// Runner drives download units end to end.
type Runner struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a runner. Fetcher, Scheduler and both resolvers are
// required.
func New(cfg Config) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultUnitConcurrency
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	return &Runner{
		cfg:    cfg,
		logger: logging.NewLogger("runner"),
	}
}

// Run processes every target through the unit pool and returns the
// aggregated summary. A failed unit never aborts the others; only context
// cancellation stops the run early.
func (r *Runner) Run(ctx context.Context, targets []Target) Summary {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()

	logger.Info().Int("targets", len(targets)).Int("concurrency", r.cfg.Concurrency).Msg("Run started")

	jobs := make(chan Target)

	var mu sync.Mutex
	var summary Summary

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for target := range jobs {
				count, stats, err := r.runUnit(ctx, logger, target)

				mu.Lock()
				if err != nil {
					summary.Skipped++
				} else {
					summary.Units++
					summary.Items += count
					summary.Download.Succeeded += stats.Succeeded
					summary.Download.AlreadyPresent += stats.AlreadyPresent
					summary.Download.Failed += stats.Failed
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, target := range targets {
		select {
		case jobs <- target:
		case <-ctx.Done():
			logger.Warn().Msg("Run cancelled, abandoning queued targets")
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	summary.Elapsed = time.Since(start)

	logger.Info().
		Int("units", summary.Units).
		Int("skipped", summary.Skipped).
		Int("items", summary.Items).
		Int("succeeded", summary.Download.Succeeded).
		Int("already_present", summary.Download.AlreadyPresent).
		Int("failed", summary.Download.Failed).
		Dur("elapsed", summary.Elapsed).
		Msg("Run finished")

	return summary
}

// runUnit resolves one target and downloads everything it owns. The
// returned error marks the unit as skipped; download failures inside the
// unit are counted, not returned.
func (r *Runner) runUnit(ctx context.Context, logger zerolog.Logger, target Target) (int, download.Stats, error) {
	logger = logger.With().Str("unit", target.Identifier).Str("kind", target.Kind).Logger()

	unit, err := r.resolve(ctx, target)
	if err != nil {
		unitsTotal.WithLabelValues(target.Kind, "skipped").Inc()
		logger.Warn().Err(err).Msg("Resolution failed, skipping unit")
		return 0, download.Stats{}, err
	}
	logger = logger.With().Str("name", unit.Name).Int64("unit_id", unit.ID).Logger()

	merged, err := r.fetch(ctx, unit)
	if err != nil {
		unitsTotal.WithLabelValues(target.Kind, "skipped").Inc()
		logger.Warn().Err(err).Msg("Metadata fetch aborted, skipping unit")
		return 0, download.Stats{}, err
	}

	logger.Info().Int("items", len(merged)).Msg("Metadata fetched")
	if len(merged) == 0 {
		unitsTotal.WithLabelValues(target.Kind, "ok").Inc()
		return 0, download.Stats{}, nil
	}

	dir := filepath.Join(r.cfg.OutputDir, dirName(unit))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		unitsTotal.WithLabelValues(target.Kind, "skipped").Inc()
		logger.Error().Err(err).Str("dir", dir).Msg("Cannot create unit directory, skipping unit")
		return 0, download.Stats{}, err
	}

	stats := r.cfg.Scheduler.Run(ctx, merged, dir)
	unitsTotal.WithLabelValues(target.Kind, "ok").Inc()

	logger.Info().
		Int("succeeded", stats.Succeeded).
		Int("already_present", stats.AlreadyPresent).
		Int("failed", stats.Failed).
		Msg("Unit finished")

	return len(merged), stats, nil
}

func (r *Runner) resolve(ctx context.Context, target Target) (resolver.Unit, error) {
	switch target.Kind {
	case resolver.KindUser:
		return r.cfg.UserResolver.Resolve(ctx, target.Identifier)
	case resolver.KindCollection:
		return r.cfg.CollectionResolver.Resolve(ctx, target.Identifier)
	default:
		return resolver.Unit{}, fmt.Errorf("unknown target kind %q", target.Kind)
	}
}

// fetch pulls every metadata source for the unit and merges the results.
// Users are fetched from both the image and the post feed; collections
// only expose the image feed.
func (r *Runner) fetch(ctx context.Context, unit resolver.Unit) ([]items.Item, error) {
	opts := api.FetchOptions{After: r.cfg.After}

	if unit.Kind == resolver.KindCollection {
		fromImages, err := r.cfg.Fetcher.FetchImages(ctx, api.CollectionQuery(unit.ID, r.cfg.ExcludedTagIDs), opts)
		if err != nil {
			return nil, err
		}
		return items.Merge(fromImages), nil
	}

	q := api.UserQuery(unit.Username, unit.ID)

	fromImages, err := r.cfg.Fetcher.FetchImages(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	fromPosts, err := r.cfg.Fetcher.FetchPosts(ctx, q, opts)
	if err != nil {
		return nil, err
	}

	return items.Merge(fromImages, fromPosts), nil
}

// dirName derives a filesystem-safe directory name for a unit.
func dirName(unit resolver.Unit) string {
	var b strings.Builder
	for _, r := range unit.Name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		name = fmt.Sprintf("%s_%d", unit.Kind, unit.ID)
	}
	return name
}
