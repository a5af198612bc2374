package download

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/logging"
)

// DefaultConcurrency is the number of simultaneous transfers per unit.
const DefaultConcurrency = 2

// Stats aggregates download outcomes for one scheduler run.
type Stats struct {
	Succeeded      int
	AlreadyPresent int
	Failed         int
}

// Total returns the number of items processed.
func (s Stats) Total() int {
	return s.Succeeded + s.AlreadyPresent + s.Failed
}

// Downloader materializes a single item into a directory.
type Downloader interface {
	Download(ctx context.Context, it items.Item, dir string) Result
}

// Scheduler fans a slice of items out to a fixed pool of download workers.
// Per-item failures are counted, never propagated; the run only aborts
// early on context cancellation.
type Scheduler struct {
	downloader  Downloader
	concurrency int
	logger      zerolog.Logger
}

// NewScheduler creates a scheduler over the given downloader.
// Non-positive concurrency selects DefaultConcurrency.
func NewScheduler(downloader Downloader, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		downloader:  downloader,
		concurrency: concurrency,
		logger:      logging.NewLogger("scheduler"),
	}
}

// Run downloads every item into dir and returns the aggregated outcome
// counts. Items not yet dispatched when ctx is cancelled are counted as
// failed.
func (s *Scheduler) Run(ctx context.Context, list []items.Item, dir string) Stats {
	if len(list) == 0 {
		return Stats{}
	}

	jobs := make(chan items.Item)

	var mu sync.Mutex
	var stats Stats

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				inflightDownloads.Inc()
				result := s.downloader.Download(ctx, it, dir)
				inflightDownloads.Dec()

				mu.Lock()
				switch result {
				case ResultSuccess:
					stats.Succeeded++
				case ResultAlreadyPresent:
					stats.AlreadyPresent++
				default:
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	dispatched := 0
feed:
	for _, it := range list {
		select {
		case jobs <- it:
			dispatched++
		case <-ctx.Done():
			s.logger.Warn().Int("remaining", len(list)-dispatched).Msg("Run cancelled, abandoning queued items")
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	stats.Failed += len(list) - dispatched

	s.logger.Info().
		Int("total", stats.Total()).
		Int("succeeded", stats.Succeeded).
		Int("already_present", stats.AlreadyPresent).
		Int("failed", stats.Failed).
		Msg("Download run finished")

	return stats
}
