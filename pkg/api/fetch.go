package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/logging"
	"github.com/indigoray/civitai-downloader/pkg/ratelimit"
)

// Default retry schedule for metadata pages: up to 5 attempts with
// (attempt+1) x 5s linear backoff.
const (
	DefaultPageAttempts    = 5
	DefaultPageBackoffStep = 5 * time.Second
)

// FetcherConfig tunes the page fetcher. Zero values select the defaults.
type FetcherConfig struct {
	// Throttle is the self-imposed delay before every page request.
	Throttle ratelimit.Throttle

	// Backoff is the per-page retry schedule for 5xx and network errors.
	Backoff ratelimit.LinearBackoff
}

// FetchOptions adjust one fetch pass.
type FetchOptions struct {
	// After excludes items created strictly before this bound. The zero
	// time disables filtering. Because the API returns descending-time
	// order, the fetcher may also stop paginating once a page's last item
	// falls below the bound; that early stop is an optimization only.
	After time.Time
}

// PageFetcher walks a cursor-paginated item collection. One fetch is a
// single sequential pass: each page's cursor depends on the previous
// response, so only one page is ever in flight.
type PageFetcher struct {
	client   *Client
	throttle ratelimit.Throttle
	backoff  ratelimit.LinearBackoff
	logger   zerolog.Logger
}

// NewPageFetcher creates a fetcher over the given client.
func NewPageFetcher(client *Client, cfg FetcherConfig) *PageFetcher {
	if cfg.Throttle == (ratelimit.Throttle{}) {
		cfg.Throttle = ratelimit.FetchThrottle()
	}
	if cfg.Backoff.Step <= 0 {
		cfg.Backoff.Step = DefaultPageBackoffStep
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff.MaxAttempts = DefaultPageAttempts
	}

	return &PageFetcher{
		client:   client,
		throttle: cfg.Throttle,
		backoff:  cfg.Backoff,
		logger:   logging.NewLogger("fetcher"),
	}
}

// FetchImages retrieves all directly-listed items matching the query.
//
// A page that keeps failing after the retry budget terminates the pass
// early: the items accumulated so far are returned with a nil error
// (partial result). Only context cancellation surfaces as an error.
func (f *PageFetcher) FetchImages(ctx context.Context, q Query, opts FetchOptions) ([]items.Item, error) {
	logger := f.logger.With().Str("endpoint", ProcedureImages).Logger()

	var out []items.Item
	var cursor json.RawMessage

	for {
		var page imagePage
		if err := f.fetchPage(ctx, ProcedureImages, q.input(cursor), &page); err != nil {
			if errors.Is(err, ErrContextCancelled) {
				return out, err
			}
			logger.Warn().Err(err).Int("items_so_far", len(out)).Msg("Page fetch failed, returning partial result")
			return out, nil
		}
		pagesFetchedTotal.WithLabelValues(ProcedureImages).Inc()

		if len(page.Items) == 0 {
			break
		}

		for _, w := range page.Items {
			it, ok := w.toItem(logger)
			if !ok {
				continue
			}
			if q.ByNumericOwner() && it.OwnerID != 0 && it.OwnerID != q.UserID {
				// Strict ownership check applies only when querying by
				// numeric id; a missing owner id never disqualifies.
				continue
			}
			if !opts.After.IsZero() && !it.CreatedAt.IsZero() && it.CreatedAt.Before(opts.After) {
				continue
			}
			out = append(out, it)
			itemsFetchedTotal.WithLabelValues(ProcedureImages).Inc()
		}

		next := page.NextCursor
		if !f.advance(logger, &cursor, next) {
			break
		}
		if f.pastDateBound(opts.After, parseTimestamp(page.Items[len(page.Items)-1].CreatedAt)) {
			logger.Debug().Msg("Last page item older than date bound, stopping pagination")
			break
		}
	}

	logger.Info().Int("items", len(out)).Msg("Image fetch complete")
	return out, nil
}

// FetchPosts retrieves container posts matching the query and unpacks each
// into its constituent items, stamping container provenance. Failure and
// partial-result semantics match FetchImages.
func (f *PageFetcher) FetchPosts(ctx context.Context, q Query, opts FetchOptions) ([]items.Item, error) {
	logger := f.logger.With().Str("endpoint", ProcedurePosts).Logger()

	var out []items.Item
	var cursor json.RawMessage

	for {
		var page postPage
		if err := f.fetchPage(ctx, ProcedurePosts, q.input(cursor), &page); err != nil {
			if errors.Is(err, ErrContextCancelled) {
				return out, err
			}
			logger.Warn().Err(err).Int("items_so_far", len(out)).Msg("Page fetch failed, returning partial result")
			return out, nil
		}
		pagesFetchedTotal.WithLabelValues(ProcedurePosts).Inc()

		if len(page.Items) == 0 {
			break
		}

		var lastPostDate time.Time
		for _, post := range page.Items {
			lastPostDate = post.date()

			if q.ByNumericOwner() && post.UserID != nil && *post.UserID != q.UserID {
				continue
			}

			for _, w := range post.Images {
				it, ok := w.toItem(logger)
				if !ok {
					continue
				}
				it.ContainerID = post.ID
				it.ContainerDate = post.date()
				if it.CreatedAt.IsZero() {
					it.CreatedAt = it.ContainerDate
				}
				if !opts.After.IsZero() && !it.CreatedAt.IsZero() && it.CreatedAt.Before(opts.After) {
					continue
				}
				out = append(out, it)
				itemsFetchedTotal.WithLabelValues(ProcedurePosts).Inc()
			}
		}

		next := page.NextCursor
		if !f.advance(logger, &cursor, next) {
			break
		}
		if f.pastDateBound(opts.After, lastPostDate) {
			logger.Debug().Msg("Last page post older than date bound, stopping pagination")
			break
		}
	}

	logger.Info().Int("items", len(out)).Msg("Post fetch complete")
	return out, nil
}

// fetchPage requests one page with throttling and the per-page retry budget.
func (f *PageFetcher) fetchPage(ctx context.Context, procedure string, input any, out any) error {
	return RetryWithBackoff(ctx, f.backoff, f.logger, func() error {
		if err := f.throttle.Wait(ctx); err != nil {
			return err
		}
		return f.client.Call(ctx, procedure, input, out)
	})
}

// advance moves the cursor forward. It returns false when pagination must
// stop: no continuation cursor, or the cursor did not change (cycle guard).
func (f *PageFetcher) advance(logger zerolog.Logger, cursor *json.RawMessage, next json.RawMessage) bool {
	if len(next) == 0 || string(next) == "null" {
		return false
	}
	if len(*cursor) > 0 && bytes.Equal(next, *cursor) {
		logger.Warn().RawJSON("cursor", next).Msg("Pagination cursor stuck, stopping")
		return false
	}
	*cursor = next
	return true
}

// pastDateBound reports whether pagination may stop early because the last
// record on the page is already older than the bound.
func (f *PageFetcher) pastDateBound(after, last time.Time) bool {
	return !after.IsZero() && !last.IsZero() && last.Before(after)
}
