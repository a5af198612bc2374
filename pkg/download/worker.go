package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/logging"
	"github.com/indigoray/civitai-downloader/pkg/ratelimit"
)

// Result is the outcome of downloading one item.
type Result int

const (
	// ResultFailed means all attempts were exhausted or the item is
	// malformed. Failures are counted and never propagate.
	ResultFailed Result = iota

	// ResultSuccess means the file was transferred and verified non-empty.
	ResultSuccess

	// ResultAlreadyPresent means a valid file for the item's identity was
	// already on disk (possibly recovered by rename) and no network call
	// was made.
	ResultAlreadyPresent
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAlreadyPresent:
		return "already_present"
	default:
		return "failed"
	}
}

// Default retry schedule for transfers: up to 10 attempts, 429 responses
// backed off at (attempt+1) x 10s, plain network errors at a short fixed
// delay.
const (
	DefaultDownloadAttempts = 10
	DefaultRateLimitStep    = 10 * time.Second
	DefaultNetworkBackoff   = 5 * time.Second
	DefaultTransferTimeout  = 30 * time.Second
)

// WorkerConfig tunes a download worker. Zero values select the defaults.
type WorkerConfig struct {
	// MediaBaseURL expands opaque storage tokens (default:
	// DefaultMediaBaseURL).
	MediaBaseURL string

	// Throttle is the politeness delay before each transfer attempt.
	Throttle ratelimit.Throttle

	// RateLimitBackoff is the 429 retry schedule; its MaxAttempts bounds
	// all attempts, whatever their failure cause.
	RateLimitBackoff ratelimit.LinearBackoff

	// NetworkBackoff is the fixed delay after a network-level failure.
	NetworkBackoff time.Duration

	// Timeout bounds each HTTP transfer request.
	Timeout time.Duration
}

// Worker resolves an item's canonical URL, reconciles pre-existing local
// files by item identity, and performs the byte transfer.
type Worker struct {
	httpClient *http.Client
	mediaBase  string
	throttle   ratelimit.Throttle
	backoff    ratelimit.LinearBackoff
	netBackoff time.Duration
	logger     zerolog.Logger
}

// NewWorker creates a download worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = DefaultMediaBaseURL
	}
	if cfg.Throttle == (ratelimit.Throttle{}) {
		cfg.Throttle = ratelimit.DownloadThrottle()
	}
	if cfg.RateLimitBackoff.Step <= 0 {
		cfg.RateLimitBackoff.Step = DefaultRateLimitStep
	}
	if cfg.RateLimitBackoff.MaxAttempts <= 0 {
		cfg.RateLimitBackoff.MaxAttempts = DefaultDownloadAttempts
	}
	if cfg.NetworkBackoff <= 0 {
		cfg.NetworkBackoff = DefaultNetworkBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTransferTimeout
	}

	return &Worker{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		mediaBase:  cfg.MediaBaseURL,
		throttle:   cfg.Throttle,
		backoff:    cfg.RateLimitBackoff,
		netBackoff: cfg.NetworkBackoff,
		logger:     logging.NewLogger("download"),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (w *Worker) SetHTTPClient(client *http.Client) {
	w.httpClient = client
}

// Download materializes one item into dir. All failures are converted to
// ResultFailed with a structured log record; nothing propagates past this
// boundary.
func (w *Worker) Download(ctx context.Context, it items.Item, dir string) Result {
	logger := w.logger.With().Int64("item_id", it.ID).Logger()

	result := w.download(ctx, logger, it, dir)
	downloadsTotal.WithLabelValues(result.String()).Inc()
	return result
}

func (w *Worker) download(ctx context.Context, logger zerolog.Logger, it items.Item, dir string) Result {
	if it.RemoteRef == "" {
		logger.Warn().Msg("Item has no remote reference, skipping")
		return ResultFailed
	}

	canonical, fallback := ResolveURLs(it, w.mediaBase)
	target := filepath.Join(dir, FileName(it))
	logger = logger.With().Str("target", filepath.Base(target)).Logger()

	for attempt := 0; attempt < w.backoff.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			logger.Warn().Msg("Download cancelled")
			return ResultFailed
		}

		// Reconcile before every attempt so files recovered or deleted by
		// a previous attempt's partial work are re-examined.
		w.reconcile(logger, dir, it.ID, target)
		if fileValid(target) {
			logger.Debug().Msg("Valid file already on disk")
			return ResultAlreadyPresent
		}

		if err := w.throttle.Wait(ctx); err != nil {
			return ResultFailed
		}

		status, err := w.transfer(ctx, canonical, target)

		// A rejected canonical URL gets one shot at the fallback within
		// the same attempt.
		if err == nil && status != http.StatusOK && status != http.StatusTooManyRequests && fallback != "" {
			logger.Debug().Int("status", status).Msg("Canonical URL rejected, trying fallback")
			status, err = w.transfer(ctx, fallback, target)
		}

		switch {
		case err != nil:
			if ctx.Err() != nil {
				logger.Warn().Msg("Download cancelled")
				return ResultFailed
			}
			if strings.Contains(err.Error(), "429") {
				downloadAttemptsTotal.WithLabelValues("rate_limit").Inc()
				logger.Warn().Err(err).Int("attempt", attempt+1).
					Dur("backoff", w.backoff.Delay(attempt)).
					Msg("Rate limited (exception), backing off")
				if werr := w.backoff.Wait(ctx, attempt, "rate_limit"); werr != nil {
					return ResultFailed
				}
				continue
			}
			downloadAttemptsTotal.WithLabelValues("network").Inc()
			logger.Warn().Err(err).Int("attempt", attempt+1).Msg("Transfer failed, backing off")
			if werr := ratelimit.Sleep(ctx, w.netBackoff); werr != nil {
				return ResultFailed
			}

		case status == http.StatusTooManyRequests:
			downloadAttemptsTotal.WithLabelValues("rate_limit").Inc()
			logger.Warn().Int("attempt", attempt+1).
				Dur("backoff", w.backoff.Delay(attempt)).
				Msg("Rate limited (429), backing off")
			if werr := w.backoff.Wait(ctx, attempt, "rate_limit"); werr != nil {
				return ResultFailed
			}

		case status != http.StatusOK:
			downloadAttemptsTotal.WithLabelValues("http_error").Inc()
			logger.Warn().Int("status", status).Int("attempt", attempt+1).Msg("Download rejected, backing off")
			if werr := ratelimit.Sleep(ctx, w.netBackoff); werr != nil {
				return ResultFailed
			}

		case !fileValid(target):
			downloadAttemptsTotal.WithLabelValues("empty_file").Inc()
			logger.Warn().Int("attempt", attempt+1).Msg("Downloaded file is empty, retrying")

		default:
			downloadAttemptsTotal.WithLabelValues("success").Inc()
			logger.Info().Msg("Download complete")
			return ResultSuccess
		}
	}

	logger.Error().Int("max_attempts", w.backoff.MaxAttempts).Msg("Download failed, attempts exhausted")
	return ResultFailed
}

// transfer streams one URL into target. It returns the HTTP status for any
// completed request; err is non-nil only for transport or filesystem
// failures.
func (w *Worker) transfer(ctx context.Context, url, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return resp.StatusCode, nil
	}

	f, err := os.Create(target)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("create %s: %w", target, err)
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A truncated body can leave a non-empty file that would pass the
		// next attempt's presence check; discard it so the retry transfers
		// from scratch.
		os.Remove(target)
		return resp.StatusCode, fmt.Errorf("write %s: %w", target, err)
	}

	downloadBytesTotal.Add(float64(n))
	return resp.StatusCode, nil
}

// reconcile locates files in dir that share the item's identity suffix
// (*_<id>.*) under a different name. When a valid file already sits at the
// target path the stragglers are redundant and deleted; otherwise the
// first non-empty match is renamed into the target, recovering a prior
// download saved under an earlier naming scheme. The rename consumes the
// slot, so subsequent matches in the same pass are treated as redundant.
func (w *Worker) reconcile(logger zerolog.Logger, dir string, id int64, target string) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("*_%d.*", id)))
	if err != nil {
		logger.Warn().Err(err).Msg("Duplicate scan failed")
		return
	}

	for _, match := range matches {
		if filepath.Clean(match) == filepath.Clean(target) {
			continue
		}

		if fileValid(target) {
			if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("file", filepath.Base(match)).Msg("Failed to delete redundant duplicate")
				continue
			}
			reconcileActionsTotal.WithLabelValues("delete").Inc()
			logger.Info().Str("file", filepath.Base(match)).Msg("Removed redundant duplicate")
			continue
		}

		if fileValid(match) {
			if err := os.Rename(match, target); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("file", filepath.Base(match)).Msg("Failed to rename recovered file")
				continue
			}
			reconcileActionsTotal.WithLabelValues("rename").Inc()
			logger.Info().Str("file", filepath.Base(match)).Msg("Recovered prior download under old name")
		}
	}
}

// fileValid reports whether path exists with non-zero size. Zero-byte
// files are treated as absent: an interrupted run may leave them behind.
func fileValid(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
