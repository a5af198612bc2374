package api

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/indigoray/civitai-downloader/pkg/ratelimit"
)

// RetryWithBackoff executes fn up to backoff.MaxAttempts times, sleeping the
// linear backoff between failed attempts. Only transient error classes
// (server, rate limit, network) are retried; client errors return
// immediately. A cancelled context aborts both the call and the sleep.
func RetryWithBackoff(ctx context.Context, backoff ratelimit.LinearBackoff, logger zerolog.Logger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < backoff.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		class := ClassOf(err)
		if !shouldRetry(class) {
			return err
		}

		if attempt == backoff.MaxAttempts-1 {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff.Delay(attempt)).
			Msg("Retrying request after backoff")

		if werr := backoff.Wait(ctx, attempt, string(class)); werr != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, werr)
		}
	}

	class := ClassOf(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", backoff.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, backoff.MaxAttempts, lastErr)
}
