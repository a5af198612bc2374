// Command civitai-downloader fetches creator and collection media into a
// local directory tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/indigoray/civitai-downloader/internal/config"
	"github.com/indigoray/civitai-downloader/pkg/api"
	"github.com/indigoray/civitai-downloader/pkg/cache"
	"github.com/indigoray/civitai-downloader/pkg/download"
	"github.com/indigoray/civitai-downloader/pkg/logging"
	"github.com/indigoray/civitai-downloader/pkg/resolver"
	"github.com/indigoray/civitai-downloader/pkg/runner"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ./configs/config.yaml or ./config.yaml)")
	outputDir := flag.String("output", "", "override download.output_dir")
	after := flag.String("after", "", "override filter.after (YYYY-MM or YYYY-MM-DD)")
	cleanupBefore := flag.String("cleanup-before", "", "delete local files of items created before this date (YYYY-MM or YYYY-MM-DD) instead of downloading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Download.OutputDir = *outputDir
	}
	if *after != "" {
		cfg.Filter.After = *after
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{Level: logging.LogLevel(cfg.Log.Level), Pretty: cfg.Log.Pretty})
	logger := logging.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(api.Config{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
	})
	fetcher := api.NewPageFetcher(client, api.FetcherConfig{})

	worker := download.NewWorker(download.WorkerConfig{})
	scheduler := download.NewScheduler(worker, cfg.Download.Concurrency)

	var userResolver resolver.Resolver = resolver.NewUserResolver(client)
	var collectionResolver resolver.Resolver = resolver.NewCollectionResolver(client)

	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisAddr,
			DB:   cfg.Cache.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).
				Msg("Redis unreachable, resolver cache disabled")
		} else {
			defer redisClient.Close()
			manager := cache.NewManager(redisClient)
			userResolver = resolver.NewCachedResolver(userResolver, resolver.KindUser, manager)
			collectionResolver = resolver.NewCachedResolver(collectionResolver, resolver.KindCollection, manager)
			logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Resolver cache enabled")
		}
	}

	afterTime, err := cfg.Filter.AfterTime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var targets []runner.Target
	for _, u := range cfg.Targets.Users {
		targets = append(targets, runner.Target{Kind: resolver.KindUser, Identifier: u})
	}
	for _, c := range cfg.Targets.Collections {
		targets = append(targets, runner.Target{Kind: resolver.KindCollection, Identifier: c})
	}

	r := runner.New(runner.Config{
		Fetcher:            fetcher,
		Scheduler:          scheduler,
		UserResolver:       userResolver,
		CollectionResolver: collectionResolver,
		OutputDir:          cfg.Download.OutputDir,
		After:              afterTime,
		ExcludedTagIDs:     cfg.Filter.ExcludedTagIDs,
		Concurrency:        cfg.Download.UnitConcurrency,
	})

	if *cleanupBefore != "" {
		before, err := config.ParseDate(*cleanupBefore)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cleanup-before: %v\n", err)
			os.Exit(1)
		}
		summary := r.Cleanup(ctx, targets, before)
		if summary.Units == 0 {
			logger.Error().Int("skipped", summary.Skipped).Msg("No unit cleaned")
			os.Exit(1)
		}
		return
	}

	summary := r.Run(ctx, targets)

	if summary.Units == 0 {
		logger.Error().Int("skipped", summary.Skipped).Msg("No unit completed")
		os.Exit(1)
	}
	if summary.Download.Failed > 0 {
		logger.Warn().Int("failed", summary.Download.Failed).Msg("Run finished with failed downloads")
	}
}
