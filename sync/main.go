package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/wiki-search-sync/internal/azuresearch"
	"github.com/DeafMist/wiki-search-sync/internal/config"
	"github.com/DeafMist/wiki-search-sync/internal/confluence"
	"github.com/DeafMist/wiki-search-sync/internal/elasticsearch"
	"github.com/DeafMist/wiki-search-sync/internal/events"
	"github.com/DeafMist/wiki-search-sync/internal/logger"
	"github.com/DeafMist/wiki-search-sync/internal/pipeline"
	"github.com/DeafMist/wiki-search-sync/internal/processing"
)

type outcomeRunner interface {
	Run(ctx context.Context) pipeline.Outcome
}

func main() {
	os.Exit(run())
}

func run() int {
	log := logger.New("sync")
	cfg, err := config.LoadSync()
	if err != nil {
		pipeline.LogOutcome(log, pipeline.NewFailedOutcome(pipeline.StageConfig, err))
		return 1
	}

	writer, err := newWriter(cfg.Index, log)
	if err != nil {
		pipeline.LogOutcome(log, pipeline.NewFailedOutcome(pipeline.StageConfig, err))
		return 1
	}

	reader := confluence.New(cfg.BaseURL, cfg.Username, cfg.APIToken, cfg.ParentPageID, cfg.PageLimit, log)
	runner := &pipeline.Runner{
		Reader:      reader,
		Transformer: processing.NewTransformer(cfg.Domain, cfg.Sanitizer),
		Writer:      writer,
		Logger:      log,
	}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := pub.Close(); err != nil {
				log.Warn("close publisher", slog.Any("err", err))
			}
		}()
		runner.Publisher = pub
	}

	log.Info("sync starting",
		slog.String("confluence_domain", cfg.Domain),
		slog.String("parent_page_id", cfg.ParentPageID),
		slog.Int("page_limit", cfg.PageLimit),
		slog.String("sanitizer", cfg.Sanitizer),
		slog.String("index_backend", cfg.Backend),
		slog.String("index", indexName(cfg.Index)),
		slog.Duration("interval", cfg.Interval),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if cfg.Interval == 0 {
		if outcome := runOnce(ctx, runner, cfg.RunTimeout); !outcome.Succeeded {
			return 1
		}
		return 0
	}

	runLoop(ctx, log, runner, cfg.Interval, cfg.RunTimeout)
	return 0
}

func newWriter(idx config.Index, log *slog.Logger) (pipeline.Writer, error) {
	if idx.Backend == config.BackendElasticsearch {
		client, err := elasticsearch.New(idx.ElasticsearchAddr, idx.ElasticsearchIndex, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return azuresearch.New(idx.AzureEndpoint, idx.AzureIndex, idx.AzureKey, idx.AzureAPIVersion, log), nil
}

func indexName(idx config.Index) string {
	if idx.Backend == config.BackendElasticsearch {
		return idx.ElasticsearchIndex
	}
	return idx.AzureIndex
}

// runOnce bounds a single run by timeout. The pipeline itself sets no deadline.
func runOnce(ctx context.Context, runner outcomeRunner, timeout time.Duration) pipeline.Outcome {
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return runner.Run(subCtx)
}

// runLoop runs immediately and then on every tick until ctx is done.
// A failed run is not retried; the next tick is the retry.
func runLoop(ctx context.Context, log *slog.Logger, runner outcomeRunner, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, runner, timeout)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, runner, timeout)
		}
	}
}
