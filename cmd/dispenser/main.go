package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/anomstore"
	"github.com/alfonsopalomares/digital-twin/internal/api"
	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/ingest"
	"github.com/alfonsopalomares/digital-twin/internal/logging"
	"github.com/alfonsopalomares/digital-twin/internal/model"
	"github.com/alfonsopalomares/digital-twin/internal/observe"
	"github.com/alfonsopalomares/digital-twin/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config file (yaml or json)")
	flag.Parse()

	var (
		manager *config.Manager
		err     error
	)
	if *configPath != "" {
		manager, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	} else {
		manager = config.NewStaticManager(nil)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting dispenser twin", "version", version, "storage", cfg.Storage.Driver)

	observe.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	anoms := anomstore.NewStore(0)

	readings := make(chan model.Reading, cfg.Ingest.ChannelBuffer)
	ingest.StartKafka(ctx, manager, readings, logger)
	go persistLoop(ctx, store, readings, logger)

	api.Start(ctx, manager, store, anoms, logger, version)

	stopWatch := make(chan struct{})
	go manager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", manager.Path())
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, stopWatch)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
	close(stopWatch)
	cancel()
	time.Sleep(200 * time.Millisecond)
}

// persistLoop drains the ingest channel into storage in small batches so a
// burst of readings costs one transaction, not one insert each.
func persistLoop(ctx context.Context, store storage.Store, in <-chan model.Reading, logger *slog.Logger) {
	const (
		batchSize  = 256
		flushEvery = 2 * time.Second
	)
	batch := make([]model.Reading, 0, batchSize)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := store.SaveReadings(ctx, batch); err != nil {
			logger.Error("persist readings failed", "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case r, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
