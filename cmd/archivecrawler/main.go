package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JakeFAU/comic-archive-crawler/internal/app"
	"github.com/JakeFAU/comic-archive-crawler/internal/config"
	"github.com/JakeFAU/comic-archive-crawler/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logging.Sync(logger); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crawl, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Error("app init failed", zap.Error(err))
		return 1
	}
	defer crawl.Close()

	summary, err := crawl.Run(ctx)
	if err != nil {
		if app.IsFatal(err) {
			logger.Error("crawl aborted", zap.String("run_id", summary.RunID), zap.Error(err))
			return 1
		}
		logger.Warn("crawl interrupted",
			zap.String("run_id", summary.RunID),
			zap.Int64("downloaded", summary.Downloaded),
			zap.Error(err),
		)
		return 1
	}
	return 0
}
