package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ProductScout/internal/app"
	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/logging"
)

// exit codes
const (
	exitOK           = 0
	exitRunError     = 1
	exitConfig       = 2
	exitTotalFailure = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	mode := flag.String("mode", string(domain.ModeFull), "run mode: full, dry-run, scrape-only, rank-only")
	count := flag.Int("count", 0, "digest size, overrides digest.topN when positive")
	date := flag.String("date", "", "run date YYYY-MM-DD, defaults to today in scheduler.timezone")
	label := flag.String("session-label", "", "label shown in the digest header, overrides SESSION_LABEL")
	daemon := flag.Bool("daemon", false, "stay running and trigger a run daily at scheduler.dailyAt")
	flag.Parse()

	cfg := config.Load()
	if *count > 0 {
		cfg.Digest.TopN = *count
	}
	if *label != "" {
		cfg.Digest.SessionLabel = *label
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return exitConfig
	}
	runMode, err := domain.ParseRunMode(*mode)
	if err != nil {
		logger.Error("invalid mode", "error", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		return exitConfig
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	if *daemon {
		if err := application.Daemon(ctx, runMode); err != nil {
			logger.Error("daemon stopped", "error", err)
			return exitRunError
		}
		return exitOK
	}

	runDate := *date
	if runDate == "" {
		runDate = time.Now().In(cfg.Scheduler.Location()).Format(domain.RunDateLayout)
	}

	outcome, err := application.Run(ctx, runMode, runDate)
	if err != nil {
		logger.Error("run failed", "runDate", runDate, "error", err)
		return exitRunError
	}

	if statusErr := outcome.Status.Err(); statusErr != nil {
		logger.Warn("run degraded", "runDate", runDate, "status", outcome.Status.String())
		if errors.Is(statusErr, domain.ErrTotalScrapeFailure) {
			return exitTotalFailure
		}
	}
	return exitOK
}
