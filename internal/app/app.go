package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ProductScout/internal/antibot"
	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/fetch"
	"ProductScout/internal/infrastructure/llm"
	"ProductScout/internal/infrastructure/ml"
	"ProductScout/internal/infrastructure/parser"
	"ProductScout/internal/infrastructure/scheduler"
	"ProductScout/internal/infrastructure/storage"
	"ProductScout/internal/infrastructure/telegram"
	"ProductScout/internal/logging"
	"ProductScout/internal/ports"
	"ProductScout/internal/source"
	"ProductScout/internal/usecase"
)

const shutdownGrace = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	closers  []io.Closer
}

// New builds every adapter named by cfg. Telegram is only wired when both
// the bot token and chat id are set.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	detector := antibot.NewDetector(cfg.Fetch.BlockSignatures)
	sources, err := buildSources(cfg.Sources, detector)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewClient(fetch.Options{
		Profiles: cfg.Fetch.Profiles,
		MinDelay: cfg.Fetch.MinDelay,
		MaxDelay: cfg.Fetch.MaxDelay,
		Timeout:  cfg.Fetch.Timeout,
		Detector: detector,
	})
	policy := fetch.DefaultRetryPolicy(fetcher.Profiles())
	policy.MaxRetries = cfg.Fetch.MaxRetries
	if cfg.Fetch.BaseBackoff > 0 {
		policy.BaseBackoff = cfg.Fetch.BaseBackoff
	}
	if cfg.Fetch.MaxBackoff > 0 {
		policy.MaxBackoff = cfg.Fetch.MaxBackoff
	}
	if cfg.Fetch.Timeout > 0 {
		policy.BaseTimeout = cfg.Fetch.Timeout
	}

	builder := parser.NewCatalogBuilder(parser.CatalogDeps{
		Fetcher:          fetcher,
		Policy:           policy,
		Sources:          sources,
		Categories:       cfg.Categories,
		Concurrency:      cfg.Fetch.Concurrency,
		Timeout:          cfg.Fetch.Timeout,
		RunDeadline:      cfg.Fetch.RunDeadline,
		TermsPerCategory: cfg.Fetch.TermsPerCategory,
		Logger:           baseLogger.With("component", "catalog"),
	})

	scorer, err := newScorer(cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	store, err := a.newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		n, err := telegram.NewNotifier(tg, baseLogger.With("component", "telegram"))
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		notifier = n
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source: builder,
		Ranker: usecase.NewRanker(usecase.RankerDeps{
			Scorer:    scorer,
			BatchSize: cfg.Ranker.BatchSize,
			Logger:    baseLogger.With("component", "ranker", "provider", cfg.Ranker.Provider),
		}),
		Store:    store,
		Notifier: notifier,
		TopN:     cfg.Digest.TopN,
		Label:    cfg.Digest.SessionLabel,
		Logger:   baseLogger.With("component", "pipeline"),
	})
	return a, nil
}

// Run performs a single pipeline execution for runDate.
func (a *Application) Run(ctx context.Context, mode domain.RunMode, runDate string) (domain.RunOutcome, error) {
	return a.pipeline.Run(ctx, mode, runDate)
}

// Daemon runs the pipeline every day at scheduler.dailyAt until ctx ends.
func (a *Application) Daemon(ctx context.Context, mode domain.RunMode) error {
	hour, minute, err := a.cfg.Scheduler.Clock()
	if err != nil {
		return err
	}
	loc := a.cfg.Scheduler.Location()
	driver := scheduler.NewDailyScheduler(hour, minute, loc)
	sched := usecase.NewScheduler(driver, a.pipeline, mode, loc, a.logger.With("component", "scheduler"))

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("daemon started", "dailyAt", a.cfg.Scheduler.DailyAt, "timezone", loc.String(),
		"nextRun", scheduler.NextRun(time.Now(), hour, minute, loc))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Close releases storage handles.
func (a *Application) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func buildSources(cfgs []config.SourceConfig, detector *antibot.Detector) ([]source.Source, error) {
	registry := source.NewRegistry()
	var enabled []string
	for _, sc := range cfgs {
		opts := parser.Options{BaseURL: sc.BaseURL, MaxItems: sc.MaxItems, Detector: detector}
		switch sc.Name {
		case "alibaba":
			registry.Register(parser.NewAlibaba(opts))
		case "dhgate":
			registry.Register(parser.NewDHgate(opts))
		default:
			return nil, fmt.Errorf("unknown source %q", sc.Name)
		}
		if !sc.Disabled {
			enabled = append(enabled, sc.Name)
		}
	}

	sources := make([]source.Source, 0, len(enabled))
	for _, name := range enabled {
		src, err := registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled sources (registered: %v)", registry.Names())
	}
	return sources, nil
}

// newScorer resolves ranker.provider. A chatgpt provider without an API key
// runs on the heuristic scorer instead.
func newScorer(cfg config.Config, logger *slog.Logger) (ports.Scorer, error) {
	switch cfg.Ranker.Provider {
	case "chatgpt":
		if cfg.ChatGPT.APIKey == "" {
			logger.Warn("no OpenAI API key set, ranking with the heuristic scorer")
			return llm.HeuristicScorer{}, nil
		}
		return llm.NewChatGPTScorer(cfg.ChatGPT), nil
	case "ollama":
		scorer, err := llm.NewOllamaScorer(cfg.Ollama, cfg.ChatGPT.SystemPrompt, cfg.ChatGPT.Temperature)
		if err != nil {
			return nil, err
		}
		return scorer, nil
	case "http":
		return ml.NewClient(cfg.ML.InferenceURL, cfg.ML.APIKey), nil
	case "heuristic":
		return llm.HeuristicScorer{}, nil
	default:
		return nil, fmt.Errorf("unknown ranker provider %q", cfg.Ranker.Provider)
	}
}

func (a *Application) newStore(ctx context.Context, cfg config.StorageConfig) (ports.ResultStore, error) {
	switch cfg.Driver {
	case "", "json":
		return storage.NewJSONStore(cfg.Dir), nil
	case storage.DriverSQLite, storage.DriverPostgres:
		store, err := storage.OpenSQLStore(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
