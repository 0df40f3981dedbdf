package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"DealScanner/internal/classifier"
	"DealScanner/internal/config"
	"DealScanner/internal/infrastructure/httpapi"
	"DealScanner/internal/infrastructure/parser"
	"DealScanner/internal/infrastructure/scheduler"
	"DealScanner/internal/infrastructure/storage"
	"DealScanner/internal/infrastructure/telegram"
	"DealScanner/internal/ledger"
	"DealScanner/internal/logging"
	"DealScanner/internal/ports"
	"DealScanner/internal/scanner"
	"DealScanner/internal/usecase"
)

// Options alter how the application is wired.
type Options struct {
	// DryRun logs alerts instead of sending them and keeps the ledger in memory.
	DryRun bool
	Clock  clockwork.Clock
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	ledger    *ledger.Ledger
	scheduler *usecase.Scheduler
	api       *httpapi.Server
}

// New validates cfg and builds every component. The caller owns Close.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	sources, err := ResolveSources(cfg, clock, baseLogger)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, opts.DryRun)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(ctx, store,
		ledger.WithRetention(cfg.Ledger.Retention),
		ledger.WithWriteTimeout(cfg.Ledger.WriteTimeout),
		ledger.WithClock(clock),
		ledger.WithLogger(baseLogger.With("component", "ledger")),
	)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	cls := classifier.New(cfg.Classifier.Tables(), classifier.WithScoreCeiling(cfg.Classifier.ScoreCeiling))
	aggregator := usecase.NewAggregator(usecase.AggregatorDeps{
		Sources:      sources,
		Classifier:   cls,
		Delivered:    led,
		FetchTimeout: cfg.Fetch.Timeout,
		Concurrency:  cfg.Fetch.Concurrency,
		Clock:        clock,
		Logger:       baseLogger.With("component", "aggregator"),
	})

	notifier, operator := buildNotifiers(cfg.Notifications.Telegram, opts.DryRun, baseLogger)
	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Aggregator: aggregator,
		Ledger:     led,
		Notifier:   notifier,
		Operator:   operator,
		Schedule:   scheduler.NewJitterSchedule(cfg.Scheduler.Interval, cfg.Scheduler.Jitter),
		Formatter:  usecase.MessageFormatter{ScoreCeiling: cls.ScoreCeiling()},
		Options: usecase.SchedulerOptions{
			BatchSize:     cfg.Scheduler.BatchSize,
			MinScore:      cfg.Scheduler.MinScore,
			DispatchDelay: cfg.Scheduler.DispatchDelay,
			ErrorCooldown: cfg.Scheduler.ErrorCooldown,
			Interval:      cfg.Scheduler.Interval,
			SendStartup:   cfg.Scheduler.SendStartup,
			SendSummary:   cfg.Scheduler.SendSummary,
		},
		Clock:  clock,
		Logger: baseLogger.With("component", "scheduler"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		ledger:    led,
		scheduler: sched,
		api:       httpapi.New(sched, baseLogger.With("component", "httpapi")),
	}, nil
}

// ResolveSources builds one listing source per configured page.
func ResolveSources(cfg config.Config, clock clockwork.Clock, logger *slog.Logger) ([]ports.ListingSource, error) {
	registry := scanner.NewRegistry()
	registry.Register(parser.NewStaticScanner(&http.Client{Timeout: cfg.Fetch.RequestTimeout}))
	registry.Register(parser.NewRenderedScanner(nil, cfg.Fetch.RenderTimeout))
	registry.Register(parser.NewCrawlAPIScanner(&http.Client{Timeout: cfg.Fetch.RequestTimeout}))

	var sourceLogger *slog.Logger
	if logger != nil {
		sourceLogger = logger.With("component", "source")
	}
	sources, err := parser.BuildSources(registry, cfg.Sites, parser.SourceOptions{
		Identities: cfg.Identities,
		Policy:     retryPolicy(cfg.Fetch),
		Clock:      clock,
		Logger:     sourceLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}
	return sources, nil
}

func retryPolicy(f config.FetchConfig) scanner.RetryPolicy {
	return scanner.RetryPolicy{
		MaxAttempts:      f.MaxAttempts,
		TransientRetries: f.TransientRetries,
		TransientDelay:   scanner.DelayRange{Min: f.TransientDelayMin, Max: f.TransientDelayMax},
		RequestDelay:     scanner.DelayRange{Min: f.RequestDelayMin, Max: f.RequestDelayMax},
		CooldownAfter:    f.CooldownAfter,
		CooldownPeriod:   f.CooldownPeriod,
	}
}

func openStore(ctx context.Context, cfg config.Config, dryRun bool) (ports.LedgerStore, error) {
	if dryRun {
		return storage.NewMemoryStore(), nil
	}
	switch cfg.Ledger.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "postgres":
		store, err := storage.ConnectPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres ledger: %w", err)
		}
		return store, nil
	default:
		store, err := storage.OpenFileStore(cfg.Ledger.Path, cfg.Ledger.SyncEveryCommit)
		if err != nil {
			return nil, fmt.Errorf("open file ledger: %w", err)
		}
		return store, nil
	}
}

func buildNotifiers(t config.TelegramConfig, dryRun bool, logger *slog.Logger) (ports.Notifier, ports.Notifier) {
	if dryRun || !t.Enabled() {
		if logger != nil {
			logger = logger.With("component", "notifier")
		}
		return telegram.NewLogNotifier(logger), nil
	}

	primary := telegram.NewNotifier(t.BotToken, t.ChatID,
		telegram.WithBaseURL(t.APIBaseURL),
		telegram.WithRate(t.MessagesPerSecond),
	)
	if t.OperatorChatID == "" || t.OperatorChatID == t.ChatID {
		return primary, nil
	}
	return primary, primary.ForChat(t.OperatorChatID)
}

// Scheduler exposes the delivery loop.
func (a *Application) Scheduler() *usecase.Scheduler {
	return a.scheduler
}

// Run serves the HTTP API (when configured) and the delivery loop until ctx
// is cancelled. An API failure stops the loop.
func (a *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.HTTP.ListenAddr; addr != "" {
		g.Go(func() error {
			if err := a.api.ListenAndServe(gctx, addr); err != nil {
				return fmt.Errorf("http api: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		err := a.scheduler.Run(gctx)
		a.logger.Info("delivery loop stopped")
		return err
	})
	return g.Wait()
}

// RunOnce executes exactly one cycle.
func (a *Application) RunOnce(ctx context.Context) (usecase.CycleReport, error) {
	return a.scheduler.RunCycle(ctx)
}

// Close flushes and releases the ledger.
func (a *Application) Close(ctx context.Context) error {
	return a.ledger.Close(ctx)
}
