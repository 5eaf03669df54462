package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/config"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/browser"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/llm"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/parser"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/pdfex"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/scheduler"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/server"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/storage"
	"github.com/kremserw/mitteilungsblattscraper/internal/logging"
	"github.com/kremserw/mitteilungsblattscraper/internal/orchestrator"
	"github.com/kremserw/mitteilungsblattscraper/internal/scanner"
	"github.com/kremserw/mitteilungsblattscraper/internal/scraper"
	"github.com/kremserw/mitteilungsblattscraper/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.SQLiteStore
	browser *browser.Browser
	runner  *orchestrator.Runner
	tasks   *usecase.Tasks
	cron    *scheduler.CronScheduler
	http    *http.Server
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rodBrowser, err := browser.Connect(cfg.Scraping.IsHeadless())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	extractor, err := pdfex.NewExtractor(cfg.Storage.CacheDir)
	if err != nil {
		_ = rodBrowser.Close()
		_ = store.Close()
		return nil, fmt.Errorf("prepare pdf cache: %w", err)
	}

	settle := time.Duration(cfg.Scraping.DelaySeconds) * time.Second
	chain := scanner.NewChain(parser.StructuredStrategy{}, parser.FlatTextStrategy{})

	discoverer := scraper.NewEditionScanner(rodBrowser, store, cfg.Scraping.ArchiveURL,
		settle, baseLogger.With("component", "scanner"))
	resolver := scraper.NewAttachmentResolver(settle, baseLogger.With("component", "attachments"))
	itemExtractor := scraper.NewItemExtractor(rodBrowser, store, chain, resolver,
		settle, baseLogger.With("component", "extractor"))

	claude := llm.NewClaudeAnalyzer(cfg.Anthropic.APIKey, cfg.Anthropic.Model,
		cfg.Anthropic.Endpoint, baseLogger.With("component", "llm"))
	analyzer := usecase.NewEditionAnalyzer(store, claude, extractor,
		cfg.Analysis.RoleDescription, cfg.Analysis.RelevanceThreshold,
		baseLogger.With("component", "analyzer"))

	runner := orchestrator.NewRunner(baseLogger.With("component", "runner"))
	tasks := usecase.NewTasks(store, discoverer, itemExtractor, analyzer, runner,
		baseLogger.With("component", "tasks"))

	api := server.New(store, tasks, analyzer, runner, baseLogger.With("component", "server"))

	app := &Application{
		cfg:     cfg,
		logger:  baseLogger,
		store:   store,
		browser: rodBrowser,
		runner:  runner,
		tasks:   tasks,
		http: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.Handler(),
		},
	}

	if cfg.Scheduler.CronExpression != "" {
		app.cron = scheduler.New(cfg.Scheduler.CronExpression,
			baseLogger.With("component", "scheduler"))
	}

	return app, nil
}

// Run serves the API until the context is canceled, with the optional
// scheduled sync ticking in the background.
func (a *Application) Run(ctx context.Context) error {
	if a.cron != nil {
		err := a.cron.Start(ctx, func(time.Time) {
			if !a.runner.StartTask("sync", a.tasks.Sync) {
				a.logger.Info("scheduled sync skipped, another task is running")
			}
		})
		if err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the server, the scheduler and the infrastructure handles.
func (a *Application) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := a.http.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("stop http server: %w", err)
	}
	if a.cron != nil {
		if err := a.cron.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop scheduler: %w", err)
		}
	}
	if err := a.browser.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close browser: %w", err)
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close storage: %w", err)
	}
	return firstErr
}
