// Package usecase contains the pipeline workflows running on top of the
// store, the browser-driven scraper and the relevance analyzer.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/orchestrator"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

// syncLookback bounds the discovery window when no edition has been fully
// processed yet.
const syncLookback = 30 * 24 * time.Hour

// Tasks bundles the long-running workflows started through the task runner.
type Tasks struct {
	store      ports.EditionStore
	discoverer ports.EditionDiscoverer
	scraper    ports.EditionScraper
	analyzer   ports.EditionAnalyzer
	runner     *orchestrator.Runner
	logger     *slog.Logger
}

// NewTasks wires the workflows.
func NewTasks(store ports.EditionStore, discoverer ports.EditionDiscoverer,
	scraper ports.EditionScraper, analyzer ports.EditionAnalyzer,
	runner *orchestrator.Runner, logger *slog.Logger) *Tasks {
	return &Tasks{
		store:      store,
		discoverer: discoverer,
		scraper:    scraper,
		analyzer:   analyzer,
		runner:     runner,
		logger:     logger,
	}
}

// Scan discovers editions in the archive within the optional date window.
func (t *Tasks) Scan(ctx context.Context, from, to *time.Time) error {
	created, err := t.discoverer.ScanAndStore(ctx, from, to)
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}
	t.runner.AddLog(fmt.Sprintf("Scan complete: %d new editions", created))
	return nil
}

// Scrape extracts items for one edition (by key) or for every unscraped
// edition. In the bulk case a failing edition is logged and skipped so the
// rest still get their items.
func (t *Tasks) Scrape(ctx context.Context, editionKey string) error {
	if editionKey != "" {
		edition, err := t.editionForKey(ctx, editionKey)
		if err != nil {
			return err
		}
		count, err := t.scraper.ScrapeEdition(ctx, *edition)
		if err != nil {
			return fmt.Errorf("scrape %s: %w", editionKey, err)
		}
		t.runner.AddLog(fmt.Sprintf("Scraped %s: %d items", editionKey, count))
		return nil
	}

	editions, err := t.store.ListUnscraped(ctx)
	if err != nil {
		return fmt.Errorf("list unscraped editions: %w", err)
	}
	t.scrapeEditions(ctx, editions)
	return nil
}

func (t *Tasks) scrapeEditions(ctx context.Context, editions []domain.Edition) {
	t.runner.SetProgress(0, len(editions))
	for i, edition := range editions {
		count, err := t.scraper.ScrapeEdition(ctx, edition)
		if err != nil {
			t.logger.Error("scrape failed", "edition", edition.Key(), "error", err)
			t.runner.AddLog(fmt.Sprintf("Scrape failed for %s: %v", edition.Key(), err))
		} else {
			t.runner.AddLog(fmt.Sprintf("Scraped %s: %d items", edition.Key(), count))
		}
		t.runner.SetProgress(i+1, len(editions))
	}
}

// Analyze scores one edition (by key) or every scraped-but-unanalyzed one.
func (t *Tasks) Analyze(ctx context.Context, editionKey string) error {
	if editionKey != "" {
		edition, err := t.editionForKey(ctx, editionKey)
		if err != nil {
			return err
		}
		items, relevant, err := t.analyzer.AnalyzeEdition(ctx, *edition, true)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", editionKey, err)
		}
		t.runner.AddLog(fmt.Sprintf("Analyzed %s: %d items, %d relevant", editionKey, items, relevant))
		return nil
	}

	editions, err := t.store.ListUnanalyzed(ctx)
	if err != nil {
		return fmt.Errorf("list unanalyzed editions: %w", err)
	}
	t.analyzeEditions(ctx, editions)
	return nil
}

func (t *Tasks) analyzeEditions(ctx context.Context, editions []domain.Edition) {
	t.runner.SetProgress(0, len(editions))
	for i, edition := range editions {
		items, relevant, err := t.analyzer.AnalyzeEdition(ctx, edition, false)
		if err != nil {
			t.logger.Error("analysis failed", "edition", edition.Key(), "error", err)
			t.runner.AddLog(fmt.Sprintf("Analysis failed for %s: %v", edition.Key(), err))
		} else {
			t.runner.AddLog(fmt.Sprintf("Analyzed %s: %d items, %d relevant", edition.Key(), items, relevant))
		}
		t.runner.SetProgress(i+1, len(editions))
	}
}

// Sync runs the full pipeline incrementally: discover editions newer than the
// last fully processed one, scrape them, then analyze them. Per-edition
// failures in the later phases are logged and skipped.
func (t *Tasks) Sync(ctx context.Context) error {
	watermark, err := t.watermark(ctx)
	if err != nil {
		return err
	}

	from := time.Now().Add(-syncLookback)
	if watermark != nil && watermark.PublishedDate != nil {
		from = *watermark.PublishedDate
		t.runner.AddLog(fmt.Sprintf("Sync from last processed edition %s", watermark.Key()))
	} else {
		t.runner.AddLog("No processed edition yet, syncing the last 30 days")
	}

	created, err := t.discoverer.ScanAndStore(ctx, &from, nil)
	if err != nil {
		return fmt.Errorf("sync scan: %w", err)
	}
	t.runner.AddLog(fmt.Sprintf("Sync scan: %d new editions", created))

	editions, err := t.store.ListAll(ctx, 0)
	if err != nil {
		return fmt.Errorf("list editions: %w", err)
	}

	var pendingScrape []domain.Edition
	for _, edition := range editions {
		if watermark != nil && !edition.NewerThan(*watermark) {
			continue
		}
		if edition.ScrapedAt == nil {
			pendingScrape = append(pendingScrape, edition)
		}
	}

	t.scrapeEditions(ctx, pendingScrape)

	// Re-read state so editions scraped a moment ago reach the analysis phase.
	editions, err = t.store.ListAll(ctx, 0)
	if err != nil {
		return fmt.Errorf("list editions: %w", err)
	}
	var pendingAnalysis []domain.Edition
	for _, edition := range editions {
		if watermark != nil && !edition.NewerThan(*watermark) {
			continue
		}
		if edition.ScrapedAt != nil && edition.AnalyzedAt == nil {
			pendingAnalysis = append(pendingAnalysis, edition)
		}
	}
	t.analyzeEditions(ctx, pendingAnalysis)

	t.runner.AddLog("Sync complete")
	return nil
}

// watermark is the newest edition that has been both scraped and analyzed.
// Editions at or below it are considered done and are not revisited.
func (t *Tasks) watermark(ctx context.Context) (*domain.Edition, error) {
	editions, err := t.store.ListAll(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list editions: %w", err)
	}
	for _, edition := range editions {
		if edition.Processed() {
			e := edition
			return &e, nil
		}
	}
	return nil, nil
}

func (t *Tasks) editionForKey(ctx context.Context, key string) (*domain.Edition, error) {
	year, stueck, err := domain.ParseEditionKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse edition key %q: %w", key, err)
	}
	edition, err := t.store.EditionByKey(ctx, year, stueck)
	if err != nil {
		return nil, err
	}
	if edition == nil {
		return nil, fmt.Errorf("edition %s not found", key)
	}
	return edition, nil
}
