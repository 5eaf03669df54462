package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/parser"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
	"github.com/kremserw/mitteilungsblattscraper/internal/scanner"
)

// ItemExtractor produces the full item set of one edition, attachments
// included, and persists it in one batch.
type ItemExtractor struct {
	browser  ports.Browser
	store    ports.EditionStore
	chain    *scanner.Chain
	resolver *AttachmentResolver
	settle   time.Duration
	logger   *slog.Logger
}

var _ ports.EditionScraper = (*ItemExtractor)(nil)

// NewItemExtractor wires browser, store, and the extraction strategy chain.
func NewItemExtractor(browser ports.Browser, store ports.EditionStore, chain *scanner.Chain, resolver *AttachmentResolver, settle time.Duration, logger *slog.Logger) *ItemExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemExtractor{
		browser:  browser,
		store:    store,
		chain:    chain,
		resolver: resolver,
		settle:   settle,
		logger:   logger,
	}
}

// ScrapeEdition navigates to the edition page, extracts and de-duplicates
// its items, resolves their attachments, then stores everything and marks
// the edition scraped. An automation failure fails the whole edition; no
// partial item set is persisted in that case.
func (e *ItemExtractor) ScrapeEdition(ctx context.Context, edition domain.Edition) (int, error) {
	page, err := e.browser.NewPage(ctx)
	if err != nil {
		return 0, fmt.Errorf("open page for %s: %w", edition.Key(), err)
	}
	defer page.Close()

	url := edition.URL
	if url == "" {
		url = parser.EditionURL(edition.Year, edition.Stueck)
	}
	if err := page.Navigate(ctx, url); err != nil {
		return 0, fmt.Errorf("navigate edition %s: %w", edition.Key(), err)
	}
	if err := page.Settle(ctx, e.settle); err != nil {
		return 0, err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return 0, fmt.Errorf("read edition %s: %w", edition.Key(), err)
	}

	items, strategy, err := e.chain.Extract(html)
	if err != nil {
		return 0, fmt.Errorf("extract items for %s: %w", edition.Key(), err)
	}

	items = domain.DeduplicateItems(items)
	e.logger.Info("extracted items", "edition", edition.Key(), "items", len(items), "strategy", strategy)

	if len(items) > 0 {
		e.resolver.Resolve(ctx, page, items)
	}

	if err := e.store.AddItems(ctx, edition.ID, items); err != nil {
		return 0, fmt.Errorf("store items for %s: %w", edition.Key(), err)
	}
	if err := e.store.MarkScraped(ctx, edition.ID); err != nil {
		return 0, fmt.Errorf("mark %s scraped: %w", edition.Key(), err)
	}

	return len(items), nil
}
