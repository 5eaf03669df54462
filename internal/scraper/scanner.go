// Package scraper drives browser sessions against the portal: discovering
// editions in the paginated archive, extracting item blocks from edition
// pages, and revealing attachment links behind modal dialogs.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/parser"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

const (
	// maxArchivePages is a runaway guard for the pagination loop.
	maxArchivePages = 10
	// archivePageSize is the page-size value requested from the listing
	// control, best effort.
	archivePageSize = 500
)

// EditionScanner discovers editions in the newest-first archive listing.
type EditionScanner struct {
	browser    ports.Browser
	store      ports.EditionStore
	archiveURL string
	settle     time.Duration
	logger     *slog.Logger
}

var _ ports.EditionDiscoverer = (*EditionScanner)(nil)

// NewEditionScanner wires browser and store.
func NewEditionScanner(browser ports.Browser, store ports.EditionStore, archiveURL string, settle time.Duration, logger *slog.Logger) *EditionScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &EditionScanner{
		browser:    browser,
		store:      store,
		archiveURL: archiveURL,
		settle:     settle,
		logger:     logger,
	}
}

// Discover walks archive pages and returns the editions whose published
// date falls inside the optional [from, to] window, each at most once.
//
// The archive is sorted newest-first, so a row older than from normally
// stops the whole scan. That early stop is only an optimization over the
// sort order: when a page's dates turn out not to be monotonic the scanner
// falls back to filtering and keeps paging.
func (s *EditionScanner) Discover(ctx context.Context, from, to *time.Time) ([]domain.RawEdition, error) {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open archive page: %w", err)
	}
	defer page.Close()

	if err := page.Navigate(ctx, s.archiveURL); err != nil {
		return nil, fmt.Errorf("navigate archive: %w", err)
	}
	if err := page.Settle(ctx, s.settle); err != nil {
		return nil, err
	}

	if err := page.SetPageSize(ctx, archivePageSize); err != nil {
		s.logger.Warn("could not change archive page size", "error", err)
	} else if err := page.Settle(ctx, s.settle); err != nil {
		return nil, err
	}

	var (
		editions []domain.RawEdition
		seen     = make(map[string]struct{})
		stop     bool
	)

	for pageNum := 1; pageNum <= maxArchivePages && !stop; pageNum++ {
		s.logger.Debug("scanning archive page", "page", pageNum)

		html, err := page.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("read archive page %d: %w", pageNum, err)
		}
		rows, err := parser.ParseArchiveRows(html)
		if err != nil {
			return nil, fmt.Errorf("parse archive page %d: %w", pageNum, err)
		}
		if len(rows) == 0 {
			s.logger.Info("no editions on archive page, stopping", "page", pageNum)
			break
		}

		sorted := datesNonIncreasing(rows)
		if !sorted {
			s.logger.Warn("archive page not sorted newest-first, early stop disabled", "page", pageNum)
		}

		for _, row := range rows {
			if _, dup := seen[row.Key()]; dup {
				continue
			}
			seen[row.Key()] = struct{}{}

			if to != nil && row.PublishedDate != nil && row.PublishedDate.After(*to) {
				continue
			}
			if from != nil && row.PublishedDate != nil && row.PublishedDate.Before(*from) {
				if sorted {
					s.logger.Info("reached edition before window start, stopping scan",
						"edition", row.Key(), "published", row.PublishedDate.Format("2006-01-02"))
					stop = true
					break
				}
				continue
			}

			editions = append(editions, row)
		}
		if stop {
			break
		}

		clicked, err := page.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("advance archive page: %w", err)
		}
		if !clicked {
			s.logger.Debug("no more archive pages")
			break
		}
		if err := page.Settle(ctx, s.settle); err != nil {
			return nil, err
		}
	}

	s.logger.Info("archive scan finished", "editions", len(editions))
	return editions, nil
}

// ScanAndStore discovers editions and upserts them by natural key. Editions
// already present keep their scrape and analysis state untouched. It returns
// the number of newly created editions.
func (s *EditionScanner) ScanAndStore(ctx context.Context, from, to *time.Time) (int, error) {
	editions, err := s.Discover(ctx, from, to)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, raw := range editions {
		_, isNew, err := s.store.UpsertEdition(ctx, raw)
		if err != nil {
			return created, fmt.Errorf("upsert edition %s: %w", raw.Key(), err)
		}
		if isNew {
			s.logger.Info("discovered edition", "edition", raw.Key(), "title", raw.Title)
			created++
		}
	}

	return created, nil
}

// datesNonIncreasing verifies the newest-first precondition the early stop
// relies on, over the rows that carry a date at all.
func datesNonIncreasing(rows []domain.RawEdition) bool {
	var prev *time.Time
	for _, row := range rows {
		if row.PublishedDate == nil {
			continue
		}
		if prev != nil && row.PublishedDate.After(*prev) {
			return false
		}
		prev = row.PublishedDate
	}
	return true
}
