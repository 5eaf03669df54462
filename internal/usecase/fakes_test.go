package usecase

import (
	"context"
	"sort"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

// memStore is an in-memory store for workflow tests.
type memStore struct {
	editions       []*domain.Edition
	itemsByEdition map[int64][]*domain.BulletinItem
	nextEditionID  int64
	nextItemID     int64
}

func newMemStore() *memStore {
	return &memStore{itemsByEdition: make(map[int64][]*domain.BulletinItem)}
}

func (s *memStore) addEdition(year, stueck int, published *time.Time) *domain.Edition {
	s.nextEditionID++
	edition := &domain.Edition{
		ID:            s.nextEditionID,
		Year:          year,
		Stueck:        stueck,
		PublishedDate: published,
	}
	s.editions = append(s.editions, edition)
	return edition
}

func (s *memStore) addItem(editionID int64, punkt int) *domain.BulletinItem {
	s.nextItemID++
	item := &domain.BulletinItem{ID: s.nextItemID, EditionID: editionID, Punkt: punkt}
	s.itemsByEdition[editionID] = append(s.itemsByEdition[editionID], item)
	return item
}

func (s *memStore) EditionByKey(_ context.Context, year, stueck int) (*domain.Edition, error) {
	for _, edition := range s.editions {
		if edition.Year == year && edition.Stueck == stueck {
			return edition, nil
		}
	}
	return nil, nil
}

func (s *memStore) UpsertEdition(_ context.Context, raw domain.RawEdition) (domain.Edition, bool, error) {
	for _, edition := range s.editions {
		if edition.Year == raw.Year && edition.Stueck == raw.Stueck {
			return *edition, false, nil
		}
	}
	edition := s.addEdition(raw.Year, raw.Stueck, raw.PublishedDate)
	return *edition, true, nil
}

func (s *memStore) MarkScraped(_ context.Context, editionID int64) error {
	now := time.Now()
	for _, edition := range s.editions {
		if edition.ID == editionID {
			edition.ScrapedAt = &now
		}
	}
	return nil
}

func (s *memStore) MarkAnalyzed(_ context.Context, editionID int64) error {
	now := time.Now()
	for _, edition := range s.editions {
		if edition.ID == editionID {
			edition.AnalyzedAt = &now
		}
	}
	return nil
}

func (s *memStore) ListAll(context.Context, int) ([]domain.Edition, error) {
	editions := make([]domain.Edition, 0, len(s.editions))
	for _, edition := range s.editions {
		editions = append(editions, *edition)
	}
	sort.Slice(editions, func(i, j int) bool {
		return editions[i].NewerThan(editions[j])
	})
	return editions, nil
}

func (s *memStore) ListUnscraped(ctx context.Context) ([]domain.Edition, error) {
	all, _ := s.ListAll(ctx, 0)
	var out []domain.Edition
	for _, edition := range all {
		if edition.ScrapedAt == nil {
			out = append(out, edition)
		}
	}
	return out, nil
}

func (s *memStore) ListUnanalyzed(ctx context.Context) ([]domain.Edition, error) {
	all, _ := s.ListAll(ctx, 0)
	var out []domain.Edition
	for _, edition := range all {
		if edition.ScrapedAt != nil && edition.AnalyzedAt == nil {
			out = append(out, edition)
		}
	}
	return out, nil
}

func (s *memStore) AddItems(_ context.Context, editionID int64, items []domain.RawItem) error {
	for _, raw := range items {
		item := s.addItem(editionID, raw.Punkt)
		item.Title = raw.Title
		item.Content = raw.Content
		item.Attachments = raw.Attachments
	}
	return nil
}

func (s *memStore) ListItems(_ context.Context, editionID int64) ([]domain.BulletinItem, error) {
	items := make([]domain.BulletinItem, 0, len(s.itemsByEdition[editionID]))
	for _, item := range s.itemsByEdition[editionID] {
		items = append(items, *item)
	}
	return items, nil
}

func (s *memStore) ItemByID(_ context.Context, itemID int64) (*domain.BulletinItem, error) {
	for _, items := range s.itemsByEdition {
		for _, item := range items {
			if item.ID == itemID {
				return item, nil
			}
		}
	}
	return nil, nil
}

func (s *memStore) UpdateItemScore(ctx context.Context, itemID int64, score float64, explanation, shortTitle string) error {
	item, _ := s.ItemByID(ctx, itemID)
	if item != nil {
		now := time.Now()
		item.RelevanceScore = &score
		item.RelevanceExplanation = explanation
		item.ShortTitle = shortTitle
		item.AnalyzedAt = &now
	}
	return nil
}

func (s *memStore) UpdateItemPDFAnalysis(ctx context.Context, itemID int64, analysis string) error {
	item, _ := s.ItemByID(ctx, itemID)
	if item != nil {
		now := time.Now()
		item.PDFAnalysis = analysis
		item.PDFAnalyzedAt = &now
	}
	return nil
}

func (s *memStore) MarkItemRead(ctx context.Context, itemID int64) (bool, error) {
	item, _ := s.ItemByID(ctx, itemID)
	if item == nil || item.ReadAt != nil {
		return false, nil
	}
	now := time.Now()
	item.ReadAt = &now
	return true, nil
}

func (s *memStore) ResetEdition(_ context.Context, editionID int64) error {
	delete(s.itemsByEdition, editionID)
	for _, edition := range s.editions {
		if edition.ID == editionID {
			edition.ScrapedAt = nil
			edition.AnalyzedAt = nil
		}
	}
	return nil
}

func (s *memStore) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{}, nil
}

var _ ports.EditionStore = (*memStore)(nil)

// stubDiscoverer records the requested window.
type stubDiscoverer struct {
	from, to *time.Time
	created  int
}

func (d *stubDiscoverer) ScanAndStore(_ context.Context, from, to *time.Time) (int, error) {
	d.from = from
	d.to = to
	return d.created, nil
}

// stubScraper marks editions scraped in the store and records their keys.
type stubScraper struct {
	store   *memStore
	scraped []string
}

func (s *stubScraper) ScrapeEdition(ctx context.Context, edition domain.Edition) (int, error) {
	s.scraped = append(s.scraped, edition.Key())
	_ = s.store.MarkScraped(ctx, edition.ID)
	return 1, nil
}

// stubEditionAnalyzer marks editions analyzed and records their keys.
type stubEditionAnalyzer struct {
	store    *memStore
	analyzed []string
}

func (a *stubEditionAnalyzer) AnalyzeEdition(ctx context.Context, edition domain.Edition, _ bool) (int, int, error) {
	a.analyzed = append(a.analyzed, edition.Key())
	_ = a.store.MarkAnalyzed(ctx, edition.ID)
	return 1, 1, nil
}
