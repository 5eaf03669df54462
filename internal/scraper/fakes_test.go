package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

// fakePage serves a fixed sequence of archive pages and, when a dialog is
// open, the dialog markup instead of the page markup.
type fakePage struct {
	pages      []string
	current    int
	dialogHTML string

	controls      []ports.DisclosureControl
	nextCalls     int
	pageSizeCalls int
	closed        bool
}

func (p *fakePage) Navigate(context.Context, string) error { return nil }

func (p *fakePage) Settle(context.Context, time.Duration) error { return nil }

func (p *fakePage) HTML(context.Context) (string, error) {
	if p.dialogHTML != "" {
		return p.dialogHTML, nil
	}
	if p.current >= len(p.pages) {
		return "<html></html>", nil
	}
	return p.pages[p.current], nil
}

func (p *fakePage) SetPageSize(context.Context, int) error {
	p.pageSizeCalls++
	return nil
}

func (p *fakePage) NextPage(context.Context) (bool, error) {
	p.nextCalls++
	if p.current+1 >= len(p.pages) {
		return false, nil
	}
	p.current++
	return true, nil
}

func (p *fakePage) DisclosureControls(context.Context) ([]ports.DisclosureControl, error) {
	return p.controls, nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page *fakePage
}

func (b *fakeBrowser) NewPage(context.Context) (ports.PageSession, error) {
	return b.page, nil
}

// fakeControl reveals dialogHTML on the owning page while open.
type fakeControl struct {
	page    *fakePage
	punkt   int
	ownerOK bool
	dialog  string
	openErr error

	opened int
	closed int
}

func (c *fakeControl) OwnerPunkt(context.Context) (int, bool, error) {
	return c.punkt, c.ownerOK, nil
}

func (c *fakeControl) Open(context.Context) error {
	if c.openErr != nil {
		return c.openErr
	}
	c.opened++
	c.page.dialogHTML = c.dialog
	return nil
}

func (c *fakeControl) CloseDialog(context.Context) error {
	c.closed++
	c.page.dialogHTML = ""
	return nil
}

// fakeStore keeps editions and items in memory, covering the operations the
// scraping stage touches.
type fakeStore struct {
	editions map[string]*domain.Edition
	items    map[int64][]domain.RawItem
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		editions: make(map[string]*domain.Edition),
		items:    make(map[int64][]domain.RawItem),
	}
}

func (s *fakeStore) EditionByKey(_ context.Context, year, stueck int) (*domain.Edition, error) {
	edition, ok := s.editions[fmt.Sprintf("%d-%d", year, stueck)]
	if !ok {
		return nil, nil
	}
	return edition, nil
}

func (s *fakeStore) UpsertEdition(_ context.Context, raw domain.RawEdition) (domain.Edition, bool, error) {
	if existing, ok := s.editions[raw.Key()]; ok {
		return *existing, false, nil
	}
	s.nextID++
	edition := &domain.Edition{
		ID:            s.nextID,
		Year:          raw.Year,
		Stueck:        raw.Stueck,
		Title:         raw.Title,
		URL:           raw.URL,
		PublishedDate: raw.PublishedDate,
	}
	s.editions[raw.Key()] = edition
	return *edition, true, nil
}

func (s *fakeStore) MarkScraped(_ context.Context, editionID int64) error {
	now := time.Now()
	for _, edition := range s.editions {
		if edition.ID == editionID {
			edition.ScrapedAt = &now
		}
	}
	return nil
}

func (s *fakeStore) MarkAnalyzed(_ context.Context, editionID int64) error {
	now := time.Now()
	for _, edition := range s.editions {
		if edition.ID == editionID {
			edition.AnalyzedAt = &now
		}
	}
	return nil
}

func (s *fakeStore) ListAll(context.Context, int) ([]domain.Edition, error) {
	var editions []domain.Edition
	for _, edition := range s.editions {
		editions = append(editions, *edition)
	}
	return editions, nil
}

func (s *fakeStore) ListUnscraped(context.Context) ([]domain.Edition, error) {
	var editions []domain.Edition
	for _, edition := range s.editions {
		if edition.ScrapedAt == nil {
			editions = append(editions, *edition)
		}
	}
	return editions, nil
}

func (s *fakeStore) ListUnanalyzed(context.Context) ([]domain.Edition, error) {
	var editions []domain.Edition
	for _, edition := range s.editions {
		if edition.ScrapedAt != nil && edition.AnalyzedAt == nil {
			editions = append(editions, *edition)
		}
	}
	return editions, nil
}

func (s *fakeStore) AddItems(_ context.Context, editionID int64, items []domain.RawItem) error {
	s.items[editionID] = items
	return nil
}

func (s *fakeStore) ListItems(context.Context, int64) ([]domain.BulletinItem, error) {
	return nil, nil
}

func (s *fakeStore) ItemByID(context.Context, int64) (*domain.BulletinItem, error) {
	return nil, nil
}

func (s *fakeStore) UpdateItemScore(context.Context, int64, float64, string, string) error {
	return nil
}

func (s *fakeStore) UpdateItemPDFAnalysis(context.Context, int64, string) error {
	return nil
}

func (s *fakeStore) MarkItemRead(context.Context, int64) (bool, error) {
	return false, nil
}

func (s *fakeStore) ResetEdition(context.Context, int64) error {
	return nil
}

func (s *fakeStore) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{}, nil
}

var _ ports.EditionStore = (*fakeStore)(nil)

func archivePage(rows ...string) string {
	page := "<html><body><table>"
	for _, row := range rows {
		page += row
	}
	return page + "</table></body></html>"
}

func archiveRow(stueck, year int, date string) string {
	return fmt.Sprintf("<tr><td>MTB %d/%d</td><td>%s</td><td>Mitteilungsblatt</td></tr>", stueck, year, date)
}
