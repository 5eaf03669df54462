package ports

import (
	"context"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// EditionStore persists editions and their items.
type EditionStore interface {
	EditionByKey(ctx context.Context, year, stueck int) (*domain.Edition, error)
	// UpsertEdition inserts a newly discovered edition; an existing edition
	// is returned untouched. The bool reports whether a row was created.
	UpsertEdition(ctx context.Context, raw domain.RawEdition) (domain.Edition, bool, error)
	MarkScraped(ctx context.Context, editionID int64) error
	MarkAnalyzed(ctx context.Context, editionID int64) error
	ListAll(ctx context.Context, year int) ([]domain.Edition, error)
	ListUnscraped(ctx context.Context) ([]domain.Edition, error)
	ListUnanalyzed(ctx context.Context) ([]domain.Edition, error)

	// AddItems stores an edition's full item set in one transaction.
	AddItems(ctx context.Context, editionID int64, items []domain.RawItem) error
	ListItems(ctx context.Context, editionID int64) ([]domain.BulletinItem, error)
	ItemByID(ctx context.Context, itemID int64) (*domain.BulletinItem, error)
	UpdateItemScore(ctx context.Context, itemID int64, score float64, explanation, shortTitle string) error
	UpdateItemPDFAnalysis(ctx context.Context, itemID int64, analysis string) error
	MarkItemRead(ctx context.Context, itemID int64) (bool, error)

	// ResetEdition deletes the edition's items and clears both timestamps.
	ResetEdition(ctx context.Context, editionID int64) error
	Stats(ctx context.Context) (domain.Stats, error)
}

// Browser opens page sessions against the portal.
type Browser interface {
	NewPage(ctx context.Context) (PageSession, error)
}

// PageSession drives one browser tab on the portal. Implementations are not
// safe for concurrent use; all work is serialized through the task runner.
type PageSession interface {
	Navigate(ctx context.Context, url string) error
	// Settle waits for dynamically rendered content after a navigation or
	// interaction. A fixed delay is acceptable.
	Settle(ctx context.Context, d time.Duration) error
	HTML(ctx context.Context) (string, error)

	// SetPageSize widens the archive listing; failure to find the control
	// is non-fatal and reported as an error the caller may ignore.
	SetPageSize(ctx context.Context, size int) error
	// NextPage clicks the pager's forward control. It returns false when the
	// control is absent or disabled.
	NextPage(ctx context.Context) (bool, error)

	// DisclosureControls lists the "show attachments" controls on the page.
	DisclosureControls(ctx context.Context) ([]DisclosureControl, error)

	Close() error
}

// DisclosureControl is one modal trigger that reveals attachment links.
type DisclosureControl interface {
	// OwnerPunkt walks up the DOM looking for the item number the control
	// belongs to. ok is false when no owning item is found.
	OwnerPunkt(ctx context.Context) (punkt int, ok bool, err error)
	Open(ctx context.Context) error
	// CloseDialog must be safe to call on every exit path, including after
	// a failed Open.
	CloseDialog(ctx context.Context) error
}

// RelevanceAnalyzer scores one bulletin item against the reader's profile.
// Implementations never return an error: scoring failures yield a zero score
// with an error explanation so one bad item cannot halt an edition.
type RelevanceAnalyzer interface {
	AnalyzeItem(ctx context.Context, content, roleDescription, title, category string) (score float64, explanation, shortTitle string)
	AnalyzeWithPDF(ctx context.Context, content, pdfText, roleDescription, title, category string) string
}

// EditionDiscoverer finds editions in a date window and stores new ones.
type EditionDiscoverer interface {
	ScanAndStore(ctx context.Context, from, to *time.Time) (int, error)
}

// EditionScraper extracts one edition's items, attachments included.
type EditionScraper interface {
	ScrapeEdition(ctx context.Context, edition domain.Edition) (int, error)
}

// EditionAnalyzer scores every item of one edition.
type EditionAnalyzer interface {
	AnalyzeEdition(ctx context.Context, edition domain.Edition, force bool) (items, relevant int, err error)
}

// Scheduler controls when the recurring sync executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
