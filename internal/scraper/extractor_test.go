package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/parser"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
	"github.com/kremserw/mitteilungsblattscraper/internal/scanner"
)

const editionPage = `
<html><body>
<table>
  <tr><td>Pkt.:</td><td>101</td><td>Kategorie:</td><td>Ausschreibungen</td></tr>
  <tr><td>Ausschreibung einer Universitätsprofessur für Regelungstechnik</td></tr>
  <tr><td>Bewerbungen sind bis zum Ende der Frist einzureichen.</td></tr>
  <tr><td>DER REKTOR:</td></tr>
</table>
<table>
  <tr><td>Pkt.:</td><td>102</td><td>Kategorie:</td><td>Verordnungen</td></tr>
  <tr><td>Verordnung über die Einteilung des Studienjahres</td></tr>
  <tr><td>Das Studienjahr beginnt am 1. Oktober.</td></tr>
  <tr><td>DER REKTOR:</td></tr>
</table>
</body></html>`

func dialogFor(name string) string {
	return `<div class="dialog"><a href="/x/downloadIxServlet?f=` + name + `">` + name + `</a></div>`
}

func newExtractor(page *fakePage, store *fakeStore) *ItemExtractor {
	chain := scanner.NewChain(parser.StructuredStrategy{}, parser.FlatTextStrategy{})
	resolver := NewAttachmentResolver(0, nil)
	return NewItemExtractor(&fakeBrowser{page: page}, store, chain, resolver, 0, nil)
}

func TestScrapeEditionStoresItemsAndMarksScraped(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	page := &fakePage{pages: []string{editionPage}}
	extractor := newExtractor(page, store)

	edition := domain.Edition{ID: 7, Year: 2025, Stueck: 12}
	count, err := extractor.ScrapeEdition(context.Background(), edition)
	if err != nil {
		t.Fatalf("ScrapeEdition error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 items, got %d", count)
	}

	stored := store.items[7]
	if len(stored) != 2 {
		t.Fatalf("expected 2 stored items, got %d", len(stored))
	}
	if stored[0].Punkt != 101 || stored[1].Punkt != 102 {
		t.Fatalf("unexpected stored items: %+v", stored)
	}
	if !page.closed {
		t.Fatalf("page session not closed")
	}
}

func TestResolveAssociatesAttachmentsByOwningItem(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	first := &fakeControl{page: page, punkt: 101, ownerOK: true, dialog: dialogFor("erste-beilage.pdf")}
	second := &fakeControl{page: page, punkt: 102, ownerOK: true, dialog: dialogFor("zweite-beilage.pdf")}
	page.controls = []ports.DisclosureControl{first, second}

	items := []domain.RawItem{{Punkt: 101}, {Punkt: 102}}
	NewAttachmentResolver(0, nil).Resolve(context.Background(), page, items)

	if len(items[0].Attachments) != 1 || items[0].Attachments[0].Name != "erste-beilage.pdf" {
		t.Fatalf("unexpected attachments on item 101: %+v", items[0].Attachments)
	}
	if len(items[1].Attachments) != 1 || items[1].Attachments[0].Name != "zweite-beilage.pdf" {
		t.Fatalf("unexpected attachments on item 102: %+v", items[1].Attachments)
	}
	if first.closed == 0 || second.closed == 0 {
		t.Fatalf("dialogs left open: %d %d", first.closed, second.closed)
	}
}

func TestResolveSkipsFailingControl(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	broken := &fakeControl{page: page, punkt: 101, ownerOK: true, openErr: errors.New("click intercepted")}
	working := &fakeControl{page: page, punkt: 102, ownerOK: true, dialog: dialogFor("beilage.pdf")}
	page.controls = []ports.DisclosureControl{broken, working}

	items := []domain.RawItem{{Punkt: 101}, {Punkt: 102}}
	NewAttachmentResolver(0, nil).Resolve(context.Background(), page, items)

	if len(items[0].Attachments) != 0 {
		t.Fatalf("failed control must not attach anything: %+v", items[0].Attachments)
	}
	if len(items[1].Attachments) != 1 {
		t.Fatalf("remaining controls must still run: %+v", items[1].Attachments)
	}
	if broken.closed == 0 {
		t.Fatalf("dialog close not attempted after failed open")
	}
}

func TestResolveIgnoresUnknownOwner(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	orphan := &fakeControl{page: page, punkt: 999, ownerOK: true, dialog: dialogFor("beilage.pdf")}
	page.controls = []ports.DisclosureControl{orphan}

	items := []domain.RawItem{{Punkt: 101}}
	NewAttachmentResolver(0, nil).Resolve(context.Background(), page, items)

	if len(items[0].Attachments) != 0 {
		t.Fatalf("attachment associated with wrong item: %+v", items[0].Attachments)
	}
	if orphan.opened != 0 {
		t.Fatalf("dialog opened for unknown owner")
	}
}
