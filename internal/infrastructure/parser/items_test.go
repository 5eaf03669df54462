package parser

import (
	"strings"
	"testing"
)

const structuredEdition = `
<html><body>
<table>
  <tr><td>Pkt.:</td><td>101</td><td>Kategorie:</td><td>Ausschreibungen</td></tr>
  <tr><td>Ausschreibung einer Universitätsprofessur für Maschinelles Lernen</td></tr>
  <tr><td>An der Universität wird eine Professur besetzt. Bewerbungen sind bis 30. September möglich.</td></tr>
  <tr><td><a href="/downloads/info.pdf">Weitere Informationen</a></td></tr>
  <tr><td>DER REKTOR:</td></tr>
</table>
<table>
  <tr><td>Pkt.:</td><td>102</td><td>Kategorie:</td><td>Wahlen</td></tr>
  <tr><td>Ergebnis der Wahl in den Senat der Universität</td></tr>
  <tr><td>Die Wahlkommission verlautbart das festgestellte Ergebnis.</td></tr>
  <tr><td>Anhänge anzeigen</td></tr>
</table>
</body></html>`

func TestStructuredStrategyExtract(t *testing.T) {
	t.Parallel()

	items, err := StructuredStrategy{}.Extract(structuredEdition)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Punkt != 101 {
		t.Fatalf("unexpected punkt: %d", first.Punkt)
	}
	if first.Category != "Ausschreibungen" {
		t.Fatalf("unexpected category: %s", first.Category)
	}
	if first.Title != "Ausschreibung einer Universitätsprofessur für Maschinelles Lernen" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if !strings.Contains(first.Content, "Bewerbungen sind bis 30. September") {
		t.Fatalf("content row missing: %s", first.Content)
	}
	if !strings.Contains(first.Content, "[Link: Weitere Informationen]") {
		t.Fatalf("link annotation missing: %s", first.Content)
	}
	if !strings.Contains(first.Content, "URL: https://ix.jku.at/downloads/info.pdf") {
		t.Fatalf("link not resolved to absolute URL: %s", first.Content)
	}
	if first.HasAttachments {
		t.Fatalf("first item should have no attachments")
	}

	second := items[1]
	if second.Punkt != 102 || second.Category != "Wahlen" {
		t.Fatalf("unexpected second item: %+v", second)
	}
	if !second.HasAttachments {
		t.Fatalf("second item should be flagged for attachments")
	}
}

func TestStructuredStrategyStopsAtSignature(t *testing.T) {
	t.Parallel()

	html := `
	<table>
	  <tr><td>Pkt.:</td><td>7</td></tr>
	  <tr><td>Verordnung über die Einteilung des Studienjahres</td></tr>
	  <tr><td>Das Studienjahr beginnt am 1. Oktober.</td></tr>
	  <tr><td>Permalink kopieren</td></tr>
	  <tr><td>Dieser Text gehört nicht mehr zum Eintrag.</td></tr>
	</table>`

	items, err := StructuredStrategy{}.Extract(html)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if strings.Contains(items[0].Content, "gehört nicht mehr") {
		t.Fatalf("content leaked past terminator: %s", items[0].Content)
	}
}

func TestFlatTextStrategyExtract(t *testing.T) {
	t.Parallel()

	html := `<html><body><div>
Pkt.: 5
Kategorie: Wahlen
Ergebnis der Wahl in den Senat
Die Wahlkommission hat das Ergebnis festgestellt und verlautbart es hiermit.
Pkt.: 6
Curriculum Informatik geändert
</div></body></html>`

	items, err := FlatTextStrategy{}.Extract(html)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	if items[0].Punkt != 5 || items[0].Category != "Wahlen" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].Title != "Ergebnis der Wahl in den Senat" {
		t.Fatalf("unexpected title: %s", items[0].Title)
	}
	if !strings.Contains(items[0].Content, "Wahlkommission") {
		t.Fatalf("unexpected content: %s", items[0].Content)
	}

	if items[1].Punkt != 6 {
		t.Fatalf("unexpected second punkt: %d", items[1].Punkt)
	}
	if items[1].Title != "Curriculum Informatik geändert" {
		t.Fatalf("unexpected second title: %s", items[1].Title)
	}
}

func TestParseDialogLinks(t *testing.T) {
	t.Parallel()

	html := `
	<div class="dialog">
	  <a href="/path/downloadIxServlet?file=1&amp;token=abc">Stellenausschreibung.pdf</a>
	  <a href="/path/downloadIxServlet?file=2">Diese Datei anzeigen</a>
	  <a href="/path/downloadIxServlet?file=3">ab</a>
	  <a href="/other/page">Kein Download</a>
	</div>`

	links, err := ParseDialogLinks(html)
	if err != nil {
		t.Fatalf("ParseDialogLinks error: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Name != "Stellenausschreibung.pdf" {
		t.Fatalf("unexpected name: %s", links[0].Name)
	}
	if links[0].URL != "https://ix.jku.at/path/downloadIxServlet?file=1&token=abc" {
		t.Fatalf("unexpected url: %s", links[0].URL)
	}
}
