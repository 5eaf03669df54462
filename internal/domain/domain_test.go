package domain

import "testing"

func TestEditionKeyRoundTrip(t *testing.T) {
	t.Parallel()

	edition := Edition{Year: 2025, Stueck: 15}
	year, stueck, err := ParseEditionKey(edition.Key())
	if err != nil {
		t.Fatalf("ParseEditionKey error: %v", err)
	}
	if year != 2025 || stueck != 15 {
		t.Fatalf("round trip broken: %d-%d", year, stueck)
	}

	if _, _, err := ParseEditionKey("garbage"); err == nil {
		t.Fatalf("expected error for malformed key")
	}
}

func TestNewerThan(t *testing.T) {
	t.Parallel()

	older := Edition{Year: 2024, Stueck: 40}
	newer := Edition{Year: 2025, Stueck: 1}
	if !newer.NewerThan(older) {
		t.Fatalf("cross-year comparison broken")
	}
	if older.NewerThan(newer) {
		t.Fatalf("comparison not antisymmetric")
	}

	a := Edition{Year: 2025, Stueck: 2}
	b := Edition{Year: 2025, Stueck: 3}
	if !b.NewerThan(a) || a.NewerThan(b) {
		t.Fatalf("same-year comparison broken")
	}
}

func TestAddAttachmentDeduplicatesByURL(t *testing.T) {
	t.Parallel()

	item := RawItem{Punkt: 1}
	first := Attachment{Name: "a.pdf", URL: "https://ix.jku.at/x?f=1"}
	same := Attachment{Name: "anderer Name", URL: "https://ix.jku.at/x?f=1"}

	if !item.AddAttachment(first) {
		t.Fatalf("first attachment rejected")
	}
	if item.AddAttachment(same) {
		t.Fatalf("duplicate URL accepted")
	}
	if len(item.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(item.Attachments))
	}
}

func TestDeduplicateItemsKeepsFirst(t *testing.T) {
	t.Parallel()

	items := DeduplicateItems([]RawItem{
		{Punkt: 1, Title: "erste Fassung"},
		{Punkt: 2, Title: "zweiter Punkt"},
		{Punkt: 1, Title: "spätere Fassung"},
	})

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "erste Fassung" {
		t.Fatalf("first occurrence not kept: %s", items[0].Title)
	}
}
