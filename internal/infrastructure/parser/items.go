package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// StructuredStrategy parses item blocks out of the portal's nested-table
// layout: a marker row carrying "Pkt.:" and "Kategorie:" cells, followed
// inside the same enclosing table by the title row, content rows, and a
// terminator (signature, attachment marker, or the next item's marker row).
type StructuredStrategy struct{}

// Name identifies the strategy inside the chain.
func (StructuredStrategy) Name() string { return "structured" }

// Extract implements scanner.Strategy.
func (StructuredStrategy) Extract(html string) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse edition html: %w", err)
	}

	var items []domain.RawItem
	doc.Find("td").Each(func(_ int, cell *goquery.Selection) {
		if strings.TrimSpace(cell.Text()) != punktMarker {
			return
		}
		item, ok := parseItemBlock(cell)
		if !ok {
			return
		}
		items = append(items, item)
	})

	return items, nil
}

// parseItemBlock walks from one "Pkt.:" cell to the complete item record.
// Any structural mismatch along the way drops the block, never the page.
func parseItemBlock(markerCell *goquery.Selection) (domain.RawItem, bool) {
	markerRow := markerCell.Closest("tr")
	if markerRow.Length() == 0 {
		return domain.RawItem{}, false
	}

	punkt, category, ok := parseMarkerRow(markerRow)
	if !ok {
		return domain.RawItem{}, false
	}

	table := markerRow.Closest("table")
	if table.Length() == 0 {
		return domain.RawItem{}, false
	}

	rows := table.Find("tr")
	markerIdx := -1
	markerNode := markerRow.Get(0)
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		if row.Get(0) == markerNode {
			markerIdx = i
			return false
		}
		return true
	})
	if markerIdx < 0 {
		return domain.RawItem{}, false
	}

	item := domain.RawItem{Punkt: punkt, Category: category}
	rows.Slice(markerIdx+1, rows.Length()).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		return accumulateRow(&item, row)
	})

	return item, true
}

// parseMarkerRow reads the item number and category label from the marker
// row's cell pairs.
func parseMarkerRow(row *goquery.Selection) (punkt int, category string, ok bool) {
	cells := row.Find("td")
	texts := make([]string, cells.Length())
	cells.Each(func(i int, cell *goquery.Selection) {
		texts[i] = strings.TrimSpace(cell.Text())
	})

	for i, text := range texts {
		if text == punktMarker && i+1 < len(texts) {
			n, err := strconv.Atoi(texts[i+1])
			if err != nil {
				continue
			}
			punkt = n
			ok = true
		}
		if text == categoryMarker && i+1 < len(texts) {
			category = texts[i+1]
		}
	}

	return punkt, category, ok
}

// accumulateRow classifies one row after the marker row. It returns false
// once a terminator ends the block.
func accumulateRow(item *domain.RawItem, row *goquery.Selection) bool {
	text := strings.TrimSpace(row.Text())

	if text == "" || len([]rune(text)) < 3 {
		return true
	}
	if strings.HasPrefix(text, punktMarker) || strings.Contains(truncateRunes(text, 20), punktMarker) {
		return true
	}
	for _, marker := range signatureMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	if strings.Contains(text, attachmentsMarker) {
		item.HasAttachments = true
		return false
	}
	if strings.Contains(text, noAttachmentsMarker) {
		return false
	}

	if item.Title == "" {
		item.Title = truncateRunes(text, titleLimit)
		return true
	}

	if row.Find("a[href]").Length() > 0 {
		content := rowTextWithLinks(row)
		if content != "" {
			if item.Content != "" {
				item.Content += "\n\n" + content
			} else {
				item.Content = content
			}
		}
		return true
	}

	if item.Content == "" {
		item.Content = truncateRunes(text, contentLimit)
	} else if len([]rune(item.Content)) < contentAppendAt {
		item.Content += "\n" + truncateRunes(text, extraRowLimit)
	}
	return true
}

// rowTextWithLinks renders a content row while preserving its hyperlinks:
// the plain text is followed by one annotation per link, with the href
// rewritten to an absolute URL.
func rowTextWithLinks(row *goquery.Selection) string {
	fullText := strings.TrimSpace(row.Text())

	var annotations []string
	row.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		text := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if text == "" || href == "#" {
			return
		}
		annotations = append(annotations, fmt.Sprintf("[Link: %s]\n  URL: %s", text, absoluteURL(href)))
	})

	if len(annotations) == 0 {
		return fullText
	}
	return fullText + "\n\n" + strings.Join(annotations, "\n\n")
}
