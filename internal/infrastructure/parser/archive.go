package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// ParseArchiveRows extracts edition records from the archive listing table.
// Rows whose first cell does not carry an edition code are decorative or
// malformed and are skipped silently. A row with an unparsable date is kept
// with a nil published date.
func ParseArchiveRows(html string) ([]domain.RawEdition, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse archive html: %w", err)
	}

	var editions []domain.RawEdition
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 3 {
			cells = row.Find("td")
			if cells.Length() < 3 {
				return
			}
		}

		shortName := strings.TrimSpace(cells.Eq(0).Text())
		dateText := strings.TrimSpace(cells.Eq(1).Text())

		code := editionCodeExpr.FindStringSubmatch(shortName)
		if code == nil {
			return
		}
		stueck, _ := strconv.Atoi(code[1])
		year, _ := strconv.Atoi(code[2])

		editions = append(editions, domain.RawEdition{
			Year:          year,
			Stueck:        stueck,
			Title:         editionTitle(shortName, year, stueck),
			URL:           EditionURL(year, stueck),
			PublishedDate: parsePublishedDate(dateText),
			Special:       strings.Contains(shortName, specialMarker),
		})
	})

	return editions, nil
}

func editionTitle(shortName string, year, stueck int) string {
	if m := editionTitleExpr.FindStringSubmatch(shortName); m != nil {
		return m[1]
	}
	return fmt.Sprintf("MTB %d/%d", stueck, year)
}

func parsePublishedDate(text string) *time.Time {
	m := publishedExpr.FindString(text)
	if m == "" {
		return nil
	}
	parsed, err := time.Parse("02.01.2006", m)
	if err != nil {
		return nil
	}
	return &parsed
}
