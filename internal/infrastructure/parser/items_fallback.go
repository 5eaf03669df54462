package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// fallbackSkipTokens mark metadata lines the flat-text scan must not
// mistake for a title or content.
var fallbackSkipTokens = []string{
	"Pkt.:",
	"Kategorie:",
	"Permalink",
	"Anhänge",
	"DER REKTOR",
	"FÜR DAS REKTORAT",
}

// FlatTextStrategy is the degraded fallback for dialects of the portal that
// render without the expected table nesting. It slices the page's plain text
// between consecutive punkt markers and heuristically picks a title and a
// content line. Hyperlinks are not preserved in this mode.
type FlatTextStrategy struct{}

// Name identifies the strategy inside the chain.
func (FlatTextStrategy) Name() string { return "flattext" }

// Extract implements scanner.Strategy.
func (FlatTextStrategy) Extract(html string) ([]domain.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse edition html: %w", err)
	}

	text := doc.Text()
	matches := punktExpr.FindAllStringSubmatchIndex(text, -1)

	items := make([]domain.RawItem, 0, len(matches))
	for i, match := range matches {
		punkt, err := strconv.Atoi(text[match[2]:match[3]])
		if err != nil {
			continue
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		section := text[match[0]:end]

		item := domain.RawItem{Punkt: punkt}
		if m := categoryExpr.FindStringSubmatch(section); m != nil {
			item.Category = strings.TrimSpace(m[1])
		}

		item.Title, item.Content = pickTitleAndContent(section)
		items = append(items, item)
	}

	return items, nil
}

func pickTitleAndContent(section string) (title, content string) {
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || containsAny(line, fallbackSkipTokens) {
			continue
		}
		if title == "" && len([]rune(line)) > 5 {
			title = truncateRunes(line, titleLimit)
			continue
		}
		if title != "" && len([]rune(line)) > 10 {
			content = truncateRunes(line, contentLimit)
			break
		}
	}
	return title, content
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
