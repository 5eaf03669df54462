package parser

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
)

// ParseDialogLinks extracts download links from a rendered attachment
// dialog. Hrefs are entity-decoded and resolved to absolute URLs; links
// with empty or icon-only text are rejected.
func ParseDialogLinks(dialogHTML string) ([]domain.Attachment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(dialogHTML))
	if err != nil {
		return nil, fmt.Errorf("parse dialog html: %w", err)
	}

	var links []domain.Attachment
	doc.Find(`a[href*="` + downloadPathToken + `"]`).Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		href = html.UnescapeString(href)
		if href == "" {
			return
		}

		text := strings.TrimSpace(link.Text())
		if text == "" || strings.Contains(text, iconOnlyLinkLabel) {
			return
		}
		if len([]rune(text)) < 5 {
			return
		}

		links = append(links, domain.Attachment{
			Name: text,
			URL:  absoluteURL(href),
		})
	})

	return links, nil
}
