// Package parser contains the pure HTML parsers for the Mitteilungsblatt
// portal: the archive table, the item blocks of one edition page, and the
// download links inside attachment dialogs. No parser performs I/O.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// BaseURL is the portal origin; relative hrefs resolve against it.
	BaseURL = "https://ix.jku.at"

	punktMarker    = "Pkt.:"
	categoryMarker = "Kategorie:"

	attachmentsMarker   = "Anhänge anzeigen"
	noAttachmentsMarker = "Keine Anhänge"
	specialMarker       = "SONDERNUMMER"

	downloadPathToken = "downloadIxServlet"
	iconOnlyLinkLabel = "Diese Datei anzeigen"

	titleLimit      = 500
	contentLimit    = 5000
	contentAppendAt = 4500
	extraRowLimit   = 500
)

// signatureMarkers terminate an item's content block.
var signatureMarkers = []string{
	"DER REKTOR:",
	"FÜR DAS REKTORAT:",
	"DER VORSITZENDE",
	"Permalink kopieren",
}

var (
	editionCodeExpr  = regexp.MustCompile(`MTB\s+(\d+)/(\d{4})`)
	editionTitleExpr = regexp.MustCompile(`((?:SONDERNUMMER[^-]*-\s*)?MTB\s+\d+/\d{4})`)
	publishedExpr    = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	punktExpr        = regexp.MustCompile(`Pkt\.:\s*(\d+)`)
	categoryExpr     = regexp.MustCompile(`Kategorie:\s*([^\n]+)`)
)

// EditionURL builds the canonical source URL for an edition.
func EditionURL(year, stueck int) string {
	return fmt.Sprintf("%s/?app=mtb&jahr=%d&stk=%d", BaseURL, year, stueck)
}

// absoluteURL resolves href against the portal origin. Already-absolute
// URLs pass through unchanged; unparsable hrefs are returned as-is.
func absoluteURL(href string) string {
	base, _ := url.Parse(BaseURL)
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// truncateRunes caps s at limit runes.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
