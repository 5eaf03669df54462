package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

const (
	maxCombinedRunes = 100000
	truncationMarker = "\n\n[... CONTENT TRUNCATED ...]\n\n"
)

// PDFTextExtractor pulls plain text out of one attachment URL.
type PDFTextExtractor interface {
	ExtractFromURL(ctx context.Context, url string) (string, error)
}

// EditionAnalyzer scores every item of an edition against the reader profile.
type EditionAnalyzer struct {
	store           ports.EditionStore
	analyzer        ports.RelevanceAnalyzer
	pdf             PDFTextExtractor
	roleDescription string
	threshold       float64
	logger          *slog.Logger
}

var _ ports.EditionAnalyzer = (*EditionAnalyzer)(nil)

// NewEditionAnalyzer wires the analysis stage.
func NewEditionAnalyzer(store ports.EditionStore, analyzer ports.RelevanceAnalyzer,
	pdf PDFTextExtractor, roleDescription string, threshold float64, logger *slog.Logger) *EditionAnalyzer {
	return &EditionAnalyzer{
		store:           store,
		analyzer:        analyzer,
		pdf:             pdf,
		roleDescription: roleDescription,
		threshold:       threshold,
		logger:          logger,
	}
}

// AnalyzeEdition scores each stored item and stamps the edition. Already
// analyzed editions are skipped unless force is set.
func (a *EditionAnalyzer) AnalyzeEdition(ctx context.Context, edition domain.Edition, force bool) (int, int, error) {
	if edition.AnalyzedAt != nil && !force {
		a.logger.Info("edition already analyzed", "edition", edition.Key())
		return 0, 0, nil
	}

	items, err := a.store.ListItems(ctx, edition.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list items for %s: %w", edition.Key(), err)
	}

	relevant := 0
	for _, item := range items {
		if item.AnalyzedAt != nil && !force {
			if item.RelevanceScore != nil && *item.RelevanceScore >= a.threshold {
				relevant++
			}
			continue
		}

		content := prepareContent(item)
		score, explanation, shortTitle := a.analyzer.AnalyzeItem(ctx, content, a.roleDescription, item.Title, item.Category)
		if err := a.store.UpdateItemScore(ctx, item.ID, score, explanation, shortTitle); err != nil {
			return 0, 0, fmt.Errorf("store score for item %d: %w", item.ID, err)
		}
		if score >= a.threshold {
			relevant++
		}
		a.logger.Debug("item scored", "edition", edition.Key(), "punkt", item.Punkt, "score", score)
	}

	if err := a.store.MarkAnalyzed(ctx, edition.ID); err != nil {
		return 0, 0, fmt.Errorf("mark %s analyzed: %w", edition.Key(), err)
	}

	a.logger.Info("edition analyzed", "edition", edition.Key(), "items", len(items), "relevant", relevant)
	return len(items), relevant, nil
}

// AnalyzeItemWithPDFs downloads the item's attachments, extracts their text
// and stores a combined deep analysis. Extraction failures are reported in
// the attachment's section rather than aborting the run.
func (a *EditionAnalyzer) AnalyzeItemWithPDFs(ctx context.Context, itemID int64) (string, error) {
	item, err := a.store.ItemByID(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("load item %d: %w", itemID, err)
	}
	if item == nil {
		return "", fmt.Errorf("item %d not found", itemID)
	}
	if len(item.Attachments) == 0 {
		return "", fmt.Errorf("item %d has no attachments", itemID)
	}

	var pdfText strings.Builder
	for _, attachment := range item.Attachments {
		fmt.Fprintf(&pdfText, "=== %s ===\n", attachment.Name)
		text, err := a.pdf.ExtractFromURL(ctx, attachment.URL)
		if err != nil {
			a.logger.Warn("attachment extraction failed", "item", itemID, "url", attachment.URL, "error", err)
			fmt.Fprintf(&pdfText, "[extraction failed: %v]\n\n", err)
			continue
		}
		pdfText.WriteString(text)
		pdfText.WriteString("\n\n")
	}

	analysis := a.analyzer.AnalyzeWithPDF(ctx, item.Content, pdfText.String(),
		a.roleDescription, item.Title, item.Category)
	if err := a.store.UpdateItemPDFAnalysis(ctx, itemID, analysis); err != nil {
		return "", fmt.Errorf("store pdf analysis for item %d: %w", itemID, err)
	}
	return analysis, nil
}

// prepareContent assembles the scoring input: the item body plus a section
// per attachment, trimmed by cutting the middle so both the
// opening and the closing survive.
func prepareContent(item domain.BulletinItem) string {
	var b strings.Builder
	b.WriteString("=== BULLETIN CONTENT ===\n")
	b.WriteString(item.Content)
	for i, attachment := range item.Attachments {
		fmt.Fprintf(&b, "\n\n=== ATTACHMENT %d ===\nName: %s\nURL: %s", i+1, attachment.Name, attachment.URL)
	}
	return truncateMiddle(b.String(), maxCombinedRunes)
}

func truncateMiddle(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	keep := (limit - len([]rune(truncationMarker))) / 2
	return string(runes[:keep]) + truncationMarker + string(runes[len(runes)-keep:])
}
