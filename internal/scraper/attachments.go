package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kremserw/mitteilungsblattscraper/internal/domain"
	"github.com/kremserw/mitteilungsblattscraper/internal/infrastructure/parser"
	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

// AttachmentResolver opens every attachment dialog on an edition page and
// re-associates the revealed download links with their owning items.
type AttachmentResolver struct {
	settle time.Duration
	logger *slog.Logger
}

// NewAttachmentResolver configures the dialog settle delay.
func NewAttachmentResolver(settle time.Duration, logger *slog.Logger) *AttachmentResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentResolver{settle: settle, logger: logger}
}

// Resolve mutates items in place, appending attachments de-duplicated by
// URL. A failure on one disclosure control is logged and skipped; it never
// aborts the remaining controls.
func (r *AttachmentResolver) Resolve(ctx context.Context, page ports.PageSession, items []domain.RawItem) {
	byPunkt := make(map[int]*domain.RawItem, len(items))
	for i := range items {
		byPunkt[items[i].Punkt] = &items[i]
	}

	controls, err := page.DisclosureControls(ctx)
	if err != nil {
		r.logger.Warn("could not locate attachment controls", "error", err)
		return
	}

	for i, control := range controls {
		if err := r.resolveControl(ctx, page, control, byPunkt); err != nil {
			r.logger.Warn("attachment control skipped", "control", i, "error", err)
		}
	}
}

func (r *AttachmentResolver) resolveControl(ctx context.Context, page ports.PageSession, control ports.DisclosureControl, byPunkt map[int]*domain.RawItem) error {
	punkt, ok, err := control.OwnerPunkt(ctx)
	if err != nil {
		return fmt.Errorf("find owning item: %w", err)
	}
	if !ok {
		r.logger.Debug("no owning item for attachment control")
		return nil
	}
	item, known := byPunkt[punkt]
	if !known {
		r.logger.Debug("attachment control owned by unknown item", "punkt", punkt)
		return nil
	}

	if err := control.Open(ctx); err != nil {
		_ = control.CloseDialog(ctx)
		return fmt.Errorf("open dialog for item %d: %w", punkt, err)
	}
	// Every opened dialog is closed on every exit path.
	defer func() {
		_ = control.CloseDialog(ctx)
	}()

	if err := page.Settle(ctx, r.settle); err != nil {
		return err
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read dialog for item %d: %w", punkt, err)
	}
	links, err := parser.ParseDialogLinks(html)
	if err != nil {
		return fmt.Errorf("parse dialog for item %d: %w", punkt, err)
	}

	for _, att := range links {
		if item.AddAttachment(att) {
			r.logger.Debug("attachment found", "punkt", punkt, "name", att.Name)
		}
	}
	return nil
}
