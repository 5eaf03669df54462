// Package browser adapts go-rod to the page-session port. All portal
// selectors and the DOM-ancestry walk live here so the scraping logic
// stays testable against fakes.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	pageSizeSelector   = `select[title*="Datensätze"]`
	nextButtonText     = "Weiter"
	closeButtonText    = "Schließen"
	disclosureSelector = `[title="Anhänge anzeigen"]`

	// ancestryDepth bounds the DOM walk from a disclosure control to the
	// marker cell of its owning item.
	ancestryDepth = 15
)

// ownerPunktJS walks up from the control looking for a "Pkt.:" cell and
// reads the adjacent numeric cell.
var ownerPunktJS = fmt.Sprintf(`() => {
	let element = this;
	for (let i = 0; i < %d; i++) {
		element = element.parentElement;
		if (!element) break;
		const cells = element.querySelectorAll('td');
		for (const cell of cells) {
			if (cell.textContent.trim() === 'Pkt.:') {
				const next = cell.nextElementSibling;
				if (next) {
					const num = parseInt(next.textContent.trim());
					if (!isNaN(num)) return num;
				}
			}
		}
	}
	return null;
}`, ancestryDepth)

// Browser owns one Chromium instance shared by sequential sessions.
type Browser struct {
	browser *rod.Browser
}

var _ ports.Browser = (*Browser)(nil)

// Connect launches Chromium and attaches to it.
func Connect(headless bool) (*Browser, error) {
	controlURL, err := launcher.New().Headless(headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{browser: b}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// NewPage opens a blank tab with the portal user agent set.
func (b *Browser) NewPage(ctx context.Context) (ports.PageSession, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	return &session{page: page}, nil
}

// session drives one tab. Not safe for concurrent use.
type session struct {
	page *rod.Page
}

var _ ports.PageSession = (*session)(nil)

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (s *session) Settle(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("page html: %w", err)
	}
	return html, nil
}

func (s *session) SetPageSize(ctx context.Context, size int) error {
	p := s.page.Context(ctx).Sleeper(rod.NotFoundSleeper)
	sel, err := p.Element(pageSizeSelector)
	if err != nil {
		return fmt.Errorf("page size control: %w", err)
	}
	option := fmt.Sprintf(`[value=%q]`, strconv.Itoa(size))
	if err := sel.Select([]string{option}, true, rod.SelectorTypeCSSSector); err != nil {
		return fmt.Errorf("select page size %d: %w", size, err)
	}
	return nil
}

func (s *session) NextPage(ctx context.Context) (bool, error) {
	p := s.page.Context(ctx).Sleeper(rod.NotFoundSleeper)
	button, err := p.ElementR("button", nextButtonText)
	if err != nil {
		if errors.Is(err, &rod.ElementNotFoundError{}) {
			return false, nil
		}
		return false, fmt.Errorf("find next button: %w", err)
	}

	disabled, err := button.Property("disabled")
	if err != nil {
		return false, fmt.Errorf("check next button: %w", err)
	}
	if disabled.Bool() {
		return false, nil
	}

	if err := button.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click next button: %w", err)
	}
	return true, nil
}

func (s *session) DisclosureControls(ctx context.Context) ([]ports.DisclosureControl, error) {
	elements, err := s.page.Context(ctx).Elements(disclosureSelector)
	if err != nil {
		return nil, fmt.Errorf("find disclosure controls: %w", err)
	}

	controls := make([]ports.DisclosureControl, 0, len(elements))
	for _, el := range elements {
		controls = append(controls, &disclosureControl{page: s.page, element: el})
	}
	return controls, nil
}

func (s *session) Close() error {
	return s.page.Close()
}

// disclosureControl is one "show attachments" trigger on the page.
type disclosureControl struct {
	page    *rod.Page
	element *rod.Element
}

var _ ports.DisclosureControl = (*disclosureControl)(nil)

func (c *disclosureControl) OwnerPunkt(ctx context.Context) (int, bool, error) {
	result, err := c.element.Context(ctx).Eval(ownerPunktJS)
	if err != nil {
		return 0, false, fmt.Errorf("eval ancestry walk: %w", err)
	}
	if result.Value.Nil() {
		return 0, false, nil
	}
	return result.Value.Int(), true, nil
}

func (c *disclosureControl) Open(ctx context.Context) error {
	if err := c.element.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click disclosure control: %w", err)
	}
	return nil
}

// CloseDialog prefers the dialog's explicit close button and falls back to
// sending Escape.
func (c *disclosureControl) CloseDialog(ctx context.Context) error {
	p := c.page.Context(ctx).Sleeper(rod.NotFoundSleeper)
	if button, err := p.ElementR("button", closeButtonText); err == nil {
		if err := button.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	if err := p.Keyboard.Press(input.Escape); err != nil {
		return fmt.Errorf("press escape: %w", err)
	}
	return nil
}
