package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/crop"
	"github.com/Rorqualx/adscanner-go/internal/locator"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/pkg/version"
)

// TabOptions configures a new tab.
type TabOptions struct {
	Width  int
	Height int
	// LoadTimeout bounds navigation and WaitLoad. Zero means no limit.
	LoadTimeout time.Duration
}

// Tab is one browser tab open on the page being scanned.
type Tab struct {
	page        *rod.Page
	requested   string
	loadTimeout time.Duration
}

// OpenTab opens a stealth tab in browser and navigates it to url. All later
// operations on the tab are bound to ctx.
func OpenTab(ctx context.Context, browser *rod.Browser, url string, opts TabOptions) (*Tab, error) {
	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	page = page.Context(ctx)

	if opts.Width > 0 && opts.Height > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to set viewport")
		}
	}

	// Headless Chrome announces itself in the default agent.
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      version.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to set user agent")
	}

	nav := page
	if opts.LoadTimeout > 0 {
		nav = page.Timeout(opts.LoadTimeout)
	}
	if err := nav.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", security.RedactURL(url), err)
	}
	return &Tab{page: page, requested: url, loadTimeout: opts.LoadTimeout}, nil
}

// URL returns the tab's current location, falling back to the requested URL.
func (t *Tab) URL() string {
	info, err := t.page.Info()
	if err != nil || info.URL == "" {
		return t.requested
	}
	return info.URL
}

// Document returns the live DOM.
func (t *Tab) Document() locator.Document {
	return &Document{page: t.page}
}

// WaitLoad blocks until the window load event has fired or the tab's load
// timeout passes.
func (t *Tab) WaitLoad(ctx context.Context) error {
	if t.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.loadTimeout)
		defer cancel()
	}
	return t.page.Context(ctx).WaitLoad()
}

// ScrollIntoView centers el in the viewport.
func (t *Tab) ScrollIntoView(ctx context.Context, el locator.Element) error {
	e, err := rodElement(el)
	if err != nil {
		return err
	}
	return e.scrollIntoView(ctx)
}

// BoundingBox returns el's viewport-relative rectangle in CSS pixels.
func (t *Tab) BoundingBox(ctx context.Context, el locator.Element) (crop.BoundingBox, error) {
	e, err := rodElement(el)
	if err != nil {
		return crop.BoundingBox{}, err
	}
	return e.boundingBox(ctx)
}

// DevicePixelRatio returns window.devicePixelRatio.
func (t *Tab) DevicePixelRatio(ctx context.Context) (float64, error) {
	res, err := t.page.Context(ctx).Eval(dprJS)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

// CaptureViewport takes a PNG of the visible viewport only.
func (t *Tab) CaptureViewport(ctx context.Context) ([]byte, error) {
	data, err := t.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return data, nil
}

// HTML returns the serialized document.
func (t *Tab) HTML() (string, error) {
	return t.page.HTML()
}

// Close closes the tab.
func (t *Tab) Close() error {
	return t.page.Close()
}
