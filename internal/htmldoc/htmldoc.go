// Package htmldoc adapts a parsed static HTML document to the locator's
// Document interface. It has no layout engine, so it cannot be captured.
package htmldoc

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/Rorqualx/adscanner-go/internal/crop"
	"github.com/Rorqualx/adscanner-go/internal/locator"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

// Document is a static HTML document.
type Document struct {
	doc  *goquery.Document
	base *url.URL
}

// Parse reads an HTML document from r. pageURL, when non-empty, is used to
// resolve relative src attributes; a <base href> in the document overrides it.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	d := &Document{doc: doc}
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
		}
		d.base = u
	}
	if href, found := doc.Find("base[href]").Attr("href"); found {
		if u, err := url.Parse(href); err == nil {
			if d.base != nil {
				u = d.base.ResolveReference(u)
			}
			d.base = u
		}
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(html, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(html), pageURL)
}

// QueryAll returns every element matching selector in document order.
func (d *Document) QueryAll(selector string) ([]locator.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}

	sel := d.doc.FindMatcher(m)
	out := make([]locator.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Element{sel: s, base: d.base})
	})
	return out, nil
}

// HTML renders the current document, including any highlight styles.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

func compile(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("%w: empty selector", types.ErrInvalidSelector)
	}
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidSelector, err)
	}
	return m, nil
}

// Element is a single node of a Document.
type Element struct {
	sel  *goquery.Selection
	base *url.URL
}

// TagName returns the lower-case element name.
func (e *Element) TagName() string {
	return goquery.NodeName(e.sel)
}

// ID returns the id attribute or "".
func (e *Element) ID() string {
	return e.sel.AttrOr("id", "")
}

// Source returns the src attribute, resolved against the document base.
func (e *Element) Source() (string, bool) {
	src, ok := e.sel.Attr("src")
	if !ok || src == "" {
		return "", false
	}
	if e.base == nil {
		return src, true
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src, true
	}
	return e.base.ResolveReference(ref).String(), true
}

// QueryFirst returns the first descendant matching selector, or nil.
func (e *Element) QueryFirst(selector string) (locator.Element, error) {
	m, err := compile(selector)
	if err != nil {
		return nil, err
	}
	found := e.sel.FindMatcher(m).First()
	if found.Length() == 0 {
		return nil, nil
	}
	return &Element{sel: found, base: e.base}, nil
}

// OuterHTML renders the element and its children.
func (e *Element) OuterHTML() (string, error) {
	return goquery.OuterHtml(e.sel)
}

// SetOutline sets the CSS outline in the element's inline style.
func (e *Element) SetOutline(value string) error {
	style := strings.TrimSpace(e.sel.AttrOr("style", ""))
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	if style != "" {
		style += " "
	}
	e.sel.SetAttr("style", style+"outline: "+value+";")
	return nil
}

// Page presents a Document as a scannable page. Layout queries fail, so every
// candidate is reported without a screenshot.
type Page struct {
	Doc *Document
	Src string
}

// URL returns the page address.
func (p *Page) URL() string { return p.Src }

// Document returns the static document.
func (p *Page) Document() locator.Document {
	if p.Doc == nil {
		return nil
	}
	return p.Doc
}

// WaitLoad returns immediately; a parsed document is already loaded.
func (p *Page) WaitLoad(ctx context.Context) error { return ctx.Err() }

// ScrollIntoView is a no-op.
func (p *Page) ScrollIntoView(ctx context.Context, el locator.Element) error { return nil }

// BoundingBox always fails with types.ErrNoLayout.
func (p *Page) BoundingBox(ctx context.Context, el locator.Element) (crop.BoundingBox, error) {
	return crop.BoundingBox{}, types.ErrNoLayout
}

// DevicePixelRatio reports 1.
func (p *Page) DevicePixelRatio(ctx context.Context) (float64, error) { return 1, nil }
