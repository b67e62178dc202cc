package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/Rorqualx/adscanner-go/internal/crop"
	"github.com/Rorqualx/adscanner-go/internal/locator"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

const (
	scrollCenterJS = `() => this.scrollIntoView({block: 'center', inline: 'center'})`
	boundingBoxJS  = `() => {
		const r = this.getBoundingClientRect();
		return {left: r.left, top: r.top, width: r.width, height: r.height};
	}`
	outlineJS = `v => { this.style.outline = v; }`
	dprJS     = `() => window.devicePixelRatio`
)

// Document queries the live DOM of a tab.
type Document struct {
	page *rod.Page
}

// QueryAll runs document.querySelectorAll in the page. A selector the
// browser rejects is reported as types.ErrInvalidSelector.
func (d *Document) QueryAll(selector string) ([]locator.Element, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, types.ErrInvalidSelector
	}
	els, err := d.page.Elements(selector)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidSelector, selector, err)
	}
	return wrapElements(els), nil
}

func wrapElements(els rod.Elements) []locator.Element {
	out := make([]locator.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

// Element is a live DOM node.
type Element struct {
	el *rod.Element
}

// TagName returns the upper-case tag name, or "" when the node is gone.
func (e *Element) TagName() string {
	res, err := e.el.Eval(`() => this.tagName`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// ID returns the id attribute.
func (e *Element) ID() string {
	id, err := e.el.Attribute("id")
	if err != nil || id == nil {
		return ""
	}
	return *id
}

// Source returns the resolved src of the element when it has a src attribute.
func (e *Element) Source() (string, bool) {
	attr, err := e.el.Attribute("src")
	if err != nil || attr == nil || *attr == "" {
		return "", false
	}
	prop, err := e.el.Property("src")
	if err == nil {
		if resolved := prop.Str(); resolved != "" {
			return resolved, true
		}
	}
	return *attr, true
}

// QueryFirst returns the first descendant matching selector, or nil.
func (e *Element) QueryFirst(selector string) (locator.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", types.ErrInvalidSelector, selector, err)
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &Element{el: els.First()}, nil
}

// OuterHTML returns the serialized element.
func (e *Element) OuterHTML() (string, error) {
	html, err := e.el.HTML()
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrElementDetached, err)
	}
	return html, nil
}

// SetOutline sets the inline CSS outline.
func (e *Element) SetOutline(value string) error {
	_, err := e.el.Eval(outlineJS, value)
	return err
}

func (e *Element) scrollIntoView(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(scrollCenterJS)
	return err
}

func (e *Element) boundingBox(ctx context.Context) (crop.BoundingBox, error) {
	res, err := e.el.Context(ctx).Eval(boundingBoxJS)
	if err != nil {
		return crop.BoundingBox{}, fmt.Errorf("%w: %v", types.ErrElementDetached, err)
	}
	return rectFromJSON(res.Value), nil
}

func rectFromJSON(v gson.JSON) crop.BoundingBox {
	return crop.BoundingBox{
		Left:   v.Get("left").Num(),
		Top:    v.Get("top").Num(),
		Width:  v.Get("width").Num(),
		Height: v.Get("height").Num(),
	}
}

// rodElement unwraps el when it belongs to this package.
func rodElement(el locator.Element) (*Element, error) {
	e, ok := el.(*Element)
	if !ok || e == nil || e.el == nil {
		return nil, fmt.Errorf("%w: not a browser element", types.ErrElementDetached)
	}
	return e, nil
}
