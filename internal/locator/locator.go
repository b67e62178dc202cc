// Package locator finds advertising elements in a document by running
// cosmetic selectors against it.
package locator

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NoID is the identifier reported for elements without an id attribute.
const NoID = "no-id"

// Document is a queryable rendered page.
type Document interface {
	// QueryAll returns every element matching selector in document order.
	// A malformed selector yields an error.
	QueryAll(selector string) ([]Element, error)
}

// Element is a node inside a Document.
type Element interface {
	TagName() string
	// Source returns the element's own src attribute when it has one.
	Source() (string, bool)
	// QueryFirst returns the first descendant matching selector, or nil.
	QueryFirst(selector string) (Element, error)
	OuterHTML() (string, error)
	// ID returns the id attribute, or "" when absent.
	ID() string
}

// Annotator marks a matched element on the page.
type Annotator interface {
	Annotate(el Element) error
}

// NoopAnnotator leaves elements untouched.
type NoopAnnotator struct{}

// Annotate does nothing.
func (NoopAnnotator) Annotate(Element) error { return nil }

// Candidate is one match of one selector.
type Candidate struct {
	Element   Element
	Selector  string
	SourceURL *string
}

// Identifier returns the element id or NoID.
func (c Candidate) Identifier() string {
	if id := c.Element.ID(); id != "" {
		return id
	}
	return NoID
}

// Stats counts what a Locate call saw.
type Stats struct {
	Selectors        int
	InvalidSelectors int
	Matches          int
}

// Locator runs selectors against documents.
type Locator struct {
	annotator Annotator
	logger    zerolog.Logger
	stats     Stats
}

// New creates a Locator. A nil annotator disables highlighting.
func New(annotator Annotator) *Locator {
	if annotator == nil {
		annotator = NoopAnnotator{}
	}
	return &Locator{annotator: annotator, logger: log.Logger}
}

// WithLogger returns a copy of l that logs to logger.
func (l *Locator) WithLogger(logger zerolog.Logger) *Locator {
	cp := *l
	cp.logger = logger
	cp.stats = Stats{}
	return &cp
}

// Stats returns counters from the last Locate call.
func (l *Locator) Stats() Stats {
	return l.stats
}

// Locate returns a candidate for every match of every selector, in selector
// order then document order. An element matched by several selectors appears
// once per selector. Invalid selectors are skipped.
func (l *Locator) Locate(doc Document, selectors []string) []Candidate {
	l.stats = Stats{Selectors: len(selectors)}

	var candidates []Candidate
	for _, selector := range selectors {
		elements, err := doc.QueryAll(selector)
		if err != nil {
			l.stats.InvalidSelectors++
			l.logger.Debug().
				Err(err).
				Str("selector", selector).
				Msg("Skipping invalid selector")
			continue
		}

		for _, el := range elements {
			if err := l.annotator.Annotate(el); err != nil {
				l.logger.Debug().Err(err).Str("selector", selector).Msg("Failed to highlight element")
			}
			candidates = append(candidates, Candidate{
				Element:   el,
				Selector:  selector,
				SourceURL: SourceURL(el),
			})
		}
	}

	l.stats.Matches = len(candidates)
	return candidates
}

// SourceURL finds the ad creative URL for el: its own src when it is an
// iframe or img, otherwise the first descendant iframe, then img, with a src.
func SourceURL(el Element) *string {
	tag := strings.ToLower(el.TagName())
	if tag == "iframe" || tag == "img" {
		if src, ok := el.Source(); ok && src != "" {
			return &src
		}
	}

	for _, selector := range []string{"iframe[src]", "img[src]"} {
		child, err := el.QueryFirst(selector)
		if err != nil || child == nil {
			continue
		}
		if src, ok := child.Source(); ok && src != "" {
			return &src
		}
	}
	return nil
}
