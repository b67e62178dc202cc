// Package scan drives one ad scan of a loaded page: compile the filter list,
// locate matching elements, capture and crop each one, and report it.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/clock"
	"github.com/Rorqualx/adscanner-go/internal/crop"
	"github.com/Rorqualx/adscanner-go/internal/filterlist"
	"github.com/Rorqualx/adscanner-go/internal/locator"
	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/report"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

// Default delays.
const (
	DefaultLoadDelay   = 2 * time.Second
	DefaultSettleDelay = 300 * time.Millisecond
)

// Page is a rendered page as seen by the scan.
type Page interface {
	URL() string
	Document() locator.Document
	WaitLoad(ctx context.Context) error
	ScrollIntoView(ctx context.Context, el locator.Element) error
	BoundingBox(ctx context.Context, el locator.Element) (crop.BoundingBox, error)
	DevicePixelRatio(ctx context.Context) (float64, error)
}

// FilterSource provides the raw filter-list text.
type FilterSource interface {
	Load() (string, error)
}

// Capturer returns a viewport snapshot as a data URI, or "" when unavailable.
type Capturer interface {
	Snapshot(ctx context.Context) string
}

// Sender delivers a report.
type Sender interface {
	Send(ctx context.Context, p report.Payload) error
}

// Timings holds the fixed waits of a scan.
type Timings struct {
	// LoadDelay is waited after the page load event before scanning.
	LoadDelay time.Duration
	// SettleDelay is waited after scrolling an element into view.
	SettleDelay time.Duration
}

// DefaultTimings returns the standard delays.
func DefaultTimings() Timings {
	return Timings{LoadDelay: DefaultLoadDelay, SettleDelay: DefaultSettleDelay}
}

// Report describes what was sent for one candidate.
type Report struct {
	AdID       string
	Selector   string
	AdURL      *string
	Screenshot bool
	Delivered  bool
}

// Result summarizes a finished run.
type Result struct {
	ScanID           string
	URL              string
	Selectors        int
	InvalidSelectors int
	Candidates       int
	Screenshots      int
	Dispatched       int
	Failed           int
	Reports          []Report
	Duration         time.Duration
}

// Orchestrator runs scans. It is safe to share between goroutines as long as
// each Run gets its own Page and Capturer.
type Orchestrator struct {
	filters      FilterSource
	locator      *locator.Locator
	capturer     Capturer
	sender       Sender
	clock        clock.Clock
	timings      Timings
	onTransition TransitionFunc
	logger       zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLocator sets the element locator.
func WithLocator(l *locator.Locator) Option {
	return func(o *Orchestrator) { o.locator = l }
}

// WithClock sets the clock used for fixed waits.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithTimings sets the fixed waits.
func WithTimings(t Timings) Option {
	return func(o *Orchestrator) { o.timings = t }
}

// WithTransitionObserver registers fn to be called on every state change.
func WithTransitionObserver(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator.
func New(filters FilterSource, capturer Capturer, sender Sender, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		filters:  filters,
		locator:  locator.New(locator.NoopAnnotator{}),
		capturer: capturer,
		sender:   sender,
		clock:    clock.Real{},
		timings:  DefaultTimings(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCapturer returns a copy of o that captures through c.
func (o *Orchestrator) WithCapturer(c Capturer) *Orchestrator {
	cp := *o
	cp.capturer = c
	return &cp
}

// run holds the state of a single Run call.
type run struct {
	*Orchestrator
	page   Page
	state  State
	logger zerolog.Logger
	result *Result
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.logger.Trace().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Scan state changed")
	if r.onTransition != nil {
		r.onTransition(from, to)
	}
}

// Run scans page. Per-candidate failures degrade to null fields in the report
// and never stop the scan. Run returns an error only when ctx ends or the page
// has no document to query; the partial result is returned either way.
func (o *Orchestrator) Run(ctx context.Context, page Page) (*Result, error) {
	start := o.clock.Now()
	scanID := uuid.NewString()

	r := &run{
		Orchestrator: o,
		page:         page,
		state:        Idle,
		logger: o.logger.With().
			Str("scan_id", scanID).
			Str("url", security.RedactURL(page.URL())).
			Logger(),
		result: &Result{ScanID: scanID, URL: page.URL()},
	}

	status := "completed"
	err := r.execute(ctx)
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "canceled"
		}
	}

	r.transition(Done)
	r.result.Duration = o.clock.Now().Sub(start)
	metrics.RecordScan(status, r.result.Candidates, r.result.InvalidSelectors, r.result.Duration)

	var ev *zerolog.Event
	if err != nil {
		ev = r.logger.Warn().Err(err)
	} else {
		ev = r.logger.Info()
	}
	ev.Int("candidates", r.result.Candidates).
		Int("screenshots", r.result.Screenshots).
		Int("dispatched", r.result.Dispatched).
		Int("failed", r.result.Failed).
		Dur("duration", r.result.Duration).
		Msg("Scan finished")

	return r.result, err
}

func (r *run) execute(ctx context.Context) error {
	r.transition(WaitingForLoad)
	if err := r.page.WaitLoad(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
		}
		r.logger.Warn().Err(err).Msg("Page load wait failed, scanning anyway")
	}
	if !r.clock.Sleep(ctx, r.timings.LoadDelay) {
		return fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
	}

	r.transition(Compiling)
	selectors, ok := r.compile()
	if !ok {
		return nil
	}

	r.transition(Locating)
	doc := r.page.Document()
	if doc == nil {
		return types.ErrNoDocument
	}
	loc := r.locator.WithLogger(r.logger)
	candidates := loc.Locate(doc, selectors)
	stats := loc.Stats()
	r.result.InvalidSelectors = stats.InvalidSelectors
	r.result.Candidates = len(candidates)

	r.logger.Info().
		Int("selectors", len(selectors)).
		Int("invalid_selectors", stats.InvalidSelectors).
		Int("candidates", len(candidates)).
		Msg("Ad candidates located")

	for i, c := range candidates {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
		}
		if err := r.process(ctx, i, c); err != nil {
			return err
		}
	}
	return nil
}

// compile loads and compiles the filter list. It reports false when there is
// nothing to scan for.
func (r *run) compile() ([]string, bool) {
	if r.filters == nil {
		r.logger.Warn().Msg("No filter list configured, skipping scan")
		return nil, false
	}
	raw, err := r.filters.Load()
	if err != nil {
		if errors.Is(err, types.ErrNoFilterList) {
			r.logger.Warn().Msg("No filter list stored, run init first")
		} else {
			r.logger.Error().Err(err).Msg("Failed to load filter list")
		}
		return nil, false
	}

	selectors := filterlist.Compile(raw)
	r.result.Selectors = len(selectors)
	if len(selectors) == 0 {
		r.logger.Info().Msg("Filter list has no cosmetic rules, nothing to scan")
		return nil, false
	}
	return selectors, true
}

// process runs the capture and dispatch chain for one candidate.
func (r *run) process(ctx context.Context, index int, c locator.Candidate) error {
	logger := r.logger.With().
		Int("candidate", index).
		Str("selector", c.Selector).
		Logger()

	r.transition(Scrolling)
	if err := r.page.ScrollIntoView(ctx, c.Element); err != nil {
		logger.Debug().Err(err).Msg("Failed to scroll element into view")
	}

	r.transition(Settling)
	if !r.clock.Sleep(ctx, r.timings.SettleDelay) {
		return fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err())
	}

	r.transition(Capturing)
	var snapshot string
	if r.capturer != nil {
		snapshot = r.capturer.Snapshot(ctx)
	}

	r.transition(Cropping)
	screenshot := r.cropCandidate(ctx, logger, c, snapshot)

	r.transition(Dispatching)
	payload := report.Payload{
		AdID:       c.Identifier(),
		AdURL:      c.SourceURL,
		Screenshot: screenshot,
		DOMHTML:    outerHTML(c.Element),
		Context:    r.page.URL(),
	}

	rep := Report{
		AdID:       payload.AdID,
		Selector:   c.Selector,
		AdURL:      payload.AdURL,
		Screenshot: screenshot != nil,
	}
	if screenshot != nil {
		r.result.Screenshots++
	}

	if r.sender == nil {
		r.result.Failed++
	} else if err := r.sender.Send(ctx, payload); err != nil {
		r.result.Failed++
	} else {
		r.result.Dispatched++
		rep.Delivered = true
	}
	r.result.Reports = append(r.result.Reports, rep)
	return nil
}

func (r *run) cropCandidate(ctx context.Context, logger zerolog.Logger, c locator.Candidate, snapshot string) *string {
	if snapshot == "" {
		logger.Debug().Msg("No viewport snapshot, reporting without screenshot")
		return nil
	}

	box, err := r.page.BoundingBox(ctx, c.Element)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to measure element")
		return nil
	}
	scale, err := r.page.DevicePixelRatio(ctx)
	if err != nil || scale <= 0 {
		scale = 1
	}

	cropped, err := crop.Crop(snapshot, box, scale)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to crop screenshot")
		return nil
	}
	return &cropped
}

func outerHTML(el locator.Element) *string {
	html, err := el.OuterHTML()
	if err != nil || html == "" {
		return nil
	}
	return &html
}
