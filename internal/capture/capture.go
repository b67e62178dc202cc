// Package capture brokers viewport screenshots between a scan and the
// goroutine that owns a browser tab's capture capability.
//
// The scan side only holds a Channel. It sends a Request and waits for the
// reply; the Handler performs the capture and always answers, with an empty
// string when the capture could not be taken.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/clock"
	"github.com/Rorqualx/adscanner-go/internal/crop"
	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

// ActionCaptureTab requests a screenshot of the visible viewport.
const ActionCaptureTab = "capture_tab"

// DefaultMinInterval is the shortest gap the handler leaves between captures.
const DefaultMinInterval = 500 * time.Millisecond

// Request asks the handler for a capture. Reply receives a PNG data URI or "".
type Request struct {
	Action string
	Reply  chan<- string
}

// Screenshotter takes PNG screenshots of a visible viewport.
type Screenshotter interface {
	CaptureViewport(ctx context.Context) ([]byte, error)
}

// Handler serves capture requests for one browser tab.
type Handler struct {
	requests    chan Request
	shot        Screenshotter
	clock       clock.Clock
	minInterval time.Duration
	last        time.Time
	logger      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock sets the clock used to pace captures.
func WithClock(c clock.Clock) Option {
	return func(h *Handler) { h.clock = c }
}

// WithMinInterval sets the minimum gap between two captures.
func WithMinInterval(d time.Duration) Option {
	return func(h *Handler) { h.minInterval = d }
}

// WithLogger sets the handler's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a Handler. A nil Screenshotter means the tab has no
// window, and every request is answered with "".
func NewHandler(shot Screenshotter, opts ...Option) *Handler {
	h := &Handler{
		requests:    make(chan Request),
		shot:        shot,
		clock:       clock.Real{},
		minInterval: DefaultMinInterval,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Channel returns a client bound to this handler.
func (h *Handler) Channel() *Channel {
	return NewChannel(h.requests)
}

// Serve answers requests until ctx is done.
func (h *Handler) Serve(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.requests:
			req.Reply <- h.handle(ctx, req)
		}
	}
}

// Start creates a handler for shot, serves it on a new goroutine until ctx is
// done and returns its Channel.
func Start(ctx context.Context, shot Screenshotter, opts ...Option) *Channel {
	h := NewHandler(shot, opts...)
	go h.Serve(ctx)
	return h.Channel()
}

func (h *Handler) handle(ctx context.Context, req Request) string {
	if req.Action != ActionCaptureTab {
		h.fail("denied", types.ErrCaptureDenied, req.Action)
		return ""
	}
	if h.shot == nil {
		h.fail("no_window", types.ErrNoWindow, req.Action)
		return ""
	}

	if !h.last.IsZero() {
		if wait := h.minInterval - h.clock.Now().Sub(h.last); wait > 0 {
			if !h.clock.Sleep(ctx, wait) {
				h.fail("canceled", ctx.Err(), req.Action)
				return ""
			}
		}
	}

	data, err := h.shot.CaptureViewport(ctx)
	h.last = h.clock.Now()
	if err != nil {
		outcome := "failed"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "canceled"
		}
		h.fail(outcome, err, req.Action)
		return ""
	}
	if len(data) == 0 {
		h.fail("failed", types.ErrCaptureUnavailable, req.Action)
		return ""
	}

	metrics.RecordCapture("ok")
	return crop.PNGDataURI(data)
}

func (h *Handler) fail(outcome string, err error, action string) {
	metrics.RecordCapture(outcome)
	h.logger.Debug().
		Err(err).
		Str("action", action).
		Str("outcome", outcome).
		Msg("Capture unavailable")
}

// Channel is the requesting side of the capture bridge.
// At most one request is in flight at a time.
type Channel struct {
	requests chan<- Request
	sem      chan struct{}
}

// NewChannel creates a Channel that sends to requests.
func NewChannel(requests chan<- Request) *Channel {
	return &Channel{
		requests: requests,
		sem:      make(chan struct{}, 1),
	}
}

// Snapshot asks for a viewport capture and waits for the answer.
// It returns a PNG data URI, or "" when no capture was produced.
func (c *Channel) Snapshot(ctx context.Context) string {
	return c.Request(ctx, ActionCaptureTab)
}

// Request sends an arbitrary action and waits for the reply.
func (c *Channel) Request(ctx context.Context, action string) string {
	if c == nil || c.requests == nil {
		return ""
	}

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ""
	}
	defer func() { <-c.sem }()

	reply := make(chan string, 1)
	select {
	case c.requests <- Request{Action: action, Reply: reply}:
	case <-ctx.Done():
		return ""
	}

	select {
	case uri := <-reply:
		return uri
	case <-ctx.Done():
		return ""
	}
}
