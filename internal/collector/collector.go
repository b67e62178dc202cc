// Package collector ingests ad reports posted by scanners: it derives the
// ad's registrable domain, keeps a valid screenshot on disk and records the
// ad in the store.
package collector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/clock"
	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/store"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

// Inserter persists one ad.
type Inserter interface {
	Insert(ctx context.Context, ad *store.Ad) (int64, error)
}

// Result describes what an upload produced.
type Result struct {
	ID              int64
	ETLD            string
	ScreenshotPath  string
	ScreenshotSaved bool
}

// Collector turns uploads into stored ads.
type Collector struct {
	store     Inserter
	uploadDir string
	clock     clock.Clock
	logger    zerolog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(col *Collector) { col.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(col *Collector) { col.logger = l }
}

// New creates a Collector writing screenshots under uploadDir.
func New(s Inserter, uploadDir string, opts ...Option) *Collector {
	c := &Collector{
		store:     s,
		uploadDir: uploadDir,
		clock:     clock.Real{},
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest stores req. An invalid screenshot is dropped and the ad is still
// stored; only validation and database failures are returned.
func (c *Collector) Ingest(ctx context.Context, req *types.UploadRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		metrics.RecordUpload("invalid", false)
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}

	now := c.clock.Now().UTC()
	adID := req.ID()
	logger := c.logger.With().Str("ad_id", adID).Logger()

	res := &Result{ETLD: RegistrableDomain(req.URL())}

	if shot := req.Image(); shot != "" {
		data, err := DecodeScreenshot(shot)
		if err != nil {
			logger.Warn().Err(err).Msg("Screenshot invalid or empty, skipping")
		} else {
			path, err := writeScreenshot(c.uploadDir, ScreenshotName(adID, now), data)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to save screenshot")
			} else {
				res.ScreenshotPath = path
				res.ScreenshotSaved = true
			}
		}
	}

	ad := &store.Ad{
		AdID:           adID,
		BidMeta:        req.BidMetaJSON(),
		DOMHTML:        req.HTML(),
		HTTPRequest:    req.URL(),
		ETLD:           res.ETLD,
		ScreenshotPath: res.ScreenshotPath,
		Context:        req.ContextURL(),
		CreatedAt:      now,
	}
	id, err := c.store.Insert(ctx, ad)
	if err != nil {
		metrics.RecordUpload("error", res.ScreenshotSaved)
		return nil, err
	}
	res.ID = id

	metrics.RecordUpload("success", res.ScreenshotSaved)
	logger.Info().
		Int64("id", id).
		Str("etld", res.ETLD).
		Bool("screenshot_saved", res.ScreenshotSaved).
		Msg("Ad stored")
	return res, nil
}
