package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/adscanner-go/internal/browser"
	"github.com/Rorqualx/adscanner-go/internal/capture"
	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/internal/filterlist"
	"github.com/Rorqualx/adscanner-go/internal/htmldoc"
	"github.com/Rorqualx/adscanner-go/internal/locator"
	"github.com/Rorqualx/adscanner-go/internal/report"
	"github.com/Rorqualx/adscanner-go/internal/scan"
	"github.com/Rorqualx/adscanner-go/internal/security"
	"github.com/Rorqualx/adscanner-go/internal/settings"
)

func newScanCmd(a *app) *cobra.Command {
	var htmlFile string

	cmd := &cobra.Command{
		Use:   "scan [URL...]",
		Short: "Scan pages for ads and report them to the collector",
		Long: `Scan loads each URL in a browser tab, waits for it to settle, finds the
elements matching the stored filter list, screenshots each one and posts it to
the configured backend. Up to BROWSER_POOL_SIZE URLs are scanned at once.

With --html the pipeline runs over a saved HTML file instead of a live page.
There is no viewport in that mode, so every report is sent without a
screenshot. An optional URL names the page the file came from.

Examples:
  adscanner scan https://news.example/ https://blog.example/
  adscanner scan --html saved.html https://news.example/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if htmlFile != "" {
				if len(args) > 1 {
					return fmt.Errorf("--html takes at most one page URL")
				}
				return a.runStaticScan(cmd, htmlFile, args)
			}
			if len(args) == 0 {
				return fmt.Errorf("at least one URL is required")
			}
			return a.runBrowserScan(cmd, args)
		},
	}

	cmd.Flags().StringVar(&htmlFile, "html", "", "Scan a saved HTML file instead of live pages")
	return cmd
}

// newOrchestrator builds the scan pipeline shared by all URLs of one run.
// The returned close func stops the settings watcher.
func (a *app) newOrchestrator(timings scan.Timings) (*scan.Orchestrator, func(), error) {
	mgr, err := settings.NewManager(a.cfg.SettingsPath, a.cfg.SettingsHotReload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}
	log.Info().
		Str("upload_url", security.RedactURL(mgr.Backend().UploadURL())).
		Msg("Reporting to backend")

	var annotator locator.Annotator = locator.NoopAnnotator{}
	if a.cfg.HighlightAds {
		annotator = locator.Highlighter{}
	}

	orch := scan.New(
		filterlist.NewStore(a.cfg.FilterListPath),
		nil,
		report.NewDispatcher(mgr, a.cfg.DispatchTimeout),
		scan.WithLocator(locator.New(annotator)),
		scan.WithTimings(timings),
	)
	return orch, func() { _ = mgr.Close() }, nil
}

func (a *app) runStaticScan(cmd *cobra.Command, file string, args []string) error {
	pageURL := ""
	if len(args) == 1 {
		if err := security.ValidateTargetURL(args[0]); err != nil {
			return err
		}
		pageURL = args[0]
	} else {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		pageURL = "file://" + filepath.ToSlash(abs)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open HTML file: %w", err)
	}
	defer f.Close()

	doc, err := htmldoc.Parse(f, pageURL)
	if err != nil {
		return err
	}

	// A parsed file has nothing to wait for.
	orch, closeFn, err := a.newOrchestrator(scan.Timings{})
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	res, err := orch.WithCapturer(capture.Start(ctx, nil)).Run(ctx, &htmldoc.Page{Doc: doc, Src: pageURL})
	printSummary(cmd.OutOrStdout(), []scanOutcome{{URL: pageURL, Result: res, Err: err}})
	return err
}

func (a *app) runBrowserScan(cmd *cobra.Command, urls []string) error {
	for _, u := range urls {
		if err := security.ValidateTargetURL(u); err != nil {
			return err
		}
	}

	orch, closeFn, err := a.newOrchestrator(scan.Timings{
		LoadDelay:   a.cfg.LoadSettleDelay,
		SettleDelay: a.cfg.RenderSettleDelay,
	})
	if err != nil {
		return err
	}
	defer closeFn()

	pool, err := browser.NewPool(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to start browser pool: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error().Err(err).Msg("Browser pool close error")
		}
	}()

	outcomes := make([]scanOutcome, len(urls))
	var g errgroup.Group
	g.SetLimit(pool.Size())
	for i, u := range urls {
		g.Go(func() error {
			res, err := scanURL(cmd.Context(), a.cfg, pool, orch, u)
			outcomes[i] = scanOutcome{URL: u, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	printSummary(cmd.OutOrStdout(), outcomes)

	var failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scans failed", failed, len(urls))
	}
	return nil
}

// browserPool is the part of browser.Pool a scan uses.
type browserPool interface {
	Acquire(ctx context.Context) (*rod.Browser, error)
	Release(b *rod.Browser)
}

// scanURL runs one scan in its own tab. The tab's capture handler lives as
// long as the scan. PAGE_TIMEOUT bounds getting the page loaded; once
// candidates are located every one of them is dispatched.
func scanURL(ctx context.Context, cfg *config.Config, pool browserPool, orch *scan.Orchestrator, url string) (*scan.Result, error) {
	acquireCtx, cancelAcquire := withOptionalTimeout(ctx, cfg.PageTimeout)
	b, err := pool.Acquire(acquireCtx)
	cancelAcquire()
	if err != nil {
		return nil, err
	}
	defer pool.Release(b)

	tab, err := browser.OpenTab(ctx, b, url, browser.TabOptions{
		Width:       cfg.ViewportWidth,
		Height:      cfg.ViewportHeight,
		LoadTimeout: cfg.PageTimeout,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tab.Close(); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("Failed to close tab")
		}
	}()

	capCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()
	ch := capture.Start(capCtx, tab, capture.WithMinInterval(cfg.CaptureMinInterval))

	return orch.WithCapturer(ch).Run(ctx, tab)
}

// withOptionalTimeout applies d to ctx when it is positive.
func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
