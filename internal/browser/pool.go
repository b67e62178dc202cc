// Package browser runs the headless browsers that scans are performed in.
// A fixed set of browser processes is launched once and reused across scans;
// each scan opens its own tab and closes it when done.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/types"
)

// Browsers older than this are replaced by the health check.
const maxBrowserAge = 30 * time.Minute

// Pool manages a pool of reusable browser instances.
//
// Lock ordering: mu must be acquired before any browser entry locks.
// Never hold mu while performing slow I/O operations.
type Pool struct {
	mu        sync.Mutex
	browsers  []*browserEntry
	available chan *rod.Browser
	config    *config.Config
	closed    atomic.Bool

	// spawn launches one browser. Replaced in tests.
	spawn func(ctx context.Context) (*rod.Browser, error)

	stopCh         chan struct{}
	wg             sync.WaitGroup
	availableCount atomic.Int32
	stats          PoolStats
}

type browserEntry struct {
	browser   *rod.Browser
	createdAt time.Time
	useCount  atomic.Int64
}

// PoolStats provides statistics about pool usage.
type PoolStats struct {
	Acquired atomic.Int64
	Released atomic.Int64
	Recycled atomic.Int64
	Errors   atomic.Int64
}

// PoolStatsSnapshot holds a point-in-time snapshot of pool statistics.
type PoolStatsSnapshot struct {
	Acquired int64
	Released int64
	Recycled int64
	Errors   int64
}

// NewPool creates a browser pool and pre-warms it with the configured number
// of browsers. If any browser fails to launch, the ones already started are
// closed and an error is returned.
func NewPool(cfg *config.Config) (*Pool, error) {
	log.Info().
		Int("pool_size", cfg.BrowserPoolSize).
		Bool("headless", cfg.Headless).
		Str("browser_path", cfg.BrowserPath).
		Msg("Initializing browser pool")

	pool := &Pool{
		config:    cfg,
		available: make(chan *rod.Browser, cfg.BrowserPoolSize),
		browsers:  make([]*browserEntry, 0, cfg.BrowserPoolSize),
		stopCh:    make(chan struct{}),
	}
	pool.spawn = pool.spawnBrowser

	for i := 0; i < cfg.BrowserPoolSize; i++ {
		browser, err := pool.spawn(context.Background())
		if err != nil {
			log.Error().Err(err).Int("browser_index", i).Msg("Failed to spawn browser during pool initialization")
			if closeErr := pool.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close pool during cleanup")
			}
			return nil, fmt.Errorf("failed to spawn browser %d: %w", i, err)
		}
		pool.browsers = append(pool.browsers, &browserEntry{browser: browser, createdAt: time.Now()})
		pool.available <- browser
		log.Debug().Int("browser_index", i).Msg("Browser spawned and added to pool")
	}
	pool.availableCount.Store(int32(cfg.BrowserPoolSize))
	metrics.UpdatePoolMetrics(cfg.BrowserPoolSize, cfg.BrowserPoolSize)

	pool.wg.Add(1)
	go func() {
		defer pool.wg.Done()
		pool.healthCheckRoutine()
	}()

	log.Info().Int("pool_size", cfg.BrowserPoolSize).Msg("Browser pool initialized successfully")
	return pool, nil
}

// spawnBrowser launches and connects to a new browser process.
func (p *Pool) spawnBrowser(ctx context.Context) (*rod.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Debug().Msg("Spawning new browser instance")

	// Launchers can only launch once, so each browser gets a fresh one.
	url, err := newLauncher(p.config).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	if p.config.IgnoreCertErrors {
		if err := browser.IgnoreCertErrors(true); err != nil {
			log.Warn().Err(err).Msg("Failed to set IgnoreCertErrors")
		}
	}

	log.Debug().Str("url", url).Msg("Browser spawned successfully")
	return browser, nil
}

// Acquire obtains a browser from the pool. It blocks until a browser is
// available, ctx is canceled, or the pool timeout is reached.
//
// The caller MUST call Release when done with the browser.
func (p *Pool) Acquire(ctx context.Context) (*rod.Browser, error) {
	if p.closed.Load() {
		return nil, types.ErrBrowserPoolClosed
	}

	const maxRetries = 5

	timeout := time.NewTimer(p.config.BrowserPoolTimeout)
	defer timeout.Stop()

	for retry := 0; retry < maxRetries; retry++ {
		select {
		case browser, ok := <-p.available:
			if !ok || p.closed.Load() {
				if browser != nil {
					_ = browser.Close()
				}
				return nil, types.ErrBrowserPoolClosed
			}
			p.stats.Acquired.Add(1)
			metrics.BrowserPoolAcquired.Inc()

			if !p.isHealthy(browser) {
				log.Warn().Int("retry", retry).Msg("Acquired unhealthy browser, recycling")
				p.stats.Errors.Add(1)
				p.availableCount.Add(-1)
				go p.recycleBrowser(browser)
				continue
			}

			p.availableCount.Add(-1)
			metrics.UpdatePoolMetrics(p.Size(), p.Available())

			p.mu.Lock()
			for _, entry := range p.browsers {
				if entry.browser == browser {
					entry.useCount.Add(1)
					break
				}
			}
			p.mu.Unlock()
			return browser, nil

		case <-ctx.Done():
			return nil, types.NewPoolAcquireError("canceled", fmt.Errorf("%w: %v", types.ErrContextCanceled, ctx.Err()))

		case <-timeout.C:
			p.stats.Errors.Add(1)
			return nil, types.NewPoolAcquireError("timeout", types.ErrBrowserPoolTimeout)
		}
	}

	p.stats.Errors.Add(1)
	return nil, types.NewPoolAcquireError("unhealthy",
		fmt.Errorf("%w: all browsers unhealthy after %d retries", types.ErrBrowserUnhealthy, maxRetries))
}

// Release closes every tab of browser and returns it to the pool. It is safe
// to call on a nil browser.
func (p *Pool) Release(browser *rod.Browser) {
	if browser == nil {
		return
	}
	if p.closed.Load() {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser during release (pool closed)")
		}
		return
	}
	p.stats.Released.Add(1)

	cleanupFailed := false
	pages, err := browser.Pages()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get pages for cleanup, browser may be unhealthy")
		cleanupFailed = true
	} else {
		for _, page := range pages {
			if err := page.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close page during cleanup")
				cleanupFailed = true
			}
		}
	}
	if cleanupFailed {
		go p.recycleBrowser(browser)
		return
	}

	p.addBrowserToPool(browser)
}

// isHealthy checks that browser can still open a tab.
func (p *Pool) isHealthy(browser *rod.Browser) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		log.Debug().Err(err).Msg("Browser health check failed: cannot create page")
		return false
	}
	_ = page.Close()
	return true
}

// recycleBrowser replaces old with a freshly launched browser.
// It must never be called while holding p.mu.
func (p *Pool) recycleBrowser(old *rod.Browser) {
	if p.closed.Load() {
		return
	}
	p.stats.Recycled.Add(1)
	metrics.BrowserPoolRecycled.Inc()
	log.Info().Int64("total_recycled", p.stats.Recycled.Load()).Msg("Recycling browser")

	if err := old.Close(); err != nil {
		log.Debug().Err(err).Msg("Error closing browser being recycled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	fresh, err := p.spawn(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to spawn replacement browser")
		p.removeBrowserEntry(old)
		return
	}

	p.mu.Lock()
	replaced := false
	for i, entry := range p.browsers {
		if entry.browser == old {
			p.browsers[i] = &browserEntry{browser: fresh, createdAt: time.Now()}
			replaced = true
			break
		}
	}
	if !replaced {
		p.browsers = append(p.browsers, &browserEntry{browser: fresh, createdAt: time.Now()})
	}
	p.mu.Unlock()

	p.addBrowserToPool(fresh)
}

// addBrowserToPool puts browser back on the available channel, closing it
// instead if the pool has shut down or is full.
func (p *Pool) addBrowserToPool(browser *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser (pool was closed)")
		}
		return
	}

	select {
	case p.available <- browser:
		p.availableCount.Add(1)
		metrics.UpdatePoolMetrics(p.Size(), int(p.availableCount.Load()))
	default:
		log.Warn().Msg("Pool is full, closing excess browser")
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing excess browser")
		}
	}
}

// healthCheckRoutine replaces browsers that have been running too long.
func (p *Pool) healthCheckRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			now := time.Now()
			var stale []*rod.Browser
			for _, entry := range p.browsers {
				if now.Sub(entry.createdAt) > maxBrowserAge {
					stale = append(stale, entry.browser)
				}
			}
			p.mu.Unlock()

			// Only idle browsers are recycled; busy ones are picked up next tick.
			for _, b := range stale {
				if p.takeIdle(b) {
					log.Info().Msg("Recycling stale browser")
					p.recycleBrowser(b)
				}
			}
		}
	}
}

// takeIdle removes b from the available channel if it is there.
func (p *Pool) takeIdle(b *rod.Browser) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return false
	}

	n := len(p.available)
	found := false
	for i := 0; i < n; i++ {
		candidate := <-p.available
		if candidate == b && !found {
			found = true
			p.availableCount.Add(-1)
			continue
		}
		p.available <- candidate
	}
	return found
}

func (p *Pool) removeBrowserEntry(old *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, entry := range p.browsers {
		if entry.browser == old {
			last := len(p.browsers) - 1
			p.browsers[i] = p.browsers[last]
			p.browsers = p.browsers[:last]
			return
		}
	}
}

// Size returns the configured pool size.
func (p *Pool) Size() int {
	return p.config.BrowserPoolSize
}

// Available returns the number of idle browsers.
func (p *Pool) Available() int {
	if p.closed.Load() {
		return 0
	}
	return int(p.availableCount.Load())
}

// Stats returns a snapshot of the current pool statistics.
func (p *Pool) Stats() PoolStatsSnapshot {
	return PoolStatsSnapshot{
		Acquired: p.stats.Acquired.Load(),
		Released: p.stats.Released.Load(),
		Recycled: p.stats.Recycled.Load(),
		Errors:   p.stats.Errors.Load(),
	}
}

// Close shuts down the pool and every browser in it. It is safe to call
// multiple times.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed.Swap(true) {
		p.mu.Unlock()
		return nil
	}
	close(p.available)
	browsers := p.browsers
	p.browsers = nil
	p.mu.Unlock()

	log.Info().Msg("Closing browser pool")
	close(p.stopCh)
	p.wg.Wait()

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, entry := range browsers {
		browser := entry.browser
		eg.Go(func() error {
			if err := browser.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing browser during pool shutdown")
				return err
			}
			return nil
		})
	}
	closeErr := eg.Wait()

	// Drain the channel; its browsers were closed above.
	for range p.available {
	}
	metrics.UpdatePoolMetrics(0, 0)

	log.Info().
		Int64("total_acquired", p.stats.Acquired.Load()).
		Int64("total_released", p.stats.Released.Load()).
		Int64("total_recycled", p.stats.Recycled.Load()).
		Int64("total_errors", p.stats.Errors.Load()).
		Msg("Browser pool closed")

	return closeErr
}
