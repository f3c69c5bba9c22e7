package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/entrhq/aqlmind/pkg/logging"
	"github.com/playwright-community/playwright-go"
)

const (
	// DefaultTimeout bounds a single navigation when the context has no deadline.
	DefaultTimeout = 60 * time.Second

	// DefaultWaitUntil waits for the network to go quiet so client-rendered
	// pages have produced their content.
	DefaultWaitUntil = "networkidle"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	DefaultLocale         = "en-US"
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// hideWebdriverScript runs before any page script in every new document.
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// ErrFetcherClosed is returned by Fetch after Shutdown.
var ErrFetcherClosed = errors.New("fetcher has been shut down")

// Options configures a PlaywrightFetcher.
type Options struct {
	// Headless runs Chromium without a window.
	Headless bool

	// WaitUntil is the navigation readiness state: "load",
	// "domcontentloaded", "networkidle" or "commit".
	WaitUntil string

	// Timeout bounds navigation when the caller's context has no deadline.
	Timeout time.Duration

	UserAgent string
	Locale    string

	ViewportWidth  int
	ViewportHeight int

	// SkipInstall assumes the Playwright driver and browsers are present.
	SkipInstall bool
}

// DefaultOptions returns headless Chromium settings that look like an
// ordinary desktop browser.
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		WaitUntil:      DefaultWaitUntil,
		Timeout:        DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		Locale:         DefaultLocale,
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WaitUntil == "" {
		o.WaitUntil = d.WaitUntil
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.Locale == "" {
		o.Locale = d.Locale
	}
	if o.ViewportWidth <= 0 || o.ViewportHeight <= 0 {
		o.ViewportWidth, o.ViewportHeight = d.ViewportWidth, d.ViewportHeight
	}
	return o
}

// PlaywrightFetcher renders pages in a shared headless Chromium. Playwright
// is installed and started on the first Fetch; every fetch gets its own
// browser context, so cookies and storage never leak between loads.
type PlaywrightFetcher struct {
	opts   Options
	logger *logging.Logger

	mu         sync.Mutex
	playwright *playwright.Playwright
	browser    playwright.Browser
	closed     bool
}

// NewPlaywrightFetcher creates a fetcher. No browser is started until the
// first call to Fetch.
func NewPlaywrightFetcher(opts Options, logger *logging.Logger) *PlaywrightFetcher {
	if logger == nil {
		logger = logging.Discard("fetch")
	}
	return &PlaywrightFetcher{
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// ensureBrowser starts Playwright and Chromium once.
func (f *PlaywrightFetcher) ensureBrowser() (playwright.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFetcherClosed
	}
	if f.browser != nil && f.browser.IsConnected() {
		return f.browser, nil
	}

	if f.playwright == nil {
		// Driver output would corrupt the TUI
		runOpts := &playwright.RunOptions{
			Browsers: []string{"chromium"},
			Verbose:  false,
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		}

		if !f.opts.SkipInstall {
			f.logger.Infof("Installing playwright driver and chromium if missing")
			if err := playwright.Install(runOpts); err != nil {
				return nil, fmt.Errorf("failed to install playwright: %w", err)
			}
		}

		pw, err := playwright.Run(runOpts)
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		f.playwright = pw
	}

	browser, err := f.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.opts.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	f.logger.Infof("Launched chromium (headless=%v)", f.opts.Headless)
	f.browser = browser
	return browser, nil
}

// Fetch navigates to url in a fresh browser context and returns the
// rendered document. Cancelling ctx aborts the navigation.
func (f *PlaywrightFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(f.opts.UserAgent),
		Locale:    playwright.String(f.opts.Locale),
		Viewport: &playwright.Size{
			Width:  f.opts.ViewportWidth,
			Height: f.opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer func() {
		_ = browserCtx.Close() // Ignore errors, the context may already be closed
	}()

	stop := context.AfterFunc(ctx, func() {
		_ = browserCtx.Close()
	})
	defer stop()

	if err := browserCtx.AddInitScript(playwright.Script{
		Content: playwright.String(hideWebdriverScript),
	}); err != nil {
		return nil, fmt.Errorf("failed to install init script: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	waitUntil := playwright.WaitUntilState(f.opts.WaitUntil)
	timeout := navigationTimeout(ctx, f.opts.Timeout)

	f.logger.Debugf("Navigating to %s (wait_until=%s, timeout=%s)", url, f.opts.WaitUntil, timeout)
	start := time.Now()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("navigation to %s aborted: %w", url, ctxErr)
		}
		return nil, fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	title, err := page.Title()
	if err != nil {
		f.logger.Warnf("Failed to read title of %s: %v", url, err)
	}

	result := &Page{
		URL:       url,
		FinalURL:  page.URL(),
		Title:     title,
		Content:   content,
		FetchedAt: time.Now(),
	}
	if resp != nil {
		result.StatusCode = resp.Status()
	}

	f.logger.Infof("Fetched %s (status=%d, %d bytes, %s)", url, result.StatusCode, len(content), time.Since(start).Round(time.Millisecond))
	return result, nil
}

// Shutdown closes the browser and stops the Playwright driver. Fetch fails
// with ErrFetcherClosed afterwards.
func (f *PlaywrightFetcher) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		f.browser = nil
	}
	if f.playwright != nil {
		if err := f.playwright.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		f.playwright = nil
	}
	return errors.Join(errs...)
}

// navigationTimeout picks the smaller of the context's remaining time and
// the configured fallback.
func navigationTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := time.Until(deadline)
	if remaining < fallback {
		if remaining < time.Millisecond {
			return time.Millisecond
		}
		return remaining
	}
	return fallback
}
