package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

const (
	navigationTimeout = 60 * time.Second
	selectorTimeout   = 15 * time.Second
)

// SelectorMissError signals that a page loaded but never produced the
// expected structure. It is not retryable: the markup will not change.
type SelectorMissError struct {
	URL      string
	Selector string
}

func (e *SelectorMissError) Error() string {
	return fmt.Sprintf("selector %q not found on %s", e.Selector, e.URL)
}

// BrowserFetcher drives a stealth-patched headless Chrome. One browser
// process is shared across all navigations of a run; each Fetch opens and
// closes its own page.
type BrowserFetcher struct {
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	log     *zap.SugaredLogger
}

func NewBrowserFetcher(log *zap.SugaredLogger) *BrowserFetcher {
	return &BrowserFetcher{log: log}
}

// Start launches Chrome. Lazy callers may skip it; Fetch starts the
// browser on first use.
func (f *BrowserFetcher) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startLocked()
}

func (f *BrowserFetcher) startLocked() error {
	if f.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launching chrome: %w", err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connecting to chrome: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		f.log.Warnf("ignore cert errors failed: %v", err)
	}

	f.browser = b
	f.lnch = l
	f.log.Infow("browser started", "ws_url", wsURL)
	return nil
}

// Fetch navigates to the URL in a fresh stealth page, waits for load and
// optionally for a selector, and returns the rendered DOM as a goquery
// document. The page is closed on every path.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error) {
	f.mu.Lock()
	if err := f.startLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	b := f.browser
	f.mu.Unlock()

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("creating stealth page: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  1920,
		Height: 1080,
	}); err != nil {
		f.log.Warnf("set viewport failed: %v", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigationTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("navigating to %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.log.Warnw("wait load timed out", "url", pageURL, "error", err)
	}

	if waitSelector != "" {
		selCtx, selCancel := context.WithTimeout(ctx, selectorTimeout)
		_, err := page.Context(selCtx).Element(waitSelector)
		selCancel()
		if err != nil {
			return nil, &SelectorMissError{URL: pageURL, Selector: waitSelector}
		}
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("serializing DOM for %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("parsing DOM for %s: %w", pageURL, err)
	}

	return doc, nil
}

// Close shuts the browser process down.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return nil
}
