package crawler

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Fetcher loads a URL into a parsed DOM. Implementations must release
// per-page resources on every return path.
type Fetcher interface {
	// Fetch returns the page DOM. waitSelector, when non-empty, names an
	// element that must be present for the page to count as loaded; its
	// absence yields a *SelectorMissError.
	Fetch(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error)
	Close() error
}

// NewFetcher picks the browser fetcher when headless mode is enabled,
// otherwise the plain HTTP fetcher.
func NewFetcher(headless bool, log *zap.SugaredLogger) Fetcher {
	if headless {
		return NewBrowserFetcher(log)
	}
	return NewHTTPFetcher()
}
