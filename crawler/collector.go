package crawler

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/exp/rand"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S901B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36",
}

// RandomUserAgent picks a browser user agent at random per request so one
// run does not present a single fingerprint.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

func newCollector() *colly.Collector {
	collector := colly.NewCollector(
		colly.UserAgent(RandomUserAgent()),
	)

	collector.SetRequestTimeout(30 * time.Second)
	collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 4,
		RandomDelay: 2 * time.Second,
	})

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	collector.WithTransport(transport)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Referer", "https://www.google.com/")
	})

	return collector
}

// HTTPFetcher fetches pages with plain HTTP via colly. It is the cheap
// path for sites that render server side; JS-heavy or bot-walled sites
// need the BrowserFetcher.
type HTTPFetcher struct{}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{}
}

// Fetch loads the URL and parses the response body. The waitSelector hint
// is checked after parsing: if given and absent from the document, the
// page did not contain the expected structure.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := newCollector()

	var body []byte
	var fetchErr error

	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", pageURL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	if waitSelector != "" && doc.Find(waitSelector).Length() == 0 {
		return nil, &SelectorMissError{URL: pageURL, Selector: waitSelector}
	}

	return doc, nil
}

func (f *HTTPFetcher) Close() error { return nil }
