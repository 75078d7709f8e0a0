package goodreads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/lepinkainen/shelfscout/internal/providers/transport"
)

var errEmptyPage = errors.New("rendered page is empty")

// PageFetcher returns the HTML of a Goodreads page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads pages as served, without running scripts.
type HTTPFetcher struct {
	client *transport.Client
}

func NewHTTPFetcher(client *transport.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.client.Get(ctx, url)
}

var (
	chromedpExecAllocator = chromedp.NewExecAllocator
	chromedpContext       = chromedp.NewContext
	chromedpRunner        = chromedp.Run
)

// HeadlessFetcher renders pages in headless Chrome. Goodreads serves parts
// of the book page only after client-side rendering.
type HeadlessFetcher struct {
	Timeout time.Duration
}

func NewHeadlessFetcher(timeout time.Duration) *HeadlessFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HeadlessFetcher{Timeout: timeout}
}

func (f *HeadlessFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	allocCtx, cancelAllocator := chromedpExecAllocator(ctx, allocatorOptions()...)
	defer cancelAllocator()

	browserCtx, cancelBrowser := chromedpContext(allocCtx)
	defer cancelBrowser()

	var html string
	if err := chromedpRunner(browserCtx,
		network.Enable(),
		// The parser matches English labels.
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("render %s: %w", url, err)
	}
	if html == "" {
		return nil, errEmptyPage
	}
	return []byte(html), nil
}

func allocatorOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.Headless,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-default-apps", true),
	}
}
