package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserFetcher renders a page with a headless Chromium instance
// before returning its HTML, for html sources that require
// JavaScript to populate the job listing. It always launches a local
// browser in-process, grounded on the teacher's RodScraper/
// newLocalRodBrowser pattern.
type BrowserFetcher struct {
	timeout       time.Duration
	networkIdle   time.Duration
	screenshotDir ScreenshotSink
}

// ScreenshotSink persists a diagnostic screenshot taken when a
// browser fetch errors. Implemented by rawstore.Store in production.
type ScreenshotSink interface {
	Put(ctx context.Context, data []byte) (storagePath string, err error)
}

func NewBrowserFetcher(timeout, networkIdle time.Duration, screenshots ScreenshotSink) *BrowserFetcher {
	return &BrowserFetcher{timeout: timeout, networkIdle: networkIdle, screenshotDir: screenshots}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, req Request) (*FetchResult, *FetchError) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &FetchError{Kind: ErrOther, Message: err.Error(), Retriable: false}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	browser, err := newLocalBrowser(ctx, f.timeout)
	if err != nil {
		return nil, &FetchError{Kind: ErrConnection, Message: fmt.Sprintf("browser launch failed: %v", err), Retriable: true}
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, &FetchError{Kind: ErrConnection, Message: err.Error(), Retriable: true}
	}
	defer func() { _ = page.Close() }()

	if err := page.WaitLoad(); err != nil {
		f.captureError(ctx, page)
		return nil, &FetchError{Kind: ErrTimeout, Message: err.Error(), Retriable: true}
	}
	if f.networkIdle > 0 {
		_ = page.Timeout(f.networkIdle).WaitIdle(f.networkIdle)
	}

	htmlStr, err := page.HTML()
	if err != nil {
		f.captureError(ctx, page)
		return nil, &FetchError{Kind: ErrOther, Message: err.Error(), Retriable: true}
	}

	return &FetchResult{
		Status:      200,
		Body:        []byte(htmlStr),
		ContentType: "text/html",
		FinalURL:    u.String(),
	}, nil
}

func (f *BrowserFetcher) captureError(ctx context.Context, page *rod.Page) {
	if f.screenshotDir == nil {
		return
	}
	data, err := page.Screenshot(true, nil)
	if err != nil {
		return
	}
	_, _ = f.screenshotDir.Put(ctx, data)
}

func newLocalBrowser(ctx context.Context, timeout time.Duration) (*rod.Browser, error) {
	var l *launcher.Launcher
	if path, has := launcher.LookPath(); has {
		l = launcher.New().Bin(path)
	} else {
		l = launcher.New()
	}
	l = l.Headless(true).NoSandbox(true)

	u, err := l.Launch()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(u).Context(ctx).Timeout(timeout)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, err
	}
	return browser, nil
}
