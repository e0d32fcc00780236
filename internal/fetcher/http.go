package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcher retrieves a single html source page with conditional-GET
// support and a hard byte ceiling, grounded on the teacher's
// HTTPScraper request/response handling.
type HTTPFetcher struct {
	client  *http.Client
	robots  *RobotsChecker
	respect bool
}

func NewHTTPFetcher(timeout time.Duration, robots *RobotsChecker, respectRobots bool) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		robots:  robots,
		respect: respectRobots,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*FetchResult, *FetchError) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &FetchError{Kind: ErrOther, Message: err.Error(), Retriable: false}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if f.respect && f.robots != nil && !f.robots.Allowed(ctx, u.String()) {
		return nil, &FetchError{Kind: ErrRobotsBlocked, Message: "disallowed by robots.txt", Retriable: false}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrOther, Message: err.Error(), Retriable: false}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, classifyHTTPErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{Status: resp.StatusCode, FinalURL: u.String(), Elapsed: elapsed, NotModified: true, Headers: resp.Header}, nil
	}

	maxBytes := req.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{Kind: ErrOther, Message: err.Error(), Retriable: true}
	}
	if int64(len(body)) > maxBytes {
		return nil, &FetchError{Kind: ErrTooLarge, Message: fmt.Sprintf("response exceeded %d bytes", maxBytes), Retriable: false}
	}

	if resp.StatusCode >= 500 {
		return nil, &FetchError{Kind: ErrBadStatus, Message: fmt.Sprintf("server error: %d", resp.StatusCode), Retriable: true}
	}
	if resp.StatusCode >= 400 {
		retriable := resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
		return nil, &FetchError{Kind: ErrBadStatus, Message: fmt.Sprintf("client error: %d", resp.StatusCode), Retriable: retriable}
	}

	finalURL := resp.Request.URL.String()

	return &FetchResult{
		Status:       resp.StatusCode,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     finalURL,
		Elapsed:      elapsed,
		Headers:      resp.Header,
	}, nil
}

func classifyHTTPErr(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: ErrTimeout, Message: err.Error(), Retriable: true}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Kind: ErrDNS, Message: err.Error(), Retriable: !dnsErr.IsNotFound}
	}
	return &FetchError{Kind: ErrConnection, Message: err.Error(), Retriable: true}
}
