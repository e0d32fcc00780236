package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is a single parsed entry from an rss/atom feed, trimmed to
// the fields the extractor cascade's feed-adapter stage consumes.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	Content     string
	Published   *time.Time
	Updated     *time.Time
	Extensions  map[string][]string
}

// FeedResult is the outcome of a successful feed fetch.
type FeedResult struct {
	Items    []FeedItem
	FinalURL string
	Elapsed  time.Duration
}

// FeedFetcher retrieves and parses an rss source via gofeed, reusing
// HTTPFetcher for the underlying byte-capped conditional GET.
type FeedFetcher struct {
	http *HTTPFetcher
}

func NewFeedFetcher(http *HTTPFetcher) *FeedFetcher {
	return &FeedFetcher{http: http}
}

func (f *FeedFetcher) FetchFeed(ctx context.Context, req Request) (*FeedResult, *FetchError) {
	res, fetchErr := f.http.Fetch(ctx, req)
	if fetchErr != nil {
		return nil, fetchErr
	}
	if res.NotModified {
		return &FeedResult{FinalURL: res.FinalURL, Elapsed: res.Elapsed}, nil
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(res.Body))
	if err != nil {
		return nil, &FetchError{Kind: ErrParse, Message: fmt.Sprintf("feed parse failed: %v", err), Retriable: false}
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		fi := FeedItem{
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Published:   item.PublishedParsed,
			Updated:     item.UpdatedParsed,
		}
		if item.Content != "" {
			fi.Content = item.Content
		}
		if len(item.Extensions) > 0 {
			fi.Extensions = flattenExtensions(item.Extensions)
		}
		items = append(items, fi)
	}

	return &FeedResult{Items: items, FinalURL: res.FinalURL, Elapsed: res.Elapsed}, nil
}

func flattenExtensions(ext map[string]map[string][]gofeed.Extension) map[string][]string {
	out := make(map[string][]string)
	for _, fields := range ext {
		for name, values := range fields {
			for _, v := range values {
				out[name] = append(out[name], v.Value)
			}
		}
	}
	return out
}
