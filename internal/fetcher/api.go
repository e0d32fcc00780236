package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
)

// APIFetcher retrieves an api source's JSON payload and decodes it
// into a generic document. Per-source parser_hint selectors (dot-path
// expressions) walk the decoded document in the extractor cascade's
// DOM stage, through extract.APIPayload, not here: this fetcher's job
// ends at a validated, decoded payload.
type APIFetcher struct {
	http *HTTPFetcher
}

func NewAPIFetcher(http *HTTPFetcher) *APIFetcher {
	return &APIFetcher{http: http}
}

// APIResult is the decoded JSON body alongside the raw bytes (the raw
// bytes are what gets persisted to the raw-page store; the decoded
// value is what the cascade walks).
type APIResult struct {
	Raw      []byte
	Decoded  any
	FinalURL string
}

func (f *APIFetcher) FetchJSON(ctx context.Context, req Request) (*APIResult, *FetchError) {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if _, ok := req.Headers["Accept"]; !ok {
		req.Headers["Accept"] = "application/json"
	}

	res, fetchErr := f.http.Fetch(ctx, req)
	if fetchErr != nil {
		return nil, fetchErr
	}
	if res.NotModified {
		return &APIResult{FinalURL: res.FinalURL}, nil
	}

	var decoded any
	if err := json.Unmarshal(res.Body, &decoded); err != nil {
		return nil, &FetchError{Kind: ErrParse, Message: fmt.Sprintf("invalid json: %v", err), Retriable: false}
	}

	return &APIResult{Raw: res.Body, Decoded: decoded, FinalURL: res.FinalURL}, nil
}
