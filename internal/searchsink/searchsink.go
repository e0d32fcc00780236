// Package searchsink delivers committed job upserts to an external
// search index over HTTP, retrying transient failures in process
// before giving up and counting the failure.
package searchsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"jobpipe/internal/config"
	"jobpipe/internal/metrics"
)

// Doc is the document shape pushed to the search index, a flattened
// projection of model.Job.
type Doc struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	OrgName     string   `json:"orgName"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	ApplyURL    string   `json:"applyUrl"`
	Tags        []string `json:"tags,omitempty"`
}

// Sink pushes committed upserts and deletions to a document index.
type Sink interface {
	Upsert(ctx context.Context, docs []Doc) error
	Delete(ctx context.Context, ids []string) error
}

// HTTPSink implements Sink against a generic document-index HTTP
// endpoint, grounded on the teacher's SearxngProvider request-building
// style (timeout client, JSON/form payload, status check).
type HTTPSink struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries int
}

// NewHTTPSinkFromConfig builds an HTTPSink from SearchSinkConfig,
// returning (nil, false) when the sink is disabled so callers can skip
// wiring it.
func NewHTTPSinkFromConfig(cfg config.SearchSinkConfig) (*HTTPSink, bool) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, false
	}

	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 10000
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &HTTPSink{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		maxRetries: maxRetries,
	}, true
}

// retryDelays is the in-process exponential backoff schedule: the
// waits before the 2nd, 3rd and 4th attempts. A send makes at most
// len(retryDelays)+1 attempts, so the default maxRetries of 3 waits
// 1s and 4s.
var retryDelays = []time.Duration{time.Second, 4 * time.Second, 8 * time.Second}

// Upsert PUTs docs to the index's documents endpoint, making up to
// maxRetries attempts in all before counting it as a non-blocking
// failure.
func (s *HTTPSink) Upsert(ctx context.Context, docs []Doc) error {
	if len(docs) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"docs": docs})
	if err != nil {
		return fmt.Errorf("searchsink: marshal upsert: %w", err)
	}
	return s.sendWithRetry(ctx, "PUT", s.endpoint+"/documents", body)
}

// Delete removes documents by id, with the same retry policy as Upsert.
func (s *HTTPSink) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body, err := json.Marshal(map[string]any{"ids": ids})
	if err != nil {
		return fmt.Errorf("searchsink: marshal delete: %w", err)
	}
	return s.sendWithRetry(ctx, "DELETE", s.endpoint+"/documents", body)
}

func (s *HTTPSink) sendWithRetry(ctx context.Context, method, url string, body []byte) error {
	var lastErr error

	attempts := s.maxRetries
	if attempts > len(retryDelays)+1 {
		attempts = len(retryDelays) + 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelays[attempt-1]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.send(ctx, method, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	metrics.RecordSearchSinkFailure()
	return fmt.Errorf("searchsink: giving up after %d attempts: %w", attempts, lastErr)
}

func (s *HTTPSink) send(ctx context.Context, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("searchsink: %s %s returned status %d", method, url, resp.StatusCode)
	}
	return nil
}
