package rawstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// ObjectStore is a Store backed by an S3-compatible HTTP object
// endpoint, addressed as bucket/key. No object-storage SDK was
// available in the retrieved dependency pack, so this talks to the
// endpoint directly over net/http rather than pull in an unvetted
// client; see DESIGN.md.
type ObjectStore struct {
	endpoint string
	bucket   string
	client   *http.Client
}

func NewObjectStore(endpoint, bucket string, client *http.Client) *ObjectStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &ObjectStore{endpoint: endpoint, bucket: bucket, client: client}
}

func (s *ObjectStore) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
}

func (s *ObjectStore) Put(ctx context.Context, data []byte) (string, error) {
	key := Key(data)

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err == nil {
		if resp, herr := s.client.Do(head); herr == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return key, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("rawstore: build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rawstore: put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("rawstore: put returned status %d", resp.StatusCode)
	}

	return key, nil
}

func (s *ObjectStore) Get(ctx context.Context, storagePath string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(storagePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rawstore: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rawstore: get returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
