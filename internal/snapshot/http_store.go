package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/retrace/retrace/internal/resilience"
)

// Observer receives timing for blob store operations.
type Observer interface {
	RecordRequest(operation string, duration time.Duration, err error)
}

// HTTPStore is a Store backed by a blob service speaking a plain
// PUT/GET/DELETE-by-key HTTP protocol. Calls go through the resilient client
// so a flapping store degrades to snapshot-less saves instead of failing them.
type HTTPStore struct {
	baseURL  string
	client   *resilience.Client
	logger   zerolog.Logger
	observer Observer
}

// HTTPStoreConfig holds configuration for the HTTP snapshot store.
type HTTPStoreConfig struct {
	// BaseURL is the blob service endpoint, e.g. "http://snapshots:9090".
	BaseURL string

	// Client is the resilient HTTP client. If nil, a default client named
	// "snapshot-store" is created.
	Client *resilience.Client

	// Logger for store operations.
	Logger zerolog.Logger

	// Observer receives per-operation timings. Optional.
	Observer Observer
}

// NewHTTPStore creates a new HTTP-backed snapshot store.
func NewHTTPStore(cfg HTTPStoreConfig) *HTTPStore {
	client := cfg.Client
	if client == nil {
		client = resilience.NewClient(resilience.DefaultClientConfig("snapshot-store"))
	}

	return &HTTPStore{
		baseURL:  cfg.BaseURL,
		client:   client,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
}

// observe reports an operation's duration to the observer, if any.
func (s *HTTPStore) observe(operation string, start time.Time, err error) {
	if s.observer != nil {
		s.observer.RecordRequest(operation, time.Since(start), err)
	}
}

// Put persists a blob under the given key.
func (s *HTTPStore) Put(ctx context.Context, key string, blob []byte) (err error) {
	start := time.Now()
	defer func() { s.observe("put", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.blobURL(key), bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("build snapshot put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: put returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	s.logger.Debug().
		Str("snapshot_key", key).
		Int("bytes", len(blob)).
		Msg("snapshot blob stored")

	return nil
}

// Get retrieves the blob for a key.
func (s *HTTPStore) Get(ctx context.Context, key string) (blob []byte, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.blobURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot get request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrSnapshotNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: get returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	blob, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}

	return blob, nil
}

// Delete removes the blob for a key.
func (s *HTTPStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.blobURL(key), nil)
	if err != nil {
		return fmt.Errorf("build snapshot delete request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	// 404 means already gone, which is what the caller wanted.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: delete returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	return nil
}

// Keys enumerates all blob keys. The blob service returns them as a JSON
// array from GET /blobs.
func (s *HTTPStore) Keys(ctx context.Context) (keys []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/blobs", nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot list request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned status %d", ErrStoreUnavailable, resp.StatusCode)
	}

	if err = json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("decode snapshot key list: %w", err)
	}

	return keys, nil
}

func (s *HTTPStore) blobURL(key string) string {
	return s.baseURL + "/blobs/" + url.PathEscape(key)
}

// Ensure HTTPStore implements Store and Lister interfaces.
var (
	_ Store  = (*HTTPStore)(nil)
	_ Lister = (*HTTPStore)(nil)
)
