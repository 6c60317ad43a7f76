package prefetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/singleflight"

	"github.com/datarope/prefetch/cache"
	"github.com/datarope/prefetch/manifest"
)

// ReadFunc resolves a local path to its content bytes.
type ReadFunc = manifest.ReadFunc

// Fetcher coordinates batch downloads against one content server endpoint
// and fills a consume-once cache with the results.
//
// A Fetcher holds no state between calls apart from the cache it fills;
// Fetch may be called from any number of goroutines. Identical concurrent
// batches are deduplicated with singleflight, so a burst of workers asking
// for the same keys shares a single round trip.
type Fetcher struct {
	url      string
	client   *http.Client
	headers  http.Header
	cache    cache.Cache
	readFile ReadFunc
	group    singleflight.Group
}

// New creates a Fetcher posting batches to url. With no options it uses
// http.DefaultClient, an in-memory cache, and os.ReadFile for local inserts.
func New(url string, opts ...Option) (*Fetcher, error) {
	if url == "" {
		return nil, errors.New("prefetch: url is empty")
	}
	f := &Fetcher{
		url:      url,
		client:   http.DefaultClient,
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(f)
	}
	if f.cache == nil {
		f.cache = cache.NewMemory()
	}
	return f, nil
}

// Cache returns the cache the Fetcher fills.
func (f *Fetcher) Cache() cache.Cache { return f.cache }

// Fetch resolves keys against the content server in one round trip and
// inserts every returned record into the cache.
//
// The request body is the JSON encoding of keys; the response body is a
// manifest (see the manifest subpackage). A transport failure or non-2xx
// status is reported wrapped in ErrTransport; a malformed response surfaces
// the manifest decode error. Nothing is rolled back on failure — a decode
// error arrives before any insert, so the cache simply keeps whatever
// earlier batches put there, and a failed batch is the caller's to retry.
func (f *Fetcher) Fetch(ctx context.Context, keys []any) error {
	if len(keys) == 0 {
		return nil
	}
	body, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("prefetch: encode keys: %w", err)
	}

	// Concurrent identical batches share one request.
	_, err, _ = f.group.Do(string(body), func() (any, error) {
		return nil, f.fetch(ctx, body)
	})
	return err
}

func (f *Fetcher) fetch(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("prefetch: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range f.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: unexpected status %s", ErrTransport, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	entries, err := manifest.Decode(data)
	if err != nil {
		return err
	}
	for i := range entries {
		if err := f.cache.Insert(entries[i].Path, entries[i].Content); err != nil {
			return fmt.Errorf("prefetch: cache %s: %w", entries[i].Path, err)
		}
	}
	return nil
}

// InsertLocal reads path from local storage and inserts its bytes directly,
// bypassing the network. The cache is untouched when the read fails.
func (f *Fetcher) InsertLocal(path string) error {
	content, err := f.readFile(path)
	if err != nil {
		return fmt.Errorf("prefetch: read %s: %w", path, err)
	}
	return f.cache.Insert(path, content)
}

// Consume atomically returns and removes the cached entry for path. The
// second return is false when path has not been fetched or was already
// consumed.
func (f *Fetcher) Consume(path string) (cache.Item, bool) {
	return f.cache.Consume(path)
}
