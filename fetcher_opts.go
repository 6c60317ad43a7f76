package prefetch

import (
	"net/http"

	"github.com/datarope/prefetch/cache"
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for batch requests. The client's
// timeout is the natural place to bound how long a batch may block.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client == nil {
			return
		}
		f.client = client
	}
}

// WithHeaders sets additional headers on each batch request.
func WithHeaders(headers http.Header) Option {
	return func(f *Fetcher) {
		if headers == nil {
			return
		}
		f.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each batch request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if f.headers == nil {
			f.headers = make(http.Header)
		}
		f.headers.Set(key, value)
	}
}

// WithCache sets the cache Fetch fills. Defaults to cache.NewMemory().
func WithCache(c cache.Cache) Option {
	return func(f *Fetcher) {
		if c == nil {
			return
		}
		f.cache = c
	}
}

// WithReadFile sets the reader used by InsertLocal. Defaults to os.ReadFile.
func WithReadFile(read ReadFunc) Option {
	return func(f *Fetcher) {
		if read == nil {
			return
		}
		f.readFile = read
	}
}
