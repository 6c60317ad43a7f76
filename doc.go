// Package prefetch fetches batches of training files from a content server
// in a single round trip and caches them locally for one-time consumption.
//
// A Fetcher posts a JSON array of lookup keys to the configured endpoint.
// The server answers with a binary manifest (see the manifest subpackage)
// carrying the resolved path→content records, and every decoded record is
// inserted into the cache. The training loop later calls Consume once per
// path, which returns the bytes and releases the entry.
//
// # Quick start
//
//	f, err := prefetch.New("http://127.0.0.1:3000/batch")
//	if err != nil {
//	    return err
//	}
//	if err := f.Fetch(ctx, []any{"train/a.jpg", "train/b.jpg"}); err != nil {
//	    return err
//	}
//	item, ok := f.Consume("train/a.jpg")
//
// # Caching
//
// By default results land in an in-memory consume-once cache. Training sets
// that do not fit in RAM can spill to disk instead:
//
//	c, err := disk.New("/var/cache/prefetch")
//	if err != nil {
//	    return err
//	}
//	f, err := prefetch.New(addr, prefetch.WithCache(c))
//
// A failed batch never retries on its own; the caller decides whether to
// retry, log, or abort.
package prefetch
