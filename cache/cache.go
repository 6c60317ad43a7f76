// Package cache provides the consume-once content cache that holds batch
// fetched files until the training pipeline reads them.
//
// Keys are file paths. A successful Consume removes the entry: the
// surrounding system reads each cached file exactly once, and the removal
// is what reclaims the memory. There is no other eviction; an entry that is
// never consumed lives for the cache's lifetime.
package cache

// Item is one cached file. It is immutable after construction, and
// Size always equals len(Content).
type Item struct {
	Path    string
	Content []byte
}

// Size returns the content length in bytes.
func (it Item) Size() int { return len(it.Content) }

// Cache is a consume-once mapping from path to content.
type Cache interface {
	// Insert stores content under path, overwriting any existing entry
	// for that path (last write wins).
	Insert(path string, content []byte) error

	// Consume atomically returns and removes the entry for path. The
	// second return is false when path is not present; that is a normal
	// outcome, not a fault. Under concurrent Consume calls for the same
	// path, exactly one caller receives the item.
	Consume(path string) (Item, bool)

	// Implementations must be safe for concurrent use.
}
