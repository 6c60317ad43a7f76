// Package disk provides a disk-backed consume-once cache.
//
// It honors the same contract as the in-memory cache but spills content to
// the local filesystem, for training sets that do not fit in RAM. Entries
// are zstd-compressed and stored under the SHA-256 digest of their path,
// sharded into two-character prefix directories.
package disk

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/datarope/prefetch/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	// lockCount stripes per-path locks; a power of two keeps selection a mask.
	lockCount = 64
)

// Cache implements cache.Cache on the local filesystem.
//
// Insert writes a temp file and renames it into place; Consume reads,
// decompresses and unlinks the entry under a per-path striped lock, so a
// contested path is handed to exactly one consumer. An entry that cannot be
// read back (removed out of band, corrupt compressed data) behaves as
// absent.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	level          zstd.EncoderLevel

	enc   *zstd.Encoder
	dec   *zstd.Decoder
	locks [lockCount]sync.Mutex
}

// Interface compliance.
var _ cache.Cache = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding
// entry files into subdirectories. Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithEncoderLevel sets the zstd compression level for stored entries.
// Defaults to zstd.SpeedDefault.
func WithEncoderLevel(level zstd.EncoderLevel) Option {
	return func(c *Cache) {
		c.level = level
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
		level:          zstd.SpeedDefault,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}

	// EncodeAll/DecodeAll on shared instances are safe for concurrent use.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	c.enc = enc
	c.dec = dec
	return c, nil
}

// Insert stores content under path, overwriting any existing entry.
func (c *Cache) Insert(path string, content []byte) error {
	file := c.entryPath(path)
	mu := c.lock(path)
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "entry-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(c.enc.EncodeAll(content, nil)); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, file); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Consume atomically returns and removes the entry for path.
func (c *Cache) Consume(path string) (cache.Item, bool) {
	file := c.entryPath(path)
	mu := c.lock(path)
	mu.Lock()
	defer mu.Unlock()

	compressed, err := os.ReadFile(file) //nolint:gosec // path is digest-derived, not user input
	if err != nil {
		return cache.Item{}, false
	}
	content, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt entry; drop it rather than hand out bad bytes.
		_ = os.Remove(file)
		return cache.Item{}, false
	}
	_ = os.Remove(file)

	return cache.Item{Path: path, Content: content}, true
}

// Len reports the number of entry files currently stored.
func (c *Cache) Len() int {
	n := 0
	_ = filepath.WalkDir(c.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // a vanished file mid-walk is not an error here
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

// entryPath maps a cache key to its file, named by the SHA-256 digest of
// the path so arbitrary keys cannot escape the cache root.
func (c *Cache) entryPath(path string) string {
	encoded := digest.SHA256.FromString(path).Encoded()
	if c.shardPrefixLen <= 0 || len(encoded) <= c.shardPrefixLen {
		return filepath.Join(c.dir, encoded)
	}
	return filepath.Join(c.dir, encoded[:c.shardPrefixLen], encoded)
}

func (c *Cache) lock(path string) *sync.Mutex {
	h := uint32(2166136261)
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return &c.locks[h&(lockCount-1)]
}
