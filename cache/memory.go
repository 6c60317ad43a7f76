package cache

import "sync"

// shardCount is a power of two so shard selection is a mask.
const shardCount = 64

// Memory is an in-memory consume-once cache.
//
// The key space is striped across a fixed set of shards so inserts and
// consumes of unrelated paths do not contend on one lock. Insert and
// Consume for the same path serialize on that path's shard.
type Memory struct {
	shards [shardCount]shard
}

type shard struct {
	mu    sync.Mutex
	items map[string]Item
}

// Interface compliance.
var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	m := &Memory{}
	for i := range m.shards {
		m.shards[i].items = make(map[string]Item)
	}
	return m
}

// Insert stores content under path, overwriting any existing entry.
// It never fails.
func (m *Memory) Insert(path string, content []byte) error {
	s := m.shard(path)
	s.mu.Lock()
	s.items[path] = Item{Path: path, Content: content}
	s.mu.Unlock()
	return nil
}

// Consume atomically returns and removes the entry for path.
func (m *Memory) Consume(path string) (Item, bool) {
	s := m.shard(path)
	s.mu.Lock()
	it, ok := s.items[path]
	if ok {
		delete(s.items, path)
	}
	s.mu.Unlock()
	return it, ok
}

// Len reports the number of entries currently held.
func (m *Memory) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// shard picks the stripe for path. FNV-1a is inlined to avoid allocating a
// hash.Hash32 per call.
func (m *Memory) shard(path string) *shard {
	h := uint32(2166136261)
	for i := 0; i < len(path); i++ {
		h ^= uint32(path[i])
		h *= 16777619
	}
	return &m.shards[h&(shardCount-1)]
}
