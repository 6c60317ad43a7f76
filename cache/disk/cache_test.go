package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("")
	assert.Error(t, err)

	_, err = New(t.TempDir(), WithShardPrefixLen(-1))
	assert.Error(t, err)
}

func TestConsumeExactlyOnce(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	require.NoError(t, c.Insert("train/a.jpg", []byte("AAA")))

	it, ok := c.Consume("train/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "train/a.jpg", it.Path)
	assert.Equal(t, []byte("AAA"), it.Content)
	assert.Equal(t, 3, it.Size())

	_, ok = c.Consume("train/a.jpg")
	assert.False(t, ok, "second consume must miss")
	assert.Equal(t, 0, c.Len())
}

func TestConsumeAbsent(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	_, ok := c.Consume("missing")
	assert.False(t, ok)
}

func TestInsertOverwrites(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	require.NoError(t, c.Insert("p", []byte("old")))
	require.NoError(t, c.Insert("p", []byte("new")))
	assert.Equal(t, 1, c.Len())

	it, ok := c.Consume("p")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), it.Content)
}

func TestContentStoredCompressed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)

	content := bytes.Repeat([]byte("compressible "), 4096)
	require.NoError(t, c.Insert("big", content))

	// The entry on disk must not be the raw bytes.
	var onDisk []byte
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		onDisk, err = os.ReadFile(path)
		return err
	})
	require.NoError(t, err)
	require.NotEmpty(t, onDisk)
	assert.Less(t, len(onDisk), len(content))

	it, ok := c.Consume("big")
	require.True(t, ok)
	assert.Equal(t, content, it.Content)
}

func TestShardPrefixLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Insert("some/path", []byte("x")))

	subdirs, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, subdirs, 1)
	assert.Len(t, subdirs[0].Name(), defaultShardPrefixLen)
}

func TestCorruptEntryBehavesAsAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, c.Insert("victim", []byte("content")))

	// Scribble over the stored file.
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		return os.WriteFile(path, []byte("not zstd"), 0o600)
	})
	require.NoError(t, err)

	_, ok := c.Consume("victim")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "corrupt entry must be dropped")
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	c := newTestCache(t)
	require.NoError(t, c.Insert("contested", []byte("prize")))

	const goroutines = 16
	var wins atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := c.Consume("contested"); ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
}
