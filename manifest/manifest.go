// Package manifest implements the binary wire format that carries a batch
// of files between the content server and the client cache.
//
// A manifest is a flat byte stream: an 8-byte version (currently 0), an
// 8-byte record count, then for each record an 8-byte path length, the
// UTF-8 path bytes, an 8-byte content length, and the content bytes. All
// integers are big-endian. A record whose content length is zero carries no
// content bytes at all; the next record (or the end of the manifest)
// follows immediately, and decoders emit nothing for it.
package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Version is the only manifest version currently produced or accepted.
const Version = 0

// fieldLen is the width of every integer field in the stream.
const fieldLen = 8

// Entry is one path→content record in a manifest.
type Entry struct {
	Path    string
	Content []byte
}

// ReadFunc resolves a path to its content bytes during encoding.
type ReadFunc func(path string) ([]byte, error)

// Encode reads each path via read, in input order, and returns the encoded
// manifest. A failing read aborts the encode and is returned wrapped with
// the path that caused it.
func Encode(paths []string, read ReadFunc) ([]byte, error) {
	entries := make([]Entry, 0, len(paths))
	for _, path := range paths {
		content, err := read(path)
		if err != nil {
			return nil, fmt.Errorf("manifest: read %s: %w", path, err)
		}
		entries = append(entries, Entry{Path: path, Content: content})
	}
	return EncodeEntries(entries), nil
}

// EncodeEntries encodes the entries as a manifest. Output is byte-identical
// for identical input. An entry with empty content contributes its path and
// a zero content length, nothing more.
func EncodeEntries(entries []Entry) []byte {
	size := 2 * fieldLen
	for i := range entries {
		size += 2*fieldLen + len(entries[i].Path) + len(entries[i].Content)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint64(buf, Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(entries)))
	for i := range entries {
		e := &entries[i]
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(e.Path)))
		buf = append(buf, e.Path...)
		buf = binary.BigEndian.AppendUint64(buf, uint64(len(e.Content)))
		buf = append(buf, e.Content...)
	}
	return buf
}

// Decode parses a manifest into its ordered entries.
//
// Records whose declared content length is zero are skipped: the zero
// length is the format's "no content" sentinel and no entry is produced for
// them. Input that ends before a declared field or value is complete yields
// ErrTruncated; a version other than Version yields ErrVersion. Returned
// content does not alias data.
func Decode(data []byte) ([]Entry, error) {
	r := reader{data: data}

	version, err := r.uint64("version")
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, fmt.Errorf("manifest: version %d: %w", version, ErrVersion)
	}

	count, err := r.uint64("record count")
	if err != nil {
		return nil, err
	}

	// Cap the preallocation by what the remaining bytes could possibly
	// hold, so a hostile count cannot force a huge allocation.
	capHint := min(count, uint64(len(data))/(2*fieldLen))
	entries := make([]Entry, 0, capHint)

	for i := uint64(0); i < count; i++ {
		pathLen, err := r.uint64("path length")
		if err != nil {
			return nil, err
		}
		path, err := r.bytes(pathLen, "path")
		if err != nil {
			return nil, err
		}
		contentLen, err := r.uint64("content length")
		if err != nil {
			return nil, err
		}
		if contentLen == 0 {
			continue
		}
		content, err := r.bytes(contentLen, "content")
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Path:    string(path),
			Content: bytes.Clone(content),
		})
	}
	return entries, nil
}

// reader walks the manifest byte stream, tracking the current offset so
// truncation errors can say where the stream ran out.
type reader struct {
	data []byte
	off  int
}

func (r *reader) uint64(field string) (uint64, error) {
	if len(r.data)-r.off < fieldLen {
		return 0, fmt.Errorf("manifest: %s at offset %d: %w", field, r.off, ErrTruncated)
	}
	v := binary.BigEndian.Uint64(r.data[r.off:])
	r.off += fieldLen
	return v, nil
}

func (r *reader) bytes(n uint64, field string) ([]byte, error) {
	if n > uint64(len(r.data)-r.off) {
		return nil, fmt.Errorf("manifest: %s at offset %d: %w", field, r.off, ErrTruncated)
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}
