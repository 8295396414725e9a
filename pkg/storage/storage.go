// Package storage defines the block-addressed backend contract a TreeFile
// opens tree blobs through, plus a direct-file-handle implementation.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// Handle is one opened, named byte range: a tree file on disk, addressed by
// absolute offset rather than by append position, since a tree blob is
// written once in full and then read randomly during deserialization.
type Handle interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Len() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Backend opens named handles. name is a storage-relative path (the
// TreeFile path scheme, e.g. "t/aa/bb/cc"); Open creates the handle and any
// missing parent directories if it does not yet exist.
type Backend interface {
	Open(ctx context.Context, name string) (Handle, error)
	Remove(ctx context.Context, name string) error
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FileBackend opens one real OS file per named handle under Root,
// generalizing the teacher's single shared append log (LogWriter/LogReader)
// to one file per tree: each tree blob is independent and immutable once
// written, so there is no shared offset to contend on. When Compress is set,
// WriteFull zstd-compresses the blob and ReadFull transparently decompresses
// it by sniffing the zstd magic prefix on read.
type FileBackend struct {
	Root     string
	Compress bool
}

// NewFileBackend returns a FileBackend rooted at dir, creating dir if it
// does not exist.
func NewFileBackend(dir string, compress bool) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "storage: create root %q", dir)
	}
	return &FileBackend{Root: dir, Compress: compress}, nil
}

func (b *FileBackend) path(name string) string {
	return filepath.Join(b.Root, filepath.FromSlash(name))
}

func (b *FileBackend) Open(_ context.Context, name string) (Handle, error) {
	p := b.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, errors.Wrapf(err, "storage: create directory chain for %q", name)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open %q", name)
	}
	return &fileHandle{file: f, compress: b.Compress}, nil
}

func (b *FileBackend) Remove(_ context.Context, name string) error {
	if err := os.Remove(b.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage: remove %q", name)
	}
	return nil
}

// fileHandle wraps one *os.File. A mutex serializes WriteFull against
// concurrent callers when the handle compresses, the way LogWriter guards its
// offset counter; an uncompressed WriteFull, ReadFull and plain
// ReadAt/WriteAt take no lock, since os.File already supports concurrent
// positioned I/O.
type fileHandle struct {
	file     *os.File
	compress bool
	mu       sync.Mutex
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	return h.file.ReadAt(p, off)
}

func (h *fileHandle) WriteAt(p []byte, off int64) (int, error) {
	return h.file.WriteAt(p, off)
}

func (h *fileHandle) Len() (int64, error) {
	stat, err := h.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (h *fileHandle) Truncate(size int64) error {
	return h.file.Truncate(size)
}

func (h *fileHandle) Sync() error {
	return h.file.Sync()
}

func (h *fileHandle) Close() error {
	return h.file.Close()
}

// WriteFull replaces a handle's entire contents with buf, compressing it
// first when the backend was constructed with Compress set.
func WriteFull(h Handle, buf []byte) error {
	payload := buf
	if fh, ok := h.(*fileHandle); ok && fh.compress {
		fh.mu.Lock()
		defer fh.mu.Unlock()
		var out bytes.Buffer
		w, err := zstd.NewWriter(&out)
		if err != nil {
			return errors.Wrap(err, "storage: open zstd writer")
		}
		if _, err := w.Write(buf); err != nil {
			_ = w.Close()
			return errors.Wrap(err, "storage: zstd compress")
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "storage: zstd flush")
		}
		payload = out.Bytes()
	}
	if err := h.Truncate(0); err != nil {
		return errors.Wrap(err, "storage: truncate before write")
	}
	if _, err := h.WriteAt(payload, 0); err != nil {
		return errors.Wrap(err, "storage: write")
	}
	return h.Sync()
}

// ReadFull reads a handle's entire contents, transparently decompressing if
// the leading bytes carry the zstd magic prefix.
func ReadFull(h Handle) ([]byte, error) {
	n, err := h.Len()
	if err != nil {
		return nil, errors.Wrap(err, "storage: stat")
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := h.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "storage: read")
		}
	}
	if len(buf) >= len(zstdMagic) && bytes.Equal(buf[:len(zstdMagic)], zstdMagic) {
		r, err := zstd.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, errors.Wrap(err, "storage: open zstd reader")
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "storage: zstd decompress")
		}
		return out, nil
	}
	return buf, nil
}

// TreePath derives the TreeFile on-disk path from a numeric tree id: one
// path segment per big-endian byte, so ids cluster into a shallow directory
// tree instead of one huge flat directory (spec.md §6).
func TreePath(id uint64) string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> uint(8*(7-i)))
	}
	segs := make([]string, 0, 9)
	segs = append(segs, "t")
	for _, c := range b {
		segs = append(segs, fmt.Sprintf("%02x", c))
	}
	return filepath.ToSlash(filepath.Join(segs...))
}
