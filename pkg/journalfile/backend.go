package journalfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/exp/mmap"
)

const (
	growStep         = 8 << 20
	maxRemapAttempts = 3
	remapBackoff     = 2 * time.Millisecond
)

// backend owns the bytes of one file. Reads always go through a read-only
// shared mapping; writes go through the descriptor, which the kernel keeps
// coherent with the mapping.
type backend struct {
	path    string
	file    *os.File // nil when read-only
	mapping *mmap.ReaderAt
	size    uint64 // file size when the mapping was made
}

func openReadBackend(path string) (*backend, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &backend{path: path, mapping: m, size: uint64(m.Len())}, nil
}

// openWriteBackend opens (or creates) path for writing and takes the writer lock.
func openWriteBackend(path string, create bool, mode os.FileMode) (*backend, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	b := &backend{path: path, file: f}
	if err := b.remapWriter(); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func (b *backend) writable() bool {
	return b.file != nil
}

func (b *backend) remapWriter() error {
	fi, err := b.file.Stat()
	if err != nil {
		return err
	}
	return b.mapAt(uint64(fi.Size()))
}

func (b *backend) mapAt(size uint64) error {
	if b.mapping != nil && b.size == size {
		return nil
	}
	m, err := mmap.Open(b.path)
	if err != nil {
		return err
	}
	if b.mapping != nil {
		b.mapping.Close()
	}
	b.mapping = m
	b.size = uint64(m.Len())
	return nil
}

// remapReader re-establishes a read-only mapping until it covers need bytes.
// A writer elsewhere may be growing the file, so a short file is retried a
// few times before giving up.
func (b *backend) remapReader(need uint64) error {
	for attempt := 0; attempt < maxRemapAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(remapBackoff << (attempt - 1))
		}
		fi, err := os.Stat(b.path)
		if err != nil {
			return err
		}
		if uint64(fi.Size()) >= need {
			return b.mapAt(uint64(fi.Size()))
		}
	}
	return fmt.Errorf("%w: need %d bytes, file has %d", ErrRacing, need, b.size)
}

// readAt fills p from off. The caller has already bounds-checked the range
// against the header's arena.
func (b *backend) readAt(p []byte, off uint64) error {
	end := off + uint64(len(p))
	if end < off {
		return fmt.Errorf("%w: offset overflow", ErrCorruptObject)
	}
	if end > uint64(b.mapping.Len()) {
		var err error
		if b.writable() {
			err = b.remapWriter()
		} else {
			err = b.remapReader(end)
		}
		if err != nil {
			return err
		}
		if end > uint64(b.mapping.Len()) {
			return fmt.Errorf("%w: read %d..%d past end of file", ErrCorruptObject, off, end)
		}
	}
	n, err := b.mapping.ReadAt(p, int64(off))
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: short read at %d", ErrRacing, off)
	}
	return fmt.Errorf("%w: %v", ErrExhausted, err)
}

func (b *backend) writeAt(p []byte, off uint64) error {
	if !b.writable() {
		return ErrReadOnly
	}
	if _, err := b.file.WriteAt(p, int64(off)); err != nil {
		return fmt.Errorf("%w: %v", ErrExhausted, err)
	}
	return nil
}

func (b *backend) writeUint64(off, v uint64) error {
	var buf [8]byte
	le.PutUint64(buf[:], v)
	return b.writeAt(buf[:], off)
}

// ensureSize grows the file in growStep increments so that at least need
// bytes exist, never beyond limit.
func (b *backend) ensureSize(need, limit uint64) error {
	if need <= b.size {
		return nil
	}
	target := (need + growStep - 1) / growStep * growStep
	if target > limit {
		target = limit
	}
	if target < need {
		return ErrFileFull
	}
	if err := b.file.Truncate(int64(target)); err != nil {
		return fmt.Errorf("%w: grow to %d: %v", ErrExhausted, target, err)
	}
	return b.mapAt(target)
}

func (b *backend) sync() error {
	if b.file == nil {
		return nil
	}
	return b.file.Sync()
}

func (b *backend) close() error {
	var errs []error
	if b.mapping != nil {
		errs = append(errs, b.mapping.Close())
		b.mapping = nil
	}
	if b.file != nil {
		unlockFile(b.file)
		errs = append(errs, b.file.Close())
		b.file = nil
	}
	return errors.Join(errs...)
}
