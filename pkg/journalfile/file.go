package journalfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/metrics"
)

// Options configures how a file is created, written and read.
type Options struct {
	// MaxFileSize bounds the file; appends beyond it fail with ErrFileFull.
	MaxFileSize uint64
	// Compression applies to DATA payloads of at least CompressThreshold bytes.
	Compression       compress.Algorithm
	CompressThreshold int

	StrictOrder        bool
	ClockSkewTolerance time.Duration

	DataHashTableBuckets  int
	FieldHashTableBuckets int
	ChainCacheSize        int

	// MachineID is stamped into new files. Null means read /etc/machine-id,
	// falling back to a random id.
	MachineID id128.ID
	Mode      os.FileMode

	Logger  logging.Logger
	Metrics *metrics.Registry
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize == 0 {
		o.MaxFileSize = 128 << 20
	}
	if o.CompressThreshold <= 0 {
		o.CompressThreshold = 512
	}
	if o.DataHashTableBuckets <= 0 {
		o.DataHashTableBuckets = 2047
	}
	if o.FieldHashTableBuckets <= 0 {
		o.FieldHashTableBuckets = 333
	}
	if o.ChainCacheSize <= 0 {
		o.ChainCacheSize = 64
	}
	if o.Mode == 0 {
		o.Mode = 0o640
	}
	o.Logger = logging.OrDefault(o.Logger)
	return o
}

// File is one journal file opened for reading or for writing. Mutating
// methods are serialised internally; read methods on a writable file take
// the same lock. A read-only File must not be used from several goroutines.
type File struct {
	mu       sync.Mutex
	path     string
	opts     Options
	b        *backend
	header   Header
	codec    compress.Codec
	hashKey  []byte
	chains   *chainCache
	logger   logging.Logger
	metrics  *metrics.Registry
	closed   bool
	archived bool
}

// Create creates a new file. It fails if path exists.
func Create(path string, opts Options) (*File, error) {
	return create(path, nil, opts)
}

// CreateSuccessor creates a new file continuing template's sequence-number
// namespace: the seqnum id, machine id and tail seqnum are copied so the
// first entry written gets template's tail seqnum + 1.
func CreateSuccessor(path string, template *File, opts Options) (*File, error) {
	if template == nil {
		return nil, errors.New("successor needs a template")
	}
	return create(path, template, opts)
}

func create(path string, template *File, opts Options) (*File, error) {
	opts = opts.withDefaults()
	if opts.MaxFileSize < MinFileSize {
		return nil, NewError("create").Path(path).Causef(ErrFileFull, "max size %d too small", opts.MaxFileSize).Err()
	}

	b, err := openWriteBackend(path, true, opts.Mode)
	if err != nil {
		return nil, NewError("create").Path(path).Cause(err).Err()
	}

	f := &File{
		path:    path,
		opts:    opts,
		b:       b,
		logger:  opts.Logger.With(logging.Component("journalfile"), logging.Path(filepath.Base(path))),
		metrics: opts.Metrics,
	}

	h := &f.header
	h.HeaderSize = HeaderSize
	h.State = StateOnline
	h.Version = FormatVersion
	h.IncompatibleFlags = IncompatKeyedHash
	h.FileID = id128.New()
	h.SeqnumID = h.FileID
	h.MachineID = opts.MachineID

	if template != nil {
		template.mu.Lock()
		h.SeqnumID = template.header.SeqnumID
		h.MachineID = template.header.MachineID
		h.TailEntrySeqnum = template.header.TailEntrySeqnum
		template.mu.Unlock()
	}
	if h.MachineID.IsNull() {
		if id, err := id128.MachineID(); err == nil {
			h.MachineID = id
		} else {
			h.MachineID = id128.New()
		}
	}

	switch opts.Compression {
	case compress.None:
	case compress.Snappy:
		h.IncompatibleFlags |= IncompatCompressedSnappy
	case compress.Zstd:
		h.IncompatibleFlags |= IncompatCompressedZstd
	default:
		f.abort()
		return nil, NewError("create").Path(path).Causef(ErrIncompatible, "codec %v", opts.Compression).Err()
	}

	if err := f.setup(); err != nil {
		f.abort()
		return nil, NewError("create").Path(path).Cause(err).Err()
	}
	if err := f.setupHashTables(); err != nil {
		f.abort()
		return nil, NewError("create").Path(path).Cause(err).Err()
	}
	if err := f.writeHeader(); err != nil {
		f.abort()
		return nil, NewError("create").Path(path).Cause(err).Err()
	}

	f.logger.Info("created journal file",
		logging.FileID(h.FileID), logging.String("seqnum_id", h.SeqnumID.String()), logging.Seqnum(h.TailEntrySeqnum))
	f.metrics.SetArenaBytes(filepath.Base(path), h.arenaEnd())
	return f, nil
}

// abort closes and unlinks a half-created file.
func (f *File) abort() {
	f.b.close()
	os.Remove(f.path)
}

// OpenWritable opens an existing file for appending. A file left online by
// a crashed writer fails with ErrDirty and an archived one with ErrArchived;
// the caller is expected to set such files aside and start a new one.
func OpenWritable(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()
	b, err := openWriteBackend(path, false, opts.Mode)
	if err != nil {
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	f := &File{
		path:    path,
		opts:    opts,
		b:       b,
		logger:  opts.Logger.With(logging.Component("journalfile"), logging.Path(filepath.Base(path))),
		metrics: opts.Metrics,
	}
	if err := f.loadHeader(true); err != nil {
		b.close()
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	switch f.header.State {
	case StateOnline:
		b.close()
		return nil, NewError("open").Path(path).Cause(ErrDirty).Err()
	case StateArchived:
		b.close()
		return nil, NewError("open").Path(path).Cause(ErrArchived).Err()
	}
	if err := f.setup(); err != nil {
		b.close()
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	f.header.State = StateOnline
	if err := f.writeHeader(); err != nil {
		b.close()
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	return f, nil
}

// Open opens a file read-only through a shared mapping.
func Open(path string, opts Options) (*File, error) {
	opts = opts.withDefaults()
	b, err := openReadBackend(path)
	if err != nil {
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	f := &File{
		path:    path,
		opts:    opts,
		b:       b,
		logger:  opts.Logger.With(logging.Component("journalfile"), logging.Path(filepath.Base(path))),
		metrics: opts.Metrics,
	}
	if err := f.loadHeader(false); err != nil {
		b.close()
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	if err := f.setup(); err != nil {
		b.close()
		return nil, NewError("open").Path(path).Cause(err).Err()
	}
	return f, nil
}

// setup derives per-file state from the header: the hash key, the codec used
// for new payloads and the chain cache.
func (f *File) setup() error {
	f.hashKey = append([]byte(nil), f.header.FileID[:]...)
	f.chains = newChainCache(f.opts.ChainCacheSize, f.metrics)

	if f.b.writable() {
		alg := compress.None
		switch {
		case f.header.IncompatibleFlags&IncompatCompressedZstd != 0:
			alg = compress.Zstd
		case f.header.IncompatibleFlags&IncompatCompressedSnappy != 0:
			alg = compress.Snappy
		}
		if alg != compress.None {
			c, err := compress.For(alg)
			if err != nil {
				return err
			}
			f.codec = c
		}
	}
	return nil
}

func (f *File) loadHeader(writable bool) error {
	var buf [HeaderSize]byte
	if f.b.size < HeaderSize {
		return fmt.Errorf("%w: file is %d bytes", ErrCorruptObject, f.b.size)
	}
	if err := f.b.readAt(buf[:], 0); err != nil {
		return err
	}
	h, err := decodeHeader(buf[:])
	if err != nil {
		return err
	}
	if err := h.verify(f.b.size, writable); err != nil {
		return err
	}
	f.header = h
	return nil
}

// Refresh re-reads the header of a read-only file to pick up entries
// appended by a writer elsewhere. It returns true when the entry count changed.
func (f *File) Refresh() (bool, error) {
	if f.b.writable() {
		return false, nil
	}
	if f.closed {
		return false, ErrClosed
	}
	before := f.header.NEntries
	var buf [HeaderSize]byte
	if err := f.b.readAt(buf[:], 0); err != nil {
		return false, err
	}
	h, err := decodeHeader(buf[:])
	if err != nil {
		return false, err
	}
	if h.arenaEnd() > f.b.size {
		if err := f.b.remapReader(h.arenaEnd()); err != nil {
			return false, err
		}
	}
	if err := h.verify(f.b.size, false); err != nil {
		return false, err
	}
	if h.FileID != f.header.FileID {
		return false, fmt.Errorf("%w: file replaced underneath reader", ErrRacing)
	}
	f.header = h
	return h.NEntries != before, nil
}

func (f *File) writeHeader() error {
	var buf [HeaderSize]byte
	f.header.encode(buf[:])
	return f.b.writeAt(buf[:], 0)
}

// Path returns the file's path.
func (f *File) Path() string {
	return f.path
}

// Header returns a snapshot of the header.
func (f *File) Header() Header {
	f.lock()
	defer f.unlock()
	return f.header
}

func (f *File) Writable() bool {
	return f.b != nil && f.b.writable()
}

// EntryCount is the number of entries visible in this file.
func (f *File) EntryCount() uint64 {
	f.lock()
	defer f.unlock()
	return f.header.NEntries
}

func (f *File) SeqnumID() id128.ID {
	f.lock()
	defer f.unlock()
	return f.header.SeqnumID
}

// lock is a no-op for read-only files, which are single-goroutine.
func (f *File) lock() {
	if f.b != nil && f.b.writable() {
		f.mu.Lock()
	}
}

func (f *File) unlock() {
	if f.b != nil && f.b.writable() {
		f.mu.Unlock()
	}
}

// Archive marks a writable file archived and closes it. Archived files are
// never written again.
func (f *File) Archive() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.archived = true
	f.mu.Unlock()
	return f.Close()
}

// Close releases the file. A writable file is marked offline (or archived),
// synced and unlocked.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	if f.b.writable() {
		if f.archived {
			f.header.State = StateArchived
		} else {
			f.header.State = StateOffline
		}
		errs = append(errs, f.writeHeader(), f.b.sync())
		f.metrics.ForgetFile(filepath.Base(f.path))
	}
	errs = append(errs, f.b.close())
	if err := errors.Join(errs...); err != nil {
		return NewError("close").Path(f.path).Cause(err).Err()
	}
	return nil
}
