// Package writer owns the active journal file of a directory: it creates or
// recovers it, appends to it and rotates it into archived files.
package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dd0wney/cluso-journal/pkg/clock"
	"github.com/dd0wney/cluso-journal/pkg/config"
	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/metrics"
)

// ActiveName is the file name of the file being written.
const ActiveName = "system.journal"

var ErrClosed = errors.New("writer is closed")

// Options supplies the collaborators of a Writer. Zero values pick the
// kernel boot id, the system clock and the configured logger.
type Options struct {
	Boot      id128.BootIDSource
	Clock     clock.Source
	MachineID id128.ID
	Logger    logging.Logger
	Metrics   *metrics.Registry
}

// Writer appends entries to <dir>/system.journal.
type Writer struct {
	mu      sync.Mutex
	dir     string
	fopts   journalfile.Options
	active  *journalfile.File
	boot    id128.BootIDSource
	clock   clock.Source
	logger  logging.Logger
	metrics *metrics.Registry
	closed  bool
}

// FileOptions maps a configuration onto per-file options.
func FileOptions(cfg *config.Config) journalfile.Options {
	return journalfile.Options{
		MaxFileSize:           cfg.MaxFileSize,
		Compression:           cfg.Algorithm(),
		CompressThreshold:     cfg.Compression.ThresholdBytes,
		StrictOrder:           cfg.StrictOrder,
		ClockSkewTolerance:    cfg.ClockSkewTolerance,
		DataHashTableBuckets:  cfg.DataHashTableBuckets,
		FieldHashTableBuckets: cfg.FieldHashTableBuckets,
		ChainCacheSize:        cfg.ChainCacheSize,
	}
}

// Open validates cfg and opens or creates the active file.
func Open(cfg *config.Config, opts Options) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = cfg.Logger()
	}
	logger = logger.With(logging.Component("writer"), logging.Path(cfg.Directory))

	w := &Writer{
		dir:     cfg.Directory,
		fopts:   FileOptions(cfg),
		boot:    opts.Boot,
		clock:   opts.Clock,
		logger:  logger,
		metrics: opts.Metrics,
	}
	if w.boot == nil {
		w.boot = id128.KernelBootID()
	}
	if w.clock == nil {
		w.clock = clock.System{}
	}
	w.fopts.MachineID = opts.MachineID
	w.fopts.Logger = logger
	w.fopts.Metrics = opts.Metrics

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := w.openActive(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) activePath() string {
	return filepath.Join(w.dir, ActiveName)
}

// openActive reopens system.journal, or sets it aside when it cannot be
// appended to and starts a fresh one.
func (w *Writer) openActive() error {
	path := w.activePath()
	f, err := journalfile.OpenWritable(path, w.fopts)
	switch {
	case err == nil:
		w.active = f
		w.logger.Info("reopened journal file", logging.Seqnum(f.Header().TailEntrySeqnum))
		return nil
	case errors.Is(err, os.ErrNotExist):
	case errors.Is(err, journalfile.ErrBusy):
		return err
	case errors.Is(err, journalfile.ErrDirty), errors.Is(err, journalfile.ErrArchived),
		errors.Is(err, journalfile.ErrIncompatible), journalfile.IsCorrupt(err):
		if err := w.setAside(path, err); err != nil {
			return err
		}
	default:
		return err
	}

	f, err = journalfile.Create(path, w.fopts)
	if err != nil {
		return err
	}
	w.active = f
	w.logger.Info("created journal file")
	return nil
}

// setAside renames an unusable active file out of the way. It stays in the
// directory for readers under a .journal~ name.
func (w *Writer) setAside(path string, cause error) error {
	now := w.clock.Now()
	random := id128.New().String()[:16]
	name := fmt.Sprintf("system@%016x-%s.journal~", now.Realtime, random)
	target := filepath.Join(w.dir, name)
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("set aside %s: %w", path, err)
	}
	w.logger.Warn("journal file set aside", logging.Reason(cause.Error()), logging.String("renamed_to", name))
	w.metrics.RecordRotation("dirty")
	return nil
}

// ArchiveName is the name an archived file gets: its namespace, first
// seqnum and first realtime.
func ArchiveName(h journalfile.Header) string {
	return fmt.Sprintf("system@%s-%016x-%016x.journal", h.SeqnumID, h.HeadEntrySeqnum, h.HeadEntryRealtime)
}

// Append stamps fields with the current time and boot and appends them.
func (w *Writer) Append(fields [][]byte) (journalfile.AppendResult, error) {
	boot, err := w.boot.BootID()
	if err != nil {
		w.logger.Warn("no boot id", logging.Error(err))
		boot = id128.Null
	}
	ts := w.clock.Now()
	return w.AppendEntry(journalfile.EntryInput{
		Realtime:  ts.Realtime,
		Monotonic: ts.Monotonic,
		BootID:    boot,
		Fields:    fields,
	})
}

// AppendEntry appends in. When the active file refuses it as out of order
// or full, the file is rotated and the append retried once.
func (w *Writer) AppendEntry(in journalfile.EntryInput) (journalfile.AppendResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return journalfile.AppendResult{}, ErrClosed
	}

	res, err := w.active.AppendEntry(in)
	if err == nil {
		return res, nil
	}
	var reason string
	switch {
	case errors.Is(err, journalfile.ErrOutOfOrder):
		reason = "out_of_order"
	case errors.Is(err, journalfile.ErrFileFull):
		reason = "file_full"
	default:
		return res, err
	}
	if w.active.EntryCount() == 0 {
		// A fresh file refused it; a successor would too.
		return res, err
	}
	w.logger.Info("rotating before retry", logging.Reason(reason), logging.Error(err))
	if err := w.rotate(reason); err != nil {
		return journalfile.AppendResult{}, err
	}
	return w.active.AppendEntry(in)
}

// Rotate archives the active file and starts its successor. An empty
// active file is kept as is.
func (w *Writer) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.rotate("manual")
}

func (w *Writer) rotate(reason string) error {
	old := w.active
	h := old.Header()
	if h.NEntries == 0 {
		w.logger.Debug("active file is empty, not rotating", logging.Reason(reason))
		return nil
	}
	path := w.activePath()
	archived := filepath.Join(w.dir, ArchiveName(h))

	if err := os.Rename(path, archived); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}
	next, err := journalfile.CreateSuccessor(path, old, w.fopts)
	if err != nil {
		// Keep writing to the old file rather than losing entries.
		if rerr := os.Rename(archived, path); rerr != nil {
			w.logger.Error("cannot restore active file", logging.Error(rerr))
		}
		return err
	}
	if err := old.Archive(); err != nil {
		w.logger.Warn("archiving rotated file failed", logging.Error(err))
	}
	w.active = next
	w.metrics.RecordRotation(reason)
	w.logger.Info("rotated journal file",
		logging.Reason(reason),
		logging.String("archived", filepath.Base(archived)),
		logging.Seqnum(h.TailEntrySeqnum))
	return nil
}

// Header returns the active file's header.
func (w *Writer) Header() journalfile.Header {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.Header()
}

// Stats returns the active file's statistics.
func (w *Writer) Stats() journalfile.Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active.Stats()
}

// Dir returns the journal directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Close marks the active file offline and releases it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.active.Close()
}
