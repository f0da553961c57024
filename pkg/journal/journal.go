// Package journal merges any number of journal files into one ordered stream
// and navigates it: seeking by time, sequence number or cursor, stepping in
// either direction, filtering by field matches and listing boots.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/metrics"
)

var (
	ErrNoPosition    = errors.New("no current entry")
	ErrInvalidCursor = errors.New("invalid cursor")
	ErrInvalidMatch  = errors.New("invalid match")
	ErrNotFound      = journalfile.ErrNotFound
	ErrClosed        = errors.New("journal is closed")
)

const defaultParallelism = 8

// Options configures how files are opened.
type Options struct {
	File        journalfile.Options
	Logger      logging.Logger
	Metrics     *metrics.Registry
	Parallelism int
}

// Journal is a read-only view over a set of journal files. It is not safe
// for concurrent use.
type Journal struct {
	files   []*fileState
	logger  logging.Logger
	metrics *metrics.Registry

	loc     location
	current *current
	dir     journalfile.Direction
	reset   bool

	matches matchSet
	closed  bool
}

// fileState is the per-file cursor state.
type fileState struct {
	f        *journalfile.File
	path     string
	seqnumID id128.ID

	cand     *candidate
	last     uint64 // offset of the last entry taken from this file
	relocate bool
	done     bool
	doneAt   uint64

	match    *fileMatch
	matchGen int
}

type candidate struct {
	off   uint64
	entry *journalfile.Entry
}

type current struct {
	fs    *fileState
	off   uint64
	entry *journalfile.Entry
}

// OpenDirectory opens every *.journal and *.journal~ file in dir.
func OpenDirectory(dir string, opts Options) (*Journal, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open journal directory: %w", err)
	}
	var paths []string
	for _, pattern := range []string{"*.journal", "*.journal~"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, m...)
	}
	return OpenFiles(paths, opts)
}

// OpenFiles opens the given files in parallel. Files that cannot be opened
// are logged and left out.
func OpenFiles(paths []string, opts Options) (*Journal, error) {
	logger := logging.OrDefault(opts.Logger).With(logging.Component("journal"))
	fopts := opts.File
	if fopts.Logger == nil {
		fopts.Logger = logger
	}
	if fopts.Metrics == nil {
		fopts.Metrics = opts.Metrics
	}
	limit := opts.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}

	opened := make([]*journalfile.File, len(paths))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			f, err := journalfile.Open(p, fopts)
			if err != nil {
				logger.Warn("skipping journal file", logging.Path(p), logging.Error(err))
				opts.Metrics.RecordFileDropped()
				return nil
			}
			opened[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	j := &Journal{
		logger:  logger,
		metrics: opts.Metrics,
		loc:     location{typ: locHead},
		reset:   true,
	}
	for i, f := range opened {
		if f == nil {
			continue
		}
		j.files = append(j.files, &fileState{
			f:        f,
			path:     paths[i],
			seqnumID: f.SeqnumID(),
			relocate: true,
		})
	}
	sort.Slice(j.files, func(a, b int) bool { return j.files[a].path < j.files[b].path })
	j.metrics.AddFilesOpen(len(j.files))
	logger.Debug("opened journal", logging.Count(len(j.files)))
	return j, nil
}

// Files returns the paths of the files currently part of the journal.
func (j *Journal) Files() []string {
	out := make([]string, 0, len(j.files))
	for _, fs := range j.files {
		out = append(out, fs.path)
	}
	return out
}

// Refresh picks up entries appended since the files were opened. It
// returns true when any file grew.
func (j *Journal) Refresh() (bool, error) {
	if j.closed {
		return false, ErrClosed
	}
	var changed bool
	for _, fs := range append([]*fileState(nil), j.files...) {
		c, err := fs.f.Refresh()
		if err != nil {
			j.drop(fs, err)
			continue
		}
		if c {
			fs.match = nil
			changed = true
		}
	}
	return changed, nil
}

// drop removes a file that failed mid-operation.
func (j *Journal) drop(fs *fileState, err error) {
	j.logger.Warn("dropping journal file", logging.Path(fs.path), logging.Error(err))
	for i, x := range j.files {
		if x == fs {
			j.files = append(j.files[:i], j.files[i+1:]...)
			break
		}
	}
	if j.current != nil && j.current.fs == fs {
		j.current.fs = nil
	}
	fs.f.Close()
	j.metrics.RecordFileDropped()
	j.metrics.AddFilesOpen(-1)
}

// Close closes every file.
func (j *Journal) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	var errs []error
	for _, fs := range j.files {
		errs = append(errs, fs.f.Close())
	}
	j.metrics.AddFilesOpen(-len(j.files))
	j.files = nil
	j.current = nil
	return errors.Join(errs...)
}
