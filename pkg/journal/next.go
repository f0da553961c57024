package journal

import (
	"math"

	"github.com/dd0wney/cluso-journal/pkg/journalfile"
)

// Next moves to the next entry. It returns false at the end of the stream,
// leaving the position on the last entry returned.
func (j *Journal) Next() (bool, error) {
	return j.step(journalfile.Down)
}

// Previous moves to the previous entry.
func (j *Journal) Previous() (bool, error) {
	return j.step(journalfile.Up)
}

// NextSkip moves n entries forward and returns how many it moved.
func (j *Journal) NextSkip(n int) (int, error) {
	return j.skip(journalfile.Down, n)
}

// PreviousSkip moves n entries backward and returns how many it moved.
func (j *Journal) PreviousSkip(n int) (int, error) {
	return j.skip(journalfile.Up, n)
}

func (j *Journal) skip(dir journalfile.Direction, n int) (int, error) {
	moved := 0
	for moved < n {
		ok, err := j.step(dir)
		if err != nil {
			return moved, err
		}
		if !ok {
			break
		}
		moved++
	}
	return moved, nil
}

func (j *Journal) step(dir journalfile.Direction) (bool, error) {
	if j.closed {
		return false, ErrClosed
	}
	if dir != j.dir || j.reset {
		for _, fs := range j.files {
			fs.cand = nil
			fs.relocate = true
			fs.done = false
		}
		j.dir = dir
		j.reset = false
	}

	fromSeek := j.loc.typ == locSeek
	var best *fileState
	for _, fs := range append([]*fileState(nil), j.files...) {
		if fs.done {
			if fs.f.EntryCount() == fs.doneAt {
				continue
			}
			fs.done, fs.relocate = false, true
		}
		if fs.cand == nil {
			c, err := j.nextCandidate(fs, dir)
			if err != nil {
				j.drop(fs, err)
				continue
			}
			if c == nil {
				fs.done, fs.doneAt = true, fs.f.EntryCount()
				continue
			}
			fs.cand = c
		}
		if best == nil {
			best = fs
			continue
		}
		c := compareCandidates(fs, fs.cand, best, best.cand)
		if (dir == journalfile.Down && c < 0) || (dir == journalfile.Up && c > 0) {
			best = fs
		}
	}
	if best == nil {
		return false, nil
	}

	win := best.cand
	// The same entry may sit in several files; consume every copy.
	for _, fs := range j.files {
		if fs != best && fs.cand != nil && compareCandidates(fs, fs.cand, best, win) == 0 {
			fs.last, fs.cand, fs.relocate = fs.cand.off, nil, false
		}
	}
	best.last, best.cand, best.relocate = win.off, nil, false

	j.current = &current{fs: best, off: win.off, entry: win.entry}
	j.loc = discreteLocation(best, win.entry)
	if fromSeek {
		// Files that could not answer the seek key get another chance
		// against the entry that was found, which carries every key.
		for _, fs := range j.files {
			if fs.done {
				fs.done, fs.relocate = false, true
			}
		}
	}
	return true, nil
}

// nextCandidate finds the next entry of fs in dir that satisfies the
// matches and lies beyond the current location. Entries that fail to decode
// are skipped.
func (j *Journal) nextCandidate(fs *fileState, dir journalfile.Direction) (*candidate, error) {
	var (
		off uint64
		ok  bool
		err error
	)
	if fs.relocate || fs.last == 0 {
		off, ok, err = j.locate(fs, dir)
	} else {
		off, ok, err = j.seekFrom(fs, fs.last, dir, false)
	}
	for err == nil && ok {
		e, eerr := fs.f.EntryAt(off)
		switch {
		case eerr != nil && !journalfile.IsCorrupt(eerr):
			return nil, eerr
		case eerr != nil:
			j.logger.Debug("skipping corrupted entry")
		case j.loc.typ != locDiscrete || beyond(compareWithLocation(fs, e, &j.loc), dir):
			return &candidate{off: off, entry: e}, nil
		}
		off, ok, err = j.seekFrom(fs, off, dir, false)
	}
	return nil, err
}

func beyond(c int, dir journalfile.Direction) bool {
	if dir == journalfile.Down {
		return c > 0
	}
	return c < 0
}

// locate positions fs at the first entry qualifying for the location.
func (j *Journal) locate(fs *fileState, dir journalfile.Direction) (uint64, bool, error) {
	switch j.loc.typ {
	case locHead:
		if dir == journalfile.Up {
			return 0, false, nil
		}
		return j.seekFrom(fs, 0, journalfile.Down, true)
	case locTail:
		if dir == journalfile.Down {
			return 0, false, nil
		}
		return j.seekFrom(fs, math.MaxUint64, journalfile.Up, true)
	}
	p, ok, err := j.locateKey(fs, dir)
	if err != nil || !ok {
		return 0, false, err
	}
	return j.seekFrom(fs, p, dir, true)
}

// locateKey picks the most precise key of the location this file can
// answer: seqnum within the same namespace, monotonic within a boot the
// file has seen, then realtime.
func (j *Journal) locateKey(fs *fileState, dir journalfile.Direction) (uint64, bool, error) {
	l := &j.loc
	if l.seqnumSet && fs.seqnumID == l.seqnumID {
		return fs.f.MoveToEntryBySeqnum(l.seqnum, dir)
	}
	if l.monotonicSet {
		_, has, err := fs.f.FindData(journalfile.BootPayload(l.bootID))
		if err != nil {
			return 0, false, err
		}
		if has {
			return fs.f.MoveToEntryByMonotonic(l.bootID, l.monotonic, dir)
		}
	}
	if l.realtimeSet {
		return fs.f.MoveToEntryByRealtime(l.realtime, dir)
	}
	return 0, false, nil
}

// seekFrom returns the nearest entry at (inclusive) or past p that
// satisfies the matches.
func (j *Journal) seekFrom(fs *fileState, p uint64, dir journalfile.Direction, inclusive bool) (uint64, bool, error) {
	if !j.matches.empty() {
		return j.matchFrom(fs, p, dir, inclusive)
	}
	if inclusive {
		return fs.f.MoveToEntryByOffset(p, dir)
	}
	return fs.f.NextEntry(p, dir)
}
