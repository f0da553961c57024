package journal

import (
	"github.com/dd0wney/cluso-journal/pkg/id128"
)

func (j *Journal) seek(l location, kind string) error {
	if j.closed {
		return ErrClosed
	}
	j.loc = l
	j.current = nil
	j.reset = true
	j.metrics.RecordSeek(kind)
	return nil
}

// SeekHead positions before the first entry.
func (j *Journal) SeekHead() error {
	return j.seek(location{typ: locHead}, "head")
}

// SeekTail positions after the last entry.
func (j *Journal) SeekTail() error {
	return j.seek(location{typ: locTail}, "tail")
}

// SeekRealtime positions at realtime usec: Next returns the first entry at
// or after it, Previous the last entry at or before it.
func (j *Journal) SeekRealtime(usec uint64) error {
	return j.seek(location{typ: locSeek, realtimeSet: true, realtime: usec}, "realtime")
}

// SeekMonotonic positions at a monotonic time within one boot. Files that
// never saw the boot do not take part.
func (j *Journal) SeekMonotonic(boot id128.ID, usec uint64) error {
	return j.seek(location{typ: locSeek, monotonicSet: true, bootID: boot, monotonic: usec}, "monotonic")
}

// SeekSeqnum positions at a sequence number of one namespace.
func (j *Journal) SeekSeqnum(seqnumID id128.ID, seqnum uint64) error {
	return j.seek(location{typ: locSeek, seqnumSet: true, seqnumID: seqnumID, seqnum: seqnum}, "seqnum")
}

// SeekCursor positions at the entry a cursor names; Next or Previous then
// returns that entry if it still exists.
func (j *Journal) SeekCursor(tok string) error {
	l, err := parseCursor(tok)
	if err != nil {
		return err
	}
	return j.seek(l, "cursor")
}

// Cursor returns the token of the current entry.
func (j *Journal) Cursor() (string, error) {
	if j.current == nil || j.current.fs == nil {
		return "", ErrNoPosition
	}
	return formatCursor(j.current.fs.seqnumID, j.current.entry), nil
}

// TestCursor reports whether the current entry is the one tok names.
func (j *Journal) TestCursor(tok string) (bool, error) {
	if j.current == nil || j.current.fs == nil {
		return false, ErrNoPosition
	}
	l, err := parseCursor(tok)
	if err != nil {
		return false, err
	}
	e := j.current.entry
	switch {
	case l.seqnumSet && (l.seqnumID != j.current.fs.seqnumID || l.seqnum != e.Seqnum):
		return false, nil
	case l.monotonicSet && (l.bootID != e.BootID || l.monotonic != e.Monotonic):
		return false, nil
	case l.realtimeSet && l.realtime != e.Realtime:
		return false, nil
	case l.xorSet && l.xor != e.XorHash:
		return false, nil
	}
	return true, nil
}
