package journal

import (
	"cmp"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
)

// EntryKey is what ordering across files looks at.
type EntryKey struct {
	SeqnumID  id128.ID
	Seqnum    uint64
	BootID    id128.ID
	Monotonic uint64
	Realtime  uint64
	XorHash   uint64
}

func keyOf(fs *fileState, e *journalfile.Entry) EntryKey {
	return EntryKey{
		SeqnumID:  fs.seqnumID,
		Seqnum:    e.Seqnum,
		BootID:    e.BootID,
		Monotonic: e.Monotonic,
		Realtime:  e.Realtime,
		XorHash:   e.XorHash,
	}
}

// CompareEntries orders entries from different files: by seqnum within one
// seqnum namespace, by monotonic time within one boot, then by realtime and
// finally by content hash. Zero means the same entry.
func CompareEntries(a, b EntryKey) int {
	if a.SeqnumID == b.SeqnumID {
		if c := cmp.Compare(a.Seqnum, b.Seqnum); c != 0 {
			return c
		}
	}
	if a.BootID == b.BootID {
		if c := cmp.Compare(a.Monotonic, b.Monotonic); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Realtime, b.Realtime); c != 0 {
		return c
	}
	return cmp.Compare(a.XorHash, b.XorHash)
}

func compareCandidates(a *fileState, ae *candidate, b *fileState, be *candidate) int {
	if a == b {
		return cmp.Compare(ae.off, be.off)
	}
	return CompareEntries(keyOf(a, ae.entry), keyOf(b, be.entry))
}

// compareWithLocation compares an entry with a discrete location using the
// same precedence as CompareEntries.
func compareWithLocation(fs *fileState, e *journalfile.Entry, l *location) int {
	if l.seqnumSet && fs.seqnumID == l.seqnumID {
		if c := cmp.Compare(e.Seqnum, l.seqnum); c != 0 {
			return c
		}
	}
	if l.monotonicSet && e.BootID == l.bootID {
		if c := cmp.Compare(e.Monotonic, l.monotonic); c != 0 {
			return c
		}
	}
	if l.realtimeSet {
		if c := cmp.Compare(e.Realtime, l.realtime); c != 0 {
			return c
		}
	}
	if l.xorSet {
		return cmp.Compare(e.XorHash, l.xor)
	}
	return 0
}
