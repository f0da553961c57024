package journal

import (
	"fmt"
	"slices"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
)

// BootInfo describes one boot seen in the journal.
type BootInfo struct {
	ID            id128.ID
	FirstRealtime uint64
	LastRealtime  uint64

	first EntryKey
}

// Boots lists distinct boots in stream order, oldest first, or newest first
// when advanceOlder is set. At most limit boots are returned; a negative
// limit means all of them. Matches and the current position are left alone.
func (j *Journal) Boots(advanceOlder bool, limit int) ([]BootInfo, error) {
	if j.closed {
		return nil, ErrClosed
	}
	if limit == 0 {
		return []BootInfo{}, nil
	}
	boots, err := j.allBoots()
	if err != nil {
		return nil, err
	}
	if advanceOlder {
		slices.Reverse(boots)
	}
	if limit > 0 && len(boots) > limit {
		boots = boots[:limit]
	}
	return boots, nil
}

// allBoots collects boots from every file's _BOOT_ID occurrence lists: the
// first and last entry of each list bound the boot within that file.
func (j *Journal) allBoots() ([]BootInfo, error) {
	byID := make(map[id128.ID]*BootInfo)
	for _, fs := range append([]*fileState(nil), j.files...) {
		var errs []error
		err := fs.f.FieldData([]byte(journalfile.BootField), func(d *journalfile.DataObject, p []byte) bool {
			if err := j.collectBoot(fs, d, byID); err != nil {
				errs = append(errs, err)
				return false
			}
			return true
		})
		if err == nil && len(errs) > 0 {
			err = errs[0]
		}
		if err != nil {
			j.drop(fs, err)
		}
	}

	out := make([]BootInfo, 0, len(byID))
	for _, b := range byID {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b BootInfo) int {
		return CompareEntries(a.first, b.first)
	})
	return out, nil
}

func (j *Journal) collectBoot(fs *fileState, d *journalfile.DataObject, byID map[id128.ID]*BootInfo) error {
	first, ok, err := j.edgeEntry(fs, d, journalfile.Down)
	if err != nil || !ok {
		return err
	}
	last, _, err := j.edgeEntry(fs, d, journalfile.Up)
	if err != nil {
		return err
	}
	id := first.BootID
	if id.IsNull() {
		return nil
	}
	fk := keyOf(fs, first)
	b, seen := byID[id]
	if !seen {
		byID[id] = &BootInfo{ID: id, FirstRealtime: first.Realtime, LastRealtime: last.Realtime, first: fk}
		return nil
	}
	if CompareEntries(fk, b.first) < 0 {
		b.first, b.FirstRealtime = fk, first.Realtime
	}
	if last.Realtime > b.LastRealtime {
		b.LastRealtime = last.Realtime
	}
	return nil
}

// edgeEntry returns the first (Down) or last (Up) decodable entry
// referencing d.
func (j *Journal) edgeEntry(fs *fileState, d *journalfile.DataObject, dir journalfile.Direction) (*journalfile.Entry, bool, error) {
	off, ok, err := fs.f.NextEntryForData(d, 0, dir)
	for err == nil && ok {
		e, eerr := fs.f.EntryAt(off)
		if eerr == nil {
			return e, true, nil
		}
		if !journalfile.IsCorrupt(eerr) {
			return nil, false, eerr
		}
		off, ok, err = fs.f.NextEntryForData(d, off, dir)
	}
	return nil, false, err
}

// FindBoot resolves a boot relative to ref. With a null ref, offset > 0
// counts from the oldest boot (1 is the oldest) and offset <= 0 from the
// newest (0 is the newest). Otherwise offset steps from ref, negative
// towards older boots.
func (j *Journal) FindBoot(ref id128.ID, offset int) (id128.ID, error) {
	if j.closed {
		return id128.Null, ErrClosed
	}
	boots, err := j.allBoots()
	if err != nil {
		return id128.Null, err
	}
	var idx int
	if ref.IsNull() {
		if offset > 0 {
			idx = offset - 1
		} else {
			idx = len(boots) - 1 + offset
		}
	} else {
		at := slices.IndexFunc(boots, func(b BootInfo) bool { return b.ID == ref })
		if at < 0 {
			return id128.Null, fmt.Errorf("%w: boot %s", ErrNotFound, ref)
		}
		idx = at + offset
	}
	if idx < 0 || idx >= len(boots) {
		return id128.Null, fmt.Errorf("%w: boot offset %d", ErrNotFound, offset)
	}
	return boots[idx].ID, nil
}
