package journalfile

import (
	"github.com/dd0wney/cluso-journal/pkg/id128"
)

// BootField is the field every entry written with a boot id carries.
const BootField = "_BOOT_ID"

// BootPayload is the DATA payload marking entries of one boot.
func BootPayload(boot id128.ID) []byte {
	return []byte(BootField + "=" + boot.String())
}

func (f *File) find(list entryList, k Key, needle uint64, dir Direction) (uint64, bool, error) {
	if list.Len() == 0 {
		return 0, false, nil
	}
	f.metrics.RecordBisection(k.String())
	i, off, found, err := bisect(list, f.keyFunc(k), needle, dir)
	if err != nil || !found {
		return 0, false, err
	}
	list.setHint(i, off)
	return off, true, nil
}

// MoveToEntryBySeqnum returns the first entry with seqnum >= seqnum (Down)
// or the last with seqnum <= seqnum (Up).
func (f *File) MoveToEntryBySeqnum(seqnum uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	return f.find(f.masterList(), KeySeqnum, seqnum, dir)
}

// MoveToEntryByRealtime is MoveToEntryBySeqnum for realtime.
func (f *File) MoveToEntryByRealtime(realtime uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	return f.find(f.masterList(), KeyRealtime, realtime, dir)
}

// MoveToEntryByOffset returns the first entry at or after p (Down) or the
// last at or before p (Up).
func (f *File) MoveToEntryByOffset(p uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	return f.find(f.masterList(), KeyOffset, p, dir)
}

// MoveToEntryByMonotonic searches the entries of one boot by monotonic time.
// When no entry of the boot matches, Down continues with the entry following
// the boot's last entry and Up with the one preceding its first.
func (f *File) MoveToEntryByMonotonic(boot id128.ID, monotonic uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	d, ok, err := f.findData(BootPayload(boot), f.hash(BootPayload(boot)))
	if err != nil || !ok || d.NEntries == 0 {
		return 0, false, err
	}
	list := f.occurrences(d)
	off, found, err := f.find(list, KeyMonotonic, monotonic, dir)
	if err != nil || found {
		return off, found, err
	}
	edge := list.Len() - 1
	if dir == Up {
		edge = 0
	}
	anchor, err := list.At(edge)
	if err != nil {
		return 0, false, err
	}
	return f.nextEntry(f.masterList(), anchor, dir)
}

// NextEntry returns the entry strictly after (Down) or before (Up) the entry
// at p. p == 0 yields the first or last entry. Entries are returned by
// offset without being decoded, so corrupted entries remain reachable.
func (f *File) NextEntry(p uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	return f.nextEntry(f.masterList(), p, dir)
}

func (f *File) nextEntry(list entryList, p uint64, dir Direction) (uint64, bool, error) {
	n := list.Len()
	if n == 0 {
		return 0, false, nil
	}
	var i uint64
	switch {
	case p == 0 && dir == Down:
		i = 0
	case p == 0:
		i = n - 1
	default:
		if hi, hoff, ok := list.hint(); ok && hoff == p {
			if dir == Down {
				if hi+1 >= n {
					return 0, false, nil
				}
				i = hi + 1
			} else {
				if hi == 0 {
					return 0, false, nil
				}
				i = hi - 1
			}
			break
		}
		needle := p + 1
		if dir == Up {
			if p <= 1 {
				return 0, false, nil
			}
			needle = p - 1
		}
		f.metrics.RecordBisection(KeyOffset.String())
		idx, off, found, err := bisect(list, f.keyFunc(KeyOffset), needle, dir)
		if err != nil || !found {
			return 0, false, err
		}
		list.setHint(idx, off)
		return off, true, nil
	}
	off, err := list.At(i)
	if err != nil {
		return 0, false, err
	}
	list.setHint(i, off)
	return off, true, nil
}

// dataForList re-reads d so its occurrence list reflects later appends.
func (f *File) dataForList(d *DataObject) (entryList, error) {
	cur, err := f.dataAt(d.Offset)
	if err != nil {
		return nil, err
	}
	return f.occurrences(cur), nil
}

// NextEntryForData is NextEntry over the entries referencing d.
func (f *File) NextEntryForData(d *DataObject, p uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	list, err := f.dataForList(d)
	if err != nil {
		return 0, false, err
	}
	return f.nextEntry(list, p, dir)
}

// MoveToEntryByOffsetForData returns the first entry referencing d at or
// after p (Down), or the last at or before p (Up).
func (f *File) MoveToEntryByOffsetForData(d *DataObject, p uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	list, err := f.dataForList(d)
	if err != nil {
		return 0, false, err
	}
	return f.find(list, KeyOffset, p, dir)
}

// MoveToEntryBySeqnumForData is MoveToEntryBySeqnum over the entries referencing d.
func (f *File) MoveToEntryBySeqnumForData(d *DataObject, seqnum uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	list, err := f.dataForList(d)
	if err != nil {
		return 0, false, err
	}
	return f.find(list, KeySeqnum, seqnum, dir)
}

// MoveToEntryByRealtimeForData is MoveToEntryByRealtime over the entries referencing d.
func (f *File) MoveToEntryByRealtimeForData(d *DataObject, realtime uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	list, err := f.dataForList(d)
	if err != nil {
		return 0, false, err
	}
	return f.find(list, KeyRealtime, realtime, dir)
}

// MoveToEntryByMonotonicForData searches the entries referencing d that
// belong to boot. It returns nothing when the boot is not in this file.
func (f *File) MoveToEntryByMonotonicForData(d *DataObject, boot id128.ID, monotonic uint64, dir Direction) (uint64, bool, error) {
	f.lock()
	defer f.unlock()
	bd, ok, err := f.findData(BootPayload(boot), f.hash(BootPayload(boot)))
	if err != nil || !ok || bd.NEntries == 0 {
		return 0, false, err
	}
	// Position inside the boot first, then take the nearest entry of d.
	bootList := f.occurrences(bd)
	anchor, found, err := f.find(bootList, KeyMonotonic, monotonic, dir)
	if err != nil {
		return 0, false, err
	}
	if !found {
		edge := bootList.Len() - 1
		if dir == Up {
			edge = 0
		}
		if anchor, err = bootList.At(edge); err != nil {
			return 0, false, err
		}
		list, err := f.dataForList(d)
		if err != nil {
			return 0, false, err
		}
		return f.nextEntry(list, anchor, dir)
	}
	list, err := f.dataForList(d)
	if err != nil {
		return 0, false, err
	}
	return f.find(list, KeyOffset, anchor, dir)
}

// EntryAt decodes the entry at off.
func (f *File) EntryAt(off uint64) (*Entry, error) {
	f.lock()
	defer f.unlock()
	return f.entryAt(off)
}

// DataObject decodes the DATA object at off.
func (f *File) DataObject(off uint64) (*DataObject, error) {
	f.lock()
	defer f.unlock()
	return f.dataAt(off)
}

// EntryData returns the decompressed payload of every item of e.
func (f *File) EntryData(e *Entry) ([][]byte, error) {
	f.lock()
	defer f.unlock()
	out := make([][]byte, 0, len(e.Items))
	for _, it := range e.Items {
		d, err := f.dataAt(it.ObjectOffset)
		if err != nil {
			return nil, err
		}
		if d.Hash != it.Hash {
			return nil, f.corrupt(ObjectData, d.Offset, "hash does not match entry item")
		}
		p, err := f.DataPayload(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Stats summarises object counts and sizes.
type Stats struct {
	Objects      uint64
	Entries      uint64
	Data         uint64
	Fields       uint64
	EntryArrays  uint64
	Tags         uint64
	ArenaBytes   uint64
	FileBytes    uint64
	CachedChains int
}

func (f *File) Stats() Stats {
	f.lock()
	defer f.unlock()
	h := &f.header
	return Stats{
		Objects:      h.NObjects,
		Entries:      h.NEntries,
		Data:         h.NData,
		Fields:       h.NFields,
		EntryArrays:  h.NEntryArrays,
		Tags:         h.NTags,
		ArenaBytes:   h.ArenaSize,
		FileBytes:    f.b.size,
		CachedChains: f.chains.len(),
	}
}
