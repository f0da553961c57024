package journalfile

import "sort"

// Key selects what a bisection compares.
type Key int

const (
	KeySeqnum Key = iota
	KeyRealtime
	KeyMonotonic
	KeyOffset
)

func (k Key) String() string {
	switch k {
	case KeySeqnum:
		return "seqnum"
	case KeyRealtime:
		return "realtime"
	case KeyMonotonic:
		return "monotonic"
	default:
		return "offset"
	}
}

// keyFunc extracts the key of the entry at off. valid is false for entries
// that cannot be decoded or carry a zero key.
type keyFunc func(off uint64) (key uint64, valid bool, err error)

func (f *File) keyFunc(k Key) keyFunc {
	if k == KeyOffset {
		return func(off uint64) (uint64, bool, error) { return off, true, nil }
	}
	return func(off uint64) (uint64, bool, error) {
		e, err := f.entryHeaderAt(off)
		if err != nil {
			if IsCorrupt(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		var v uint64
		switch k {
		case KeySeqnum:
			v = e.Seqnum
		case KeyRealtime:
			v = e.Realtime
		case KeyMonotonic:
			v = e.Monotonic
		}
		return v, v != 0, nil
	}
}

// probe caches the keys read during one bisection.
type probe struct {
	list entryList
	key  keyFunc
	err  error
	offs map[uint64]uint64
	keys map[uint64]uint64
	ok   map[uint64]bool
}

func (p *probe) at(i uint64) (key, off uint64, valid bool) {
	if p.err != nil {
		return 0, 0, false
	}
	if v, seen := p.ok[i]; seen {
		return p.keys[i], p.offs[i], v
	}
	off, err := p.list.At(i)
	if err != nil {
		if !IsCorrupt(err) {
			p.err = err
		}
		p.ok[i] = false
		return 0, 0, false
	}
	k, valid, err := p.key(off)
	if err != nil {
		p.err = err
		return 0, 0, false
	}
	p.offs[i], p.keys[i], p.ok[i] = off, k, valid
	return k, off, valid
}

// bisect searches list, which is sorted by key except for invalid items, for
// the first valid item with key >= needle (Down) or the last valid item with
// key <= needle (Up). Invalid items sort after everything; when they are
// followed by valid items that may still match, the search restarts in the
// remainder.
func bisect(list entryList, keyOf keyFunc, needle uint64, dir Direction) (idx, off uint64, found bool, err error) {
	p := &probe{
		list: list,
		key:  keyOf,
		offs: make(map[uint64]uint64),
		keys: make(map[uint64]uint64),
		ok:   make(map[uint64]bool),
	}
	n := list.Len()
	lo := uint64(0)

	for lo < n {
		// First index in [lo, n) that is invalid or past the needle.
		j := lo + uint64(sort.Search(int(n-lo), func(k int) bool {
			key, _, valid := p.at(lo + uint64(k))
			if !valid {
				return true
			}
			if dir == Down {
				return key >= needle
			}
			return key > needle
		}))
		if p.err != nil {
			return 0, 0, false, p.err
		}

		if dir == Up && j > lo {
			_, o, _ := p.at(j - 1)
			idx, off, found = j-1, o, true
		}
		if j == n {
			break
		}
		key, o, valid := p.at(j)
		if valid {
			if dir == Down {
				return j, o, true, nil
			}
			break
		}

		// Skip the invalid run.
		k := j + 1
		for ; k < n; k++ {
			if _, _, v := p.at(k); v {
				break
			}
		}
		if p.err != nil {
			return 0, 0, false, p.err
		}
		if k == n {
			break
		}
		key, o, _ = p.at(k)
		if dir == Down && key >= needle {
			return k, o, true, nil
		}
		if dir == Up && key > needle {
			break
		}
		lo = k
	}
	return idx, off, found, p.err
}
