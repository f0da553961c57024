package journalfile

import (
	"container/list"
	"fmt"
	"sort"

	"github.com/dd0wney/cluso-journal/pkg/metrics"
	"github.com/dd0wney/cluso-journal/pkg/pools"
)

// chainSegment is one entry array of a chain: its offset, the chain index of
// its first slot and its capacity.
type chainSegment struct {
	offset   uint64
	first    uint64
	capacity uint64
}

func (s chainSegment) end() uint64 {
	return s.first + s.capacity
}

// chainState is what is remembered about one entry-array chain. segments is
// always a prefix of the chain; it only grows, because arrays are never
// unlinked. The hint is the position of the last lookup, in the index space
// of the list that owns the chain.
type chainState struct {
	head       uint64
	segments   []chainSegment
	hintIndex  uint64
	hintOffset uint64
	hintValid  bool
}

func (c *chainState) setHint(i, off uint64) {
	c.hintIndex, c.hintOffset, c.hintValid = i, off, true
}

// chainCache is an LRU of chain states keyed by chain head.
type chainCache struct {
	capacity int
	items    map[uint64]*list.Element
	lru      *list.List
	metrics  *metrics.Registry
}

func newChainCache(capacity int, m *metrics.Registry) *chainCache {
	return &chainCache{
		capacity: capacity,
		items:    make(map[uint64]*list.Element),
		lru:      list.New(),
		metrics:  m,
	}
}

// get returns the state for the chain at head, creating an empty one on a miss.
func (c *chainCache) get(head uint64) *chainState {
	if elem, ok := c.items[head]; ok {
		c.lru.MoveToFront(elem)
		c.metrics.RecordChainCache(true)
		return elem.Value.(*chainState)
	}
	c.metrics.RecordChainCache(false)

	st := &chainState{head: head}
	c.items[head] = c.lru.PushFront(st)
	if c.lru.Len() > c.capacity {
		c.evict()
	}
	return st
}

func (c *chainCache) evict() {
	elem := c.lru.Back()
	if elem != nil {
		c.lru.Remove(elem)
		delete(c.items, elem.Value.(*chainState).head)
	}
}

func (c *chainCache) len() int {
	return c.lru.Len()
}

func nextCapacity(cur uint64) uint64 {
	n := cur * 2
	if n < minEntryArrayCapacity {
		n = minEntryArrayCapacity
	}
	if n > maxEntryArrayCapacity {
		n = maxEntryArrayCapacity
	}
	return n
}

func entryArrayObjectSize(capacity uint64) uint64 {
	return entryArrayHeaderSize + 8*capacity
}

// loadFirst makes sure the head segment is known.
func (f *File) loadFirst(c *chainState) error {
	if len(c.segments) > 0 {
		return nil
	}
	_, capacity, err := f.arrayHeaderAt(c.head)
	if err != nil {
		return err
	}
	c.segments = append(c.segments, chainSegment{offset: c.head, capacity: capacity})
	return nil
}

// extend follows the next link of the last known segment. It returns false
// at the end of the chain.
func (f *File) extend(c *chainState) (bool, error) {
	last := c.segments[len(c.segments)-1]
	next, _, err := f.arrayHeaderAt(last.offset)
	if err != nil || next == 0 {
		return false, err
	}
	_, capacity, err := f.arrayHeaderAt(next)
	if err != nil {
		return false, err
	}
	c.segments = append(c.segments, chainSegment{offset: next, first: last.end(), capacity: capacity})
	return true, nil
}

// segmentFor returns the segment holding chain index i.
func (f *File) segmentFor(c *chainState, i uint64) (chainSegment, error) {
	if err := f.loadFirst(c); err != nil {
		return chainSegment{}, err
	}
	for c.segments[len(c.segments)-1].end() <= i {
		ok, err := f.extend(c)
		if err != nil {
			return chainSegment{}, err
		}
		if !ok {
			return chainSegment{}, f.corrupt(ObjectEntryArray, c.head, fmt.Sprintf("chain ends before index %d", i))
		}
	}
	k := sort.Search(len(c.segments), func(k int) bool { return c.segments[k].end() > i })
	return c.segments[k], nil
}

// chainAt returns the entry offset at chain index i.
func (f *File) chainAt(c *chainState, i uint64) (uint64, error) {
	seg, err := f.segmentFor(c, i)
	if err != nil {
		return 0, err
	}
	off, err := f.arraySlot(seg.offset, i-seg.first)
	if err != nil {
		return 0, err
	}
	if !validOffset(off) {
		return 0, f.corrupt(ObjectEntryArray, seg.offset, fmt.Sprintf("slot %d holds %#x", i-seg.first, off))
	}
	return off, nil
}

// chainTail walks to the last array of the chain.
func (f *File) chainTail(c *chainState) (chainSegment, error) {
	if err := f.loadFirst(c); err != nil {
		return chainSegment{}, err
	}
	for {
		ok, err := f.extend(c)
		if err != nil {
			return chainSegment{}, err
		}
		if !ok {
			return c.segments[len(c.segments)-1], nil
		}
	}
}

// chainAppendCost is the number of arena bytes appending one item to a chain
// holding n items will allocate.
func (f *File) chainAppendCost(head, n uint64) (uint64, error) {
	if head == 0 {
		return align8(entryArrayObjectSize(minEntryArrayCapacity)), nil
	}
	tail, err := f.chainTail(f.chains.get(head))
	if err != nil {
		return 0, err
	}
	if n < tail.end() {
		return 0, nil
	}
	return align8(entryArrayObjectSize(nextCapacity(tail.capacity))), nil
}

// chainAppend stores entry at index n of the chain at head, allocating the
// first or a further array as needed. It returns the chain head and the
// array and slot the entry landed in.
func (f *File) chainAppend(head, n, entry uint64) (newHead, array, slot uint64, err error) {
	if head == 0 {
		off, err := f.newEntryArray(minEntryArrayCapacity, entry)
		return off, off, 0, err
	}
	c := f.chains.get(head)
	tail, err := f.chainTail(c)
	if err != nil {
		return 0, 0, 0, err
	}
	if n < tail.first {
		return 0, 0, 0, f.corrupt(ObjectEntryArray, head, fmt.Sprintf("chain longer than its %d items", n))
	}
	if n < tail.end() {
		slot = n - tail.first
		if err := f.b.writeUint64(tail.offset+entryArrayHeaderSize+8*slot, entry); err != nil {
			return 0, 0, 0, err
		}
		return head, tail.offset, slot, nil
	}
	if n > tail.end() {
		return 0, 0, 0, f.corrupt(ObjectEntryArray, head, fmt.Sprintf("chain shorter than its %d items", n))
	}
	capacity := nextCapacity(tail.capacity)
	off, err := f.newEntryArray(capacity, entry)
	if err != nil {
		return 0, 0, 0, err
	}
	if err := f.b.writeUint64(tail.offset+ObjectHeaderSize, off); err != nil {
		return 0, 0, 0, err
	}
	c.segments = append(c.segments, chainSegment{offset: off, first: tail.end(), capacity: capacity})
	return head, off, 0, nil
}

func (f *File) newEntryArray(capacity, first uint64) (uint64, error) {
	obj := pools.GetBytesSized(int(entryArrayObjectSize(capacity)))
	defer pools.PutBytes(obj)
	le.PutUint64(obj[entryArrayHeaderSize:], first)
	return f.appendObject(ObjectEntryArray, 0, obj)
}

// entryList is an ordered list of entry offsets that can be bisected.
type entryList interface {
	Len() uint64
	At(i uint64) (uint64, error)
	// hint returns the position of the last returned item.
	hint() (i, off uint64, ok bool)
	setHint(i, off uint64)
}

// chainList is a whole chain, such as the master entry list.
type chainList struct {
	f *File
	c *chainState
	n uint64
}

func (l *chainList) Len() uint64 { return l.n }

func (l *chainList) At(i uint64) (uint64, error) {
	return l.f.chainAt(l.c, i)
}

func (l *chainList) hint() (uint64, uint64, bool) {
	if l.c == nil {
		return 0, 0, false
	}
	return l.c.hintIndex, l.c.hintOffset, l.c.hintValid && l.c.hintIndex < l.n
}

func (l *chainList) setHint(i, off uint64) {
	if l.c != nil {
		l.c.setHint(i, off)
	}
}

// dataList is the occurrence list of one DATA object: the inline first
// entry followed by the DATA object's own chain.
type dataList struct {
	f     *File
	first uint64
	c     *chainState
	n     uint64
}

func (l *dataList) Len() uint64 { return l.n }

func (l *dataList) At(i uint64) (uint64, error) {
	if i == 0 {
		return l.first, nil
	}
	if l.c == nil {
		return 0, l.f.corrupt(ObjectData, l.first, "occurrence list without chain")
	}
	return l.f.chainAt(l.c, i-1)
}

func (l *dataList) hint() (uint64, uint64, bool) {
	if l.c == nil {
		return 0, 0, false
	}
	return l.c.hintIndex, l.c.hintOffset, l.c.hintValid && l.c.hintIndex < l.n
}

func (l *dataList) setHint(i, off uint64) {
	if l.c != nil {
		l.c.setHint(i, off)
	}
}

func (f *File) masterList() entryList {
	n := f.header.NEntries
	if n == 0 || f.header.EntryArrayOffset == 0 {
		return &chainList{f: f}
	}
	return &chainList{f: f, c: f.chains.get(f.header.EntryArrayOffset), n: n}
}

func (f *File) occurrences(d *DataObject) entryList {
	l := &dataList{f: f, first: d.EntryOffset, n: d.NEntries}
	if d.EntryArrayOffset != 0 {
		l.c = f.chains.get(d.EntryArrayOffset)
	}
	return l
}
