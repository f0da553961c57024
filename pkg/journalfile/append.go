package journalfile

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/pools"
	"github.com/dd0wney/cluso-journal/pkg/validation"
)

// EntryInput is one entry to append. Fields are FIELD=value payloads.
type EntryInput struct {
	Realtime  uint64
	Monotonic uint64
	BootID    id128.ID
	Fields    [][]byte
}

// AppendResult identifies an appended entry.
type AppendResult struct {
	Seqnum uint64
	Offset uint64
}

// pendingData is one payload of an entry being appended.
type pendingData struct {
	payload  []byte
	hash     uint64
	existing *DataObject
	stored   []byte
	alg      compress.Algorithm
}

// AppendEntry appends an entry. On error nothing is visible to readers; on
// ErrOutOfOrder and ErrFileFull the file is untouched.
func (f *File) AppendEntry(in EntryInput) (AppendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	res, err := f.appendEntry(in)
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrOutOfOrder):
		status = "out_of_order"
	case errors.Is(err, ErrFileFull):
		status = "file_full"
	case errors.Is(err, ErrInvalidEntry):
		status = "invalid"
	default:
		status = "error"
	}
	f.metrics.RecordAppend(status, time.Since(start))
	if err != nil {
		return res, NewError("append").Path(f.path).Cause(err).Err()
	}
	f.logger.Debug("appended entry", logging.Seqnum(res.Seqnum), logging.Offset(res.Offset))
	return res, nil
}

func validateInput(in *EntryInput) error {
	if in.Realtime == 0 || in.Realtime > math.MaxInt64 {
		return fmt.Errorf("%w: realtime %d out of range", ErrInvalidEntry, in.Realtime)
	}
	if in.Monotonic > math.MaxInt64 {
		return fmt.Errorf("%w: monotonic %d out of range", ErrInvalidEntry, in.Monotonic)
	}
	if len(in.Fields) == 0 {
		return fmt.Errorf("%w: no fields", ErrInvalidEntry)
	}
	for _, p := range in.Fields {
		if _, err := validation.ValidateFieldPayload(p, true); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
		}
	}
	return nil
}

// checkOrder rejects entries that would break time order within the file.
func (f *File) checkOrder(in *EntryInput) error {
	h := &f.header
	if !f.opts.StrictOrder || h.NEntries == 0 {
		return nil
	}
	tol := uint64(f.opts.ClockSkewTolerance / time.Microsecond)
	if in.BootID == h.TailEntryBootID {
		if in.Realtime < h.TailEntryRealtime && h.TailEntryRealtime-in.Realtime > tol {
			return fmt.Errorf("%w: realtime %d before tail %d", ErrOutOfOrder, in.Realtime, h.TailEntryRealtime)
		}
		if in.Monotonic < h.TailEntryMonotonic {
			return fmt.Errorf("%w: monotonic %d before tail %d", ErrOutOfOrder, in.Monotonic, h.TailEntryMonotonic)
		}
		return nil
	}
	if in.Realtime < h.TailEntryRealtime {
		return fmt.Errorf("%w: realtime %d before tail %d of previous boot", ErrOutOfOrder, in.Realtime, h.TailEntryRealtime)
	}
	return nil
}

func hasField(fields [][]byte, name string) bool {
	for _, p := range fields {
		if len(p) > len(name) && p[len(name)] == '=' && string(p[:len(name)]) == name {
			return true
		}
	}
	return false
}

func (f *File) appendEntry(in EntryInput) (AppendResult, error) {
	if f.closed {
		return AppendResult{}, ErrClosed
	}
	if !f.b.writable() {
		return AppendResult{}, ErrReadOnly
	}
	if f.archived {
		return AppendResult{}, ErrArchived
	}
	if err := validateInput(&in); err != nil {
		return AppendResult{}, err
	}
	if err := f.checkOrder(&in); err != nil {
		return AppendResult{}, err
	}

	fields := in.Fields
	if !in.BootID.IsNull() && !hasField(fields, BootField) {
		fields = append(slices.Clip(fields), BootPayload(in.BootID))
	}

	pending, err := f.plan(fields)
	if err != nil {
		return AppendResult{}, err
	}

	items := make([]EntryItem, 0, len(pending))
	var xor uint64
	for _, pd := range pending {
		d := pd.existing
		if d == nil {
			if d, _, err = f.internData(pd.payload, pd.stored, pd.alg); err != nil {
				return AppendResult{}, err
			}
		}
		items = append(items, EntryItem{ObjectOffset: d.Offset, Hash: d.Hash})
		xor ^= xxhash.Sum64(pd.payload)
	}
	slices.SortFunc(items, func(a, b EntryItem) int {
		switch {
		case a.ObjectOffset < b.ObjectOffset:
			return -1
		case a.ObjectOffset > b.ObjectOffset:
			return 1
		}
		return 0
	})

	h := &f.header
	seqnum := h.TailEntrySeqnum + 1
	bb := pools.NewBufferBuilder(entryObjectHeaderSize + entryItemSize*len(items))
	defer bb.Release()
	bb.WriteZeros(ObjectHeaderSize)
	bb.WriteUint64(seqnum)
	bb.WriteUint64(in.Realtime)
	bb.WriteUint64(in.Monotonic)
	bb.Write(in.BootID[:])
	bb.WriteUint64(xor)
	for _, it := range items {
		bb.WriteUint64(it.ObjectOffset)
		bb.WriteUint64(it.Hash)
	}
	off, err := f.appendObject(ObjectEntry, 0, bb.Bytes())
	if err != nil {
		return AppendResult{}, err
	}

	for _, it := range items {
		if err := f.linkData(it.ObjectOffset, off); err != nil {
			return AppendResult{}, err
		}
	}

	head, array, slot, err := f.chainAppend(h.EntryArrayOffset, h.NEntries, off)
	if err != nil {
		return AppendResult{}, err
	}
	h.EntryArrayOffset = head
	h.TailEntryArrayOffset = array
	h.TailEntryArrayNEntries = slot + 1

	if h.NEntries == 0 {
		h.HeadEntrySeqnum = seqnum
		h.HeadEntryRealtime = in.Realtime
	}
	h.TailEntrySeqnum = seqnum
	h.TailEntryRealtime = in.Realtime
	h.TailEntryMonotonic = in.Monotonic
	h.TailEntryBootID = in.BootID
	h.TailEntryOffset = off
	h.NEntries++
	if err := f.writeHeader(); err != nil {
		return AppendResult{}, err
	}
	return AppendResult{Seqnum: seqnum, Offset: off}, nil
}

// plan dedupes the payloads, resolves the ones already interned and checks
// that everything the append allocates fits before anything is written.
func (f *File) plan(fields [][]byte) ([]pendingData, error) {
	pending := make([]pendingData, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	newFields := make(map[string]struct{})
	var need uint64

	for _, p := range fields {
		if _, dup := seen[string(p)]; dup {
			continue
		}
		seen[string(p)] = struct{}{}

		pd := pendingData{payload: p, hash: f.hash(p)}
		d, ok, err := f.findData(p, pd.hash)
		if err != nil {
			return nil, err
		}
		if ok {
			pd.existing = d
			if d.NEntries > 0 {
				cost, err := f.chainAppendCost(d.EntryArrayOffset, d.NEntries-1)
				if err != nil {
					return nil, err
				}
				need += cost
			}
			pending = append(pending, pd)
			continue
		}

		pd.stored, pd.alg = f.storedPayload(p)
		need += align8(dataObjectHeaderSize + uint64(len(pd.stored)))

		name := p[:bytes.IndexByte(p, '=')]
		if _, planned := newFields[string(name)]; !planned {
			_, ok, err := f.findField(name, f.hash(name))
			if err != nil {
				return nil, err
			}
			if !ok {
				newFields[string(name)] = struct{}{}
				need += align8(fieldObjectHeaderSize + uint64(len(name)))
			}
		}
		pending = append(pending, pd)
	}

	need += align8(entryObjectHeaderSize + entryItemSize*uint64(len(pending)))
	cost, err := f.chainAppendCost(f.header.EntryArrayOffset, f.header.NEntries)
	if err != nil {
		return nil, err
	}
	need += cost

	if need > f.spaceLeft() {
		return nil, fmt.Errorf("%w: entry needs %d bytes, %d left", ErrFileFull, need, f.spaceLeft())
	}
	return pending, nil
}

// linkData records entry as the newest occurrence of the DATA object at off.
func (f *File) linkData(off, entry uint64) error {
	d, err := f.dataAt(off)
	if err != nil {
		return err
	}
	if d.NEntries == 0 {
		if err := f.b.writeUint64(off+40, entry); err != nil {
			return err
		}
	} else {
		head, _, _, err := f.chainAppend(d.EntryArrayOffset, d.NEntries-1, entry)
		if err != nil {
			return err
		}
		if d.EntryArrayOffset == 0 {
			if err := f.b.writeUint64(off+48, head); err != nil {
				return err
			}
		}
	}
	return f.b.writeUint64(off+56, d.NEntries+1)
}
