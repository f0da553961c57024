package journalfile

import (
	"encoding/binary"
	"fmt"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/id128"
)

var le = binary.LittleEndian

// ObjectHeader is the common prefix of every object.
type ObjectHeader struct {
	Type  ObjectType
	Flags uint8
	Size  uint64
}

func decodeObjectHeader(b []byte) ObjectHeader {
	return ObjectHeader{
		Type:  ObjectType(b[0]),
		Flags: b[1],
		Size:  le.Uint64(b[8:]),
	}
}

func encodeObjectHeader(b []byte, t ObjectType, flags uint8, size uint64) {
	b[0] = byte(t)
	b[1] = flags
	clear(b[2:8])
	le.PutUint64(b[8:], size)
}

// minObjectSize is the smallest valid size for each object type.
func minObjectSize(t ObjectType) uint64 {
	switch t {
	case ObjectData:
		return dataObjectHeaderSize
	case ObjectField:
		return fieldObjectHeaderSize
	case ObjectEntry:
		return entryObjectHeaderSize
	case ObjectDataHashTable, ObjectFieldHashTable:
		return ObjectHeaderSize + hashItemSize
	case ObjectEntryArray:
		return entryArrayHeaderSize
	case ObjectTag:
		return tagObjectSize
	default:
		return ObjectHeaderSize
	}
}

// DataObject is a decoded DATA object. Payload is as stored; use
// File.DataPayload for the decompressed form.
type DataObject struct {
	Offset           uint64
	Hash             uint64
	NextHashOffset   uint64
	NextFieldOffset  uint64
	EntryOffset      uint64
	EntryArrayOffset uint64
	NEntries         uint64
	Compression      compress.Algorithm
	Payload          []byte
}

// FieldObject is a decoded FIELD object.
type FieldObject struct {
	Offset         uint64
	Hash           uint64
	NextHashOffset uint64
	HeadDataOffset uint64
	Payload        []byte
}

// EntryItem references one DATA object from an entry.
type EntryItem struct {
	ObjectOffset uint64
	Hash         uint64
}

// Entry is a decoded ENTRY object.
type Entry struct {
	Offset    uint64
	Seqnum    uint64
	Realtime  uint64
	Monotonic uint64
	BootID    id128.ID
	XorHash   uint64
	Items     []EntryItem
}

// TagObject is a decoded TAG object. Tags are validated but never written.
type TagObject struct {
	Offset uint64
	Seqnum uint64
	Epoch  uint64
	Tag    [32]byte
}

func decodeData(off uint64, b []byte, h ObjectHeader) (*DataObject, error) {
	if h.Flags&^0x03 != 0 {
		return nil, fmt.Errorf("unknown object flags %#x", h.Flags)
	}
	d := &DataObject{
		Offset:           off,
		Hash:             le.Uint64(b[16:]),
		NextHashOffset:   le.Uint64(b[24:]),
		NextFieldOffset:  le.Uint64(b[32:]),
		EntryOffset:      le.Uint64(b[40:]),
		EntryArrayOffset: le.Uint64(b[48:]),
		NEntries:         le.Uint64(b[56:]),
		Compression:      compress.Algorithm(h.Flags),
		Payload:          b[dataObjectHeaderSize:h.Size],
	}
	if len(d.Payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if d.NEntries > 0 && !validOffset(d.EntryOffset) {
		return nil, fmt.Errorf("%d entries but no first entry", d.NEntries)
	}
	if d.NEntries > 1 && !validOffset(d.EntryArrayOffset) {
		return nil, fmt.Errorf("%d entries but no entry array", d.NEntries)
	}
	return d, nil
}

func decodeField(off uint64, b []byte, h ObjectHeader) (*FieldObject, error) {
	f := &FieldObject{
		Offset:         off,
		Hash:           le.Uint64(b[16:]),
		NextHashOffset: le.Uint64(b[24:]),
		HeadDataOffset: le.Uint64(b[32:]),
		Payload:        b[fieldObjectHeaderSize:h.Size],
	}
	if len(f.Payload) == 0 {
		return nil, fmt.Errorf("empty field name")
	}
	return f, nil
}

// decodeEntryHeader decodes the fixed part of an entry; items are left nil.
func decodeEntryHeader(off uint64, b []byte) (*Entry, error) {
	e := &Entry{
		Offset:    off,
		Seqnum:    le.Uint64(b[16:]),
		Realtime:  le.Uint64(b[24:]),
		Monotonic: le.Uint64(b[32:]),
		XorHash:   le.Uint64(b[56:]),
	}
	copy(e.BootID[:], b[40:56])
	if e.Seqnum == 0 {
		return nil, fmt.Errorf("zero seqnum")
	}
	if e.Realtime == 0 {
		return nil, fmt.Errorf("zero realtime")
	}
	return e, nil
}

func decodeEntry(off uint64, b []byte, h ObjectHeader) (*Entry, error) {
	if (h.Size-entryObjectHeaderSize)%entryItemSize != 0 {
		return nil, fmt.Errorf("entry size %d not a whole number of items", h.Size)
	}
	e, err := decodeEntryHeader(off, b)
	if err != nil {
		return nil, err
	}
	n := (h.Size - entryObjectHeaderSize) / entryItemSize
	e.Items = make([]EntryItem, n)
	for i := range e.Items {
		p := entryObjectHeaderSize + uint64(i)*entryItemSize
		e.Items[i] = EntryItem{ObjectOffset: le.Uint64(b[p:]), Hash: le.Uint64(b[p+8:])}
		if !validOffset(e.Items[i].ObjectOffset) {
			return nil, fmt.Errorf("item %d has invalid offset %#x", i, e.Items[i].ObjectOffset)
		}
		if i > 0 && e.Items[i].ObjectOffset <= e.Items[i-1].ObjectOffset {
			return nil, fmt.Errorf("items not sorted at %d", i)
		}
	}
	return e, nil
}

func decodeTag(off uint64, b []byte, h ObjectHeader) (*TagObject, error) {
	if h.Size != tagObjectSize {
		return nil, fmt.Errorf("tag size %d", h.Size)
	}
	t := &TagObject{
		Offset: off,
		Seqnum: le.Uint64(b[16:]),
		Epoch:  le.Uint64(b[24:]),
	}
	copy(t.Tag[:], b[32:64])
	return t, nil
}

// entryArrayCapacity is the number of slots in an entry array of size n.
func entryArrayCapacity(size uint64) uint64 {
	return (size - entryArrayHeaderSize) / 8
}

// hashBuckets is the number of buckets in a hash table object of size n.
func hashBuckets(size uint64) uint64 {
	return (size - ObjectHeaderSize) / hashItemSize
}
