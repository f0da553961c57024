package journalfile

import (
	"encoding/binary"
	"fmt"

	"github.com/dd0wney/cluso-journal/pkg/id128"
)

// Header is the decoded fixed header at offset 0.
type Header struct {
	CompatibleFlags   uint32
	IncompatibleFlags uint32
	State             State

	FileID          id128.ID
	MachineID       id128.ID
	TailEntryBootID id128.ID
	SeqnumID        id128.ID

	HeaderSize uint64
	ArenaSize  uint64

	DataHashTableOffset  uint64
	DataHashTableSize    uint64
	FieldHashTableOffset uint64
	FieldHashTableSize   uint64

	TailObjectOffset uint64
	NObjects         uint64
	NEntries         uint64

	TailEntrySeqnum    uint64
	HeadEntrySeqnum    uint64
	EntryArrayOffset   uint64
	HeadEntryRealtime  uint64
	TailEntryRealtime  uint64
	TailEntryMonotonic uint64

	NData        uint64
	NFields      uint64
	NTags        uint64
	NEntryArrays uint64

	TailEntryArrayOffset   uint64
	TailEntryArrayNEntries uint64
	TailEntryOffset        uint64

	Version uint32
}

// arenaEnd is the first byte past the last object.
func (h *Header) arenaEnd() uint64 {
	return h.HeaderSize + h.ArenaSize
}

func (h *Header) encode(b []byte) {
	le := binary.LittleEndian
	copy(b[0:8], Signature)
	le.PutUint32(b[8:], h.CompatibleFlags)
	le.PutUint32(b[12:], h.IncompatibleFlags)
	b[16] = byte(h.State)
	clear(b[17:24])
	copy(b[24:40], h.FileID[:])
	copy(b[40:56], h.MachineID[:])
	copy(b[56:72], h.TailEntryBootID[:])
	copy(b[72:88], h.SeqnumID[:])

	words := h.words()
	for i, w := range words {
		le.PutUint64(b[88+8*i:], *w)
	}
	le.PutUint32(b[264:], h.Version)
	le.PutUint32(b[268:], 0)
}

// words lists the uint64 fields in on-disk order, starting at byte 88.
func (h *Header) words() []*uint64 {
	return []*uint64{
		&h.HeaderSize, &h.ArenaSize,
		&h.DataHashTableOffset, &h.DataHashTableSize,
		&h.FieldHashTableOffset, &h.FieldHashTableSize,
		&h.TailObjectOffset, &h.NObjects, &h.NEntries,
		&h.TailEntrySeqnum, &h.HeadEntrySeqnum,
		&h.EntryArrayOffset,
		&h.HeadEntryRealtime, &h.TailEntryRealtime, &h.TailEntryMonotonic,
		&h.NData, &h.NFields, &h.NTags, &h.NEntryArrays,
		&h.TailEntryArrayOffset, &h.TailEntryArrayNEntries, &h.TailEntryOffset,
	}
}

func decodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: header truncated to %d bytes", ErrCorruptObject, len(b))
	}
	if string(b[0:8]) != Signature {
		return h, fmt.Errorf("%w: bad signature %q", ErrIncompatible, b[0:8])
	}
	le := binary.LittleEndian
	h.CompatibleFlags = le.Uint32(b[8:])
	h.IncompatibleFlags = le.Uint32(b[12:])
	h.State = State(b[16])
	copy(h.FileID[:], b[24:40])
	copy(h.MachineID[:], b[40:56])
	copy(h.TailEntryBootID[:], b[56:72])
	copy(h.SeqnumID[:], b[72:88])
	for i, w := range h.words() {
		*w = le.Uint64(b[88+8*i:])
	}
	h.Version = le.Uint32(b[264:])
	return h, nil
}

// verify checks the header for structural consistency against the file
// size. It does not look at any object.
func (h *Header) verify(fileSize uint64, writable bool) error {
	if h.IncompatibleFlags&^incompatSupported != 0 {
		return fmt.Errorf("%w: unknown incompatible flags %#x", ErrIncompatible, h.IncompatibleFlags&^incompatSupported)
	}
	if writable && h.CompatibleFlags&^compatSupported != 0 {
		return fmt.Errorf("%w: unknown compatible flags %#x", ErrIncompatible, h.CompatibleFlags&^compatSupported)
	}
	if h.State > StateArchived {
		return fmt.Errorf("%w: unknown state %d", ErrCorruptObject, h.State)
	}
	if h.HeaderSize < HeaderSize || h.HeaderSize%8 != 0 {
		return fmt.Errorf("%w: header size %d", ErrCorruptObject, h.HeaderSize)
	}
	if h.arenaEnd() < h.HeaderSize || h.arenaEnd() > fileSize {
		return fmt.Errorf("%w: arena end %d beyond file size %d", ErrCorruptObject, h.arenaEnd(), fileSize)
	}
	inArena := func(off uint64) bool {
		return off == 0 || (off%8 == 0 && off >= h.HeaderSize && off < h.arenaEnd())
	}
	for _, off := range []uint64{
		h.DataHashTableOffset, h.FieldHashTableOffset, h.TailObjectOffset,
		h.EntryArrayOffset, h.TailEntryArrayOffset, h.TailEntryOffset,
	} {
		if !inArena(off) {
			return fmt.Errorf("%w: header offset %#x outside arena", ErrCorruptObject, off)
		}
	}
	if h.DataHashTableOffset == 0 || h.FieldHashTableOffset == 0 {
		return fmt.Errorf("%w: missing hash tables", ErrCorruptObject)
	}
	if h.NEntries > 0 {
		if h.HeadEntrySeqnum == 0 || h.TailEntrySeqnum < h.HeadEntrySeqnum {
			return fmt.Errorf("%w: seqnum range %d..%d", ErrCorruptObject, h.HeadEntrySeqnum, h.TailEntrySeqnum)
		}
		if h.EntryArrayOffset == 0 || h.TailEntryOffset == 0 {
			return fmt.Errorf("%w: entries without entry array", ErrCorruptObject)
		}
	}
	if h.SeqnumID.IsNull() || h.FileID.IsNull() {
		return fmt.Errorf("%w: null file or seqnum id", ErrCorruptObject)
	}
	return nil
}
