package journalfile

import (
	"fmt"
	"path/filepath"
)

// spaceLeft is the number of bytes that can still be allocated.
func (f *File) spaceLeft() uint64 {
	end := align8(f.header.arenaEnd())
	if end >= f.opts.MaxFileSize {
		return 0
	}
	return f.opts.MaxFileSize - end
}

// appendObject writes obj at the end of the arena and returns its offset.
// The first ObjectHeaderSize bytes of obj are overwritten with the object
// header. The header is rewritten after every allocation so the arena bounds
// on disk always cover every object.
func (f *File) appendObject(t ObjectType, flags uint8, obj []byte) (uint64, error) {
	if !f.b.writable() {
		return 0, ErrReadOnly
	}
	size := uint64(len(obj))
	if size < minObjectSize(t) {
		return 0, fmt.Errorf("%w: %s object of %d bytes", ErrInvalidEntry, t, size)
	}
	off := align8(f.header.arenaEnd())
	end := off + align8(size)
	if end > f.opts.MaxFileSize {
		return 0, fmt.Errorf("%w: need %d bytes, limit %d", ErrFileFull, end, f.opts.MaxFileSize)
	}
	if err := f.b.ensureSize(end, f.opts.MaxFileSize); err != nil {
		return 0, err
	}

	encodeObjectHeader(obj, t, flags, size)
	if err := f.b.writeAt(obj, off); err != nil {
		return 0, err
	}

	h := &f.header
	h.TailObjectOffset = off
	h.NObjects++
	h.ArenaSize = end - h.HeaderSize
	switch t {
	case ObjectData:
		h.NData++
	case ObjectField:
		h.NFields++
	case ObjectEntryArray:
		h.NEntryArrays++
	case ObjectTag:
		h.NTags++
	}
	if err := f.writeHeader(); err != nil {
		return 0, err
	}
	f.metrics.SetArenaBytes(filepath.Base(f.path), end)
	return off, nil
}

// readObject reads and bounds-checks the object at off. want == ObjectUnused
// accepts any type.
func (f *File) readObject(want ObjectType, off uint64) (ObjectHeader, []byte, error) {
	h := &f.header
	if !validOffset(off) || off < h.HeaderSize || off+ObjectHeaderSize > h.arenaEnd() {
		return ObjectHeader{}, nil, f.corrupt(want, off, "offset outside arena")
	}
	var hdr [ObjectHeaderSize]byte
	if err := f.b.readAt(hdr[:], off); err != nil {
		return ObjectHeader{}, nil, NewError("move_to_object").Path(f.path).Object(want, off).Cause(err).Err()
	}
	oh := decodeObjectHeader(hdr[:])
	switch {
	case oh.Type == ObjectUnused || oh.Type >= objectTypeMax:
		return oh, nil, f.corrupt(want, off, fmt.Sprintf("bad object type %d", oh.Type))
	case want != ObjectUnused && oh.Type != want:
		return oh, nil, f.corrupt(want, off, fmt.Sprintf("found %s", oh.Type))
	case oh.Size < minObjectSize(oh.Type):
		return oh, nil, f.corrupt(oh.Type, off, fmt.Sprintf("size %d too small", oh.Size))
	case off+oh.Size < off || off+oh.Size > h.arenaEnd():
		return oh, nil, f.corrupt(oh.Type, off, fmt.Sprintf("size %d runs past arena", oh.Size))
	}
	buf := make([]byte, oh.Size)
	if err := f.b.readAt(buf, off); err != nil {
		return oh, nil, NewError("move_to_object").Path(f.path).Object(oh.Type, off).Cause(err).Err()
	}
	return oh, buf, nil
}

func (f *File) corrupt(t ObjectType, off uint64, reason string) error {
	f.metrics.RecordCorruptObject()
	return NewError("move_to_object").Path(f.path).Object(t, off).Causef(ErrCorruptObject, "%s", reason).Err()
}

func (f *File) dataAt(off uint64) (*DataObject, error) {
	oh, buf, err := f.readObject(ObjectData, off)
	if err != nil {
		return nil, err
	}
	d, err := decodeData(off, buf, oh)
	if err != nil {
		return nil, f.corrupt(ObjectData, off, err.Error())
	}
	return d, nil
}

func (f *File) fieldAt(off uint64) (*FieldObject, error) {
	oh, buf, err := f.readObject(ObjectField, off)
	if err != nil {
		return nil, err
	}
	fo, err := decodeField(off, buf, oh)
	if err != nil {
		return nil, f.corrupt(ObjectField, off, err.Error())
	}
	return fo, nil
}

func (f *File) entryAt(off uint64) (*Entry, error) {
	oh, buf, err := f.readObject(ObjectEntry, off)
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(off, buf, oh)
	if err != nil {
		return nil, f.corrupt(ObjectEntry, off, err.Error())
	}
	return e, nil
}

// entryHeaderAt reads only the fixed part of an entry, which is all a
// bisection key needs.
func (f *File) entryHeaderAt(off uint64) (*Entry, error) {
	h := &f.header
	if !validOffset(off) || off < h.HeaderSize || off+entryObjectHeaderSize > h.arenaEnd() {
		return nil, f.corrupt(ObjectEntry, off, "offset outside arena")
	}
	var buf [entryObjectHeaderSize]byte
	if err := f.b.readAt(buf[:], off); err != nil {
		return nil, NewError("move_to_object").Path(f.path).Object(ObjectEntry, off).Cause(err).Err()
	}
	oh := decodeObjectHeader(buf[:])
	if oh.Type != ObjectEntry || oh.Size < entryObjectHeaderSize || off+oh.Size > h.arenaEnd() {
		return nil, f.corrupt(ObjectEntry, off, "bad entry header")
	}
	e, err := decodeEntryHeader(off, buf[:])
	if err != nil {
		return nil, f.corrupt(ObjectEntry, off, err.Error())
	}
	return e, nil
}

// arrayHeaderAt returns an entry array's next link and capacity.
func (f *File) arrayHeaderAt(off uint64) (next, capacity uint64, err error) {
	h := &f.header
	if !validOffset(off) || off < h.HeaderSize || off+entryArrayHeaderSize > h.arenaEnd() {
		return 0, 0, f.corrupt(ObjectEntryArray, off, "offset outside arena")
	}
	var buf [entryArrayHeaderSize]byte
	if err := f.b.readAt(buf[:], off); err != nil {
		return 0, 0, NewError("move_to_object").Path(f.path).Object(ObjectEntryArray, off).Cause(err).Err()
	}
	oh := decodeObjectHeader(buf[:])
	if oh.Type != ObjectEntryArray || oh.Size < entryArrayHeaderSize+8 || off+oh.Size > h.arenaEnd() {
		return 0, 0, f.corrupt(ObjectEntryArray, off, "bad entry array header")
	}
	next = le.Uint64(buf[ObjectHeaderSize:])
	if next != 0 && (!validOffset(next) || next <= off) {
		return 0, 0, f.corrupt(ObjectEntryArray, off, fmt.Sprintf("bad next link %#x", next))
	}
	return next, entryArrayCapacity(oh.Size), nil
}

// arraySlot reads slot i of the entry array at off. The caller knows i is
// within capacity.
func (f *File) arraySlot(off, i uint64) (uint64, error) {
	var buf [8]byte
	if err := f.b.readAt(buf[:], off+entryArrayHeaderSize+8*i); err != nil {
		return 0, NewError("move_to_object").Path(f.path).Object(ObjectEntryArray, off).Cause(err).Err()
	}
	return le.Uint64(buf[:]), nil
}

// Tag returns the TAG object at off. Tags are never written here but files
// produced elsewhere may carry them.
func (f *File) Tag(off uint64) (*TagObject, error) {
	f.lock()
	defer f.unlock()
	oh, buf, err := f.readObject(ObjectTag, off)
	if err != nil {
		return nil, err
	}
	t, err := decodeTag(off, buf, oh)
	if err != nil {
		return nil, f.corrupt(ObjectTag, off, err.Error())
	}
	return t, nil
}
