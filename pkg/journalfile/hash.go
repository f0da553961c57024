package journalfile

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/pools"
)

// maxPayloadSize bounds decompressed DATA payloads.
const maxPayloadSize = 64 << 20

// hash is the keyed 64-bit hash used for both hash tables. The key is the
// file id, so bucket distribution differs per file.
func (f *File) hash(p []byte) uint64 {
	h, err := blake2b.New(8, f.hashKey)
	if err != nil {
		// Only fails for an oversized key or digest size.
		panic(err)
	}
	h.Write(p)
	return le.Uint64(h.Sum(nil))
}

func (f *File) setupHashTables() error {
	dataBuckets := uint64(f.opts.DataHashTableBuckets)
	fieldBuckets := uint64(f.opts.FieldHashTableBuckets)

	off, err := f.appendObject(ObjectDataHashTable, 0, make([]byte, ObjectHeaderSize+dataBuckets*hashItemSize))
	if err != nil {
		return err
	}
	f.header.DataHashTableOffset = off + ObjectHeaderSize
	f.header.DataHashTableSize = dataBuckets * hashItemSize

	off, err = f.appendObject(ObjectFieldHashTable, 0, make([]byte, ObjectHeaderSize+fieldBuckets*hashItemSize))
	if err != nil {
		return err
	}
	f.header.FieldHashTableOffset = off + ObjectHeaderSize
	f.header.FieldHashTableSize = fieldBuckets * hashItemSize
	return f.writeHeader()
}

// bucket returns the head and tail of bucket i of the table at tableOff.
func (f *File) bucket(tableOff, i uint64) (head, tail uint64, err error) {
	var buf [hashItemSize]byte
	if err := f.b.readAt(buf[:], tableOff+i*hashItemSize); err != nil {
		return 0, 0, err
	}
	return le.Uint64(buf[:]), le.Uint64(buf[8:]), nil
}

// linkHash appends obj to the end of bucket i. Both DATA and FIELD keep
// next_hash_offset at the same position.
func (f *File) linkHash(tableOff, i, obj uint64) error {
	_, tail, err := f.bucket(tableOff, i)
	if err != nil {
		return err
	}
	if tail == 0 {
		if err := f.b.writeUint64(tableOff+i*hashItemSize, obj); err != nil {
			return err
		}
	} else if err := f.b.writeUint64(tail+24, obj); err != nil {
		return err
	}
	return f.b.writeUint64(tableOff+i*hashItemSize+8, obj)
}

// DataPayload returns d's payload decompressed.
func (f *File) DataPayload(d *DataObject) ([]byte, error) {
	if d.Compression == compress.None {
		return d.Payload, nil
	}
	c, err := compress.For(d.Compression)
	if err != nil {
		return nil, NewError("decompress").Path(f.path).Object(ObjectData, d.Offset).Cause(ErrIncompatible).Err()
	}
	out, err := c.Decompress(nil, d.Payload, maxPayloadSize)
	if err != nil {
		return nil, f.corrupt(ObjectData, d.Offset, fmt.Sprintf("decompress: %v", err))
	}
	return out, nil
}

// FindData looks up an interned FIELD=value payload.
func (f *File) FindData(payload []byte) (*DataObject, bool, error) {
	f.lock()
	defer f.unlock()
	return f.findData(payload, f.hash(payload))
}

func (f *File) findData(payload []byte, h uint64) (*DataObject, bool, error) {
	n := f.header.DataHashTableSize / hashItemSize
	if n == 0 {
		return nil, false, nil
	}
	off, _, err := f.bucket(f.header.DataHashTableOffset, h%n)
	if err != nil {
		return nil, false, err
	}
	for depth := uint64(0); off != 0; depth++ {
		if depth > f.header.NData {
			return nil, false, f.corrupt(ObjectData, off, "hash chain loops")
		}
		d, err := f.dataAt(off)
		if err != nil {
			return nil, false, err
		}
		if d.Hash == h {
			p, err := f.DataPayload(d)
			if err != nil {
				return nil, false, err
			}
			if bytes.Equal(p, payload) {
				return d, true, nil
			}
		}
		off = d.NextHashOffset
	}
	return nil, false, nil
}

// FindField looks up an interned field name.
func (f *File) FindField(name []byte) (*FieldObject, bool, error) {
	f.lock()
	defer f.unlock()
	return f.findField(name, f.hash(name))
}

func (f *File) findField(name []byte, h uint64) (*FieldObject, bool, error) {
	n := f.header.FieldHashTableSize / hashItemSize
	if n == 0 {
		return nil, false, nil
	}
	off, _, err := f.bucket(f.header.FieldHashTableOffset, h%n)
	if err != nil {
		return nil, false, err
	}
	for depth := uint64(0); off != 0; depth++ {
		if depth > f.header.NFields {
			return nil, false, f.corrupt(ObjectField, off, "hash chain loops")
		}
		fo, err := f.fieldAt(off)
		if err != nil {
			return nil, false, err
		}
		if fo.Hash == h && bytes.Equal(fo.Payload, name) {
			return fo, true, nil
		}
		off = fo.NextHashOffset
	}
	return nil, false, nil
}

// storedPayload returns what would be written for payload and the
// compression flag, compressing only when it pays off.
func (f *File) storedPayload(payload []byte) ([]byte, compress.Algorithm) {
	if f.codec == nil || len(payload) < f.opts.CompressThreshold {
		return payload, compress.None
	}
	out := f.codec.Compress(nil, payload)
	f.metrics.RecordCompression(f.codec.Algorithm().String(), len(payload), len(out))
	if len(out) >= len(payload) {
		return payload, compress.None
	}
	return out, f.codec.Algorithm()
}

// internField returns the offset of the FIELD object for name, creating it
// when missing.
func (f *File) internField(name []byte) (*FieldObject, error) {
	h := f.hash(name)
	fo, ok, err := f.findField(name, h)
	if err != nil || ok {
		return fo, err
	}
	obj := pools.GetBytesSized(fieldObjectHeaderSize + len(name))
	defer pools.PutBytes(obj)
	le.PutUint64(obj[16:], h)
	copy(obj[fieldObjectHeaderSize:], name)
	off, err := f.appendObject(ObjectField, 0, obj)
	if err != nil {
		return nil, err
	}
	n := f.header.FieldHashTableSize / hashItemSize
	if err := f.linkHash(f.header.FieldHashTableOffset, h%n, off); err != nil {
		return nil, err
	}
	return &FieldObject{Offset: off, Hash: h, Payload: name}, nil
}

// internData returns the DATA object for payload, creating it (and its
// FIELD) when missing. stored is the precomputed on-disk form.
func (f *File) internData(payload, stored []byte, alg compress.Algorithm) (*DataObject, bool, error) {
	h := f.hash(payload)
	d, ok, err := f.findData(payload, h)
	if err != nil {
		return nil, false, err
	}
	if ok {
		f.metrics.RecordDataObject(true)
		return d, true, nil
	}

	eq := bytes.IndexByte(payload, '=')
	if eq <= 0 {
		return nil, false, fmt.Errorf("%w: payload without field name", ErrInvalidEntry)
	}
	fo, err := f.internField(payload[:eq])
	if err != nil {
		return nil, false, err
	}

	obj := pools.GetBytesSized(dataObjectHeaderSize + len(stored))
	defer pools.PutBytes(obj)
	le.PutUint64(obj[16:], h)
	le.PutUint64(obj[32:], fo.HeadDataOffset)
	copy(obj[dataObjectHeaderSize:], stored)
	off, err := f.appendObject(ObjectData, uint8(alg), obj)
	if err != nil {
		return nil, false, err
	}
	n := f.header.DataHashTableSize / hashItemSize
	if err := f.linkHash(f.header.DataHashTableOffset, h%n, off); err != nil {
		return nil, false, err
	}
	// Push onto the field's data chain.
	if err := f.b.writeUint64(fo.Offset+32, off); err != nil {
		return nil, false, err
	}
	f.metrics.RecordDataObject(false)
	return &DataObject{
		Offset:          off,
		Hash:            h,
		NextFieldOffset: fo.HeadDataOffset,
		Compression:     alg,
		Payload:         stored,
	}, false, nil
}

// FieldData calls fn for every DATA object of the named field, newest first,
// until fn returns false.
func (f *File) FieldData(name []byte, fn func(d *DataObject, payload []byte) bool) error {
	type item struct {
		d *DataObject
		p []byte
	}
	var items []item
	err := func() error {
		f.lock()
		defer f.unlock()
		fo, ok, err := f.findField(name, f.hash(name))
		if err != nil || !ok {
			return err
		}
		off := fo.HeadDataOffset
		for depth := uint64(0); off != 0; depth++ {
			if depth > f.header.NData {
				return f.corrupt(ObjectData, off, "field chain loops")
			}
			d, err := f.dataAt(off)
			if err != nil {
				return err
			}
			p, err := f.DataPayload(d)
			if err != nil {
				return err
			}
			items = append(items, item{d, p})
			off = d.NextFieldOffset
		}
		return nil
	}()
	if err != nil {
		return err
	}
	for _, it := range items {
		if !fn(it.d, it.p) {
			break
		}
	}
	return nil
}
