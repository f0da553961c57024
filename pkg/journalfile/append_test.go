package journalfile

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-journal/pkg/compress"
	"github.com/dd0wney/cluso-journal/pkg/id128"
)

func TestInterning(t *testing.T) {
	f := newTestFile(t, testOptions())
	mustAppend(t, f, EntryInput{Realtime: 1, BootID: bootA, Fields: [][]byte{[]byte("MESSAGE=a"), []byte("COMMON=yes")}})
	mustAppend(t, f, EntryInput{Realtime: 2, BootID: bootA, Fields: [][]byte{[]byte("MESSAGE=b"), []byte("COMMON=yes")}})

	h := f.Header()
	if h.NData != 4 {
		t.Errorf("NData = %d, want 4", h.NData)
	}
	if h.NFields != 3 {
		t.Errorf("NFields = %d, want 3", h.NFields)
	}

	d, ok, err := f.FindData([]byte("COMMON=yes"))
	if err != nil || !ok {
		t.Fatalf("FindData: %v %v", ok, err)
	}
	if d.NEntries != 2 {
		t.Errorf("COMMON=yes referenced by %d entries", d.NEntries)
	}
	if _, ok, _ := f.FindData([]byte("COMMON=no")); ok {
		t.Error("found a payload that was never written")
	}

	fo, ok, err := f.FindField([]byte("MESSAGE"))
	if err != nil || !ok {
		t.Fatalf("FindField: %v %v", ok, err)
	}
	if fo.HeadDataOffset == 0 {
		t.Error("field has no data chain")
	}

	var values []string
	err = f.FieldData([]byte("MESSAGE"), func(_ *DataObject, p []byte) bool {
		values = append(values, string(p))
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(values, ",") != "MESSAGE=b,MESSAGE=a" {
		t.Errorf("field values = %v", values)
	}
}

func TestDuplicatePayloadsInOneEntry(t *testing.T) {
	f := newTestFile(t, testOptions())
	res := mustAppend(t, f, EntryInput{Realtime: 1, Fields: [][]byte{[]byte("A=1"), []byte("A=1"), []byte("A=2")}})

	e, err := f.EntryAt(res.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if len(e.Items) != 2 {
		t.Errorf("entry has %d items, want 2", len(e.Items))
	}
	for i := 1; i < len(e.Items); i++ {
		if e.Items[i].ObjectOffset <= e.Items[i-1].ObjectOffset {
			t.Error("items not sorted by offset")
		}
	}
}

func TestBootFieldAdded(t *testing.T) {
	f := newTestFile(t, testOptions())
	res := mustAppend(t, f, EntryInput{Realtime: 1, BootID: bootA, Fields: [][]byte{[]byte("A=1")}})
	e, _ := f.EntryAt(res.Offset)
	if len(e.Items) != 2 || e.BootID != bootA {
		t.Fatalf("items=%d boot=%v", len(e.Items), e.BootID)
	}

	// An explicit _BOOT_ID is kept as is.
	res = mustAppend(t, f, EntryInput{Realtime: 2, BootID: bootA, Fields: [][]byte{[]byte("A=1"), BootPayload(bootB)}})
	e, _ = f.EntryAt(res.Offset)
	if len(e.Items) != 2 {
		t.Fatalf("items=%d", len(e.Items))
	}

	res = mustAppend(t, f, EntryInput{Realtime: 3, Fields: [][]byte{[]byte("A=1")}})
	e, _ = f.EntryAt(res.Offset)
	if len(e.Items) != 1 {
		t.Errorf("null boot should not add _BOOT_ID, items=%d", len(e.Items))
	}
}

func TestXorHashIsContentBased(t *testing.T) {
	a := newTestFile(t, testOptions())
	b := newTestFile(t, testOptions())
	in := EntryInput{Realtime: 5, Fields: [][]byte{[]byte("X=1"), []byte("Y=2")}}
	// Pad b so the same entry lands at different offsets.
	mustAppend(t, b, EntryInput{Realtime: 1, Fields: [][]byte{[]byte("PAD=" + strings.Repeat("p", 300))}})

	ra := mustAppend(t, a, in)
	rb := mustAppend(t, b, EntryInput{Realtime: 5, Fields: [][]byte{[]byte("Y=2"), []byte("X=1")}})
	ea, _ := a.EntryAt(ra.Offset)
	eb, _ := b.EntryAt(rb.Offset)
	if ea.XorHash != eb.XorHash {
		t.Errorf("xor hash differs: %#x vs %#x", ea.XorHash, eb.XorHash)
	}
	if ra.Offset == rb.Offset {
		t.Error("entries should sit at different offsets")
	}
}

func TestCompression(t *testing.T) {
	for _, alg := range []compress.Algorithm{compress.Snappy, compress.Zstd} {
		t.Run(alg.String(), func(t *testing.T) {
			opts := testOptions()
			opts.Compression = alg
			opts.CompressThreshold = 64
			f := newTestFile(t, opts)

			big := []byte("MESSAGE=" + strings.Repeat("compressible ", 100))
			small := []byte("SHORT=x")
			res := mustAppend(t, f, EntryInput{Realtime: 1, Fields: [][]byte{big, small}})

			d, ok, err := f.FindData(big)
			if err != nil || !ok {
				t.Fatalf("FindData: %v %v", ok, err)
			}
			if d.Compression != alg {
				t.Errorf("compression = %v, want %v", d.Compression, alg)
			}
			if len(d.Payload) >= len(big) {
				t.Errorf("stored %d bytes for a %d byte payload", len(d.Payload), len(big))
			}
			s, _, _ := f.FindData(small)
			if s.Compression != compress.None {
				t.Errorf("payload below threshold compressed with %v", s.Compression)
			}

			r := reopen(t, f)
			e, err := r.EntryAt(res.Offset)
			if err != nil {
				t.Fatal(err)
			}
			data, err := r.EntryData(e)
			if err != nil {
				t.Fatal(err)
			}
			var found bool
			for _, p := range data {
				found = found || bytes.Equal(p, big)
			}
			if !found {
				t.Error("decompressed payload not returned")
			}
			if _, ok, _ := r.FindData(big); !ok {
				t.Error("compressed payload not found by content")
			}
		})
	}
}

func TestIncompressiblePayloadStoredRaw(t *testing.T) {
	opts := testOptions()
	opts.Compression = compress.Zstd
	opts.CompressThreshold = 16
	f := newTestFile(t, opts)

	// Distinct bytes do not shrink.
	var sb strings.Builder
	sb.WriteString("BLOB=")
	for i := 0; i < 40; i++ {
		sb.WriteByte(byte('A' + i%26))
		sb.WriteByte(byte('0' + i%10))
	}
	p := []byte(sb.String())
	mustAppend(t, f, EntryInput{Realtime: 1, Fields: [][]byte{p}})
	d, _, _ := f.FindData(p)
	if d.Compression == compress.None && !bytes.Equal(d.Payload, p) {
		t.Error("raw payload does not match")
	}
	if d.Compression != compress.None && len(d.Payload) >= len(p) {
		t.Error("compressed payload did not shrink")
	}
}

func TestStrictOrder(t *testing.T) {
	opts := testOptions()
	opts.StrictOrder = true
	opts.ClockSkewTolerance = 50 * time.Microsecond
	f := newTestFile(t, opts)

	msg := [][]byte{[]byte("MESSAGE=x")}
	mustAppend(t, f, EntryInput{Realtime: 1000, Monotonic: 100, BootID: bootA, Fields: msg})

	tests := []struct {
		name string
		in   EntryInput
		err  error
	}{
		{"realtime back beyond tolerance", EntryInput{Realtime: 900, Monotonic: 200, BootID: bootA, Fields: msg}, ErrOutOfOrder},
		{"monotonic back", EntryInput{Realtime: 1100, Monotonic: 50, BootID: bootA, Fields: msg}, ErrOutOfOrder},
		{"other boot earlier", EntryInput{Realtime: 990, Monotonic: 1, BootID: bootB, Fields: msg}, ErrOutOfOrder},
		{"realtime back within tolerance", EntryInput{Realtime: 960, Monotonic: 150, BootID: bootA, Fields: msg}, nil},
		{"other boot later", EntryInput{Realtime: 2000, Monotonic: 1, BootID: bootB, Fields: msg}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.Header()
			_, err := f.AppendEntry(tt.in)
			if !errors.Is(err, tt.err) && !(tt.err == nil && err == nil) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if tt.err != nil {
				if !IsOutOfOrder(err) || !IsRotatable(err) {
					t.Error("out-of-order error not classified")
				}
				if after := f.Header(); after != before {
					t.Error("rejected append modified the header")
				}
			}
		})
	}
}

func TestNonStrictAcceptsAnything(t *testing.T) {
	f := newTestFile(t, testOptions())
	mustAppend(t, f, EntryInput{Realtime: 1000, Monotonic: 100, BootID: bootA, Fields: [][]byte{[]byte("A=1")}})
	res := mustAppend(t, f, EntryInput{Realtime: 10, Monotonic: 1, BootID: bootA, Fields: [][]byte{[]byte("A=1")}})
	if res.Seqnum != 2 {
		t.Errorf("seqnum = %d", res.Seqnum)
	}
}

func TestInvalidEntries(t *testing.T) {
	f := newTestFile(t, testOptions())
	tests := []struct {
		name string
		in   EntryInput
	}{
		{"zero realtime", EntryInput{Fields: [][]byte{[]byte("A=1")}}},
		{"huge realtime", EntryInput{Realtime: 1 << 63, Fields: [][]byte{[]byte("A=1")}}},
		{"huge monotonic", EntryInput{Realtime: 1, Monotonic: 1 << 63, Fields: [][]byte{[]byte("A=1")}}},
		{"no fields", EntryInput{Realtime: 1}},
		{"lower case", EntryInput{Realtime: 1, Fields: [][]byte{[]byte("message=x")}}},
		{"no separator", EntryInput{Realtime: 1, Fields: [][]byte{[]byte("MESSAGE")}}},
		{"empty name", EntryInput{Realtime: 1, Fields: [][]byte{[]byte("=x")}}},
		{"leading digit", EntryInput{Realtime: 1, Fields: [][]byte{[]byte("1A=x")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.AppendEntry(tt.in); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("err = %v, want ErrInvalidEntry", err)
			}
		})
	}
	if f.EntryCount() != 0 {
		t.Errorf("EntryCount = %d", f.EntryCount())
	}
}

func TestFileFull(t *testing.T) {
	opts := testOptions()
	opts.MaxFileSize = 2 << 20
	f := newTestFile(t, opts)

	var appended int
	var err error
	for i := 0; i < 100; i++ {
		payload := []byte(fmt.Sprintf("BLOB=%d-%s", i, strings.Repeat("b", 100<<10)))
		if _, err = f.AppendEntry(EntryInput{Realtime: uint64(i + 1), BootID: bootA, Fields: [][]byte{payload}}); err != nil {
			break
		}
		appended++
	}
	if !errors.Is(err, ErrFileFull) {
		t.Fatalf("err = %v, want ErrFileFull", err)
	}
	if appended == 0 {
		t.Fatal("nothing fit")
	}
	before := f.Header()
	if _, err := f.AppendEntry(EntryInput{Realtime: 1000, BootID: bootA, Fields: [][]byte{[]byte("BLOB=" + strings.Repeat("z", 200<<10))}}); !errors.Is(err, ErrFileFull) {
		t.Fatalf("second oversize append: %v", err)
	}
	if f.Header() != before {
		t.Error("rejected append modified the header")
	}

	r := reopen(t, f)
	if r.EntryCount() != uint64(appended) {
		t.Errorf("EntryCount = %d, want %d", r.EntryCount(), appended)
	}
	var n int
	for off, ok, err := r.NextEntry(0, Down); ok; off, ok, err = r.NextEntry(off, Down) {
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.EntryAt(off); err != nil {
			t.Fatalf("entry %d: %v", n, err)
		}
		n++
	}
	if n != appended {
		t.Errorf("walked %d entries, want %d", n, appended)
	}
}

func TestReadOnlyAppend(t *testing.T) {
	f := newTestFile(t, testOptions())
	r := reopen(t, f)
	if _, err := r.AppendEntry(EntryInput{Realtime: 1, BootID: id128.Null, Fields: [][]byte{[]byte("A=1")}}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("err = %v, want ErrReadOnly", err)
	}
}
