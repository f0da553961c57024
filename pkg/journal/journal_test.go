package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/logging"
)

var (
	bootA = id128.MustParse("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1")
	bootB = id128.MustParse("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb2")
	bootC = id128.MustParse("ccccccccccccccccccccccccccccccc3")
)

func fileOptions() journalfile.Options {
	return journalfile.Options{
		MaxFileSize: 16 << 20,
		MachineID:   id128.MustParse("0123456789abcdef0123456789abcdef"),
		Logger:      logging.NewNopLogger(),
	}
}

func testOptions() Options {
	return Options{File: fileOptions(), Logger: logging.NewNopLogger()}
}

func createFile(t *testing.T, dir, name string) *journalfile.File {
	t.Helper()
	f, err := journalfile.Create(filepath.Join(dir, name), fileOptions())
	require.NoError(t, err)
	return f
}

func appendEntry(t *testing.T, f *journalfile.File, realtime, mono uint64, boot id128.ID, fields ...string) journalfile.AppendResult {
	t.Helper()
	in := journalfile.EntryInput{Realtime: realtime, Monotonic: mono, BootID: boot}
	for _, fl := range fields {
		in.Fields = append(in.Fields, []byte(fl))
	}
	res, err := f.AppendEntry(in)
	require.NoError(t, err)
	return res
}

func openDir(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := OpenDirectory(dir, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func number(t *testing.T, j *Journal) int {
	t.Helper()
	p, err := j.GetData("NUMBER")
	require.NoError(t, err)
	n, err := strconv.Atoi(string(p[len("NUMBER="):]))
	require.NoError(t, err)
	return n
}

// collect steps through the stream and returns the NUMBER field of every entry.
func collect(t *testing.T, j *Journal, step func() (bool, error)) []int {
	t.Helper()
	var out []int
	for {
		ok, err := step()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, number(t, j))
	}
}

// roundRobin writes entries 1..9 into three independent files, entry i into
// file (i-1)%3, all in one boot.
func roundRobin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := []*journalfile.File{
		createFile(t, dir, "one.journal"),
		createFile(t, dir, "two.journal"),
		createFile(t, dir, "three.journal"),
	}
	for i := 1; i <= 9; i++ {
		appendEntry(t, files[(i-1)%3], uint64(i)*10, uint64(i), bootA,
			fmt.Sprintf("NUMBER=%d", i), fmt.Sprintf("PARITY=%d", i%2), "COMMON=1")
	}
	for _, f := range files {
		require.NoError(t, f.Close())
	}
	return dir
}

func TestInterleave(t *testing.T) {
	j := openDir(t, roundRobin(t))
	require.Len(t, j.Files(), 3)

	require.NoError(t, j.SeekHead())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, collect(t, j, j.Next))

	require.NoError(t, j.SeekTail())
	assert.Equal(t, []int{9, 8, 7, 6, 5, 4, 3, 2, 1}, collect(t, j, j.Previous))
}

func TestDirectionChange(t *testing.T) {
	j := openDir(t, roundRobin(t))
	require.NoError(t, j.SeekHead())

	var got []int
	for _, step := range []func() (bool, error){j.Next, j.Next, j.Next, j.Previous, j.Previous, j.Next, j.Next, j.Next} {
		ok, err := step()
		require.NoError(t, err)
		require.True(t, ok)
		got = append(got, number(t, j))
	}
	assert.Equal(t, []int{1, 2, 3, 2, 1, 2, 3, 4}, got)
}

func TestSkip(t *testing.T) {
	j := openDir(t, roundRobin(t))

	require.NoError(t, j.SeekHead())
	n, err := j.NextSkip(4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, number(t, j))

	n, err = j.PreviousSkip(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, number(t, j))

	n, err = j.NextSkip(100)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 9, number(t, j), "end of stream keeps the last entry")

	ok, err := j.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 9, number(t, j))

	require.NoError(t, j.SeekTail())
	n, err = j.PreviousSkip(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, number(t, j))

	// Nothing lies before the head or after the tail.
	require.NoError(t, j.SeekHead())
	ok, err = j.Previous()
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = j.Cursor()
	assert.ErrorIs(t, err, ErrNoPosition)

	require.NoError(t, j.SeekTail())
	n, err = j.NextSkip(3)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSeekRealtime(t *testing.T) {
	j := openDir(t, roundRobin(t))

	tests := []struct {
		usec uint64
		next int
		prev int
	}{
		{35, 4, 3},
		{40, 4, 4},
		{1, 1, 0},
		{95, 0, 9},
	}
	for _, tt := range tests {
		require.NoError(t, j.SeekRealtime(tt.usec))
		ok, err := j.Next()
		require.NoError(t, err)
		if tt.next == 0 {
			assert.False(t, ok, "next from %d", tt.usec)
		} else if assert.True(t, ok, "next from %d", tt.usec) {
			assert.Equal(t, tt.next, number(t, j), "next from %d", tt.usec)
		}

		require.NoError(t, j.SeekRealtime(tt.usec))
		ok, err = j.Previous()
		require.NoError(t, err)
		if tt.prev == 0 {
			assert.False(t, ok, "previous from %d", tt.usec)
		} else if assert.True(t, ok, "previous from %d", tt.usec) {
			assert.Equal(t, tt.prev, number(t, j), "previous from %d", tt.usec)
		}
	}
}

// TestSeqnumTieBreak rotates one namespace across two files with the same
// realtime at the seam; seqnum must decide.
func TestSeqnumTieBreak(t *testing.T) {
	dir := t.TempDir()
	first := createFile(t, dir, "first.journal")
	appendEntry(t, first, 100, 1, bootA, "NUMBER=1")
	appendEntry(t, first, 200, 2, bootA, "NUMBER=2")
	appendEntry(t, first, 300, 3, bootA, "NUMBER=3")

	second, err := journalfile.CreateSuccessor(filepath.Join(dir, "second.journal"), first, fileOptions())
	require.NoError(t, err)
	require.NoError(t, first.Close())
	// A new boot whose monotonic clock restarted.
	appendEntry(t, second, 300, 1, bootB, "NUMBER=4")
	appendEntry(t, second, 400, 2, bootB, "NUMBER=5")
	require.NoError(t, second.Close())

	j := openDir(t, dir)
	require.NoError(t, j.SeekHead())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, collect(t, j, j.Next))

	require.NoError(t, j.SeekRealtime(300))
	ok, err := j.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, number(t, j))

	require.NoError(t, j.SeekRealtime(300))
	ok, err = j.Previous()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, number(t, j))

	seq, id, err := j.Seqnum()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), seq)

	require.NoError(t, j.SeekSeqnum(id, 2))
	ok, err = j.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, number(t, j))
}

func TestDuplicateEntriesShownOnce(t *testing.T) {
	dir := t.TempDir()
	a := createFile(t, dir, "a.journal")
	b := createFile(t, dir, "b.journal")
	for i := 1; i <= 3; i++ {
		for _, f := range []*journalfile.File{a, b} {
			appendEntry(t, f, uint64(i)*10, uint64(i), bootA, fmt.Sprintf("NUMBER=%d", i))
		}
	}
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	j := openDir(t, dir)
	require.NoError(t, j.SeekHead())
	assert.Equal(t, []int{1, 2, 3}, collect(t, j, j.Next))
	require.NoError(t, j.SeekTail())
	assert.Equal(t, []int{3, 2, 1}, collect(t, j, j.Previous))
}

func TestBrokenFileSkipped(t *testing.T) {
	dir := roundRobin(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.journal~"), []byte("garbage"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o640))

	j := openDir(t, dir)
	assert.Len(t, j.Files(), 3)
	require.NoError(t, j.SeekHead())
	assert.Len(t, collect(t, j, j.Next), 9)
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := OpenDirectory(filepath.Join(t.TempDir(), "missing"), testOptions())
	assert.Error(t, err)
}

func TestRefreshSeesNewEntries(t *testing.T) {
	dir := t.TempDir()
	w := createFile(t, dir, "live.journal")
	defer w.Close()
	appendEntry(t, w, 10, 1, bootA, "NUMBER=1")

	j := openDir(t, dir)
	require.NoError(t, j.SeekHead())
	assert.Equal(t, []int{1}, collect(t, j, j.Next))

	appendEntry(t, w, 20, 2, bootA, "NUMBER=2")
	changed, err := j.Refresh()
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, []int{2}, collect(t, j, j.Next))
}

func TestEntryData(t *testing.T) {
	j := openDir(t, roundRobin(t))

	_, err := j.GetData("NUMBER")
	assert.ErrorIs(t, err, ErrNoPosition)
	_, err = j.Realtime()
	assert.ErrorIs(t, err, ErrNoPosition)

	require.NoError(t, j.SeekHead())
	_, err = j.Next()
	require.NoError(t, err)

	rt, err := j.Realtime()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), rt)
	mono, boot, err := j.Monotonic()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), mono)
	assert.Equal(t, bootA, boot)

	p, err := j.GetData("PARITY")
	require.NoError(t, err)
	assert.Equal(t, "PARITY=1", string(p))
	_, err = j.GetData("MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := j.Entry()
	require.NoError(t, err)
	assert.Len(t, all, 4) // NUMBER, PARITY, COMMON, _BOOT_ID

	u, err := j.Unique("PARITY")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("PARITY=0"), []byte("PARITY=1")}, u)
}

// A seek key only some files can answer must not hide the other files once
// the walk is under way.
func TestSeekMonotonicKeepsOtherBoots(t *testing.T) {
	dir := t.TempDir()
	a := createFile(t, dir, "a.journal")
	appendEntry(t, a, 10, 1, bootA, "NUMBER=1")
	appendEntry(t, a, 20, 2, bootA, "NUMBER=2")
	require.NoError(t, a.Close())
	b := createFile(t, dir, "b.journal")
	appendEntry(t, b, 30, 1, bootB, "NUMBER=3")
	appendEntry(t, b, 40, 2, bootB, "NUMBER=4")
	require.NoError(t, b.Close())

	j := openDir(t, dir)
	require.NoError(t, j.SeekMonotonic(bootA, 0))
	assert.Equal(t, []int{1, 2, 3, 4}, collect(t, j, j.Next))

	require.NoError(t, j.SeekMonotonic(bootB, 99))
	assert.Equal(t, []int{4, 3, 2, 1}, collect(t, j, j.Previous))
}

func TestSeekSeqnumKeepsOtherNamespaces(t *testing.T) {
	dir := t.TempDir()
	a := createFile(t, dir, "a.journal")
	b := createFile(t, dir, "b.journal")
	appendEntry(t, a, 10, 1, bootA, "NUMBER=1")
	appendEntry(t, b, 20, 2, bootA, "NUMBER=2")
	appendEntry(t, a, 30, 3, bootA, "NUMBER=3")
	appendEntry(t, b, 40, 4, bootA, "NUMBER=4")
	id := a.SeqnumID()
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	j := openDir(t, dir)
	require.NoError(t, j.SeekSeqnum(id, 1))
	assert.Equal(t, []int{1, 2, 3, 4}, collect(t, j, j.Next))

	require.NoError(t, j.SeekSeqnum(id, 2))
	assert.Equal(t, []int{3, 2, 1}, collect(t, j, j.Previous))
}
