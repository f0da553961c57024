package writer

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-journal/pkg/clock"
	"github.com/dd0wney/cluso-journal/pkg/config"
	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journal"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/logging"
	"github.com/dd0wney/cluso-journal/pkg/metrics"
)

var testBoot = id128.MustParse("5eb2c6a1f3d94c0e8a7b1d2e3f405162")

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now clock.DualTimestamp
}

func (c *stepClock) Now() clock.DualTimestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now.Realtime += uint64(time.Second / time.Microsecond)
	c.now.Monotonic += uint64(time.Second / time.Microsecond)
	return c.now
}

func testConfig(dir string) *config.Config {
	cfg := config.Default(dir)
	cfg.MaxFileSize = 8 << 20
	return cfg
}

func openWriter(t *testing.T, cfg *config.Config) *Writer {
	t.Helper()
	w, err := Open(cfg, Options{
		Boot:    id128.Static(testBoot),
		Clock:   &stepClock{now: clock.DualTimestamp{Realtime: 1_700_000_000_000_000, Monotonic: 5_000_000}},
		Logger:  logging.NewNopLogger(),
		Metrics: metrics.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func appendMessage(t *testing.T, w *Writer, msg string) journalfile.AppendResult {
	t.Helper()
	res, err := w.Append([][]byte{[]byte("MESSAGE=" + msg)})
	require.NoError(t, err)
	return res
}

func readAll(t *testing.T, dir string) []uint64 {
	t.Helper()
	j, err := journal.OpenDirectory(dir, journal.Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	defer j.Close()

	var realtimes []uint64
	for {
		ok, err := j.Next()
		require.NoError(t, err)
		if !ok {
			return realtimes
		}
		rt, err := j.Realtime()
		require.NoError(t, err)
		realtimes = append(realtimes, rt)
	}
}

func glob(t *testing.T, dir, pattern string) []string {
	t.Helper()
	m, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return m
}

func TestOpenCreatesActiveFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w := openWriter(t, testConfig(dir))

	res := appendMessage(t, w, "hello")
	assert.Equal(t, uint64(1), res.Seqnum)
	assert.FileExists(t, filepath.Join(dir, ActiveName))
	assert.Equal(t, uint64(1), w.Header().NEntries)
	assert.Equal(t, dir, w.Dir())
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxFileSize = 1024
	_, err := Open(cfg, Options{Logger: logging.NewNopLogger()})
	assert.Error(t, err)
}

func TestReopenContinuesSeqnums(t *testing.T) {
	cfg := testConfig(t.TempDir())

	w, err := Open(cfg, Options{Boot: id128.Static(testBoot), Clock: &stepClock{}, Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		appendMessage(t, w, "first run")
	}
	seqnumID := w.Header().SeqnumID
	require.NoError(t, w.Close())

	w = openWriter(t, cfg)
	res := appendMessage(t, w, "second run")
	assert.Equal(t, uint64(4), res.Seqnum)
	assert.Equal(t, seqnumID, w.Header().SeqnumID)
	assert.Empty(t, glob(t, cfg.Directory, "*.journal~"))
}

func TestSecondWriterIsBusy(t *testing.T) {
	cfg := testConfig(t.TempDir())
	openWriter(t, cfg)

	_, err := Open(cfg, Options{Logger: logging.NewNopLogger()})
	assert.ErrorIs(t, err, journalfile.ErrBusy)
}

func TestDirtyFileIsSetAside(t *testing.T) {
	cfg := testConfig(t.TempDir())
	w, err := Open(cfg, Options{Boot: id128.Static(testBoot), Clock: &stepClock{}, Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	appendMessage(t, w, "before crash")
	require.NoError(t, w.Close())

	// Simulate a crash: the state byte still says online.
	fh, err := os.OpenFile(filepath.Join(cfg.Directory, ActiveName), os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = fh.WriteAt([]byte{byte(journalfile.StateOnline)}, 16)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	w = openWriter(t, cfg)
	assert.Equal(t, uint64(0), w.Header().NEntries)
	assert.Len(t, glob(t, cfg.Directory, "system@*.journal~"), 1)

	appendMessage(t, w, "after crash")
	assert.Len(t, readAll(t, cfg.Directory), 2)
}

func TestGarbageFileIsSetAside(t *testing.T) {
	cfg := testConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(cfg.Directory, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Directory, ActiveName), bytes.Repeat([]byte{0x42}, 4096), 0o640))

	w := openWriter(t, cfg)
	appendMessage(t, w, "fresh")
	assert.Len(t, glob(t, cfg.Directory, "system@*.journal~"), 1)
}

func TestRotate(t *testing.T) {
	cfg := testConfig(t.TempDir())
	w := openWriter(t, cfg)
	appendMessage(t, w, "one")
	appendMessage(t, w, "two")
	old := w.Header()

	require.NoError(t, w.Rotate())

	archived := filepath.Join(cfg.Directory, ArchiveName(old))
	require.FileExists(t, archived)
	f, err := journalfile.Open(archived, journalfile.Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	assert.Equal(t, journalfile.StateArchived, f.Header().State)
	assert.Equal(t, uint64(2), f.EntryCount())
	require.NoError(t, f.Close())

	h := w.Header()
	assert.Equal(t, old.SeqnumID, h.SeqnumID)
	assert.Equal(t, uint64(0), h.NEntries)
	assert.NotEqual(t, old.FileID, h.FileID)

	res := appendMessage(t, w, "three")
	assert.Equal(t, uint64(3), res.Seqnum)
	assert.Len(t, readAll(t, cfg.Directory), 3)
}

func TestArchiveName(t *testing.T) {
	h := journalfile.Header{
		SeqnumID:          id128.MustParse("00112233445566778899aabbccddeeff"),
		HeadEntrySeqnum:   0x2a,
		HeadEntryRealtime: 0x5f5e100,
	}
	assert.Equal(t, "system@00112233445566778899aabbccddeeff-000000000000002a-0000000005f5e100.journal", ArchiveName(h))
}

func TestOutOfOrderRotates(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.StrictOrder = true
	w := openWriter(t, cfg)

	const sec = uint64(time.Second / time.Microsecond)
	base := uint64(1_700_000_000) * sec
	offsets := []int64{0, -30, -20, 50, 60}
	var want []uint64
	for i, off := range offsets {
		rt := uint64(int64(base) + off*int64(sec))
		res, err := w.AppendEntry(journalfile.EntryInput{
			Realtime:  rt,
			Monotonic: uint64(i+1) * sec,
			BootID:    testBoot,
			Fields:    [][]byte{[]byte("MESSAGE=tick")},
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), res.Seqnum)
		want = append(want, rt)
	}

	assert.Len(t, glob(t, cfg.Directory, "system@*.journal"), 1)
	assert.Equal(t, uint64(4), w.Header().NEntries)
	// Seqnum order wins over realtime within one namespace.
	assert.Equal(t, want, readAll(t, cfg.Directory))
}

func TestFileFullRotates(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxFileSize = config.MinMaxFileSize
	cfg.Compression.Codec = "none"
	w := openWriter(t, cfg)

	const n = 400
	payload := make([]byte, 4096)
	for i := 0; i < n; i++ {
		_, err := rand.Read(payload)
		require.NoError(t, err)
		res, err := w.Append([][]byte{append([]byte("BLOB="), payload...)})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), res.Seqnum)
	}

	assert.NotEmpty(t, glob(t, cfg.Directory, "system@*.journal"))
	assert.Len(t, readAll(t, cfg.Directory), n)
}

func TestAppendStampsBootAndClock(t *testing.T) {
	cfg := testConfig(t.TempDir())
	w := openWriter(t, cfg)
	appendMessage(t, w, "stamped")

	j, err := journal.OpenDirectory(cfg.Directory, journal.Options{Logger: logging.NewNopLogger()})
	require.NoError(t, err)
	defer j.Close()
	ok, err := j.Next()
	require.NoError(t, err)
	require.True(t, ok)

	rt, err := j.Realtime()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_001_000_000), rt)
	mono, boot, err := j.Monotonic()
	require.NoError(t, err)
	assert.Equal(t, uint64(6_000_000), mono)
	assert.Equal(t, testBoot, boot)

	data, err := j.GetData("_BOOT_ID")
	require.NoError(t, err)
	assert.Equal(t, "_BOOT_ID="+testBoot.String(), string(data))
}

func TestMissingBootIDFallsBackToNull(t *testing.T) {
	cfg := testConfig(t.TempDir())
	w, err := Open(cfg, Options{
		Boot:   id128.BootIDFunc(func() (id128.ID, error) { return id128.Null, os.ErrNotExist }),
		Clock:  &stepClock{},
		Logger: logging.NewNopLogger(),
	})
	require.NoError(t, err)
	defer w.Close()

	appendMessage(t, w, "no boot")
	assert.Equal(t, id128.Null, w.Header().TailEntryBootID)
}

func TestClosedWriter(t *testing.T) {
	w := openWriter(t, testConfig(t.TempDir()))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.Append([][]byte{[]byte("MESSAGE=late")})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, w.Rotate(), ErrClosed)
}

func TestRotateEmptyFileIsNoop(t *testing.T) {
	cfg := testConfig(t.TempDir())
	w := openWriter(t, cfg)
	fileID := w.Header().FileID

	require.NoError(t, w.Rotate())
	require.NoError(t, w.Rotate())

	assert.Empty(t, glob(t, cfg.Directory, "system@*.journal"))
	assert.Equal(t, fileID, w.Header().FileID)

	appendMessage(t, w, "one")
	require.NoError(t, w.Rotate())
	require.NoError(t, w.Rotate())
	assert.Len(t, glob(t, cfg.Directory, "system@*.journal"), 1)
}

func TestOversizedEntryRefusedWithoutRotation(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxFileSize = config.MinMaxFileSize
	cfg.Compression.Codec = "none"
	w := openWriter(t, cfg)
	fileID := w.Header().FileID

	huge := append([]byte("BLOB="), make([]byte, 2*config.MinMaxFileSize)...)
	_, err := w.Append([][]byte{huge})
	assert.ErrorIs(t, err, journalfile.ErrFileFull)
	assert.Empty(t, glob(t, cfg.Directory, "system@*.journal"))
	assert.Equal(t, fileID, w.Header().FileID)

	appendMessage(t, w, "small")
	_, err = w.Append([][]byte{huge})
	assert.ErrorIs(t, err, journalfile.ErrFileFull)
	assert.Len(t, glob(t, cfg.Directory, "system@*.journal"), 1)
	assert.Equal(t, uint64(0), w.Header().NEntries)
}
