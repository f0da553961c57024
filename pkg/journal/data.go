package journal

import (
	"bytes"
	"slices"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
)

func (j *Journal) cur() (*current, error) {
	if j.closed {
		return nil, ErrClosed
	}
	if j.current == nil || j.current.fs == nil {
		return nil, ErrNoPosition
	}
	return j.current, nil
}

// Realtime returns the current entry's wallclock time in microseconds.
func (j *Journal) Realtime() (uint64, error) {
	c, err := j.cur()
	if err != nil {
		return 0, err
	}
	return c.entry.Realtime, nil
}

// Monotonic returns the current entry's monotonic time and boot.
func (j *Journal) Monotonic() (uint64, id128.ID, error) {
	c, err := j.cur()
	if err != nil {
		return 0, id128.Null, err
	}
	return c.entry.Monotonic, c.entry.BootID, nil
}

// Seqnum returns the current entry's sequence number and namespace.
func (j *Journal) Seqnum() (uint64, id128.ID, error) {
	c, err := j.cur()
	if err != nil {
		return 0, id128.Null, err
	}
	return c.entry.Seqnum, c.fs.seqnumID, nil
}

// Entry returns every FIELD=value payload of the current entry.
func (j *Journal) Entry() ([][]byte, error) {
	c, err := j.cur()
	if err != nil {
		return nil, err
	}
	data, err := c.fs.f.EntryData(c.entry)
	if err != nil {
		if !journalfile.IsCorrupt(err) {
			j.drop(c.fs, err)
		}
		return nil, err
	}
	return data, nil
}

// GetData returns the FIELD=value payload of field in the current entry.
func (j *Journal) GetData(field string) ([]byte, error) {
	data, err := j.Entry()
	if err != nil {
		return nil, err
	}
	prefix := []byte(field + "=")
	for _, p := range data {
		if bytes.HasPrefix(p, prefix) {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// Unique returns every distinct FIELD=value payload of field across all
// files, sorted.
func (j *Journal) Unique(field string) ([][]byte, error) {
	if j.closed {
		return nil, ErrClosed
	}
	seen := make(map[string]struct{})
	var out [][]byte
	for _, fs := range append([]*fileState(nil), j.files...) {
		err := fs.f.FieldData([]byte(field), func(_ *journalfile.DataObject, p []byte) bool {
			if _, dup := seen[string(p)]; !dup {
				seen[string(p)] = struct{}{}
				out = append(out, bytes.Clone(p))
			}
			return true
		})
		if err != nil {
			j.drop(fs, err)
		}
	}
	slices.SortFunc(out, bytes.Compare)
	return out, nil
}
