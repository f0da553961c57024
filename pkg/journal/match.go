package journal

import (
	"bytes"
	"fmt"

	"github.com/dd0wney/cluso-journal/pkg/journalfile"
	"github.com/dd0wney/cluso-journal/pkg/validation"
)

// matchSet holds FIELD=value terms. Terms on one field OR together, fields
// AND together.
type matchSet struct {
	fields []string
	terms  map[string][][]byte
	gen    int
}

func (m *matchSet) empty() bool {
	return len(m.fields) == 0
}

// fileMatch is a matchSet resolved against one file's DATA objects.
type fileMatch struct {
	none   bool
	groups [][]*journalfile.DataObject
}

// AddMatch adds a FIELD=value term.
func (j *Journal) AddMatch(term []byte) error {
	name, err := validation.ValidateFieldPayload(term, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMatch, err)
	}
	m := &j.matches
	if m.terms == nil {
		m.terms = make(map[string][][]byte)
	}
	field := string(name)
	for _, t := range m.terms[field] {
		if bytes.Equal(t, term) {
			return nil
		}
	}
	if _, ok := m.terms[field]; !ok {
		m.fields = append(m.fields, field)
	}
	m.terms[field] = append(m.terms[field], bytes.Clone(term))
	m.gen++
	j.reset = true
	return nil
}

// FlushMatches removes all terms.
func (j *Journal) FlushMatches() {
	j.matches = matchSet{gen: j.matches.gen + 1}
	j.reset = true
}

func (j *Journal) resolve(fs *fileState) (*fileMatch, error) {
	if fs.match != nil && fs.matchGen == j.matches.gen {
		return fs.match, nil
	}
	fm := &fileMatch{}
	for _, field := range j.matches.fields {
		var group []*journalfile.DataObject
		for _, t := range j.matches.terms[field] {
			d, ok, err := fs.f.FindData(t)
			if err != nil {
				return nil, err
			}
			if ok {
				group = append(group, d)
			}
		}
		if len(group) == 0 {
			fm.none = true
			break
		}
		fm.groups = append(fm.groups, group)
	}
	fs.match, fs.matchGen = fm, j.matches.gen
	return fm, nil
}

// matchFrom returns the nearest entry of fs satisfying the matches, starting
// at p (inclusive) or just past it.
func (j *Journal) matchFrom(fs *fileState, p uint64, dir journalfile.Direction, inclusive bool) (uint64, bool, error) {
	fm, err := j.resolve(fs)
	if err != nil || fm.none {
		return 0, false, err
	}
	cur := p
	if !inclusive {
		if dir == journalfile.Down {
			cur = p + 1
		} else {
			if p == 0 {
				return 0, false, nil
			}
			cur = p - 1
		}
	}
	for {
		changed := false
		for _, group := range fm.groups {
			var best uint64
			found := false
			for _, d := range group {
				off, ok, err := fs.f.MoveToEntryByOffsetForData(d, cur, dir)
				if err != nil {
					return 0, false, err
				}
				if !ok {
					continue
				}
				if !found || (dir == journalfile.Down && off < best) || (dir == journalfile.Up && off > best) {
					best, found = off, true
				}
			}
			if !found {
				return 0, false, nil
			}
			if best != cur {
				cur, changed = best, true
			}
		}
		if !changed {
			return cur, true, nil
		}
	}
}
