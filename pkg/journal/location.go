package journal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dd0wney/cluso-journal/pkg/id128"
	"github.com/dd0wney/cluso-journal/pkg/journalfile"
)

type locationType int

const (
	locHead locationType = iota
	locTail
	locSeek     // partial key set, entries at the location qualify
	locDiscrete // exactly one entry, only entries strictly beyond qualify
)

func (t locationType) String() string {
	switch t {
	case locHead:
		return "head"
	case locTail:
		return "tail"
	case locSeek:
		return "seek"
	default:
		return "discrete"
	}
}

// location is where the next step starts from.
type location struct {
	typ locationType

	seqnumSet bool
	seqnumID  id128.ID
	seqnum    uint64

	monotonicSet bool
	bootID       id128.ID
	monotonic    uint64

	realtimeSet bool
	realtime    uint64

	xorSet bool
	xor    uint64
}

func discreteLocation(fs *fileState, e *journalfile.Entry) location {
	return location{
		typ:          locDiscrete,
		seqnumSet:    true,
		seqnumID:     fs.seqnumID,
		seqnum:       e.Seqnum,
		monotonicSet: true,
		bootID:       e.BootID,
		monotonic:    e.Monotonic,
		realtimeSet:  true,
		realtime:     e.Realtime,
		xorSet:       true,
		xor:          e.XorHash,
	}
}

// formatCursor renders the cursor token of an entry.
func formatCursor(seqnumID id128.ID, e *journalfile.Entry) string {
	return fmt.Sprintf("s=%s;i=%x;b=%s;m=%x;t=%x;x=%x",
		seqnumID, e.Seqnum, e.BootID, e.Monotonic, e.Realtime, e.XorHash)
}

// parseCursor parses a cursor token into a seek location. Keys may come in
// any order; unknown keys are ignored.
func parseCursor(tok string) (location, error) {
	loc := location{typ: locSeek}
	var (
		haveS, haveI, haveB, haveM bool
		sid, bid                   id128.ID
		seq, mono                  uint64
	)
	for _, part := range strings.Split(tok, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || len(k) != 1 {
			continue
		}
		var err error
		switch k {
		case "s":
			sid, err = id128.Parse(v)
			haveS = err == nil
		case "i":
			seq, err = strconv.ParseUint(v, 16, 64)
			haveI = err == nil
		case "b":
			bid, err = id128.Parse(v)
			haveB = err == nil
		case "m":
			mono, err = strconv.ParseUint(v, 16, 64)
			haveM = err == nil
		case "t":
			loc.realtime, err = strconv.ParseUint(v, 16, 64)
			loc.realtimeSet = err == nil
		case "x":
			loc.xor, err = strconv.ParseUint(v, 16, 64)
			loc.xorSet = err == nil
		default:
			continue
		}
		if err != nil {
			return location{}, fmt.Errorf("%w: key %s: %v", ErrInvalidCursor, k, err)
		}
	}
	if haveS && haveI {
		loc.seqnumSet, loc.seqnumID, loc.seqnum = true, sid, seq
	}
	if haveB && haveM {
		loc.monotonicSet, loc.bootID, loc.monotonic = true, bid, mono
	}
	if !loc.seqnumSet && !loc.monotonicSet && !loc.realtimeSet {
		return location{}, fmt.Errorf("%w: %q has no position", ErrInvalidCursor, tok)
	}
	return loc, nil
}
