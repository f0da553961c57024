// Package journalfile implements a single journal file: an append-only heap
// of typed objects behind a fixed header, with hash tables for interning
// field/value payloads and entry-array chains for ordered lookup.
package journalfile

import "fmt"

// On-disk layout constants. Everything is little-endian and 8-byte aligned.
const (
	Signature     = "CJOURNL\x00"
	FormatVersion = 1

	HeaderSize       = 272
	ObjectHeaderSize = 16

	// MinFileSize is the smallest accepted size limit.
	MinFileSize = 1 << 20

	dataObjectHeaderSize  = ObjectHeaderSize + 6*8
	fieldObjectHeaderSize = ObjectHeaderSize + 3*8
	entryObjectHeaderSize = ObjectHeaderSize + 3*8 + 16 + 8
	entryItemSize         = 16
	hashItemSize          = 16
	entryArrayHeaderSize  = ObjectHeaderSize + 8
	tagObjectSize         = ObjectHeaderSize + 8 + 8 + 32

	minEntryArrayCapacity = 4
	maxEntryArrayCapacity = 1 << 16
)

// ObjectType is the first byte of every object.
type ObjectType uint8

const (
	ObjectUnused ObjectType = iota
	ObjectData
	ObjectField
	ObjectEntry
	ObjectDataHashTable
	ObjectFieldHashTable
	ObjectEntryArray
	ObjectTag
	objectTypeMax
)

func (t ObjectType) String() string {
	switch t {
	case ObjectData:
		return "data"
	case ObjectField:
		return "field"
	case ObjectEntry:
		return "entry"
	case ObjectDataHashTable:
		return "data-hash-table"
	case ObjectFieldHashTable:
		return "field-hash-table"
	case ObjectEntryArray:
		return "entry-array"
	case ObjectTag:
		return "tag"
	default:
		return fmt.Sprintf("object(%d)", uint8(t))
	}
}

// State is the file state byte in the header.
type State uint8

const (
	StateOffline State = iota
	StateOnline
	StateArchived
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateOnline:
		return "online"
	case StateArchived:
		return "archived"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Incompatible flags: a reader that does not know one of these must not
// touch the file.
const (
	IncompatKeyedHash        uint32 = 1 << 0
	IncompatCompressedSnappy uint32 = 1 << 1
	IncompatCompressedZstd   uint32 = 1 << 2

	incompatSupported = IncompatKeyedHash | IncompatCompressedSnappy | IncompatCompressedZstd
)

// Compatible flags: unknown ones only prevent writing.
const (
	CompatSealed uint32 = 1 << 0

	compatSupported = CompatSealed
)

// Direction selects successor (Down) or predecessor (Up) searches.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

func align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

func validOffset(off uint64) bool {
	return off != 0 && off%8 == 0
}
