// Package id128 holds the 128-bit identifiers used by the journal: file ids,
// sequence-number namespaces, machine ids and boot ids.
package id128

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is a 128-bit identifier. The zero value is the null id.
type ID uuid.UUID

// Null is the all-zero identifier.
var Null ID

var ErrInvalidID = errors.New("invalid 128-bit id")

// New returns a random (version 4) identifier.
func New() ID {
	return ID(uuid.New())
}

// Parse accepts both the 32-character hex form and the dashed UUID form.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 32 {
		var id ID
		if _, err := hex.Decode(id[:], []byte(s)); err != nil {
			return Null, fmt.Errorf("%w: %q", ErrInvalidID, s)
		}
		return id, nil
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Null, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID(u), nil
}

// MustParse is Parse for constants in tests and tools.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBytes copies a 16-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return Null, fmt.Errorf("%w: %d bytes", ErrInvalidID, len(b))
	}
	return ID(u), nil
}

// String renders the id as 32 lower-case hex characters, the form used in
// file names, cursors and _BOOT_ID fields.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// UUID renders the dashed form.
func (id ID) UUID() string {
	return uuid.UUID(id).String()
}

func (id ID) IsNull() bool {
	return id == Null
}

func (id ID) Bytes() []byte {
	return id[:]
}

func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
