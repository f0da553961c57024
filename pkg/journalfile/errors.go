package journalfile

import (
	"errors"
	"fmt"
)

// Sentinel errors. Lookups that simply find nothing do not return an error;
// they report found == false.
var (
	ErrCorruptObject = errors.New("corrupt object")
	ErrOutOfOrder    = errors.New("entry out of order")
	ErrNotFound      = errors.New("not found")
	ErrBusy          = errors.New("file is locked by another writer")
	ErrRacing        = errors.New("file changed while being read")
	ErrExhausted     = errors.New("i/o failure")
	ErrIncompatible  = errors.New("incompatible file format")
	ErrFileFull      = errors.New("file size limit reached")
	ErrReadOnly      = errors.New("file is read-only")
	ErrArchived      = errors.New("file is archived")
	ErrDirty         = errors.New("file was not closed cleanly")
	ErrInvalidEntry  = errors.New("invalid entry")
	ErrClosed        = errors.New("file is closed")
)

// FileError provides structured error information for file operations.
type FileError struct {
	Op     string // Operation that failed, e.g. "append", "move_to_object"
	Path   string
	Offset uint64 // Object offset, when the failure concerns one object
	Type   ObjectType
	Cause  error
}

func (e *FileError) Error() string {
	switch {
	case e.Offset != 0 && e.Type != ObjectUnused:
		return fmt.Sprintf("%s %s: %s object at %#x: %v", e.Op, e.Path, e.Type, e.Offset, e.Cause)
	case e.Offset != 0:
		return fmt.Sprintf("%s %s: object at %#x: %v", e.Op, e.Path, e.Offset, e.Cause)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
	}
}

// Unwrap returns the underlying cause for error chain support.
func (e *FileError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building FileErrors.
type ErrorBuilder struct {
	err FileError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: FileError{Op: op}}
}

func (b *ErrorBuilder) Path(p string) *ErrorBuilder {
	b.err.Path = p
	return b
}

func (b *ErrorBuilder) Object(t ObjectType, off uint64) *ErrorBuilder {
	b.err.Type = t
	b.err.Offset = off
	return b
}

func (b *ErrorBuilder) Offset(off uint64) *ErrorBuilder {
	b.err.Offset = off
	return b
}

func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Causef sets a formatted cause wrapping sentinel.
func (b *ErrorBuilder) Causef(sentinel error, format string, args ...any) *ErrorBuilder {
	b.err.Cause = fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
	return b
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptObject)
}

func IsOutOfOrder(err error) bool {
	return errors.Is(err, ErrOutOfOrder)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRotatable reports errors a writer handles by starting a new file.
func IsRotatable(err error) bool {
	return errors.Is(err, ErrOutOfOrder) || errors.Is(err, ErrFileFull) ||
		errors.Is(err, ErrIncompatible) || errors.Is(err, ErrDirty) || errors.Is(err, ErrArchived)
}
