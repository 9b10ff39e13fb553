package puptype

import (
	"errors"
	"fmt"
)

// Sentinel errors for container parsing and extraction.
var (
	// ErrIO wraps failures opening, reading, or writing files.
	ErrIO = errors.New("pup: i/o error")

	// ErrUnrecognizedMagic is returned when the buffer starts with no known magic.
	ErrUnrecognizedMagic = errors.New("pup: unrecognized magic")

	// ErrTruncatedHeader is returned when the buffer is shorter than the header.
	ErrTruncatedHeader = errors.New("pup: truncated header")

	// ErrTruncatedEntry is returned when an entry descriptor extends past the buffer.
	ErrTruncatedEntry = errors.New("pup: truncated entry")

	// ErrEntryOutOfBounds is returned when an entry's data range lies outside the buffer.
	ErrEntryOutOfBounds = errors.New("pup: entry out of bounds")

	// ErrEmptyName is reported when an entry has no name and an index name is used.
	ErrEmptyName = errors.New("pup: empty entry name")

	// ErrUnsafeName is reported when an entry name cannot be used as an
	// output path and an index name is used.
	ErrUnsafeName = errors.New("pup: unsafe entry name")

	// ErrRangeOverflow is returned when an entry's byte range overflows the buffer.
	ErrRangeOverflow = errors.New("pup: range overflow")

	// ErrIndexOutOfRange is returned for an entry index that does not exist.
	ErrIndexOutOfRange = errors.New("pup: index out of range")

	// ErrNoDecryptionKey is returned when an encrypted entry has no key material.
	ErrNoDecryptionKey = errors.New("pup: no decryption key")

	// ErrDecryption is returned when the decrypt capability fails.
	ErrDecryption = errors.New("pup: decryption failed")

	// ErrDecompression is returned when a compressed stream is corrupt.
	ErrDecompression = errors.New("pup: decompression failed")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("pup: size overflow")
)

// FormatError describes a parse failure at a specific location in the buffer.
type FormatError struct {
	Family string
	Offset uint64
	Size   uint64
	Err    error
}

func (e *FormatError) Error() string {
	if e.Family == "" {
		return fmt.Sprintf("%v at [0x%X, 0x%X)", e.Err, e.Offset, e.Offset+e.Size)
	}
	return fmt.Sprintf("%s: %v at [0x%X, 0x%X)", e.Family, e.Err, e.Offset, e.Offset+e.Size)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// EntryError describes a failure extracting one entry.
//
// The message names the entry index and byte range so the failure can be
// reproduced against a hex dump.
type EntryError struct {
	Index  int
	Offset uint64
	Size   uint64
	Err    error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d [0x%X, 0x%X): %v", e.Index, e.Offset, e.Offset+e.Size, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
