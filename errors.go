package pup

import (
	"errors"

	"github.com/meigma/pup/internal/puptype"
)

// Sentinel errors re-exported from internal/puptype.
var (
	// ErrIO wraps failures opening, reading, or writing files.
	ErrIO = puptype.ErrIO

	// ErrUnrecognizedMagic is returned when the input starts with no known magic.
	ErrUnrecognizedMagic = puptype.ErrUnrecognizedMagic

	// ErrTruncatedHeader is returned when the input is shorter than the header.
	ErrTruncatedHeader = puptype.ErrTruncatedHeader

	// ErrTruncatedEntry is returned when an entry descriptor extends past the input.
	ErrTruncatedEntry = puptype.ErrTruncatedEntry

	// ErrEntryOutOfBounds is returned when extracting an entry whose data lies
	// outside the input.
	ErrEntryOutOfBounds = puptype.ErrEntryOutOfBounds

	// ErrEmptyName is reported as a warning when an entry has no name.
	ErrEmptyName = puptype.ErrEmptyName

	// ErrUnsafeName is reported as a warning when an entry name is not a
	// safe output path.
	ErrUnsafeName = puptype.ErrUnsafeName

	// ErrRangeOverflow is returned when an entry's byte range overflows.
	ErrRangeOverflow = puptype.ErrRangeOverflow

	// ErrIndexOutOfRange is returned for an entry index that does not exist.
	ErrIndexOutOfRange = puptype.ErrIndexOutOfRange

	// ErrNoDecryptionKey is returned when an encrypted entry has no key.
	ErrNoDecryptionKey = puptype.ErrNoDecryptionKey

	// ErrDecryption is returned when decryption fails.
	ErrDecryption = puptype.ErrDecryption

	// ErrDecompression is returned when a compressed stream is corrupt.
	ErrDecompression = puptype.ErrDecompression

	// ErrSizeOverflow is returned when a size exceeds a configured limit.
	ErrSizeOverflow = puptype.ErrSizeOverflow
)

// Sentinel errors specific to the pup package.
var (
	// ErrNotLoaded is returned when an Archive is used before a successful Load.
	ErrNotLoaded = errors.New("pup: archive not loaded")

	// ErrInvalidState is returned when Load is called more than once.
	ErrInvalidState = errors.New("pup: invalid state")
)

// Structured errors re-exported from internal/puptype.
type (
	// FormatError describes a header or table decoding failure.
	FormatError = puptype.FormatError

	// EntryError describes a failure extracting one entry.
	EntryError = puptype.EntryError
)
