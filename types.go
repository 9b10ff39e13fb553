package pup

import (
	"github.com/meigma/pup/internal/format"
	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/internal/scan"
)

// Re-export types from internal packages for the public API.
type (
	// Entry describes one payload: a table entry or a scanned segment.
	Entry = puptype.Entry

	// Flags is the segment flag bitfield.
	Flags = puptype.Flags

	// Compression identifies the compression of an entry's stored bytes.
	Compression = puptype.Compression

	// Origin records where an entry's metadata came from.
	Origin = puptype.Origin

	// Family describes one container family: magic, byte order, header
	// fields and table layout.
	Family = format.Family

	// Field locates an unsigned integer in a header.
	Field = format.Field

	// Layout identifies an entry-table record layout.
	Layout = format.Layout

	// Kind is the container kind.
	Kind = format.Kind

	// Header is a decoded container header.
	Header = format.Header

	// ScanConfig bounds the segment scanner.
	ScanConfig = scan.Config
)

// Re-export flag bits.
const (
	FlagInfo       = puptype.FlagInfo
	FlagEncrypted  = puptype.FlagEncrypted
	FlagSigned     = puptype.FlagSigned
	FlagCompressed = puptype.FlagCompressed
	FlagHasBlocks  = puptype.FlagHasBlocks
	FlagHasDigests = puptype.FlagHasDigests
)

// Re-export compression constants.
const (
	CompressionNone = puptype.CompressionNone
	CompressionZlib = puptype.CompressionZlib
	CompressionLZMA = puptype.CompressionLZMA
	CompressionGzip = puptype.CompressionGzip
	CompressionZstd = puptype.CompressionZstd
	CompressionLZ4  = puptype.CompressionLZ4
)

// Re-export origin constants.
const (
	OriginTable     = puptype.OriginTable
	OriginScan      = puptype.OriginScan
	OriginSynthetic = puptype.OriginSynthetic
)

// Re-export container kinds.
const (
	KindPUP  = format.KindPUP
	KindSLB2 = format.KindSLB2
)

// DefaultFamilies returns the built-in family table.
func DefaultFamilies() []Family {
	return format.DefaultFamilies()
}

// DefaultScanConfig returns the default scanner bounds.
func DefaultScanConfig() ScanConfig {
	return scan.DefaultConfig()
}
