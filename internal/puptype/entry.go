package puptype

import "strings"

// Flags is the segment flag bitfield shared by the PUP entry layouts.
type Flags uint64

// Segment flag bits.
const (
	FlagInfo       Flags = 1 << 0
	FlagEncrypted  Flags = 1 << 1
	FlagSigned     Flags = 1 << 2
	FlagCompressed Flags = 1 << 3
	FlagHasBlocks  Flags = 1 << 11
	FlagHasDigests Flags = 1 << 16
)

// Has reports whether all bits in f are set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

func (fl Flags) String() string {
	names := []struct {
		flag Flags
		name string
	}{
		{FlagInfo, "info"},
		{FlagEncrypted, "encrypted"},
		{FlagSigned, "signed"},
		{FlagCompressed, "compressed"},
		{FlagHasBlocks, "blocks"},
		{FlagHasDigests, "digests"},
	}
	var parts []string
	for _, n := range names {
		if fl.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

// Origin records where an entry's metadata came from.
type Origin uint8

const (
	// OriginTable entries were decoded from the container's entry table.
	OriginTable Origin = iota

	// OriginScan entries were found by signature scanning.
	OriginScan

	// OriginSynthetic entries are placeholders produced when scanning found
	// too little. They are opaque encrypted ranges.
	OriginSynthetic
)

func (o Origin) String() string {
	switch o {
	case OriginTable:
		return "table"
	case OriginScan:
		return "scan"
	case OriginSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Entry describes one payload in a container: a table entry or a segment.
//
// Entries reference the container buffer by offset; they never hold a copy
// of the payload bytes.
type Entry struct {
	// Index is the position of the entry in on-disk (or scan) order.
	Index int

	// Name is the decoded entry name. Empty when the format carries none.
	Name string

	// ID is the blob identifier for Sony blob tables.
	ID uint32

	// Flags holds the segment flag bits.
	Flags Flags

	// Offset is the byte offset of the stored data in the container.
	Offset uint64

	// StoredSize is the number of stored bytes: the compressed size for
	// compressed entries, else the plain size.
	StoredSize uint64

	// Size is the uncompressed size. Zero means unknown.
	Size uint64

	// StartSector is the SLB2 sector index of the data.
	StartSector uint64

	// Compression is the scheme used for the stored bytes.
	Compression Compression

	// Signature names the scanner signature that produced the entry.
	Signature string

	// Origin records where the metadata came from.
	Origin Origin

	// Extractable is false when the data range falls outside the buffer.
	Extractable bool

	// Recoverable allows extraction to clamp an overrunning size.
	Recoverable bool
}

// IsCompressed reports whether the stored bytes need decompression.
func (e Entry) IsCompressed() bool {
	return e.Compression != CompressionNone
}

// IsEncrypted reports whether the stored bytes are encrypted.
func (e Entry) IsEncrypted() bool {
	return e.Flags.Has(FlagEncrypted)
}

// IsSynthetic reports whether the entry is a scanner placeholder.
func (e Entry) IsSynthetic() bool {
	return e.Origin == OriginSynthetic
}

// EffectiveSize returns the number of bytes the entry occupies in the buffer.
func (e Entry) EffectiveSize() uint64 {
	return e.StoredSize
}

// End returns Offset+EffectiveSize and false on overflow.
func (e Entry) End() (uint64, bool) {
	end := e.Offset + e.StoredSize
	if end < e.Offset {
		return 0, false
	}
	return end, true
}

// InBounds reports whether the entry's data range lies within n bytes.
func (e Entry) InBounds(n uint64) bool {
	end, ok := e.End()
	return ok && end <= n
}
