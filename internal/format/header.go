package format

import (
	"fmt"
	"slices"

	"github.com/meigma/pup/internal/bytereader"
	"github.com/meigma/pup/internal/puptype"
)

// DefaultMaxEntries is the entry-count sanity ceiling.
const DefaultMaxEntries = 1000

// Header is a decoded container header.
type Header struct {
	Family *Family
	Magic  []byte

	Version uint64
	Mode    uint64
	Flags   uint64

	// TableOffset is where the entry table starts.
	TableOffset uint64

	// EntryCount is the number of entries to decode, after clamping.
	EntryCount uint64

	// DeclaredCount is the count stored in the header.
	DeclaredCount uint64

	// HeaderSize is the number of bytes occupied by the header.
	HeaderSize uint64

	// Suspicious is set when the header needed clamping or carries an
	// unsupported version.
	Suspicious bool

	// Fields holds family-specific values by name.
	Fields map[string]uint64
}

// ParseHeader matches buf against families and decodes the header fields.
//
// The entry count is clamped to maxEntries (and to the family's own cap);
// clamping sets Suspicious. A table that still extends past the buffer is
// left for DecodeTable to reject.
func ParseHeader(buf []byte, families []Family, maxEntries uint64) (*Header, error) {
	fam, ok := Match(buf, families)
	if !ok {
		return nil, &puptype.FormatError{Offset: 0, Size: uint64(min(len(buf), 4)), Err: puptype.ErrUnrecognizedMagic}
	}
	if uint64(len(buf)) < fam.HeaderSize {
		return nil, &puptype.FormatError{Family: fam.Name, Offset: 0, Size: fam.HeaderSize, Err: puptype.ErrTruncatedHeader}
	}

	r := bytereader.New(buf)
	read := func(name string, f Field) (uint64, error) {
		if !f.present() {
			return 0, nil
		}
		v, err := r.UintAt(f.Offset, f.Width, fam.Order)
		if err != nil {
			return 0, &puptype.FormatError{
				Family: fam.Name,
				Offset: f.Offset,
				Size:   uint64(f.Width),
				Err:    fmt.Errorf("%w: %s: %v", puptype.ErrTruncatedHeader, name, err),
			}
		}
		return v, nil
	}

	h := &Header{
		Family:      fam,
		Magic:       buf[:len(fam.Magic):len(fam.Magic)],
		HeaderSize:  fam.HeaderSize,
		TableOffset: fam.FixedTableOffset,
		Fields:      make(map[string]uint64, len(fam.Extra)),
	}

	var err error
	if h.Version, err = read("version", fam.Version); err != nil {
		return nil, err
	}
	if h.Mode, err = read("mode", fam.Mode); err != nil {
		return nil, err
	}
	if h.Flags, err = read("flags", fam.Flags); err != nil {
		return nil, err
	}
	if fam.TableOffset.present() {
		if h.TableOffset, err = read("table_offset", fam.TableOffset); err != nil {
			return nil, err
		}
	}
	if h.DeclaredCount, err = read("count", fam.Count); err != nil {
		return nil, err
	}
	for name, f := range fam.Extra {
		v, err := read(name, f)
		if err != nil {
			return nil, err
		}
		h.Fields[name] = v
	}

	h.EntryCount = h.DeclaredCount
	ceiling := maxEntries
	if ceiling == 0 {
		ceiling = DefaultMaxEntries
	}
	if fam.MaxCount > 0 && fam.MaxCount < ceiling {
		ceiling = fam.MaxCount
	}
	if h.EntryCount > ceiling {
		h.EntryCount = ceiling
		h.Suspicious = true
	}
	if len(fam.Versions) > 0 && !slices.Contains(fam.Versions, h.Version) {
		h.Suspicious = true
	}
	return h, nil
}
