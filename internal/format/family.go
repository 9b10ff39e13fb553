// Package format decodes container headers and entry tables.
//
// Each container family is described by a Family value: its magic, byte
// order, header size, the location and width of the header fields, and
// the binary layout of its entry table. The default table is configuration
// data rather than a fixed truth; callers may replace or extend it.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/pup/internal/puptype"
)

// Kind is the container family kind.
type Kind uint8

const (
	KindPUP Kind = iota
	KindSLB2
)

func (k Kind) String() string {
	switch k {
	case KindPUP:
		return "pup"
	case KindSLB2:
		return "slb2"
	default:
		return "unknown"
	}
}

// Layout identifies the binary layout of one entry-table record.
type Layout uint8

const (
	// LayoutNone means the family has no trustworthy table; payloads are
	// found by scanning.
	LayoutNone Layout = iota

	// LayoutSony is the 0x20-byte blob record: flags, offset, file size,
	// memory size.
	LayoutSony

	// LayoutNamed is the 0x20-byte record with a 6-byte name.
	LayoutNamed

	// LayoutOffsetSize is the 0x20-byte offset/size record.
	LayoutOffsetSize

	// LayoutTagged is the 0x20-byte record with a 4-byte compression tag.
	LayoutTagged

	// LayoutSLB2 is the 0x30-byte sector-addressed record with a 32-byte name.
	LayoutSLB2
)

// Stride returns the record size in bytes, or 0 for LayoutNone.
func (l Layout) Stride() uint64 {
	switch l {
	case LayoutSony, LayoutNamed, LayoutOffsetSize, LayoutTagged:
		return 0x20
	case LayoutSLB2:
		return 0x30
	default:
		return 0
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutNone:
		return "none"
	case LayoutSony:
		return "sony"
	case LayoutNamed:
		return "named"
	case LayoutOffsetSize:
		return "offsize"
	case LayoutTagged:
		return "tagged"
	case LayoutSLB2:
		return "slb2"
	default:
		return "unknown"
	}
}

// ParseLayout parses a layout name as produced by String.
func ParseLayout(name string) (Layout, error) {
	for l := LayoutNone; l <= LayoutSLB2; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	return LayoutNone, fmt.Errorf("unknown layout: %q", name)
}

// Field locates an unsigned integer in the header. A zero Width means the
// field is absent.
type Field struct {
	Offset uint64
	Width  int
}

func (f Field) present() bool {
	return f.Width > 0
}

// Family describes one container family.
type Family struct {
	Name  string
	Magic []byte
	Kind  Kind
	Order binary.ByteOrder

	// HeaderSize is the number of bytes the header occupies. The buffer
	// must be at least this long.
	HeaderSize uint64

	Version Field
	Mode    Field
	Flags   Field
	Count   Field

	// TableOffset locates the table offset field. When absent the table
	// starts at FixedTableOffset.
	TableOffset      Field
	FixedTableOffset uint64

	Layout Layout

	// Compression is applied to entries flagged compressed.
	Compression puptype.Compression

	// Extra fields are decoded into Header.Fields by name.
	Extra map[string]Field

	// MaxCount caps the entry count for this family. Zero means no
	// family-specific cap.
	MaxCount uint64

	// Versions lists the supported version values. Empty accepts any.
	Versions []uint64

	// ScanFallback selects the scanner when the decoded table is not
	// trustworthy.
	ScanFallback bool

	// SectorSize converts SLB2 sector indices to byte offsets.
	SectorSize uint64
}

// HeuristicOnly reports whether the family is handled by scanning alone.
func (f *Family) HeuristicOnly() bool {
	return f.Layout == LayoutNone
}

// Validate checks a family descriptor for internal consistency.
func (f *Family) Validate() error {
	if f.Name == "" {
		return errors.New("family: missing name")
	}
	if len(f.Magic) == 0 {
		return fmt.Errorf("family %s: empty magic", f.Name)
	}
	if f.Order == nil {
		return fmt.Errorf("family %s: missing byte order", f.Name)
	}
	if f.HeaderSize < uint64(len(f.Magic)) {
		return fmt.Errorf("family %s: header size 0x%X shorter than magic", f.Name, f.HeaderSize)
	}
	fields := map[string]Field{
		"version":      f.Version,
		"mode":         f.Mode,
		"flags":        f.Flags,
		"count":        f.Count,
		"table_offset": f.TableOffset,
	}
	for name, fld := range f.Extra {
		fields[name] = fld
	}
	for name, fld := range fields {
		if !fld.present() {
			continue
		}
		switch fld.Width {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("family %s: field %s: unsupported width %d", f.Name, name, fld.Width)
		}
		if fld.Offset+uint64(fld.Width) > f.HeaderSize {
			return fmt.Errorf("family %s: field %s outside header", f.Name, name)
		}
	}
	if !f.HeuristicOnly() && !f.Count.present() {
		return fmt.Errorf("family %s: table layout %s without count field", f.Name, f.Layout)
	}
	if f.Layout == LayoutSLB2 && f.SectorSize == 0 {
		return fmt.Errorf("family %s: missing sector size", f.Name)
	}
	return nil
}

// Match returns the family whose magic is the longest prefix of buf.
func Match(buf []byte, families []Family) (*Family, bool) {
	var best *Family
	for i := range families {
		f := &families[i]
		if !bytes.HasPrefix(buf, f.Magic) {
			continue
		}
		if best == nil || len(f.Magic) > len(best.Magic) {
			best = f
		}
	}
	return best, best != nil
}

// SLB2 geometry.
const (
	SLB2SectorSize  = 0x200
	SLB2HeaderSize  = 0x200
	SLB2TableOffset = 0x20
)

// DefaultFamilies returns the built-in family table.
//
// Several magics attributed to the same console generation disagree
// across tools; all of them are listed and the heuristic-only families
// are scanned rather than decoded.
func DefaultFamilies() []Family {
	heuristic := func(name string, magic []byte) Family {
		return Family{
			Name:       name,
			Magic:      magic,
			Kind:       KindPUP,
			Order:      binary.BigEndian,
			HeaderSize: 0x20,
			Version:    Field{Offset: 0x4, Width: 2},
			Flags:      Field{Offset: 0xA, Width: 2},
			Extra: map[string]Field{
				"header_size": {Offset: 0xC, Width: 2},
				"meta_size":   {Offset: 0xE, Width: 2},
			},
			Layout: LayoutNone,
		}
	}

	return []Family{
		{
			Name:             "ps4",
			Magic:            []byte{0x4F, 0x15, 0x3D, 0x1D},
			Kind:             KindPUP,
			Order:            binary.LittleEndian,
			HeaderSize:       0x20,
			Version:          Field{Offset: 0x4, Width: 1},
			Mode:             Field{Offset: 0x5, Width: 1},
			Flags:            Field{Offset: 0x7, Width: 1},
			Count:            Field{Offset: 0x18, Width: 2},
			FixedTableOffset: 0x20,
			Extra: map[string]Field{
				"endian":      {Offset: 0x6, Width: 1},
				"content":     {Offset: 0x8, Width: 1},
				"product":     {Offset: 0x9, Width: 1},
				"header_size": {Offset: 0xC, Width: 2},
				"meta_size":   {Offset: 0xE, Width: 2},
				"file_size":   {Offset: 0x10, Width: 4},
				"flags2":      {Offset: 0x1A, Width: 2},
			},
			Layout:       LayoutSony,
			Compression:  puptype.CompressionZlib,
			ScanFallback: true,
		},
		heuristic("ps5", []byte{0x4F, 0x15, 0x3D, 0x1E}),
		heuristic("ps3", []byte{0x4F, 0x15, 0x3D, 0x1C}),
		heuristic("ps5p", []byte("PS5P")),
		heuristic("ps3p", []byte("PS3P")),
		{
			Name:        "legacy",
			Magic:       []byte("MYPUP123"),
			Kind:        KindPUP,
			Order:       binary.LittleEndian,
			HeaderSize:  0x40,
			Version:     Field{Offset: 0x8, Width: 4},
			Mode:        Field{Offset: 0xC, Width: 4},
			TableOffset: Field{Offset: 0x20, Width: 8},
			Count:       Field{Offset: 0x30, Width: 4},
			Layout:      LayoutNamed,
			Compression: puptype.CompressionLZMA,
		},
		{
			Name:             "pupbe",
			Magic:            []byte("PUP "),
			Kind:             KindPUP,
			Order:            binary.BigEndian,
			HeaderSize:       0xC0,
			Version:          Field{Offset: 0x4, Width: 2},
			Count:            Field{Offset: 0x8, Width: 2},
			Flags:            Field{Offset: 0xA, Width: 8},
			FixedTableOffset: 0xC0,
			Extra: map[string]Field{
				"version_minor": {Offset: 0x6, Width: 2},
			},
			Layout: LayoutOffsetSize,
		},
		{
			Name:             "zpup",
			Magic:            []byte{0x01, 0x4F, 0xC1, 0x0A},
			Kind:             KindPUP,
			Order:            binary.LittleEndian,
			HeaderSize:       0xC0,
			Version:          Field{Offset: 0x4, Width: 4},
			Count:            Field{Offset: 0x8, Width: 4},
			FixedTableOffset: 0xC0,
			Layout:           LayoutTagged,
			Compression:      puptype.CompressionZlib,
			Versions:         []uint64{1, 2},
		},
		{
			Name:             "slb2",
			Magic:            []byte("SLB2"),
			Kind:             KindSLB2,
			Order:            binary.LittleEndian,
			HeaderSize:       SLB2HeaderSize,
			Version:          Field{Offset: 0x4, Width: 4},
			Flags:            Field{Offset: 0x8, Width: 4},
			Count:            Field{Offset: 0xC, Width: 4},
			FixedTableOffset: SLB2TableOffset,
			Extra: map[string]Field{
				"total_sectors": {Offset: 0x10, Width: 4},
			},
			Layout:     LayoutSLB2,
			MaxCount:   (SLB2HeaderSize - SLB2TableOffset) / 0x30,
			SectorSize: SLB2SectorSize,
		},
	}
}
