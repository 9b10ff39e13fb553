package pup

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meigma/pup/internal/format"
	"github.com/meigma/pup/internal/puptype"
)

// familyFile is the YAML form of a family table.
type familyFile struct {
	Families []familyDoc `yaml:"families"`
}

type fieldDoc struct {
	Offset uint64 `yaml:"offset"`
	Width  int    `yaml:"width"`
}

type familyDoc struct {
	Name        string              `yaml:"name"`
	Magic       string              `yaml:"magic"`
	Kind        string              `yaml:"kind"`
	Order       string              `yaml:"order"`
	HeaderSize  uint64              `yaml:"header_size"`
	Version     *fieldDoc           `yaml:"version,omitempty"`
	Mode        *fieldDoc           `yaml:"mode,omitempty"`
	Flags       *fieldDoc           `yaml:"flags,omitempty"`
	Count       *fieldDoc           `yaml:"count,omitempty"`
	TableOffset *fieldDoc           `yaml:"table_offset,omitempty"`
	TableAt     uint64              `yaml:"table_at,omitempty"`
	Layout      string              `yaml:"layout"`
	Compression string              `yaml:"compression,omitempty"`
	Extra       map[string]fieldDoc `yaml:"extra,omitempty"`
	MaxCount    uint64              `yaml:"max_count,omitempty"`
	Versions    []uint64            `yaml:"versions,omitempty"`
	Scan        bool                `yaml:"scan_fallback,omitempty"`
	SectorSize  uint64              `yaml:"sector_size,omitempty"`
}

// LoadFamilies reads a YAML family table:
//
//	families:
//	  - name: slb2
//	    magic: "534C4232"
//	    kind: slb2
//	    order: little
//	    header_size: 0x200
//	    version: {offset: 4, width: 4}
//	    count: {offset: 0xC, width: 4}
//	    table_at: 0x20
//	    layout: slb2
//	    max_count: 10
//	    sector_size: 0x200
//
// Every family is validated.
func LoadFamilies(r io.Reader) ([]Family, error) {
	var doc familyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode family table: %w", err)
	}
	if len(doc.Families) == 0 {
		return nil, fmt.Errorf("decode family table: no families")
	}
	families := make([]Family, 0, len(doc.Families))
	for i, d := range doc.Families {
		f, err := d.family()
		if err != nil {
			return nil, fmt.Errorf("family %d (%s): %w", i, d.Name, err)
		}
		if err := f.Validate(); err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return families, nil
}

// LoadFamiliesFile reads a YAML family table from path.
func LoadFamiliesFile(path string) ([]Family, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer f.Close()
	return LoadFamilies(f)
}

// WriteFamilies writes families as YAML in the form read by LoadFamilies.
func WriteFamilies(w io.Writer, families []Family) error {
	doc := familyFile{Families: make([]familyDoc, 0, len(families))}
	for _, f := range families {
		doc.Families = append(doc.Families, newFamilyDoc(f))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func (d familyDoc) family() (Family, error) {
	magic, err := hex.DecodeString(strings.ReplaceAll(d.Magic, " ", ""))
	if err != nil {
		return Family{}, fmt.Errorf("magic: %w", err)
	}
	var kind format.Kind
	switch d.Kind {
	case "", "pup":
		kind = format.KindPUP
	case "slb2":
		kind = format.KindSLB2
	default:
		return Family{}, fmt.Errorf("unknown kind %q", d.Kind)
	}
	var order binary.ByteOrder
	switch d.Order {
	case "little", "le":
		order = binary.LittleEndian
	case "big", "be":
		order = binary.BigEndian
	default:
		return Family{}, fmt.Errorf("unknown byte order %q", d.Order)
	}
	layout, err := format.ParseLayout(d.Layout)
	if err != nil {
		return Family{}, err
	}
	comp, err := puptype.ParseCompression(d.Compression)
	if err != nil {
		return Family{}, err
	}

	f := Family{
		Name:             d.Name,
		Magic:            magic,
		Kind:             kind,
		Order:            order,
		HeaderSize:       d.HeaderSize,
		Version:          d.Version.field(),
		Mode:             d.Mode.field(),
		Flags:            d.Flags.field(),
		Count:            d.Count.field(),
		TableOffset:      d.TableOffset.field(),
		FixedTableOffset: d.TableAt,
		Layout:           layout,
		Compression:      comp,
		MaxCount:         d.MaxCount,
		Versions:         slices.Clone(d.Versions),
		ScanFallback:     d.Scan,
		SectorSize:       d.SectorSize,
	}
	if len(d.Extra) > 0 {
		f.Extra = make(map[string]Field, len(d.Extra))
		for name, fd := range d.Extra {
			f.Extra[name] = fd.field()
		}
	}
	return f, nil
}

func (d *fieldDoc) field() Field {
	if d == nil {
		return Field{}
	}
	return Field{Offset: d.Offset, Width: d.Width}
}

func newFieldDoc(f Field) *fieldDoc {
	if f.Width == 0 {
		return nil
	}
	return &fieldDoc{Offset: f.Offset, Width: f.Width}
}

func newFamilyDoc(f Family) familyDoc {
	order := "little"
	if f.Order == binary.BigEndian {
		order = "big"
	}
	d := familyDoc{
		Name:        f.Name,
		Magic:       strings.ToUpper(hex.EncodeToString(f.Magic)),
		Kind:        f.Kind.String(),
		Order:       order,
		HeaderSize:  f.HeaderSize,
		Version:     newFieldDoc(f.Version),
		Mode:        newFieldDoc(f.Mode),
		Flags:       newFieldDoc(f.Flags),
		Count:       newFieldDoc(f.Count),
		TableOffset: newFieldDoc(f.TableOffset),
		TableAt:     f.FixedTableOffset,
		Layout:      f.Layout.String(),
		MaxCount:    f.MaxCount,
		Versions:    slices.Clone(f.Versions),
		Scan:        f.ScanFallback,
		SectorSize:  f.SectorSize,
	}
	if f.Compression != puptype.CompressionNone {
		d.Compression = f.Compression.String()
	}
	if len(f.Extra) > 0 {
		d.Extra = make(map[string]fieldDoc, len(f.Extra))
		for name, fd := range f.Extra {
			d.Extra[name] = fieldDoc{Offset: fd.Offset, Width: fd.Width}
		}
	}
	return d
}
