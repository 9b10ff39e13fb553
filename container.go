package pup

import "slices"

// Container is a loaded PUP or SLB2 container.
type Container interface {
	// Kind returns KindPUP or KindSLB2.
	Kind() Kind

	// Info describes the container and its entries.
	Info() Info

	// EntryCount returns the number of entries.
	EntryCount() int

	// Entries returns a copy of the entries in on-disk or scan order.
	Entries() []Entry

	// Entry returns entry i.
	Entry(i int) (Entry, error)

	// Extract writes entry i to outputPath.
	Extract(i int, outputPath string) error
}

// Interface compliance.
var (
	_ Container = (*PUP)(nil)
	_ Container = (*SLB2)(nil)
)

// base holds what every container variant shares.
type base struct {
	header  *Header
	entries []Entry
	info    Info
	x       *extractor
}

func (b *base) Info() Info {
	return b.info
}

func (b *base) EntryCount() int {
	return len(b.entries)
}

func (b *base) Entries() []Entry {
	return slices.Clone(b.entries)
}

func (b *base) Entry(i int) (Entry, error) {
	e, err := b.x.entry(i)
	if err != nil {
		return Entry{}, err
	}
	return *e, nil
}

func (b *base) Extract(i int, outputPath string) error {
	return b.x.extractTo(i, outputPath)
}

// Header returns the decoded header.
func (b *base) Header() *Header {
	return b.header
}

// PUP is a loaded PUP container.
//
// Entries come from the entry table when the family has a trustworthy one,
// otherwise from the segment scanner.
type PUP struct {
	base
	scanned bool
}

// Kind implements Container.
func (*PUP) Kind() Kind {
	return KindPUP
}

// Scanned reports whether entries were found by scanning rather than
// decoded from a table.
func (p *PUP) Scanned() bool {
	return p.scanned
}

// Segments returns the entries produced by the scanner, or nil when the
// table was used.
func (p *PUP) Segments() []Entry {
	if !p.scanned {
		return nil
	}
	return p.Entries()
}

// SLB2 is a loaded SLB2 container.
type SLB2 struct {
	base
}

// Kind implements Container.
func (*SLB2) Kind() Kind {
	return KindSLB2
}

// Version returns the header version.
func (s *SLB2) Version() uint64 {
	return s.header.Version
}

// TotalSectors returns the sector count recorded in the header.
func (s *SLB2) TotalSectors() uint64 {
	return s.header.Fields["total_sectors"]
}
