package format

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/meigma/pup/internal/bytereader"
	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/internal/sizing"
)

// sonyIDShift locates the blob id in the high bits of a Sony flag word.
const sonyIDShift = 20

// DecodeTable decodes the entry table described by h.
//
// Entries are returned in on-disk order. A record that extends past the
// buffer fails with ErrTruncatedEntry. Entries whose data range falls
// outside the buffer are kept with Extractable set to false.
func DecodeTable(buf []byte, h *Header) ([]puptype.Entry, error) {
	fam := h.Family
	if fam.HeuristicOnly() {
		return nil, fmt.Errorf("family %s has no entry table", fam.Name)
	}
	stride := fam.Layout.Stride()

	entries := make([]puptype.Entry, 0, h.EntryCount)
	for i := range h.EntryCount {
		rel, ok := sizing.MulUint64(i, stride)
		if !ok {
			return nil, truncated(fam, i, h.TableOffset, stride)
		}
		off, ok := sizing.AddUint64(h.TableOffset, rel)
		if !ok {
			return nil, truncated(fam, i, h.TableOffset, stride)
		}
		rec, ok := sizing.Range(buf, off, stride)
		if !ok {
			return nil, truncated(fam, i, off, stride)
		}

		entry, err := decodeRecord(fam, bytereader.New(rec))
		if err != nil {
			return nil, &puptype.FormatError{
				Family: fam.Name,
				Offset: off,
				Size:   stride,
				Err:    fmt.Errorf("%w: entry %d: %v", puptype.ErrTruncatedEntry, i, err),
			}
		}
		entry.Index = int(i) //nolint:gosec // bounded by the count ceiling
		entry.Origin = puptype.OriginTable
		entry.Extractable = entry.InBounds(uint64(len(buf)))
		entries = append(entries, entry)
	}
	return entries, nil
}

func truncated(fam *Family, index, off, stride uint64) error {
	return &puptype.FormatError{
		Family: fam.Name,
		Offset: off,
		Size:   stride,
		Err:    fmt.Errorf("%w: entry %d", puptype.ErrTruncatedEntry, index),
	}
}

func decodeRecord(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	switch fam.Layout {
	case LayoutSony:
		return decodeSony(fam, r)
	case LayoutNamed:
		return decodeNamed(fam, r)
	case LayoutOffsetSize:
		return decodeOffsetSize(fam, r)
	case LayoutTagged:
		return decodeTagged(fam, r)
	case LayoutSLB2:
		return decodeSLB2(fam, r)
	default:
		return puptype.Entry{}, fmt.Errorf("unsupported layout %s", fam.Layout)
	}
}

// decodeSony reads flags, offset, file size and memory size.
func decodeSony(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	var e puptype.Entry
	flags, err := r.Uint64(fam.Order)
	if err != nil {
		return e, err
	}
	if e.Offset, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	if e.StoredSize, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	if e.Size, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	e.Flags = puptype.Flags(flags)
	e.ID = uint32(flags >> sonyIDShift) //nolint:gosec // id occupies the high bits
	e.Name = BlobName(e.ID)
	// Blocked blobs carry a per-block table that is not decoded here, so
	// they are written as stored.
	if e.Flags.Has(puptype.FlagCompressed) && !e.Flags.Has(puptype.FlagHasBlocks) {
		e.Compression = fam.Compression
	}
	return e, nil
}

// decodeNamed reads name[6], flags u32, compressed u16, uncompressed u64,
// compressed u64 and offset u32.
func decodeNamed(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	var e puptype.Entry
	name, err := r.Bytes(6)
	if err != nil {
		return e, err
	}
	flags, err := r.Uint32(fam.Order)
	if err != nil {
		return e, err
	}
	compressed, err := r.Uint16(fam.Order)
	if err != nil {
		return e, err
	}
	usize, err := r.Uint64(fam.Order)
	if err != nil {
		return e, err
	}
	csize, err := r.Uint64(fam.Order)
	if err != nil {
		return e, err
	}
	off, err := r.Uint32(fam.Order)
	if err != nil {
		return e, err
	}

	e.Name = asciiName(name)
	e.Flags = puptype.Flags(flags)
	if compressed != 0 {
		e.Flags |= puptype.FlagCompressed
	}
	e.Offset = uint64(off)
	e.Size = usize
	e.StoredSize = usize
	if e.Flags.Has(puptype.FlagCompressed) {
		e.StoredSize = csize
		e.Compression = fam.Compression
	}
	return e, nil
}

// decodeOffsetSize reads offset u64 and size u64 followed by reserved bytes.
func decodeOffsetSize(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	var e puptype.Entry
	var err error
	if e.Offset, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	if e.StoredSize, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	e.Size = e.StoredSize
	return e, nil
}

// decodeTagged reads tag[4], reserved[4], offset u64 and size u64.
func decodeTagged(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	var e puptype.Entry
	tag, err := r.Bytes(4)
	if err != nil {
		return e, err
	}
	if err := r.Skip(4); err != nil {
		return e, err
	}
	if e.Offset, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	if e.StoredSize, err = r.Uint64(fam.Order); err != nil {
		return e, err
	}
	if bytes.Equal(tag, []byte("zlib")) {
		e.Flags |= puptype.FlagCompressed
		e.Compression = fam.Compression
	} else {
		e.Size = e.StoredSize
	}
	return e, nil
}

// decodeSLB2 reads start sector u32, size u32, reserved[8] and name[32].
func decodeSLB2(fam *Family, r *bytereader.Reader) (puptype.Entry, error) {
	var e puptype.Entry
	sector, err := r.Uint32(fam.Order)
	if err != nil {
		return e, err
	}
	size, err := r.Uint32(fam.Order)
	if err != nil {
		return e, err
	}
	if err := r.Skip(8); err != nil {
		return e, err
	}
	name, err := r.Bytes(32)
	if err != nil {
		return e, err
	}

	e.StartSector = uint64(sector)
	e.Offset = uint64(sector) * fam.SectorSize
	e.StoredSize = uint64(size)
	e.Size = uint64(size)
	e.Name = strings.ToValidUTF8(cString(name), "")
	return e, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func asciiName(b []byte) string {
	s := cString(b)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return -1
		}
		return r
	}, s)
}
