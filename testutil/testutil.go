// Package testutil builds synthetic containers for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"math/rand/v2"

	"github.com/klauspost/compress/zlib"
	"github.com/ulikunitz/xz/lzma"
)

// CompressLZMA returns data as an LZMA-alone stream with an end marker.
func CompressLZMA(data []byte) []byte {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CompressZlib returns data as a zlib stream.
func CompressZlib(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Random returns n deterministic pseudo-random bytes.
func Random(n int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)) //nolint:gosec // test data
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(r.UintN(256))
	}
	return out
}

// SLB2Entry is one file in a synthetic SLB2 container.
type SLB2Entry struct {
	Name string
	Data []byte
}

// BuildSLB2 lays out a version 1 SLB2 container. File data starts at sector
// 1 and each file is padded to a whole sector.
func BuildSLB2(entries []SLB2Entry) []byte {
	const sector = 0x200
	buf := make([]byte, sector)
	copy(buf, "SLB2")
	le := binary.LittleEndian
	le.PutUint32(buf[4:], 1)
	le.PutUint32(buf[0xC:], uint32(len(entries))) //nolint:gosec // test sizes

	next := uint32(1)
	for i, e := range entries {
		rec := buf[0x20+i*0x30:]
		le.PutUint32(rec[0:], next)
		le.PutUint32(rec[4:], uint32(len(e.Data))) //nolint:gosec // test sizes
		copy(rec[0x10:0x30], e.Name)

		padded := (len(e.Data) + sector - 1) / sector * sector
		chunk := make([]byte, max(padded, sector))
		copy(chunk, e.Data)
		buf = append(buf, chunk...)
		next += uint32(len(chunk) / sector) //nolint:gosec // test sizes
	}
	le.PutUint32(buf[0x10:], next)
	return buf
}

// LegacyEntry is one file in a synthetic MYPUP123 container.
type LegacyEntry struct {
	Name     string
	Data     []byte
	Compress bool
}

// BuildLegacyPUP lays out a MYPUP123 container with a named entry table at
// 0x40 followed by the entry data.
func BuildLegacyPUP(entries []LegacyEntry) []byte {
	le := binary.LittleEndian
	hdr := make([]byte, 0x40)
	copy(hdr, "MYPUP123")
	le.PutUint32(hdr[8:], 1)
	le.PutUint64(hdr[0x20:], 0x40)
	le.PutUint32(hdr[0x30:], uint32(len(entries))) //nolint:gosec // test sizes

	table := make([]byte, 0x20*len(entries))
	var data []byte
	offset := uint64(len(hdr) + len(table))
	for i, e := range entries {
		stored := e.Data
		var compressed uint16
		if e.Compress {
			stored = CompressLZMA(e.Data)
			compressed = 1
		}
		rec := table[i*0x20:]
		copy(rec[0:6], e.Name)
		le.PutUint16(rec[10:], compressed)
		le.PutUint64(rec[12:], uint64(len(e.Data)))
		le.PutUint64(rec[20:], uint64(len(stored)))
		le.PutUint32(rec[28:], uint32(offset)) //nolint:gosec // test sizes
		data = append(data, stored...)
		offset += uint64(len(stored))
	}
	return concat(hdr, table, data)
}

// SonyBlob is one blob in a synthetic decrypted PS4 container.
type SonyBlob struct {
	ID        uint32
	Data      []byte
	Compress  bool
	Encrypted bool
	Blocked   bool
}

// BuildSonyPUP lays out a decrypted PS4 container: a 0x20 header, the blob
// table and the blob data.
func BuildSonyPUP(blobs []SonyBlob) []byte {
	le := binary.LittleEndian
	hdr := make([]byte, 0x20)
	copy(hdr, []byte{0x4F, 0x15, 0x3D, 0x1D})
	hdr[4] = 1 // version
	hdr[6] = 1 // little endian
	le.PutUint16(hdr[0xC:], 0x20)
	le.PutUint16(hdr[0x18:], uint16(len(blobs))) //nolint:gosec // test sizes

	table := make([]byte, 0x20*len(blobs))
	var data []byte
	offset := uint64(len(hdr) + len(table))
	for i, b := range blobs {
		stored := b.Data
		flags := uint64(b.ID) << 20
		if b.Compress {
			stored = CompressZlib(b.Data)
			flags |= 1 << 3
		}
		if b.Encrypted {
			flags |= 1 << 1
		}
		if b.Blocked {
			flags |= 1 << 11
		}
		rec := table[i*0x20:]
		le.PutUint64(rec[0:], flags)
		le.PutUint64(rec[8:], offset)
		le.PutUint64(rec[16:], uint64(len(stored)))
		le.PutUint64(rec[24:], uint64(len(b.Data)))
		data = append(data, stored...)
		offset += uint64(len(stored))
	}
	le.PutUint32(hdr[0x10:], uint32(offset)) //nolint:gosec // test sizes
	return concat(hdr, table, data)
}

// TaggedEntry is one entry in a synthetic zlib-tagged container.
type TaggedEntry struct {
	Data     []byte
	Compress bool
}

// BuildZlibPUP lays out a version 1 zlib-tagged container with its table at
// 0xC0.
func BuildZlibPUP(entries []TaggedEntry) []byte {
	le := binary.LittleEndian
	hdr := make([]byte, 0xC0)
	copy(hdr, []byte{0x01, 0x4F, 0xC1, 0x0A})
	le.PutUint32(hdr[4:], 1)
	le.PutUint32(hdr[8:], uint32(len(entries))) //nolint:gosec // test sizes

	table := make([]byte, 0x20*len(entries))
	var data []byte
	offset := uint64(len(hdr) + len(table))
	for i, e := range entries {
		stored := e.Data
		rec := table[i*0x20:]
		if e.Compress {
			stored = CompressZlib(e.Data)
			copy(rec[0:4], "zlib")
		} else {
			copy(rec[0:4], "none")
		}
		le.PutUint64(rec[8:], offset)
		le.PutUint64(rec[16:], uint64(len(stored)))
		data = append(data, stored...)
		offset += uint64(len(stored))
	}
	return concat(hdr, table, data)
}

// BuildBigEndianPUP lays out a "PUP " container with a big-endian
// offset/size table at 0xC0.
func BuildBigEndianPUP(payloads [][]byte) []byte {
	be := binary.BigEndian
	hdr := make([]byte, 0xC0)
	copy(hdr, "PUP ")
	be.PutUint16(hdr[4:], 1)
	be.PutUint16(hdr[8:], uint16(len(payloads))) //nolint:gosec // test sizes

	table := make([]byte, 0x20*len(payloads))
	var data []byte
	offset := uint64(len(hdr) + len(table))
	for i, p := range payloads {
		rec := table[i*0x20:]
		be.PutUint64(rec[0:], offset)
		be.PutUint64(rec[8:], uint64(len(p)))
		data = append(data, p...)
		offset += uint64(len(p))
	}
	return concat(hdr, table, data)
}

// BuildELF returns a little-endian ELF64 executable holding code in a single
// .text section covered by one PT_LOAD segment. The section header table
// comes last, so it marks the end of the image.
func BuildELF(code []byte) []byte {
	const (
		ehsize    = 0x40
		phentsize = 0x38
		shentsize = 0x40
	)
	le := binary.LittleEndian
	strtab := []byte("\x00.shstrtab\x00.text\x00")

	codeOff := uint64(ehsize + phentsize)
	strOff := codeOff + uint64(len(code))
	shoff := (strOff + uint64(len(strtab)) + 7) &^ 7

	out := make([]byte, shoff+3*shentsize)
	copy(out, []byte{0x7F, 'E', 'L', 'F', 2, 1, 1})
	le.PutUint16(out[0x10:], 2)  // ET_EXEC
	le.PutUint16(out[0x12:], 62) // EM_X86_64
	le.PutUint32(out[0x14:], 1)
	le.PutUint64(out[0x18:], 0x400000+codeOff)
	le.PutUint64(out[0x20:], ehsize)
	le.PutUint64(out[0x28:], shoff)
	le.PutUint16(out[0x34:], ehsize)
	le.PutUint16(out[0x36:], phentsize)
	le.PutUint16(out[0x38:], 1)
	le.PutUint16(out[0x3A:], shentsize)
	le.PutUint16(out[0x3C:], 3)
	le.PutUint16(out[0x3E:], 2)

	ph := out[ehsize:]
	le.PutUint32(ph[0:], 1)   // PT_LOAD
	le.PutUint32(ph[4:], 0x5) // R+X
	le.PutUint64(ph[8:], codeOff)
	le.PutUint64(ph[16:], 0x400000+codeOff)
	le.PutUint64(ph[24:], 0x400000+codeOff)
	le.PutUint64(ph[32:], uint64(len(code)))
	le.PutUint64(ph[40:], uint64(len(code)))
	le.PutUint64(ph[48:], 0x1000)

	copy(out[codeOff:], code)
	copy(out[strOff:], strtab)

	section := func(i int, name, typ uint32, off, size uint64) {
		sh := out[shoff+uint64(i)*shentsize:]
		le.PutUint32(sh[0:], name)
		le.PutUint32(sh[4:], typ)
		le.PutUint64(sh[24:], off)
		le.PutUint64(sh[32:], size)
		le.PutUint64(sh[48:], 1)
	}
	section(1, 11, 1, codeOff, uint64(len(code))) // .text, SHT_PROGBITS
	section(2, 1, 3, strOff, uint64(len(strtab))) // .shstrtab, SHT_STRTAB
	return out
}

// ScanPUP returns a heuristic-family container: a 0x20 PS5 header followed
// by the given payloads back to back.
func ScanPUP(payloads ...[]byte) []byte {
	hdr := make([]byte, 0x20)
	copy(hdr, []byte{0x4F, 0x15, 0x3D, 0x1E})
	return concat(append([][]byte{hdr}, payloads...)...)
}

func concat(parts ...[]byte) []byte {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
