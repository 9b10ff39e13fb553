package scan

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"

	"github.com/meigma/pup/internal/codec"
	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/internal/sizing"
)

// Kind identifies a payload signature.
type Kind uint8

const (
	KindLZMA Kind = iota + 1
	KindZlib
	KindGzip
	KindZstd
	KindLZ4
	KindPNG
	KindJPEG
	KindELF
)

func (k Kind) String() string {
	switch k {
	case KindLZMA:
		return "lzma"
	case KindZlib:
		return "zlib"
	case KindGzip:
		return "gzip"
	case KindZstd:
		return "zstd"
	case KindLZ4:
		return "lz4"
	case KindPNG:
		return "png"
	case KindJPEG:
		return "jpeg"
	case KindELF:
		return "elf"
	default:
		return "unknown"
	}
}

// Compression returns the compression of payloads of this kind.
func (k Kind) Compression() puptype.Compression {
	switch k {
	case KindLZMA:
		return puptype.CompressionLZMA
	case KindZlib:
		return puptype.CompressionZlib
	case KindGzip:
		return puptype.CompressionGzip
	case KindZstd:
		return puptype.CompressionZstd
	case KindLZ4:
		return puptype.CompressionLZ4
	default:
		return puptype.CompressionNone
	}
}

// match is a measured payload.
type match struct {
	stored uint64
	size   uint64
}

// measureFunc measures the payload at win[0]. win is bounded by MaxWindow.
type measureFunc func(d *codec.Decoder, k Kind, win []byte) (match, error)

type signature struct {
	kind    Kind
	magic   []byte
	measure measureFunc
}

var errNoEnd = errors.New("end marker not found")

// signatures is the prefix table consulted at each cursor position.
var signatures = []signature{
	{KindLZMA, []byte{0x5D, 0x00, 0x00}, decodeStream},
	{KindZlib, []byte{0x78, 0x01}, decodeStream},
	{KindZlib, []byte{0x78, 0x5E}, decodeStream},
	{KindZlib, []byte{0x78, 0x9C}, decodeStream},
	{KindZlib, []byte{0x78, 0xDA}, decodeStream},
	{KindGzip, []byte{0x1F, 0x8B, 0x08}, decodeStream},
	{KindZstd, codec.ZstdMagic, decodeStream},
	{KindLZ4, codec.LZ4Magic, decodeStream},
	{KindPNG, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, measurePNG},
	{KindJPEG, []byte{0xFF, 0xD8, 0xFF}, measureJPEG},
	{KindELF, []byte{0x7F, 'E', 'L', 'F'}, measureELF},
}

// lookup returns the signature whose magic prefixes win.
func lookup(win []byte) (signature, bool) {
	for _, sig := range signatures {
		if bytes.HasPrefix(win, sig.magic) {
			return sig, true
		}
	}
	return signature{}, false
}

func decodeStream(d *codec.Decoder, k Kind, win []byte) (match, error) {
	res, err := d.Decode(k.Compression(), win)
	if err != nil {
		return match{}, err
	}
	if res.Consumed == 0 {
		return match{}, errNoEnd
	}
	return match{stored: res.Consumed, size: uint64(len(res.Data))}, nil
}

// measurePNG walks the chunk list up to and including IEND and its CRC.
func measurePNG(_ *codec.Decoder, _ Kind, win []byte) (match, error) {
	pos := uint64(8)
	for {
		hdr, ok := sizing.Range(win, pos, 8)
		if !ok {
			return match{}, errNoEnd
		}
		length := uint64(binary.BigEndian.Uint32(hdr))
		end, ok := sizing.AddUint64(pos, 8+length+4)
		if !ok || end > uint64(len(win)) {
			return match{}, errNoEnd
		}
		if string(hdr[4:8]) == "IEND" {
			return match{stored: end, size: end}, nil
		}
		pos = end
	}
}

// measureJPEG ends the image at the first EOI marker.
func measureJPEG(_ *codec.Decoder, _ Kind, win []byte) (match, error) {
	i := bytes.Index(win[2:], []byte{0xFF, 0xD9})
	if i < 0 {
		return match{}, errNoEnd
	}
	end := uint64(i) + 4 //nolint:gosec // i is non-negative
	return match{stored: end, size: end}, nil
}

// measureELF ends the image at the furthest of the section header table,
// the section contents and the program segments.
func measureELF(_ *codec.Decoder, _ Kind, win []byte) (match, error) {
	f, err := elf.NewFile(bytes.NewReader(win))
	if err != nil {
		return match{}, err
	}
	defer f.Close()

	var end uint64
	grow := func(off, size uint64) bool {
		e, ok := sizing.AddUint64(off, size)
		if !ok || e > uint64(len(win)) {
			return false
		}
		end = max(end, e)
		return true
	}

	var shoff uint64
	var shentsize, shnum uint64
	switch f.Class {
	case elf.ELFCLASS64:
		if len(win) >= 64 {
			shoff = f.ByteOrder.Uint64(win[0x28:])
			shentsize = uint64(f.ByteOrder.Uint16(win[0x3A:]))
			shnum = uint64(f.ByteOrder.Uint16(win[0x3C:]))
		}
	case elf.ELFCLASS32:
		if len(win) >= 52 {
			shoff = uint64(f.ByteOrder.Uint32(win[0x20:]))
			shentsize = uint64(f.ByteOrder.Uint16(win[0x2E:]))
			shnum = uint64(f.ByteOrder.Uint16(win[0x30:]))
		}
	}
	if shoff != 0 && !grow(shoff, shentsize*shnum) {
		return match{}, errNoEnd
	}
	for _, s := range f.Sections {
		if s.Type == elf.SHT_NOBITS || s.Type == elf.SHT_NULL {
			continue
		}
		if !grow(s.Offset, s.FileSize) {
			return match{}, errNoEnd
		}
	}
	for _, p := range f.Progs {
		if !grow(p.Off, p.Filesz) {
			return match{}, errNoEnd
		}
	}
	if end == 0 {
		return match{}, errNoEnd
	}
	return match{stored: end, size: end}, nil
}
