package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/pup/internal/sizing"
)

// ZstdMagic starts every zstd frame.
var ZstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// zstdPool recycles single-threaded stream decoders between entries.
type zstdPool struct {
	pool      sync.Pool
	maxWindow uint64
}

func newZstdPool(maxWindow uint64) *zstdPool {
	return &zstdPool{maxWindow: maxWindow}
}

// acquire returns a decoder reading r and the func that hands it back.
func (p *zstdPool) acquire(r io.Reader) (*zstd.Decoder, func(), error) {
	if dec, ok := p.pool.Get().(*zstd.Decoder); ok {
		if err := dec.Reset(r); err == nil {
			return dec, func() { p.release(dec) }, nil
		}
		dec.Close()
	}
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1)}
	if p.maxWindow > 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(p.maxWindow))
	}
	dec, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, nil, err
	}
	return dec, func() { p.release(dec) }, nil
}

func (p *zstdPool) release(dec *zstd.Decoder) {
	if err := dec.Reset(nil); err != nil {
		dec.Close()
		return
	}
	p.pool.Put(dec)
}

// ZstdFrameLen walks the frame header and block headers of the zstd frame
// at src[0] and returns the frame length in bytes.
func ZstdFrameLen(src []byte) (uint64, error) {
	if len(src) < 5 || [4]byte(src[:4]) != [4]byte(ZstdMagic) {
		return 0, fmt.Errorf("%w: zstd magic", errFrame)
	}
	fhd := src[4]
	if fhd&0x08 != 0 {
		return 0, fmt.Errorf("%w: zstd reserved bit set", errFrame)
	}
	singleSegment := fhd&0x20 != 0
	checksum := fhd&0x04 != 0

	pos := uint64(5)
	if !singleSegment {
		pos++ // window descriptor
	}
	pos += [4]uint64{0, 1, 2, 4}[fhd&0x03]
	fcs := [4]uint64{0, 2, 4, 8}[fhd>>6]
	if fcs == 0 && singleSegment {
		fcs = 1
	}
	pos += fcs

	for {
		hdr, ok := sizing.Range(src, pos, 3)
		if !ok {
			return 0, fmt.Errorf("%w: zstd block header at 0x%X", errFrame, pos)
		}
		bh := uint32(hdr[0]) | uint32(hdr[1])<<8 | uint32(hdr[2])<<16
		last := bh&1 != 0
		size := uint64(bh >> 3)
		pos += 3
		switch (bh >> 1) & 0x3 {
		case 0, 2: // raw, compressed
		case 1: // rle
			size = 1
		default:
			return 0, fmt.Errorf("%w: zstd reserved block type", errFrame)
		}
		end, ok := sizing.AddUint64(pos, size)
		if !ok || end > uint64(len(src)) {
			return 0, fmt.Errorf("%w: zstd block exceeds input", errFrame)
		}
		pos = end
		if last {
			break
		}
	}
	if checksum {
		pos += 4
	}
	if pos > uint64(len(src)) {
		return 0, fmt.Errorf("%w: zstd checksum exceeds input", errFrame)
	}
	return pos, nil
}
