// Package codec decodes single compressed streams held in memory.
//
// Every decoder reports how many input bytes the stream occupied so the
// scanner can advance past it. Output is bounded by the Decoder's limit.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/internal/sizing"
)

// DefaultLimit bounds decompressed output when no limit is given.
const DefaultLimit = 256 << 20

// errFrame reports a malformed frame or block header.
var errFrame = errors.New("malformed frame")

// Result is one decoded stream.
type Result struct {
	// Data is the decompressed output.
	Data []byte

	// Consumed is the number of input bytes the stream occupied.
	Consumed uint64
}

// Decoder decodes compressed streams from byte slices.
//
// A Decoder is safe for concurrent use.
type Decoder struct {
	limit uint64
	zstd  *zstdPool
}

// NewDecoder returns a Decoder whose output is bounded by limit bytes.
// A zero limit selects DefaultLimit.
func NewDecoder(limit uint64) *Decoder {
	if limit == 0 {
		limit = DefaultLimit
	}
	return &Decoder{
		limit: limit,
		zstd:  newZstdPool(limit),
	}
}

// Decode decodes the stream of kind c starting at src[0].
//
// Trailing bytes after the stream are ignored. Errors wrap
// puptype.ErrDecompression.
func (d *Decoder) Decode(c puptype.Compression, src []byte) (Result, error) {
	res, err := d.decode(c, src)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", puptype.ErrDecompression, c, err)
	}
	return res, nil
}

func (d *Decoder) decode(c puptype.Compression, src []byte) (Result, error) {
	switch c {
	case puptype.CompressionZlib:
		return d.readStream(src, func(r *bytes.Reader) (io.ReadCloser, error) {
			return zlib.NewReader(r)
		})
	case puptype.CompressionGzip:
		return d.readStream(src, func(r *bytes.Reader) (io.ReadCloser, error) {
			zr, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			zr.Multistream(false)
			return zr, nil
		})
	case puptype.CompressionLZMA:
		return d.readStream(src, func(r *bytes.Reader) (io.ReadCloser, error) {
			lr, err := lzma.NewReader(r)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(lr), nil
		})
	case puptype.CompressionZstd:
		n, err := ZstdFrameLen(src)
		if err != nil {
			return Result{}, err
		}
		data, err := d.zstdDecode(src[:n])
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data, Consumed: n}, nil
	case puptype.CompressionLZ4:
		n, err := LZ4FrameLen(src)
		if err != nil {
			return Result{}, err
		}
		data, err := d.readAll(lz4.NewReader(bytes.NewReader(src[:n])))
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data, Consumed: n}, nil
	default:
		return Result{}, fmt.Errorf("unsupported compression %s", c)
	}
}

// readStream decodes a self-terminating stream. The decoders read src
// through its io.ByteReader, so the reader's remaining length gives the
// exact number of bytes consumed.
func (d *Decoder) readStream(src []byte, open func(*bytes.Reader) (io.ReadCloser, error)) (Result, error) {
	br := bytes.NewReader(src)
	rc, err := open(br)
	if err != nil {
		return Result{}, err
	}
	defer rc.Close()

	data, err := d.readAll(rc)
	if err != nil {
		return Result{}, err
	}
	consumed := uint64(len(src) - br.Len()) //nolint:gosec // Len never exceeds len(src)
	return Result{Data: data, Consumed: consumed}, nil
}

func (d *Decoder) readAll(r io.Reader) ([]byte, error) {
	return sizing.ReadAllWithLimit(r, d.limit, puptype.ErrSizeOverflow)
}

func (d *Decoder) zstdDecode(frame []byte) ([]byte, error) {
	dec, release, err := d.zstd.acquire(bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	defer release()
	return d.readAll(dec)
}
