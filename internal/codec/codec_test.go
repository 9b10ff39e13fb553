package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"

	"github.com/meigma/pup/internal/puptype"
)

var sample = []byte(strings.Repeat("ABCDEFGH", 100))

func compress(t *testing.T, c puptype.Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch c {
	case puptype.CompressionZlib:
		w := zlib.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case puptype.CompressionGzip:
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case puptype.CompressionLZMA:
		w, err := lzma.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case puptype.CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		defer enc.Close()
		return enc.EncodeAll(data, nil)
	case puptype.CompressionLZ4:
		w := lz4.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		t.Fatalf("no encoder for %s", c)
	}
	return buf.Bytes()
}

func TestDecoder_DecodeReportsConsumed(t *testing.T) {
	t.Parallel()

	kinds := []puptype.Compression{
		puptype.CompressionZlib,
		puptype.CompressionGzip,
		puptype.CompressionLZMA,
		puptype.CompressionZstd,
		puptype.CompressionLZ4,
	}
	for _, c := range kinds {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()

			stream := compress(t, c, sample)
			src := append(append([]byte{}, stream...), []byte("trailing junk after the stream")...)

			res, err := NewDecoder(0).Decode(c, src)
			require.NoError(t, err)
			assert.Equal(t, sample, res.Data)
			assert.Equal(t, uint64(len(stream)), res.Consumed)
		})
	}
}

func TestDecoder_Corrupt(t *testing.T) {
	t.Parallel()

	d := NewDecoder(0)
	for _, c := range []puptype.Compression{
		puptype.CompressionZlib,
		puptype.CompressionGzip,
		puptype.CompressionZstd,
		puptype.CompressionLZ4,
	} {
		stream := compress(t, c, sample)
		_, err := d.Decode(c, stream[:len(stream)/2])
		require.ErrorIs(t, err, puptype.ErrDecompression, c.String())
	}

	_, err := d.Decode(puptype.CompressionNone, sample)
	require.ErrorIs(t, err, puptype.ErrDecompression)
}

func TestDecoder_Limit(t *testing.T) {
	t.Parallel()

	stream := compress(t, puptype.CompressionZlib, sample)
	_, err := NewDecoder(100).Decode(puptype.CompressionZlib, stream)
	require.ErrorIs(t, err, puptype.ErrDecompression)
	require.ErrorIs(t, err, puptype.ErrSizeOverflow)
}

func TestZstdFrameLen_Rejects(t *testing.T) {
	t.Parallel()

	_, err := ZstdFrameLen([]byte{0x28, 0xB5, 0x2F})
	require.Error(t, err)

	_, err = ZstdFrameLen([]byte{0x28, 0xB5, 0x2F, 0xFD, 0x08, 0, 0, 0})
	require.Error(t, err)
}

func TestLZ4FrameLen_Rejects(t *testing.T) {
	t.Parallel()

	frame := compress(t, puptype.CompressionLZ4, sample)
	n, err := LZ4FrameLen(frame)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(frame)), n)

	bad := append([]byte{}, frame...)
	bad[4] = 0x00 // version 0
	_, err = LZ4FrameLen(bad)
	require.Error(t, err)

	_, err = LZ4FrameLen(frame[:len(frame)-5])
	require.Error(t, err)
}

func TestZstdPool_Reuse(t *testing.T) {
	t.Parallel()

	frame := compress(t, puptype.CompressionZstd, sample)
	pool := newZstdPool(0)
	for range 3 {
		dec, release, err := pool.acquire(bytes.NewReader(frame))
		require.NoError(t, err)
		var out bytes.Buffer
		_, err = out.ReadFrom(dec)
		require.NoError(t, err)
		release()
		assert.Equal(t, sample, out.Bytes())
	}
}
