package scan

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pup/internal/codec"
	"github.com/meigma/pup/internal/puptype"
	"github.com/meigma/pup/testutil"
)

func TestScan_TwoLZMASegments(t *testing.T) {
	t.Parallel()

	first := []byte(strings.Repeat("ABCDEFGH", 100))
	second := []byte("1234")
	s1 := testutil.CompressLZMA(first)
	s2 := testutil.CompressLZMA(second)
	buf := testutil.ScanPUP(s1, s2)

	segs := New(DefaultConfig(), nil).Scan(buf, 0x20)
	require.Len(t, segs, 2)

	dec := codec.NewDecoder(0)
	for i, want := range [][]byte{first, second} {
		seg := segs[i]
		assert.Equal(t, i, seg.Index)
		assert.True(t, seg.IsCompressed())
		assert.False(t, seg.IsSynthetic())
		assert.Equal(t, puptype.OriginScan, seg.Origin)
		assert.Equal(t, "lzma", seg.Signature)
		assert.Equal(t, uint64(len(want)), seg.Size)

		res, err := dec.Decode(seg.Compression, buf[seg.Offset:seg.Offset+seg.StoredSize])
		require.NoError(t, err)
		assert.Equal(t, want, res.Data)
	}
	assert.Equal(t, uint64(0x20), segs[0].Offset)
	assert.Equal(t, uint64(0x20+len(s1)), segs[1].Offset)
	assert.Equal(t, uint64(len(s2)), segs[1].StoredSize)
}

func TestScan_RandomFallsBackToSynthetic(t *testing.T) {
	t.Parallel()

	buf := testutil.Random(10*1024, 42)
	segs := New(DefaultConfig(), nil).Scan(buf, 0x20)
	require.Len(t, segs, 10)

	pos := uint64(0x20)
	for i, seg := range segs {
		assert.Equal(t, i, seg.Index)
		assert.True(t, seg.IsSynthetic())
		assert.True(t, seg.IsEncrypted())
		assert.False(t, seg.IsCompressed())
		assert.True(t, seg.Recoverable)
		assert.Equal(t, pos, seg.Offset, "gap before segment %d", i)
		pos += seg.StoredSize
	}
	assert.Equal(t, uint64(10240), pos)
	assert.Equal(t, uint64(1020), segs[0].StoredSize)
	assert.Equal(t, uint64(1028), segs[9].StoredSize)
}

func TestScan_KeepsFoundSegmentsBeforeSynthetic(t *testing.T) {
	t.Parallel()

	stream := testutil.CompressZlib(bytes.Repeat([]byte("zlib"), 50))
	buf := testutil.ScanPUP(stream, testutil.Random(8192, 7))

	segs := New(DefaultConfig(), nil).Scan(buf, 0x20)
	require.Len(t, segs, 11)
	assert.Equal(t, "zlib", segs[0].Signature)
	assert.Equal(t, uint64(0x20), segs[0].Offset)
	for _, seg := range segs[1:] {
		assert.True(t, seg.IsSynthetic())
	}
}

func TestScan_ShortBufferGetsFewerChunks(t *testing.T) {
	t.Parallel()

	buf := testutil.ScanPUP([]byte{1, 2, 3})
	segs := New(DefaultConfig(), nil).Scan(buf, 0x20)
	require.Len(t, segs, 3)
	for i, seg := range segs {
		assert.Equal(t, uint64(0x20+i), seg.Offset)
		assert.Equal(t, uint64(1), seg.StoredSize)
	}
}

func TestScan_NothingAfterHeader(t *testing.T) {
	t.Parallel()

	buf := testutil.ScanPUP()
	assert.Empty(t, New(DefaultConfig(), nil).Scan(buf, 0x20))
}

func TestScan_PNG(t *testing.T) {
	t.Parallel()

	png := buildPNG()
	buf := testutil.ScanPUP(png, []byte("tail bytes that are not an image"))

	cfg := DefaultConfig()
	cfg.MinSegments = 1
	segs := New(cfg, nil).Scan(buf, 0x20)
	require.Len(t, segs, 1)
	assert.Equal(t, "png", segs[0].Signature)
	assert.Equal(t, uint64(len(png)), segs[0].StoredSize)
	assert.False(t, segs[0].IsCompressed())
}

func TestScan_JPEG(t *testing.T) {
	t.Parallel()

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	buf := testutil.ScanPUP(jpeg, make([]byte, 32))

	cfg := DefaultConfig()
	cfg.MinSegments = 1
	segs := New(cfg, nil).Scan(buf, 0x20)
	require.Len(t, segs, 1)
	assert.Equal(t, "jpeg", segs[0].Signature)
	assert.Equal(t, uint64(len(jpeg)), segs[0].StoredSize)
}

func TestScan_ELF(t *testing.T) {
	t.Parallel()

	code := bytes.Repeat([]byte{0x90}, 16)
	image := testutil.BuildELF(code)

	t.Run("measured to section table end", func(t *testing.T) {
		t.Parallel()

		buf := testutil.ScanPUP(image, make([]byte, 64))
		cfg := DefaultConfig()
		cfg.MinSegments = 1
		segs := New(cfg, nil).Scan(buf, 0x20)
		require.Len(t, segs, 1)
		assert.Equal(t, "elf", segs[0].Signature)
		assert.Equal(t, uint64(0x20), segs[0].Offset)
		assert.Equal(t, uint64(len(image)), segs[0].StoredSize)
		assert.Equal(t, uint64(len(image)), segs[0].Size)
		assert.False(t, segs[0].IsCompressed())
	})

	t.Run("section table past window", func(t *testing.T) {
		t.Parallel()

		buf := testutil.ScanPUP(image)
		cfg := DefaultConfig()
		cfg.MinSegments = 1
		cfg.MaxWindow = uint64(len(image) - 8)
		segs := New(cfg, nil).Scan(buf, 0x20)
		require.NotEmpty(t, segs)
		for _, seg := range segs {
			assert.True(t, seg.IsSynthetic())
			assert.NotEqual(t, "elf", seg.Signature)
		}
	})

	t.Run("segment past end", func(t *testing.T) {
		t.Parallel()

		bad := bytes.Clone(image)
		binary.LittleEndian.PutUint64(bad[0x40+32:], 0x10000)
		_, err := measureELF(nil, KindELF, bad)
		require.Error(t, err)

		m, err := measureELF(nil, KindELF, image)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(image)), m.stored)
	})
}

func TestSynthetic_Bounds(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Synthetic(10, 10, 10))
	assert.Nil(t, Synthetic(0, 10, 0))

	chunks := Synthetic(0, 7, 3)
	require.Len(t, chunks, 3)
	assert.Equal(t, []uint64{2, 2, 3}, []uint64{chunks[0].StoredSize, chunks[1].StoredSize, chunks[2].StoredSize})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"\x5D\x00\x00\x80": KindLZMA,
		"\x78\x9C\x00\x00": KindZlib,
		"\x78\xDA\x00\x00": KindZlib,
		"\x1F\x8B\x08\x00": KindGzip,
		"\x28\xB5\x2F\xFD": KindZstd,
		"\x04\x22\x4D\x18": KindLZ4,
		"\x7FELF":          KindELF,
		"\xFF\xD8\xFF\xE1": KindJPEG,
	}
	for in, want := range cases {
		sig, ok := lookup([]byte(in))
		require.True(t, ok, "%x", in)
		assert.Equal(t, want, sig.kind)
	}
	_, ok := lookup([]byte("\x78\x00"))
	assert.False(t, ok)
}

func buildPNG() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})
	chunk := func(typ string, data []byte) {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(data))) //nolint:gosec // test sizes
		buf.Write(n[:])
		buf.WriteString(typ)
		buf.Write(data)
		crc := crc32.NewIEEE()
		crc.Write([]byte(typ))
		crc.Write(data)
		binary.BigEndian.PutUint32(n[:], crc.Sum32())
		buf.Write(n[:])
	}
	chunk("IHDR", make([]byte, 13))
	chunk("IDAT", []byte{0x78, 0x9C, 0x01, 0x00})
	chunk("IEND", nil)
	return buf.Bytes()
}
