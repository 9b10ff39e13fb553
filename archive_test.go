package pup

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/pup/testutil"
)

func load(t *testing.T, data []byte, opts ...Option) *Archive {
	t.Helper()
	a := New(opts...)
	require.NoError(t, a.LoadBytes("test.pup", data))
	return a
}

func TestArchive_RoundTripUncompressed(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		[]byte("alpha"),
		bytes.Repeat([]byte("bravo"), 100),
		{},
		testutil.Random(3000, 9),
	}
	a := load(t, testutil.BuildBigEndianPUP(payloads))

	dest := t.TempDir()
	report, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, len(payloads), report.Succeeded)
	assert.Zero(t, report.Failed)

	for i, want := range payloads {
		res := report.Results[i]
		assert.Equal(t, i, res.Index)
		assert.Equal(t, filepath.Base(res.Path), res.Path)
		require.Len(t, res.Warnings, 1)
		require.ErrorIs(t, res.Warnings[0], ErrEmptyName)

		got, err := os.ReadFile(filepath.Join(dest, res.Path))
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, uint64(len(want)), res.Bytes)
		assert.Equal(t, digest.FromBytes(want), res.Digest)
	}
	assert.Equal(t, "000000.bin", report.Results[0].Path)
}

func TestArchive_ExtractAllIdempotent(t *testing.T) {
	t.Parallel()

	a := load(t, testutil.BuildSLB2([]testutil.SLB2Entry{
		{Name: "one.bin", Data: []byte("first file")},
		{Name: "two.bin", Data: bytes.Repeat([]byte{7}, 700)},
	}))
	dest := t.TempDir()

	read := func() map[string][]byte {
		out := map[string][]byte{}
		for _, name := range []string{"one.bin", "two.bin"} {
			b, err := os.ReadFile(filepath.Join(dest, name))
			require.NoError(t, err)
			out[name] = b
		}
		return out
	}

	_, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	first := read()

	report, err := a.ExtractAll(context.Background(), dest, ExtractWithOverwrite(true), ExtractWithWorkers(4))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, first, read())

	report, err = a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, first, read())
}

func TestArchive_Boundary(t *testing.T) {
	t.Parallel()

	buf := testutil.BuildBigEndianPUP([][]byte{[]byte("payload")})
	a := load(t, buf)
	entries, err := a.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	end := entries[0].Offset + entries[0].StoredSize
	require.Equal(t, uint64(len(buf)), end)

	out := filepath.Join(t.TempDir(), "exact.bin")
	require.NoError(t, a.Extract(0, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	over := bytes.Clone(buf)
	binary.BigEndian.PutUint64(over[0xC8:], entries[0].StoredSize+1)
	b := load(t, over)
	err = b.Extract(0, filepath.Join(t.TempDir(), "over.bin"))
	require.ErrorIs(t, err, ErrEntryOutOfBounds)

	var eerr *EntryError
	require.True(t, errors.As(err, &eerr))
	assert.Equal(t, 0, eerr.Index)
	assert.Contains(t, err.Error(), "entry 0")
}

func TestArchive_SLB2Minimal(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789abcdef")
	a := load(t, testutil.BuildSLB2([]testutil.SLB2Entry{{Name: "test.bin", Data: data}}))

	c, err := a.Container()
	require.NoError(t, err)
	require.Equal(t, KindSLB2, c.Kind())
	require.Equal(t, 1, c.EntryCount())
	s, ok := c.(*SLB2)
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Version())

	e, err := c.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "test.bin", e.Name)
	assert.Equal(t, uint64(1), e.StartSector)
	assert.Equal(t, uint64(16), e.StoredSize)

	out := filepath.Join(t.TempDir(), "nested", "dir", "test.bin")
	require.NoError(t, a.Extract(0, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestArchive_StateMachine(t *testing.T) {
	t.Parallel()

	a := New()
	assert.Equal(t, StateUnloaded, a.State())
	_, err := a.Info()
	require.ErrorIs(t, err, ErrNotLoaded)
	_, err = a.ExtractAll(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNotLoaded)

	err = a.LoadBytes("junk", []byte("definitely not a container"))
	require.ErrorIs(t, err, ErrUnrecognizedMagic)
	assert.Equal(t, StateFailed, a.State())

	_, err = a.Entries()
	require.ErrorIs(t, err, ErrNotLoaded)
	require.ErrorIs(t, err, ErrUnrecognizedMagic)

	err = a.LoadBytes("again", testutil.BuildSLB2(nil))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StateFailed, a.State())

	b := load(t, testutil.BuildSLB2(nil))
	assert.Equal(t, StateLoaded, b.State())
	require.ErrorIs(t, b.Load("other.pup"), ErrInvalidState)
}

func TestArchive_LoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "fw.slb2")
	require.NoError(t, os.WriteFile(path, testutil.BuildSLB2([]testutil.SLB2Entry{{Name: "a", Data: []byte("a")}}), 0o600))

	a, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, a.Name())

	_, err = Open(filepath.Join(dir, "missing.pup"))
	require.ErrorIs(t, err, ErrIO)
}

func TestArchive_IndexOutOfRange(t *testing.T) {
	t.Parallel()

	a := load(t, testutil.BuildSLB2([]testutil.SLB2Entry{{Name: "a", Data: []byte("a")}}))
	require.ErrorIs(t, a.Extract(1, filepath.Join(t.TempDir(), "x")), ErrIndexOutOfRange)
	require.ErrorIs(t, a.Extract(-1, filepath.Join(t.TempDir(), "x")), ErrIndexOutOfRange)
}

func TestArchive_LegacyLZMA(t *testing.T) {
	t.Parallel()

	text := []byte(strings.Repeat("legacy payload ", 40))
	buf := testutil.BuildLegacyPUP([]testutil.LegacyEntry{
		{Name: "boot", Data: []byte("plain boot")},
		{Name: "system", Data: text, Compress: true},
	})
	a := load(t, buf)

	dest := t.TempDir()
	report, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	got, err := os.ReadFile(filepath.Join(dest, "system"))
	require.NoError(t, err)
	assert.Equal(t, text, got)
	got, err = os.ReadFile(filepath.Join(dest, "boot"))
	require.NoError(t, err)
	assert.Equal(t, "plain boot", string(got))
}

func TestArchive_DeclaredSizeMismatch(t *testing.T) {
	t.Parallel()

	buf := testutil.BuildLegacyPUP([]testutil.LegacyEntry{
		{Name: "system", Data: []byte(strings.Repeat("x", 200)), Compress: true},
	})
	binary.LittleEndian.PutUint64(buf[0x40+12:], 999)
	a := load(t, buf)

	out := filepath.Join(t.TempDir(), "system")
	require.ErrorIs(t, a.Extract(0, out), ErrDecompression)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_SonyTable(t *testing.T) {
	t.Parallel()

	exfat := bytes.Repeat([]byte("exfat"), 300)
	a := load(t, testutil.BuildSonyPUP([]testutil.SonyBlob{
		{ID: 0x6, Data: exfat, Compress: true},
		{ID: 0x101, Data: []byte("<eula/>")},
	}))
	c, err := a.Container()
	require.NoError(t, err)
	p, ok := c.(*PUP)
	require.True(t, ok)
	assert.False(t, p.Scanned())
	assert.Nil(t, p.Segments())

	dest := t.TempDir()
	report, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	got, err := os.ReadFile(filepath.Join(dest, "system_exfat.img"))
	require.NoError(t, err)
	assert.Equal(t, exfat, got)
	_, err = os.Stat(filepath.Join(dest, "eula.xml"))
	require.NoError(t, err)
}

func TestArchive_SonyBlockedBlobWrittenAsStored(t *testing.T) {
	t.Parallel()

	plain := bytes.Repeat([]byte("blocked"), 100)
	a := load(t, testutil.BuildSonyPUP([]testutil.SonyBlob{
		{ID: 0x6, Data: plain, Compress: true, Blocked: true},
	}))
	entries, err := a.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]

	out := filepath.Join(t.TempDir(), "exfat.img")
	require.NoError(t, a.Extract(0, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, testutil.CompressZlib(plain), got)
	assert.Equal(t, e.StoredSize, uint64(len(got)))
}

func TestArchive_SonyUntrustedTableFallsBackToScan(t *testing.T) {
	t.Parallel()

	buf := testutil.BuildSonyPUP([]testutil.SonyBlob{{ID: 0x1, Data: []byte("hello")}})
	binary.LittleEndian.PutUint64(buf[0x20+8:], 1<<40)
	a := load(t, buf)

	c, err := a.Container()
	require.NoError(t, err)
	p := c.(*PUP)
	assert.True(t, p.Scanned())
	require.NotEmpty(t, p.Segments())
	for _, e := range p.Segments() {
		assert.True(t, e.IsSynthetic())
	}
	info := c.Info()
	assert.True(t, info.Scanned)
	assert.Equal(t, "ps4", info.Family)
}

func TestArchive_EncryptedEntries(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x13}, 16)
	iv := bytes.Repeat([]byte{0x37}, 16)
	plain := []byte("thirty-two bytes of secret data!")
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	ciphertext := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plain)

	buf := testutil.BuildSonyPUP([]testutil.SonyBlob{
		{ID: 0x101, Data: []byte("<eula/>")},
		{ID: 0x200, Data: ciphertext, Encrypted: true},
	})

	t.Run("no key", func(t *testing.T) {
		t.Parallel()
		report, err := load(t, buf).ExtractAll(context.Background(), t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Succeeded)
		assert.Equal(t, 1, report.Failed)
		require.ErrorIs(t, report.Results[1].Err, ErrNoDecryptionKey)
	})

	t.Run("raw", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "raw.bin")
		require.NoError(t, load(t, buf, WithRawEncrypted(true)).Extract(1, out))
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, ciphertext, got)
	})

	t.Run("key", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "plain.bin")
		require.NoError(t, load(t, buf, WithKeys(StaticKey{Key: key, IV: iv})).Extract(1, out))
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	})

	t.Run("decrypter failure", func(t *testing.T) {
		t.Parallel()
		out := filepath.Join(t.TempDir(), "bad.bin")
		a := load(t, buf, WithKeys(StaticKey{Key: key[:5], IV: iv}))
		require.ErrorIs(t, a.Extract(1, out), ErrDecryption)
	})
}

func TestArchive_ScannedSegments(t *testing.T) {
	t.Parallel()

	first := []byte(strings.Repeat("ABCDEFGH", 100))
	second := []byte("1234")
	a := load(t, testutil.ScanPUP(testutil.CompressLZMA(first), testutil.CompressLZMA(second)))

	info, err := a.Info()
	require.NoError(t, err)
	assert.Equal(t, "ps5", info.Family)
	assert.True(t, info.Scanned)
	require.Len(t, info.Entries, 2)
	assert.Equal(t, "lzma", info.Entries[0].Signature)

	dest := t.TempDir()
	report, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	for i, want := range [][]byte{first, second} {
		got, err := os.ReadFile(filepath.Join(dest, report.Results[i].Path))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestScan_IgnoresTable(t *testing.T) {
	t.Parallel()

	stream := testutil.CompressLZMA([]byte("hidden"))
	buf := append(testutil.BuildBigEndianPUP([][]byte{[]byte("x")}), stream...)
	start := uint64(len(buf) - len(stream))

	segs := Scan(buf, start, WithScanConfig(ScanConfig{MinSegments: 1}))
	require.Len(t, segs, 1)
	assert.Equal(t, start, segs[0].Offset)
	assert.Equal(t, uint64(len(stream)), segs[0].StoredSize)
	assert.Equal(t, OriginScan, segs[0].Origin)
}

func TestArchive_SyntheticSegments(t *testing.T) {
	t.Parallel()

	buf := testutil.ScanPUP(testutil.Random(10240-0x20, 42))

	report, err := load(t, buf).ExtractAll(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Failed)
	for _, res := range report.Results {
		require.ErrorIs(t, res.Err, ErrNoDecryptionKey)
	}

	a := load(t, buf, WithRawEncrypted(true))
	info, err := a.Info()
	require.NoError(t, err)
	assert.True(t, info.Entries[0].LikelyEncrypted)

	report, err = a.ExtractAll(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Succeeded)
	var total uint64
	for _, res := range report.Results {
		total += res.Bytes
	}
	assert.Equal(t, uint64(10240-0x20), total)
}

func TestArchive_DuplicateNames(t *testing.T) {
	t.Parallel()

	a := load(t, testutil.BuildSLB2([]testutil.SLB2Entry{
		{Name: "a.bin", Data: []byte("one")},
		{Name: "a.bin", Data: []byte("two")},
		{Name: "..", Data: []byte("three")},
	}))
	dest := t.TempDir()
	report, err := a.ExtractAll(context.Background(), dest)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	assert.Equal(t, "a.bin", report.Results[0].Path)
	assert.Equal(t, "000001_a.bin", report.Results[1].Path)
	assert.Equal(t, "000002.bin", report.Results[2].Path)
	assert.Empty(t, report.Results[1].Warnings)
	require.Len(t, report.Results[2].Warnings, 1)
	require.ErrorIs(t, report.Results[2].Warnings[0], ErrUnsafeName)
	assert.Contains(t, report.Results[2].Warnings[0].Error(), `".."`)

	got, err := os.ReadFile(filepath.Join(dest, "000001_a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))
}

func TestArchive_ExtractAllCanceled(t *testing.T) {
	t.Parallel()

	a := load(t, testutil.BuildBigEndianPUP([][]byte{[]byte("a"), []byte("b")}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := a.ExtractAll(ctx, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Failed)
	for _, res := range report.Results {
		require.ErrorIs(t, res.Err, context.Canceled)
	}
}

func TestArchive_Progress(t *testing.T) {
	t.Parallel()

	var stages []ProgressStage
	a := load(t, testutil.BuildSLB2([]testutil.SLB2Entry{{Name: "a", Data: []byte("a")}}),
		WithProgress(func(ev ProgressEvent) { stages = append(stages, ev.Stage) }))
	assert.Equal(t, []ProgressStage{StageParsing}, stages)

	var events []ProgressEvent
	_, err := a.ExtractAll(context.Background(), t.TempDir(),
		ExtractWithProgress(func(ev ProgressEvent) { events = append(events, ev) }))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StageExtracting, events[0].Stage)
	assert.Equal(t, 1, events[0].EntriesDone)
	assert.Equal(t, 1, events[0].EntriesTotal)
}

func TestExtractFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.slb2")
	bad := filepath.Join(dir, "bad.pup")
	require.NoError(t, os.WriteFile(good, testutil.BuildSLB2([]testutil.SLB2Entry{{Name: "f.bin", Data: []byte("f")}}), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("garbage garbage"), 0o600))

	dest := filepath.Join(dir, "out")
	results, err := ExtractFiles(context.Background(), []string{bad, good}, dest, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.ErrorIs(t, results[0].Err, ErrUnrecognizedMagic)
	assert.Nil(t, results[0].Report)

	require.NoError(t, results[1].Err)
	assert.Equal(t, filepath.Join(dest, "good"), results[1].Dir)
	got, err := os.ReadFile(filepath.Join(dest, "good", "f.bin"))
	require.NoError(t, err)
	assert.Equal(t, "f", string(got))
}

func TestEntropy(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Entropy(nil))
	assert.Zero(t, Entropy(bytes.Repeat([]byte{0xAA}, 100)))

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	assert.InDelta(t, 8.0, Entropy(all), 1e-9)
}
