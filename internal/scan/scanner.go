// Package scan finds payload segments in containers whose entry table is
// missing or untrusted.
//
// The scanner walks the payload region looking for known signatures. A
// matched payload is measured, recorded and skipped; anything else moves the
// cursor forward by one stride. When too little is found the remaining
// region is split into synthetic encrypted chunks so callers can still dump
// it.
package scan

import (
	"log/slog"

	"github.com/meigma/pup/internal/codec"
	"github.com/meigma/pup/internal/puptype"
)

// Config bounds the scan.
type Config struct {
	// Stride is how far the cursor moves when nothing matches.
	Stride uint64

	// MinWindow is the smallest window worth probing.
	MinWindow uint64

	// MaxWindow bounds the bytes handed to a decoder.
	MaxWindow uint64

	// MaxOutput bounds decompressed output while measuring.
	MaxOutput uint64

	// MinSegments is the number of found segments below which synthetic
	// chunks are added.
	MinSegments int

	// SyntheticChunks is the number of synthetic chunks to add.
	SyntheticChunks int
}

// DefaultConfig returns the default scan bounds.
func DefaultConfig() Config {
	return Config{
		Stride:          4 << 10,
		MinWindow:       16,
		MaxWindow:       64 << 20,
		MaxOutput:       256 << 20,
		MinSegments:     6,
		SyntheticChunks: 10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Stride == 0 {
		c.Stride = def.Stride
	}
	if c.MinWindow == 0 {
		c.MinWindow = def.MinWindow
	}
	if c.MaxWindow == 0 {
		c.MaxWindow = def.MaxWindow
	}
	if c.MaxOutput == 0 {
		c.MaxOutput = def.MaxOutput
	}
	if c.MinSegments <= 0 {
		c.MinSegments = def.MinSegments
	}
	if c.SyntheticChunks <= 0 {
		c.SyntheticChunks = def.SyntheticChunks
	}
	return c
}

// Scanner finds segments by signature.
type Scanner struct {
	cfg    Config
	dec    *codec.Decoder
	logger *slog.Logger
}

// New returns a Scanner. Zero Config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Scanner {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{
		cfg:    cfg,
		dec:    codec.NewDecoder(cfg.MaxOutput),
		logger: logger,
	}
}

// Scan returns the segments found in buf[start:].
//
// Found segments come first in offset order, followed by any synthetic
// chunks. Decoding failures are treated as no match.
func (s *Scanner) Scan(buf []byte, start uint64) []puptype.Entry {
	n := uint64(len(buf))
	var found []puptype.Entry

	cursor := start
	for cursor < n && n-cursor >= s.cfg.MinWindow {
		win := buf[cursor : cursor+min(s.cfg.MaxWindow, n-cursor)]
		seg, ok := s.probe(win)
		if !ok {
			cursor += min(s.cfg.Stride, n-cursor)
			continue
		}
		seg.Index = len(found)
		seg.Offset = cursor
		seg.Extractable = true
		s.logger.Debug("scan hit",
			"kind", seg.Signature,
			"offset", cursor,
			"stored", seg.StoredSize,
			"size", seg.Size)
		found = append(found, seg)
		cursor += seg.StoredSize
	}

	if len(found) >= s.cfg.MinSegments || covered(found, start, n) {
		return found
	}
	chunks := Synthetic(start, n, s.cfg.SyntheticChunks)
	s.logger.Warn("scan found too few segments; adding synthetic chunks",
		"found", len(found),
		"chunks", len(chunks))
	for i := range chunks {
		chunks[i].Index = len(found) + i
	}
	return append(found, chunks...)
}

func (s *Scanner) probe(win []byte) (puptype.Entry, bool) {
	sig, ok := lookup(win)
	if !ok {
		return puptype.Entry{}, false
	}
	m, err := sig.measure(s.dec, sig.kind, win)
	if err != nil || m.stored == 0 || m.stored > uint64(len(win)) {
		return puptype.Entry{}, false
	}
	e := puptype.Entry{
		StoredSize:  m.stored,
		Size:        m.size,
		Compression: sig.kind.Compression(),
		Signature:   sig.kind.String(),
		Origin:      puptype.OriginScan,
	}
	if e.IsCompressed() {
		e.Flags |= puptype.FlagCompressed
	}
	return e, true
}

// covered reports whether segs tile [start, end) without gaps.
func covered(segs []puptype.Entry, start, end uint64) bool {
	if start >= end {
		return true
	}
	pos := start
	for _, s := range segs {
		if s.Offset != pos {
			return false
		}
		pos += s.StoredSize
	}
	return pos >= end
}

// Synthetic splits [start, end) into count equal chunks. The last chunk
// absorbs the remainder. Short ranges yield one chunk per byte.
func Synthetic(start, end uint64, count int) []puptype.Entry {
	if start >= end || count <= 0 {
		return nil
	}
	total := end - start
	n := min(uint64(count), total)
	size := total / n

	chunks := make([]puptype.Entry, 0, n)
	for i := range n {
		off := start + i*size
		stored := size
		if i == n-1 {
			stored = end - off
		}
		chunks = append(chunks, puptype.Entry{
			Index:       int(i), //nolint:gosec // bounded by count
			Offset:      off,
			StoredSize:  stored,
			Size:        stored,
			Flags:       puptype.FlagEncrypted,
			Origin:      puptype.OriginSynthetic,
			Extractable: true,
			Recoverable: true,
		})
	}
	return chunks
}
