package pup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/meigma/pup/internal/format"
	"github.com/meigma/pup/internal/scan"
)

// State is the lifecycle state of an Archive.
type State uint8

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Archive owns a container buffer and the entries decoded from it.
//
// An Archive is loaded exactly once. Loaded and Failed are terminal. All
// methods are safe for concurrent use.
type Archive struct {
	mu        sync.RWMutex
	state     State
	loadErr   error
	name      string
	container Container

	logger       *slog.Logger
	families     []Family
	maxEntries   uint64
	scanConfig   ScanConfig
	decrypter    Decrypter
	keys         KeyProvider
	rawEncrypted bool
	maxEntrySize uint64
	progress     ProgressFunc
}

// New returns an unloaded Archive.
func New(opts ...Option) *Archive {
	a := &Archive{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open returns an Archive loaded from path.
func Open(path string, opts ...Option) (*Archive, error) {
	a := New(opts...)
	if err := a.Load(path); err != nil {
		return nil, err
	}
	return a, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

func (a *Archive) emit(stage ProgressStage, done, total uint64) {
	if a.progress != nil {
		a.progress(ProgressEvent{Stage: stage, Path: a.name, BytesDone: done, BytesTotal: total})
	}
}

// State returns the current lifecycle state.
func (a *Archive) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Name returns the name the archive was loaded under.
func (a *Archive) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// Load reads the file at path once and decodes it.
func (a *Archive) Load(path string) error {
	if err := a.begin(path); err != nil {
		return err
	}
	a.emit(StageReading, 0, 0)
	data, err := os.ReadFile(path)
	if err != nil {
		return a.finish(nil, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return a.finish(a.decode(data))
}

// LoadBytes decodes data. The Archive takes ownership of data; callers
// must not modify it afterwards.
func (a *Archive) LoadBytes(name string, data []byte) error {
	if err := a.begin(name); err != nil {
		return err
	}
	return a.finish(a.decode(data))
}

func (a *Archive) begin(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateUnloaded {
		return fmt.Errorf("%w: load in state %s", ErrInvalidState, a.state)
	}
	a.state = StateLoading
	a.name = name
	return nil
}

func (a *Archive) finish(c Container, err error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.state = StateFailed
		a.loadErr = err
		a.log().Debug("load failed", "name", a.name, "error", err)
		return err
	}
	a.state = StateLoaded
	a.container = c
	return nil
}

// decode parses the header and builds the container.
func (a *Archive) decode(buf []byte) (Container, error) {
	families := a.families
	if families == nil {
		families = format.DefaultFamilies()
	}
	size := uint64(len(buf))
	a.emit(StageParsing, 0, size)

	h, err := format.ParseHeader(buf, families, a.maxEntries)
	if err != nil {
		return nil, err
	}
	logger := a.log().With("name", a.name, "family", h.Family.Name)
	logger.Debug("header matched",
		"version", h.Version,
		"count", h.DeclaredCount,
		"header_size", h.HeaderSize)
	if h.Suspicious {
		logger.Warn("suspicious header",
			"declared_count", h.DeclaredCount,
			"count", h.EntryCount,
			"version", h.Version)
	}

	if h.Family.Kind == format.KindSLB2 {
		entries, err := format.DecodeTable(buf, h)
		if err != nil {
			return nil, err
		}
		logger.Debug("table decoded", "entries", len(entries))
		s := &SLB2{}
		a.fill(&s.base, buf, h, entries, false)
		return s, nil
	}

	entries, scanned, err := a.pupEntries(buf, h, logger)
	if err != nil {
		return nil, err
	}
	p := &PUP{scanned: scanned}
	a.fill(&p.base, buf, h, entries, scanned)
	return p, nil
}

// pupEntries decodes the table of h, falling back to the scanner when the
// family has no table or the table cannot be trusted.
func (a *Archive) pupEntries(buf []byte, h *Header, logger *slog.Logger) ([]Entry, bool, error) {
	if !h.Family.HeuristicOnly() {
		entries, err := format.DecodeTable(buf, h)
		switch {
		case err == nil && (!h.Family.ScanFallback || trusted(entries)):
			logger.Debug("table decoded", "entries", len(entries))
			return entries, false, nil
		case err != nil && !h.Family.ScanFallback:
			return nil, false, err
		default:
			logger.Warn("entry table not trusted; scanning payload", "entries", len(entries), "error", err)
		}
	}

	a.emit(StageScanning, 0, uint64(len(buf)))
	s := scan.New(a.scanConfig, a.log())
	segs := s.Scan(buf, h.HeaderSize)
	logger.Debug("scan complete", "segments", len(segs))
	return segs, true, nil
}

// trusted reports whether a decoded table can be used as is.
func trusted(entries []Entry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !e.Extractable {
			return false
		}
	}
	return true
}

func (a *Archive) fill(b *base, buf []byte, h *Header, entries []Entry, scanned bool) {
	b.header = h
	b.entries = entries
	b.x = newExtractor(a, buf, entries)
	b.info = buildInfo(a.name, buf, h, entries, scanned)
}

// Container returns the loaded container.
func (a *Archive) Container() (Container, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case StateLoaded:
		return a.container, nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %w", ErrNotLoaded, a.loadErr)
	default:
		return nil, fmt.Errorf("%w: state %s", ErrNotLoaded, a.state)
	}
}

// Info describes the loaded container.
func (a *Archive) Info() (Info, error) {
	c, err := a.Container()
	if err != nil {
		return Info{}, err
	}
	return c.Info(), nil
}

// Entries returns a copy of the loaded entries.
func (a *Archive) Entries() ([]Entry, error) {
	c, err := a.Container()
	if err != nil {
		return nil, err
	}
	return c.Entries(), nil
}

// Extract writes entry index to outputPath, replacing any existing file.
// Parent directories are created as needed.
func (a *Archive) Extract(index int, outputPath string) error {
	c, err := a.Container()
	if err != nil {
		return err
	}
	return c.Extract(index, outputPath)
}

// ExtractAll writes every entry under destDir and reports per-entry results.
//
// A failing entry never stops the others. The returned error is non-nil only
// when the archive is not loaded, destDir cannot be created, or ctx was
// canceled; per-entry failures are in the Report.
func (a *Archive) ExtractAll(ctx context.Context, destDir string, opts ...ExtractOption) (*Report, error) {
	c, err := a.Container()
	if err != nil {
		return nil, err
	}
	var x *extractor
	switch v := c.(type) {
	case *PUP:
		x = v.x
	case *SLB2:
		x = v.x
	default:
		return nil, errors.New("pup: unsupported container")
	}

	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return extractAll(ctx, x, destDir, cfg, a.log())
}
