package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// stagePrefix marks in-progress outputs.
	stagePrefix = ".pup-"
)

// FileSink writes outputs beneath one directory.
//
// Each output is staged in a hidden file next to its final name and renamed
// into place on Commit. All access goes through an os.Root held for the
// life of the sink, so no name can resolve outside the directory. A FileSink
// is safe for concurrent use and must be closed.
type FileSink struct {
	dir       string
	root      *os.Root
	overwrite bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite replaces existing outputs instead of skipping them.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink creates dir if needed and opens it as the sink root.
func NewFileSink(dir string, opts ...FileSinkOption) (*FileSink, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	s := &FileSink{dir: dir, root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the destination directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Close releases the directory handle. Committers still open fail on
// Commit.
func (s *FileSink) Close() error {
	return s.root.Close()
}

// ShouldProcess reports whether name is a valid output name that is free
// or may be overwritten.
func (s *FileSink) ShouldProcess(name string) bool {
	if !validName(name) {
		return false
	}
	if s.overwrite {
		return true
	}
	_, err := s.root.Lstat(filepath.FromSlash(name))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer stages a new output for name, creating parent directories.
func (s *FileSink) Writer(name string) (Committer, error) {
	if !validName(name) {
		return nil, &fs.PathError{Op: "create", Path: name, Err: fs.ErrInvalid}
	}
	rel := filepath.FromSlash(name)
	if parent := filepath.Dir(rel); parent != "." {
		if err := s.root.MkdirAll(parent, dirPerm); err != nil {
			return nil, fmt.Errorf("create %s: %w", parent, err)
		}
	}
	f, staged, err := s.stage(filepath.Dir(rel))
	if err != nil {
		return nil, err
	}
	d := digest.Canonical.Digester()
	return &fileCommitter{
		root:     s.root,
		file:     f,
		w:        io.MultiWriter(f, d.Hash()),
		digester: d,
		staged:   staged,
		rel:      rel,
	}, nil
}

// stage creates an exclusive hidden file in dir.
func (s *FileSink) stage(dir string) (*os.File, string, error) {
	var suffix [8]byte
	for range 10 {
		if _, err := rand.Read(suffix[:]); err != nil {
			return nil, "", err
		}
		rel := filepath.Join(dir, stagePrefix+hex.EncodeToString(suffix[:]))
		f, err := s.root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
		if err == nil {
			return f, rel, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("stage output: %w", err)
		}
	}
	return nil, "", errors.New("stage output: no free name")
}

func validName(name string) bool {
	return fs.ValidPath(name) && name != "."
}

type fileCommitter struct {
	root     *os.Root
	file     *os.File
	w        io.Writer
	digester digest.Digester
	staged   string
	rel      string
}

func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.w.Write(p)
}

func (c *fileCommitter) Commit() (digest.Digest, error) {
	if err := c.file.Close(); err != nil {
		_ = c.root.Remove(c.staged) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("close %s: %w", c.rel, err)
	}
	if err := c.root.Rename(c.staged, c.rel); err != nil {
		_ = c.root.Remove(c.staged) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("commit %s: %w", c.rel, err)
	}
	return c.digester.Digest(), nil
}

func (c *fileCommitter) Discard() error {
	_ = c.file.Close() //nolint:errcheck // the file is removed next
	return c.root.Remove(c.staged)
}
