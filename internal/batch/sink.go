package batch

import (
	"io"

	"github.com/opencontainers/go-digest"
)

// Sink receives extracted entry content.
type Sink interface {
	// ShouldProcess returns false if the output name should be skipped,
	// for example because the file already exists.
	ShouldProcess(name string) bool

	// Writer returns a writer for the output name. The returned Committer
	// must be committed after a successful write or discarded on error.
	Writer(name string) (Committer, error)
}

// Committer stages writes until Commit or Discard.
type Committer interface {
	io.Writer

	// Commit makes the content visible under its final name and returns
	// the digest of everything written.
	Commit() (digest.Digest, error)

	// Discard drops the staged content.
	Discard() error
}

// WriteAll writes data under name and commits it, discarding the staged
// content on any failure.
func WriteAll(sink Sink, name string, data []byte) (digest.Digest, error) {
	w, err := sink.Writer(name)
	if err != nil {
		return "", err
	}
	if err := writeAll(w, data); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return "", err
	}
	return w.Commit()
}

func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
