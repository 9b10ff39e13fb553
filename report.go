package pup

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Result is the outcome of extracting one entry.
type Result struct {
	Index int    `json:"index" yaml:"index" cbor:"index"`
	Name  string `json:"name" yaml:"name" cbor:"name"`

	// Path is the output path relative to the destination directory.
	Path string `json:"path" yaml:"path" cbor:"path"`

	// Bytes is the number of bytes written.
	Bytes uint64 `json:"bytes" yaml:"bytes" cbor:"bytes"`

	// Digest is the sha256 digest of the bytes written.
	Digest digest.Digest `json:"digest,omitempty" yaml:"digest,omitempty" cbor:"digest,omitempty"`

	// Skipped is set when the output already existed.
	Skipped bool `json:"skipped,omitempty" yaml:"skipped,omitempty" cbor:"skipped,omitempty"`

	// Warnings are non-fatal problems, such as ErrEmptyName or
	// ErrUnsafeName.
	Warnings []error `json:"-" yaml:"-" cbor:"-"`

	// Err is the extraction failure, if any.
	Err error `json:"-" yaml:"-" cbor:"-"`
}

// OK reports whether the entry was written.
func (r Result) OK() bool {
	return r.Err == nil && !r.Skipped
}

// Report summarizes ExtractAll.
type Report struct {
	Results   []Result `json:"results" yaml:"results" cbor:"results"`
	Succeeded int      `json:"succeeded" yaml:"succeeded" cbor:"succeeded"`
	Failed    int      `json:"failed" yaml:"failed" cbor:"failed"`
	Skipped   int      `json:"skipped" yaml:"skipped" cbor:"skipped"`
}

func (r *Report) tally() {
	r.Succeeded, r.Failed, r.Skipped = 0, 0, 0
	for _, res := range r.Results {
		switch {
		case res.OK():
			r.Succeeded++
		case res.Skipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
}

// Err joins the errors of all failed entries, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// outputNames assigns a unique, safe relative output name to every entry.
// Entries without a name, or with one that is not a single safe path
// element, are named by index and get an ErrEmptyName or ErrUnsafeName
// warning.
func outputNames(entries []Entry) ([]string, [][]error) {
	names := make([]string, len(entries))
	warnings := make([][]error, len(entries))
	seen := make(map[string]bool, len(entries))

	for i, e := range entries {
		indexName := fmt.Sprintf("%06d.bin", e.Index)
		name := e.Name
		switch {
		case name == "":
			warnings[i] = append(warnings[i], ErrEmptyName)
			name = indexName
		case !safeName(name):
			warnings[i] = append(warnings[i], fmt.Errorf("%w: %q", ErrUnsafeName, name))
			name = indexName
		case seen[name]:
			name = fmt.Sprintf("%06d_%s", e.Index, name)
		}
		if seen[name] {
			name = fmt.Sprintf("%06d_%s", e.Index, indexName)
		}
		seen[name] = true
		names[i] = name
	}
	return names, warnings
}

func safeName(name string) bool {
	return fs.ValidPath(name) && name != "." && !strings.ContainsAny(name, `/\`)
}
