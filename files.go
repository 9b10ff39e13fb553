package pup

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// FileResult is the outcome of extracting one container file.
type FileResult struct {
	// Path is the container file.
	Path string `json:"path" yaml:"path" cbor:"path"`

	// Dir is the directory its entries were written to.
	Dir string `json:"dir" yaml:"dir" cbor:"dir"`

	// Report is nil when the container failed to load.
	Report *Report `json:"report,omitempty" yaml:"report,omitempty" cbor:"report,omitempty"`

	// Err is the load failure, if any.
	Err error `json:"-" yaml:"-" cbor:"-"`
}

// ExtractFiles loads each container in paths and extracts it into its own
// directory under destRoot, named after the file without its extension.
//
// Files that fail to load are reported and skipped. The returned error is
// non-nil only when ctx is canceled.
func ExtractFiles(ctx context.Context, paths []string, destRoot string, opts []Option, extractOpts ...ExtractOption) ([]FileResult, error) {
	results := make([]FileResult, 0, len(paths))
	used := make(map[string]bool, len(paths))

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		dir := outputDir(path)
		if used[dir] {
			dir = fmt.Sprintf("%s_%d", dir, i)
		}
		used[dir] = true
		res := FileResult{Path: path, Dir: filepath.Join(destRoot, dir)}

		a := New(opts...)
		if err := a.Load(path); err != nil {
			a.log().Warn("skipping container", "path", path, "error", err)
			res.Err = err
			results = append(results, res)
			continue
		}
		report, err := a.ExtractAll(ctx, res.Dir, extractOpts...)
		res.Report = report
		if err != nil {
			res.Err = err
			results = append(results, res)
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func outputDir(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." {
		return base
	}
	return name
}
