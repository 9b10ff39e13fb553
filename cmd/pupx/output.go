package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/meigma/pup"
)

var cborMode cbor.EncMode

func init() {
	var err error
	cborMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("pupx: cbor encoder initialization failed: " + err.Error())
	}
}

// fileView is the serialized form of a pup.FileResult. Errors are
// flattened to strings since error values do not encode.
type fileView struct {
	Path    string       `json:"path" yaml:"path" cbor:"path"`
	Dir     string       `json:"dir" yaml:"dir" cbor:"dir"`
	Error   string       `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
	Entries []resultView `json:"entries,omitempty" yaml:"entries,omitempty" cbor:"entries,omitempty"`

	Succeeded int `json:"succeeded" yaml:"succeeded" cbor:"succeeded"`
	Failed    int `json:"failed" yaml:"failed" cbor:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped" cbor:"skipped"`
}

type resultView struct {
	pup.Result `yaml:",inline"`

	Error    string   `json:"error,omitempty" yaml:"error,omitempty" cbor:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty" cbor:"warnings,omitempty"`
}

func newFileView(r pup.FileResult) fileView {
	v := fileView{Path: r.Path, Dir: r.Dir}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	if r.Report == nil {
		return v
	}
	v.Succeeded, v.Failed, v.Skipped = r.Report.Succeeded, r.Report.Failed, r.Report.Skipped
	for _, res := range r.Report.Results {
		rv := resultView{Result: res}
		if res.Err != nil {
			rv.Error = res.Err.Error()
		}
		for _, w := range res.Warnings {
			rv.Warnings = append(rv.Warnings, w.Error())
		}
		v.Entries = append(v.Entries, rv)
	}
	return v
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "cbor":
		return cborMode.NewEncoder(w).Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func writeInfos(w io.Writer, format string, infos []pup.Info) error {
	if format != "text" {
		return encode(w, format, infos)
	}
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s: %s (%s) version %d, %s, %d/%d entries",
			info.Name, info.Family, info.Kind, info.Version, humanize.Bytes(info.Size), len(info.Entries), info.DeclaredCount)
		if info.Scanned {
			fmt.Fprint(w, ", scanned")
		}
		if info.Suspicious {
			fmt.Fprint(w, ", suspicious")
		}
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tOFFSET\tSTORED\tSIZE\tCOMPRESSION\tFLAGS\tORIGIN\tENTROPY")
		for _, e := range info.Entries {
			name := e.Name
			if name == "" {
				name = "-"
			}
			entropy := fmt.Sprintf("%.2f", e.Entropy)
			if e.LikelyEncrypted {
				entropy += "*"
			}
			if !e.Extractable {
				entropy = "oob"
			}
			fmt.Fprintf(tw, "%d\t%s\t0x%X\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Index, name, e.Offset, humanize.Bytes(e.StoredSize), humanize.Bytes(e.Size), e.Compression, e.Flags, e.Origin, entropy)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeResults(w io.Writer, format string, results []pup.FileResult) error {
	views := make([]fileView, 0, len(results))
	for _, r := range results {
		views = append(views, newFileView(r))
	}
	if format != "text" {
		return encode(w, format, views)
	}
	for _, v := range views {
		if v.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", v.Path, v.Error)
			continue
		}
		var written uint64
		for _, e := range v.Entries {
			if e.OK() {
				written += e.Bytes
			}
		}
		fmt.Fprintf(w, "%s -> %s: %d written (%s), %d skipped, %d failed\n",
			v.Path, v.Dir, v.Succeeded, humanize.Bytes(written), v.Skipped, v.Failed)
		for _, e := range v.Entries {
			if e.Error != "" {
				fmt.Fprintf(w, "  %s: %s\n", e.Path, e.Error)
			}
		}
	}
	return nil
}

type segmentView struct {
	Index      int    `json:"index" yaml:"index" cbor:"index"`
	Offset     uint64 `json:"offset" yaml:"offset" cbor:"offset"`
	StoredSize uint64 `json:"stored_size" yaml:"stored_size" cbor:"stored_size"`
	Size       uint64 `json:"size" yaml:"size" cbor:"size"`
	Signature  string `json:"signature,omitempty" yaml:"signature,omitempty" cbor:"signature,omitempty"`
	Origin     string `json:"origin" yaml:"origin" cbor:"origin"`
}

func writeSegments(w io.Writer, format string, segs []pup.Entry) error {
	views := make([]segmentView, 0, len(segs))
	for _, e := range segs {
		views = append(views, segmentView{
			Index:      e.Index,
			Offset:     e.Offset,
			StoredSize: e.StoredSize,
			Size:       e.Size,
			Signature:  e.Signature,
			Origin:     e.Origin.String(),
		})
	}
	if format != "text" {
		return encode(w, format, views)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tOFFSET\tSTORED\tSIZE\tSIGNATURE\tORIGIN")
	for _, v := range views {
		sig := v.Signature
		if sig == "" {
			sig = "-"
		}
		fmt.Fprintf(tw, "%d\t0x%X\t%d\t%d\t%s\t%s\n", v.Index, v.Offset, v.StoredSize, v.Size, sig, v.Origin)
	}
	return tw.Flush()
}
