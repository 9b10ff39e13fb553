// pupx inspects and extracts PUP and SLB2 firmware containers.
//
// Usage:
//
//	pupx info [flags] FILE...
//	pupx extract [flags] FILE...
//	pupx scan [flags] FILE
//	pupx families
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/meigma/pup"
	"github.com/meigma/pup/crypt"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// output holds the flags shared by every subcommand that prints results.
type output struct {
	format  string
	verbose bool
}

func (o *output) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.format, "format", "f", "text", "output format: text, json, yaml or cbor")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log debug output to stderr")
}

func (o *output) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// common holds the flags shared by every subcommand that loads containers.
type common struct {
	output
	families string
	maxCount uint64
	key      string
	iv       string
	raw      bool
}

func (c *common) addFlags(fs *pflag.FlagSet) {
	c.output.addFlags(fs)
	fs.StringVar(&c.families, "families", "", "YAML family table replacing the built-in one")
	fs.Uint64Var(&c.maxCount, "max-entries", 0, "entry count ceiling (0 uses the default)")
	fs.StringVar(&c.key, "key", "", "hex AES key for encrypted entries")
	fs.StringVar(&c.iv, "iv", "", "hex AES IV for encrypted entries")
	fs.BoolVar(&c.raw, "raw", false, "write encrypted entries without decrypting them")
}

// options turns the shared flags into archive options.
func (c *common) options(logger *slog.Logger) ([]pup.Option, error) {
	opts := []pup.Option{
		pup.WithLogger(logger),
		pup.WithMaxEntries(c.maxCount),
		pup.WithRawEncrypted(c.raw),
	}
	if c.families != "" {
		families, err := pup.LoadFamiliesFile(c.families)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pup.WithFamilies(families))
	}
	if c.key != "" {
		key, err := crypt.ParseHexKey(c.key)
		if err != nil {
			return nil, fmt.Errorf("--key: %w", err)
		}
		iv, err := crypt.ParseHexKey(c.iv)
		if err != nil {
			return nil, fmt.Errorf("--iv: %w", err)
		}
		opts = append(opts, pup.WithKeys(pup.StaticKey{Key: key, IV: iv}))
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "info":
		return runInfo(args[1:], stdout, stderr)
	case "extract":
		return runExtract(ctx, args[1:], stdout, stderr)
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "families":
		return pup.WriteFamilies(stdout, pup.DefaultFamilies())
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `pupx inspects and extracts PUP and SLB2 firmware containers.

Usage:
  pupx info [flags] FILE...      describe containers and their entries
  pupx extract [flags] FILE...   extract every entry
  pupx scan [flags] FILE          list payload segments found by signature
  pupx families                  print the built-in family table as YAML

Run "pupx <command> --help" for command flags.
`)
}

func runInfo(args []string, stdout, stderr io.Writer) error {
	var c common
	fs := pflag.NewFlagSet("pupx info", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	c.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("info: no input files")
	}

	logger := c.logger(stderr)
	opts, err := c.options(logger)
	if err != nil {
		return err
	}

	var infos []pup.Info
	var failed int
	for _, path := range fs.Args() {
		a, err := pup.Open(path, opts...)
		if err != nil {
			logger.Error("load failed", "path", path, "error", err)
			failed++
			continue
		}
		info, err := a.Info()
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	if err := writeInfos(stdout, c.format, infos); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to load", failed, fs.NArg())
	}
	return nil
}

func runExtract(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		c          common
		out        string
		overwrite  bool
		workers    int
		budget     uint64
		maxSize    uint64
		cpuProfile string
	)
	fs := pflag.NewFlagSet("pupx extract", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	c.addFlags(fs)
	fs.StringVarP(&out, "out", "o", ".", "output root; each file extracts into its own directory")
	fs.BoolVar(&overwrite, "overwrite", false, "replace existing outputs")
	fs.IntVarP(&workers, "workers", "j", 0, "parallel entry workers (0 uses GOMAXPROCS, negative runs serially)")
	fs.Uint64Var(&budget, "byte-budget", 0, "cap on stored bytes held by in-flight entries (0 is unlimited)")
	fs.Uint64Var(&maxSize, "max-entry-size", 0, "cap on decompressed entry size (0 uses the default)")
	fs.StringVar(&cpuProfile, "cpu-profile", "", "write a CPU profile to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("extract: no input files")
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	logger := c.logger(stderr)
	opts, err := c.options(logger)
	if err != nil {
		return err
	}
	opts = append(opts, pup.WithMaxEntrySize(maxSize))

	results, err := pup.ExtractFiles(ctx, fs.Args(), out, opts,
		pup.ExtractWithOverwrite(overwrite),
		pup.ExtractWithWorkers(workers),
		pup.ExtractWithByteBudget(budget),
	)
	if werr := writeResults(stdout, c.format, results); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.Err != nil || (r.Report != nil && r.Report.Failed > 0) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files had failures", failed, len(results))
	}
	return nil
}

func runScan(args []string, stdout, stderr io.Writer) error {
	var (
		o       output
		start   uint64
		stride  uint64
		minSegs int
	)
	fs := pflag.NewFlagSet("pupx scan", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	o.addFlags(fs)
	fs.Uint64Var(&start, "start", 0x20, "offset to start scanning at")
	fs.Uint64Var(&stride, "stride", 0, "cursor advance when nothing matches (0 uses the default)")
	fs.IntVar(&minSegs, "min-segments", 0, "found segments below which synthetic chunks are added (0 uses the default)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("scan: expected exactly one input file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	segs := pup.Scan(data, start,
		pup.WithLogger(o.logger(stderr)),
		pup.WithScanConfig(pup.ScanConfig{Stride: stride, MinSegments: minSegs}),
	)
	return writeSegments(stdout, o.format, segs)
}
