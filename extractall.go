package pup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meigma/pup/internal/batch"
)

func extractAll(ctx context.Context, x *extractor, destDir string, cfg extractConfig, logger *slog.Logger) (*Report, error) {
	sink, err := batch.NewFileSink(destDir, batch.WithOverwrite(cfg.overwrite))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	defer sink.Close()

	names, warnings := outputNames(x.entries)
	report := &Report{Results: make([]Result, len(x.entries))}

	var mu sync.Mutex
	done := 0
	finished := func(r *Result) {
		if cfg.progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		cfg.progress(ProgressEvent{
			Stage:        StageExtracting,
			Index:        r.Index,
			Path:         r.Path,
			BytesDone:    r.Bytes,
			EntriesDone:  done,
			EntriesTotal: len(x.entries),
		})
	}

	jobs := make([]batch.Job, 0, len(x.entries))
	slots := make([]int, 0, len(x.entries))
	for i := range x.entries {
		e := &x.entries[i]
		res := &report.Results[i]
		*res = Result{Index: e.Index, Name: e.Name, Path: names[i], Warnings: warnings[i]}
		for _, w := range warnings[i] {
			logger.Warn("entry warning", "index", e.Index, "path", names[i], "warning", w)
		}

		if !sink.ShouldProcess(names[i]) {
			res.Skipped = true
			logger.Debug("skipping existing output", "index", e.Index, "path", names[i])
			finished(res)
			continue
		}

		slots = append(slots, i)
		jobs = append(jobs, batch.Job{
			Weight: e.StoredSize,
			Run: func(context.Context) error {
				err := writeEntry(x, sink, i, names[i], res)
				if err != nil {
					logger.Warn("entry failed", "index", e.Index, "path", names[i], "error", err)
				} else {
					logger.Debug("entry extracted", "index", e.Index, "path", names[i], "bytes", res.Bytes)
				}
				res.Err = err
				finished(res)
				return err
			},
		})
	}

	proc := batch.NewProcessor(
		batch.WithWorkers(cfg.workers),
		batch.WithByteBudget(cfg.byteBudget),
		batch.WithProcessorLogger(logger),
	)
	for j, err := range proc.Process(ctx, jobs) {
		// Jobs canceled before they started never set their result.
		if res := &report.Results[slots[j]]; err != nil && res.Err == nil {
			res.Err = err
			finished(res)
		}
	}

	report.tally()
	return report, ctx.Err()
}

func writeEntry(x *extractor, sink batch.Sink, i int, name string, res *Result) error {
	data, err := x.payload(i)
	if err != nil {
		return err
	}
	dgst, err := batch.WriteAll(sink, name, data)
	if err != nil {
		return entryErr(&x.entries[i], fmt.Errorf("%w: %w", ErrIO, err))
	}
	res.Bytes = uint64(len(data))
	res.Digest = dgst
	return nil
}
