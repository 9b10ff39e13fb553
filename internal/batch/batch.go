// Package batch runs per-entry extraction jobs and writes their output.
package batch

import (
	"context"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Job is one unit of work. Weight is the number of bytes the job is
// expected to hold in memory while it runs.
type Job struct {
	Weight uint64
	Run    func(ctx context.Context) error
}

// Processor runs jobs with bounded concurrency.
//
// A failing job never stops its siblings; each job's error is reported in
// its own slot. Cancellation is checked before each job starts.
type Processor struct {
	workers     int // 0 = auto, <0 = serial, >0 = fixed count
	budgetBytes uint64
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
// Values > 0 force a specific worker count.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithByteBudget caps the total Weight of jobs running at once.
// A value of 0 disables the budget. A job heavier than the budget runs
// alone.
func WithByteBudget(limit uint64) ProcessorOption {
	return func(p *Processor) {
		p.budgetBytes = limit
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs jobs and returns one error slot per job.
//
// Jobs that had not started when ctx was canceled report ctx.Err().
func (p *Processor) Process(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	if len(jobs) == 0 {
		return errs
	}

	workers := p.workerCount(len(jobs))
	p.log().Debug("batch processing", "jobs", len(jobs), "workers", workers)

	var budget *semaphore.Weighted
	var limit int64
	if p.budgetBytes > 0 {
		limit = int64(min(p.budgetBytes, math.MaxInt64)) //nolint:gosec // clamped above
		budget = semaphore.NewWeighted(limit)
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			if budget != nil {
				weight := int64(min(job.Weight, uint64(limit))) //nolint:gosec // bounded by limit
				if err := budget.Acquire(ctx, weight); err != nil {
					errs[i] = err
					return nil
				}
				defer budget.Release(weight)
			}
			errs[i] = job.Run(ctx)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // jobs report through errs
	return errs
}

// workerCount determines the number of workers to use for n jobs.
func (p *Processor) workerCount(n int) int {
	if n < 2 || p.workers < 0 {
		return 1
	}
	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(1, min(workers, n))
}
