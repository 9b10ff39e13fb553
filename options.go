package pup

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for load and extraction operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithFamilies replaces the family table used to recognize containers.
func WithFamilies(families []Family) Option {
	return func(a *Archive) {
		a.families = families
	}
}

// WithMaxEntries sets the entry-count sanity ceiling (default 1000).
// Larger declared counts are clamped and the header is marked suspicious.
func WithMaxEntries(n uint64) Option {
	return func(a *Archive) {
		a.maxEntries = n
	}
}

// WithScanConfig sets the segment scanner bounds. Zero fields keep their
// defaults.
func WithScanConfig(cfg ScanConfig) Option {
	return func(a *Archive) {
		a.scanConfig = cfg
	}
}

// WithDecrypter sets the decryption capability. When keys are configured and
// no decrypter is set, AES-CBC is used.
func WithDecrypter(d Decrypter) Option {
	return func(a *Archive) {
		a.decrypter = d
	}
}

// WithKeys sets the key provider for encrypted entries.
func WithKeys(k KeyProvider) Option {
	return func(a *Archive) {
		a.keys = k
	}
}

// WithRawEncrypted writes encrypted entries that cannot be decrypted as raw
// bytes instead of failing with ErrNoDecryptionKey. Synthetic segments are
// only ever written raw.
func WithRawEncrypted(enabled bool) Option {
	return func(a *Archive) {
		a.rawEncrypted = enabled
	}
}

// WithMaxEntrySize limits the decompressed size of a single entry.
// Set limit to 0 for the default of 256 MiB.
func WithMaxEntrySize(limit uint64) Option {
	return func(a *Archive) {
		a.maxEntrySize = limit
	}
}

// WithProgress sets a callback for load progress.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Archive) {
		a.progress = fn
	}
}

// ExtractOption configures ExtractAll.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite  bool
	workers    int
	byteBudget uint64
	progress   ProgressFunc
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped and reported as skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithWorkers sets the number of workers for parallel extraction.
// Values < 0 force serial processing. Zero uses GOMAXPROCS.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// ExtractWithByteBudget caps the stored bytes of entries being extracted
// at once. Zero disables the budget.
func ExtractWithByteBudget(limit uint64) ExtractOption {
	return func(c *extractConfig) {
		c.byteBudget = limit
	}
}

// ExtractWithProgress sets a callback invoked after each entry completes.
func ExtractWithProgress(fn ProgressFunc) ExtractOption {
	return func(c *extractConfig) {
		c.progress = fn
	}
}
