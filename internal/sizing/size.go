// Package sizing provides overflow-checked offset arithmetic and bounded
// reads.
package sizing

import (
	"bytes"
	"io"
	"math"
	"math/bits"
)

// AddUint64 returns a+b and false on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// MulUint64 returns a*b and false on overflow.
func MulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// Range returns buf[off:off+size] with its capacity capped, or false if the
// range overflows or runs past the end of buf.
func Range(buf []byte, off, size uint64) ([]byte, bool) {
	end, ok := AddUint64(off, size)
	if !ok || end > uint64(len(buf)) {
		return nil, false
	}
	return buf[off:end:end], true
}

// ReadAllWithLimit reads r to EOF and returns overflowErr once more than
// limit bytes arrive.
func ReadAllWithLimit(r io.Reader, limit uint64, overflowErr error) ([]byte, error) {
	if limit >= math.MaxInt64 {
		return nil, overflowErr
	}
	var buf bytes.Buffer
	n, err := buf.ReadFrom(io.LimitReader(r, int64(limit)+1)) //nolint:gosec // checked above
	if err != nil {
		return nil, err
	}
	if uint64(n) > limit { //nolint:gosec // n is never negative
		return nil, overflowErr
	}
	return buf.Bytes(), nil
}
