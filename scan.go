package pup

import "github.com/meigma/pup/internal/scan"

// Scan runs the segment scanner over data from start without consulting any
// entry table. Only WithLogger and WithScanConfig apply.
func Scan(data []byte, start uint64, opts ...Option) []Entry {
	a := New(opts...)
	return scan.New(a.scanConfig, a.log()).Scan(data, start)
}
