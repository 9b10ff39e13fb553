// Package pup parses and extracts firmware update containers.
//
// Two container kinds are supported:
//   - PUP: a header, an optional table of entries and a payload region. Several
//     families share the name and differ in magic, byte order and table layout.
//     Families without a trustworthy table are handled by signature scanning.
//   - SLB2: a 0x200-byte header with up to ten sector-addressed, named entries.
//
// An Archive reads the whole container once and keeps the bytes for its
// lifetime; entries are offset views into that buffer. Extraction validates
// every range against the buffer, decrypts and decompresses as needed, and
// writes output atomically.
//
//	a := pup.New(pup.WithLogger(logger))
//	if err := a.Load("PS4UPDATE.PUP"); err != nil {
//		return err
//	}
//	report, err := a.ExtractAll(ctx, "out")
package pup
