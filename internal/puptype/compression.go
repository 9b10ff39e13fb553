// Package puptype defines shared types used across the pup package and its
// internal packages. This avoids circular imports between pup and the parsers.
package puptype

import "fmt"

// Compression identifies the compression scheme of an entry's stored bytes.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionLZMA
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionLZMA:
		return "lzma"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompression parses a compression name as produced by String.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	case "lzma":
		return CompressionLZMA, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression: %q", name)
	}
}
