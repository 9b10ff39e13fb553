package pup

import (
	"math"
)

const (
	// entropySample is the number of leading bytes of an entry sampled for
	// entropy.
	entropySample = 4 << 10

	// encryptedEntropy is the entropy in bits per byte above which data is
	// flagged as likely encrypted.
	encryptedEntropy = 7.5
)

// Info describes a loaded container.
type Info struct {
	Name          string            `json:"name" yaml:"name" cbor:"name"`
	Family        string            `json:"family" yaml:"family" cbor:"family"`
	Kind          string            `json:"kind" yaml:"kind" cbor:"kind"`
	Size          uint64            `json:"size" yaml:"size" cbor:"size"`
	Version       uint64            `json:"version" yaml:"version" cbor:"version"`
	Mode          uint64            `json:"mode,omitempty" yaml:"mode,omitempty" cbor:"mode,omitempty"`
	Flags         uint64            `json:"flags,omitempty" yaml:"flags,omitempty" cbor:"flags,omitempty"`
	DeclaredCount uint64            `json:"declared_count" yaml:"declared_count" cbor:"declared_count"`
	Suspicious    bool              `json:"suspicious,omitempty" yaml:"suspicious,omitempty" cbor:"suspicious,omitempty"`
	Scanned       bool              `json:"scanned,omitempty" yaml:"scanned,omitempty" cbor:"scanned,omitempty"`
	Fields        map[string]uint64 `json:"fields,omitempty" yaml:"fields,omitempty" cbor:"fields,omitempty"`
	Entries       []EntryInfo       `json:"entries" yaml:"entries" cbor:"entries"`
}

// EntryInfo describes one entry for display.
type EntryInfo struct {
	Index           int     `json:"index" yaml:"index" cbor:"index"`
	Name            string  `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`
	ID              uint32  `json:"id,omitempty" yaml:"id,omitempty" cbor:"id,omitempty"`
	Offset          uint64  `json:"offset" yaml:"offset" cbor:"offset"`
	StoredSize      uint64  `json:"stored_size" yaml:"stored_size" cbor:"stored_size"`
	Size            uint64  `json:"size" yaml:"size" cbor:"size"`
	StartSector     uint64  `json:"start_sector,omitempty" yaml:"start_sector,omitempty" cbor:"start_sector,omitempty"`
	Compression     string  `json:"compression" yaml:"compression" cbor:"compression"`
	Flags           string  `json:"flags" yaml:"flags" cbor:"flags"`
	Origin          string  `json:"origin" yaml:"origin" cbor:"origin"`
	Signature       string  `json:"signature,omitempty" yaml:"signature,omitempty" cbor:"signature,omitempty"`
	Extractable     bool    `json:"extractable" yaml:"extractable" cbor:"extractable"`
	Entropy         float64 `json:"entropy" yaml:"entropy" cbor:"entropy"`
	LikelyEncrypted bool    `json:"likely_encrypted,omitempty" yaml:"likely_encrypted,omitempty" cbor:"likely_encrypted,omitempty"`
}

func buildInfo(name string, buf []byte, h *Header, entries []Entry, scanned bool) Info {
	info := Info{
		Name:          name,
		Family:        h.Family.Name,
		Kind:          h.Family.Kind.String(),
		Size:          uint64(len(buf)),
		Version:       h.Version,
		Mode:          h.Mode,
		Flags:         h.Flags,
		DeclaredCount: h.DeclaredCount,
		Suspicious:    h.Suspicious,
		Scanned:       scanned,
		Fields:        h.Fields,
		Entries:       make([]EntryInfo, 0, len(entries)),
	}
	for _, e := range entries {
		ei := EntryInfo{
			Index:       e.Index,
			Name:        e.Name,
			ID:          e.ID,
			Offset:      e.Offset,
			StoredSize:  e.StoredSize,
			Size:        e.Size,
			StartSector: e.StartSector,
			Compression: e.Compression.String(),
			Flags:       e.Flags.String(),
			Origin:      e.Origin.String(),
			Signature:   e.Signature,
			Extractable: e.Extractable,
		}
		if e.Extractable {
			end := min(e.Offset+min(e.StoredSize, entropySample), uint64(len(buf)))
			ei.Entropy = Entropy(buf[e.Offset:end])
			ei.LikelyEncrypted = ei.Entropy > encryptedEntropy
		}
		info.Entries = append(info.Entries, ei)
	}
	return info
}

// Entropy returns the Shannon entropy of data in bits per byte.
func Entropy(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	n := float64(len(data))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
