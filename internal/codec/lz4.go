package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/pup/internal/sizing"
)

// LZ4Magic starts every LZ4 frame.
var LZ4Magic = []byte{0x04, 0x22, 0x4D, 0x18}

// LZ4FrameLen walks the frame descriptor and data blocks of the LZ4 frame at
// src[0] and returns the frame length in bytes.
func LZ4FrameLen(src []byte) (uint64, error) {
	if len(src) < 7 || [4]byte(src[:4]) != [4]byte(LZ4Magic) {
		return 0, fmt.Errorf("%w: lz4 magic", errFrame)
	}
	flg := src[4]
	if flg>>6 != 1 {
		return 0, fmt.Errorf("%w: lz4 version %d", errFrame, flg>>6)
	}
	blockChecksum := flg&0x10 != 0
	contentSize := flg&0x08 != 0
	contentChecksum := flg&0x04 != 0
	dictID := flg&0x01 != 0

	pos := uint64(6) // magic, FLG, BD
	if contentSize {
		pos += 8
	}
	if dictID {
		pos += 4
	}
	pos++ // header checksum

	for {
		raw, ok := sizing.Range(src, pos, 4)
		if !ok {
			return 0, fmt.Errorf("%w: lz4 block header at 0x%X", errFrame, pos)
		}
		pos += 4
		size := uint64(binary.LittleEndian.Uint32(raw) & 0x7FFFFFFF)
		if size == 0 {
			break
		}
		if blockChecksum {
			size += 4
		}
		end, ok := sizing.AddUint64(pos, size)
		if !ok || end > uint64(len(src)) {
			return 0, fmt.Errorf("%w: lz4 block exceeds input", errFrame)
		}
		pos = end
	}
	if contentChecksum {
		pos += 4
	}
	if pos > uint64(len(src)) {
		return 0, fmt.Errorf("%w: lz4 checksum exceeds input", errFrame)
	}
	return pos, nil
}
