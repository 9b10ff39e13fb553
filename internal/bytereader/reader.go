// Package bytereader provides a bounds-checked cursor over an immutable byte slice.
//
// Every read validates pos+size against the buffer length before touching
// the data, so malformed containers produce errors instead of panics.
// Byte order is passed per call because the container formats mix
// big-endian headers with little-endian tables.
package bytereader

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a read or seek would pass the end of the buffer.
var ErrOutOfBounds = errors.New("out of bounds")

// Error describes a failed read.
type Error struct {
	Op   string
	Pos  uint64
	Size uint64
	Len  uint64
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: need [0x%X, 0x%X) of 0x%X bytes", e.Op, ErrOutOfBounds, e.Pos, e.Pos+e.Size, e.Len)
}

func (e *Error) Unwrap() error {
	return ErrOutOfBounds
}

// Reader is a cursor over a byte slice. The zero value reads an empty buffer.
type Reader struct {
	buf []byte
	pos uint64
}

// New returns a Reader positioned at the start of buf.
// buf is retained and must not be modified while the Reader is in use.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total buffer length.
func (r *Reader) Len() uint64 {
	return uint64(len(r.buf))
}

// Pos returns the current cursor position.
func (r *Reader) Pos() uint64 {
	return r.pos
}

// Remaining returns the number of bytes after the cursor.
func (r *Reader) Remaining() uint64 {
	if r.pos >= r.Len() {
		return 0
	}
	return r.Len() - r.pos
}

// Seek moves the cursor to an absolute offset. Seeking to Len is allowed.
func (r *Reader) Seek(off uint64) error {
	if off > r.Len() {
		return &Error{Op: "seek", Pos: off, Len: r.Len()}
	}
	r.pos = off
	return nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n uint64) error {
	if _, err := r.take("skip", n); err != nil {
		return err
	}
	return nil
}

// Bytes returns the next n bytes and advances the cursor.
// The returned slice aliases the buffer and must be treated as immutable.
func (r *Reader) Bytes(n uint64) ([]byte, error) {
	return r.take("read bytes", n)
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take("read u8", 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 16-bit integer in the given byte order.
func (r *Reader) Uint16(order binary.ByteOrder) (uint16, error) {
	b, err := r.take("read u16", 2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// Uint32 reads a 32-bit integer in the given byte order.
func (r *Reader) Uint32(order binary.ByteOrder) (uint32, error) {
	b, err := r.take("read u32", 4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// Uint64 reads a 64-bit integer in the given byte order.
func (r *Reader) Uint64(order binary.ByteOrder) (uint64, error) {
	b, err := r.take("read u64", 8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

// UintN reads an unsigned integer of width 1, 2, 4 or 8 bytes.
func (r *Reader) UintN(width int, order binary.ByteOrder) (uint64, error) {
	switch width {
	case 1:
		v, err := r.Uint8()
		return uint64(v), err
	case 2:
		v, err := r.Uint16(order)
		return uint64(v), err
	case 4:
		v, err := r.Uint32(order)
		return uint64(v), err
	case 8:
		return r.Uint64(order)
	default:
		return 0, fmt.Errorf("read: unsupported integer width %d", width)
	}
}

// UintAt reads an integer of the given width at an absolute offset without
// moving the cursor.
func (r *Reader) UintAt(off uint64, width int, order binary.ByteOrder) (uint64, error) {
	saved := r.pos
	defer func() { r.pos = saved }()
	if err := r.Seek(off); err != nil {
		return 0, err
	}
	return r.UintN(width, order)
}

func (r *Reader) take(op string, n uint64) ([]byte, error) {
	end := r.pos + n
	if end < r.pos || end > r.Len() {
		return nil, &Error{Op: op, Pos: r.pos, Size: n, Len: r.Len()}
	}
	b := r.buf[r.pos:end:end]
	r.pos = end
	return b, nil
}
