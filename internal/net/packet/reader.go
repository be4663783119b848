package packet

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortRead is recorded when a read runs past the end of the payload.
var ErrShortRead = errors.New("packet truncated")

// Reader reads packet fields from a payload. Reads past the end return zero
// values and record ErrShortRead, which callers check once via Err.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader reads a client payload. Byte 0 is always the opcode.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

// NewRawReader reads from offset 0.
func NewRawReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) short() {
	if r.err == nil {
		r.err = ErrShortRead
	}
	r.off = len(r.data)
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if r.off >= len(r.data) {
		r.short()
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if r.off+2 > len(r.data) {
		r.short()
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	return int32(r.ReadDU())
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	if r.off+4 > len(r.data) {
		r.short()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if r.off+8 > len(r.data) {
		r.short()
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF reads an IEEE-754 float32.
func (r *Reader) ReadF() float32 {
	return math.Float32frombits(r.ReadDU())
}

// ReadPackedGUID reads a packed GUID.
func (r *Reader) ReadPackedGUID() uint64 {
	if r.off >= len(r.data) {
		r.short()
		return 0
	}
	g, n, err := UnpackGUID(r.data[r.off:])
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		r.off = len(r.data)
		return 0
	}
	r.off += n
	return g
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if r.off+n > len(r.data) {
		remaining := r.data[r.off:]
		r.short()
		return remaining
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error {
	return r.err
}
