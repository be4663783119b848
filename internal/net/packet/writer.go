package packet

import (
	"encoding/binary"
	"math"
)

// Writer builds a server packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

// WriteDU writes 4 bytes little-endian unsigned.
func (w *Writer) WriteDU(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteQ writes 8 bytes little-endian.
func (w *Writer) WriteQ(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteF writes an IEEE-754 float32.
func (w *Writer) WriteF(v float32) {
	w.WriteDU(math.Float32bits(v))
}

// WritePackedGUID writes a presence byte followed by only the non-zero bytes
// of g, lowest byte first.
func (w *Writer) WritePackedGUID(g uint64) {
	w.buf = AppendPackedGUID(w.buf, g)
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reserve appends n zero bytes and returns their offset for PatchD/PatchC.
func (w *Writer) Reserve(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

// PatchDU overwrites 4 bytes at off.
func (w *Writer) PatchDU(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

// PatchC overwrites 1 byte at off.
func (w *Writer) PatchC(off int, v byte) {
	w.buf[off] = v
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset truncates the writer for reuse.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}
