package packet

import "errors"

// ErrShortPackedGUID is returned when the payload ends inside a packed GUID.
var ErrShortPackedGUID = errors.New("packed guid truncated")

// AppendPackedGUID appends the packed form of g to dst: one mask byte where
// bit i means byte i of g is non-zero, then those bytes in ascending order.
// The zero GUID packs to a single 0x00.
func AppendPackedGUID(dst []byte, g uint64) []byte {
	maskAt := len(dst)
	dst = append(dst, 0)
	var mask byte
	for i := 0; i < 8; i++ {
		b := byte(g >> (8 * i))
		if b != 0 {
			mask |= 1 << i
			dst = append(dst, b)
		}
	}
	dst[maskAt] = mask
	return dst
}

// UnpackGUID decodes a packed GUID from src, returning the value and the
// number of bytes consumed.
func UnpackGUID(src []byte) (uint64, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrShortPackedGUID
	}
	mask := src[0]
	n := 1
	var g uint64
	for i := 0; i < 8; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if n >= len(src) {
			return 0, 0, ErrShortPackedGUID
		}
		g |= uint64(src[n]) << (8 * i)
		n++
	}
	return g, n, nil
}

// PackedGUIDSize returns the encoded length of g.
func PackedGUIDSize(g uint64) int {
	n := 1
	for ; g != 0; g >>= 8 {
		if g&0xff != 0 {
			n++
		}
	}
	return n
}
