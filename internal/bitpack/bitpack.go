// Package bitpack reads and writes bit fields in byte streams.
//
// Big-endian streams number bits from the most significant bit of byte 0:
// stream bit 0 is bit 7 of the first byte. Little-endian streams number
// from the least significant bit of byte 0. Field widths are limited to
// 64 bits.
//
// The functions do not bounds-check: callers guarantee the stream holds
// off+width bits and pre-validate widths against their descriptors.
package bitpack

// Mask returns the all-ones pattern of the given width. Width 64 and
// above saturates to a full mask.
func Mask(width uint32) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// PutBE writes the low width bits of v at bit offset off, most
// significant bit first.
func PutBE(dst []byte, off, width uint32, v uint64) {
	v &= Mask(width)
	if off&7 == 0 && width&7 == 0 {
		for i := uint32(0); i < width/8; i++ {
			dst[off/8+i] = byte(v >> (width - 8 - i*8))
		}
		return
	}
	for width > 0 {
		n := 8 - off&7
		if n > width {
			n = width
		}
		chunk := byte(v>>(width-n)) & byte(Mask(n))
		shift := 8 - off&7 - n
		dst[off>>3] &^= byte(Mask(n)) << shift
		dst[off>>3] |= chunk << shift
		off += n
		width -= n
	}
}

// GetBE reads width bits at bit offset off, most significant bit first.
func GetBE(src []byte, off, width uint32) uint64 {
	if off&7 == 0 && width&7 == 0 {
		var v uint64
		for i := uint32(0); i < width/8; i++ {
			v = v<<8 | uint64(src[off/8+i])
		}
		return v
	}
	var v uint64
	for width > 0 {
		n := 8 - off&7
		if n > width {
			n = width
		}
		shift := 8 - off&7 - n
		chunk := (src[off>>3] >> shift) & byte(Mask(n))
		v = v<<n | uint64(chunk)
		off += n
		width -= n
	}
	return v
}

// PutLE writes the low width bits of v at bit offset off, least
// significant bit first.
func PutLE(dst []byte, off, width uint32, v uint64) {
	v &= Mask(width)
	for width > 0 {
		n := 8 - off&7
		if n > width {
			n = width
		}
		chunk := byte(v) & byte(Mask(n))
		dst[off>>3] &^= byte(Mask(n)) << (off & 7)
		dst[off>>3] |= chunk << (off & 7)
		v >>= n
		off += n
		width -= n
	}
}

// GetLE reads width bits at bit offset off, least significant bit first.
func GetLE(src []byte, off, width uint32) uint64 {
	var v uint64
	var got uint32
	for got < width {
		n := 8 - off&7
		if n > width-got {
			n = width - got
		}
		chunk := (src[off>>3] >> (off & 7)) & byte(Mask(n))
		v |= uint64(chunk) << got
		off += n
		got += n
	}
	return v
}

// CopyToBits writes a byte run at a bit offset, each byte most
// significant bit first. Byte-aligned runs degrade to copy.
func CopyToBits(dst []byte, off uint32, src []byte) {
	if off&7 == 0 {
		copy(dst[off>>3:], src)
		return
	}
	for _, b := range src {
		PutBE(dst, off, 8, uint64(b))
		off += 8
	}
}

// CopyFromBits fills dst with the byte run starting at a bit offset.
func CopyFromBits(dst []byte, src []byte, off uint32) {
	if off&7 == 0 {
		copy(dst, src[off>>3:off>>3+uint32(len(dst))])
		return
	}
	for i := range dst {
		dst[i] = byte(GetBE(src, off, 8))
		off += 8
	}
}
