package codec

import (
	"hash/crc32"

	"github.com/edsworks/eds-runtime/dictionary"
)

// errctlCompute returns the error control sum of data under alg.
// ErrCtlNone and unknown algorithms sum to zero.
func errctlCompute(alg dictionary.ErrCtlAlgorithm, data []byte) uint64 {
	switch alg {
	case dictionary.ErrCtlChecksumXOR:
		var x byte
		for _, b := range data {
			x ^= b
		}
		return uint64(x)
	case dictionary.ErrCtlCRC8:
		return uint64(crc8(data))
	case dictionary.ErrCtlCRC16CCITT:
		return uint64(crc16ccitt(data))
	case dictionary.ErrCtlCRC32:
		return uint64(crc32.ChecksumIEEE(data))
	}
	return 0
}

// crc8 is plain CRC-8, polynomial 0x07, zero start value.
func crc8(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// crc16ccitt is CRC-16/CCITT with start value 0xFFFF, the frame check
// sequence of CCSDS transfer frames.
func crc16ccitt(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
