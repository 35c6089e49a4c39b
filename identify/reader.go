package identify

import (
	"encoding/binary"

	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/internal/bitpack"
	"github.com/edsworks/eds-runtime/internal/numenc"
)

// valueReader extracts a discriminator value from a buffer. The offset is
// the position of the enclosing container; the entity offset is relative
// to it.
type valueReader interface {
	value(ent *dictionary.ConstraintEntity, te *dictionary.TypeEntry, at dictionary.Offset) (int64, error)
}

// wireReader reads discriminators from a packed stream, honoring the
// field's wire encoding. le selects the stream bit order.
type wireReader struct {
	buf []byte
	le  bool
}

func (r wireReader) value(ent *dictionary.ConstraintEntity, te *dictionary.TypeEntry, at dictionary.Offset) (int64, error) {
	nd := te.Number()
	if nd == nil {
		return 0, errors.InvalidData(errors.PhaseIdentify, []string{ent.Name}, "constraint entity is not numeric")
	}
	off := at.Bits + ent.Offset.Bits
	bits := te.Size.Bits
	if off+bits > uint32(len(r.buf))*8 {
		return 0, errors.SizeMismatch(errors.PhaseIdentify, []string{ent.Name}, int(off+bits+7)/8, len(r.buf), "bytes")
	}
	var raw uint64
	if r.le {
		raw = bitpack.GetLE(r.buf, off, bits)
	} else {
		raw = bitpack.GetBE(r.buf, off, bits)
	}
	if nd.Order == dictionary.ByteOrderLittle && bits > 8 && bits%8 == 0 {
		raw = numenc.SwapBytes(raw, bits)
	}
	if nd.BitInvert {
		raw ^= numenc.Mask(bits)
	}
	switch te.Basic {
	case dictionary.BasicSignedInt:
		v, err := numenc.DecodeInt(nd.Encoding, raw, bits)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseIdentify, errors.KindInvalidData, err, ent.Name)
		}
		return v, nil
	default:
		u, err := numenc.DecodeUint(nd.Encoding, raw, bits)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseIdentify, errors.KindInvalidData, err, ent.Name)
		}
		return int64(u), nil
	}
}

// nativeReader reads discriminators from an unpacked native buffer, laid
// out at byte offsets in host order.
type nativeReader struct {
	buf []byte
}

func (r nativeReader) value(ent *dictionary.ConstraintEntity, te *dictionary.TypeEntry, at dictionary.Offset) (int64, error) {
	if !te.Basic.IsNumber() {
		return 0, errors.InvalidData(errors.PhaseIdentify, []string{ent.Name}, "constraint entity is not numeric")
	}
	off := at.Bytes + ent.Offset.Bytes
	n := te.Size.Bytes
	if off+n > uint32(len(r.buf)) {
		return 0, errors.SizeMismatch(errors.PhaseIdentify, []string{ent.Name}, int(off+n), len(r.buf), "bytes")
	}
	b := r.buf[off : off+n]
	var raw uint64
	switch n {
	case 1:
		raw = uint64(b[0])
	case 2:
		raw = uint64(binary.NativeEndian.Uint16(b))
	case 4:
		raw = uint64(binary.NativeEndian.Uint32(b))
	case 8:
		raw = binary.NativeEndian.Uint64(b)
	default:
		return 0, errors.InvalidData(errors.PhaseIdentify, []string{ent.Name}, "unsupported native discriminator width")
	}
	if te.Basic == dictionary.BasicSignedInt {
		return signExtend(raw, n*8), nil
	}
	return int64(raw), nil
}

func signExtend(raw uint64, bits uint32) int64 {
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}
