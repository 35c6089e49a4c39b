package codec

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/internal/bitpack"
	"github.com/edsworks/eds-runtime/internal/numenc"
	"github.com/edsworks/eds-runtime/registry"
)

// maxNestDepth bounds base chains and sub-container recursion.
const maxNestDepth = 64

// Packer serializes native objects into packed streams.
type Packer struct {
	reg *registry.Registry
}

// NewPacker returns a Packer over a registry. The packer is stateless and
// safe for concurrent use.
func NewPacker(reg *registry.Registry) *Packer {
	return &Packer{reg: reg}
}

// Unpacker decodes packed streams into native objects.
type Unpacker struct {
	reg *registry.Registry
}

// NewUnpacker returns an Unpacker over a registry. The unpacker is
// stateless and safe for concurrent use.
func NewUnpacker(reg *registry.Registry) *Unpacker {
	return &Unpacker{reg: reg}
}

// prefixEnd is the internal stop signal of partial operations: the walk
// reached the first entry that does not fit the supplied prefix.
type prefixEnd struct{}

func (*prefixEnd) Error() string { return "prefix limit reached" }

var errPrefixEnd = &prefixEnd{}

// fixup is a deferred engine-produced field. Lengths and error control
// values can only be settled after the walk placed everything else; on
// unpack the same record carries error control entries pending
// verification.
type fixup struct {
	kind dictionary.EntryKind
	name string
	at   dictionary.Offset
	te   *dictionary.TypeEntry
	arg  dictionary.HandlerArg
}

// Pool limits to prevent memory bloat.
const (
	poolMaxFixups  = 256
	poolInitFixups = 8
)

var fixupPool = sync.Pool{
	New: func() any {
		f := make([]fixup, 0, poolInitFixups)
		return &f
	},
}

func getFixups() *[]fixup {
	return fixupPool.Get().(*[]fixup)
}

func putFixups(f *[]fixup) {
	if f == nil || cap(*f) > poolMaxFixups {
		return // reject oversized
	}
	*f = (*f)[:0]
	fixupPool.Put(f)
}

func putBits(dst []byte, le bool, off, width uint32, v uint64) {
	if le {
		bitpack.PutLE(dst, off, width, v)
	} else {
		bitpack.PutBE(dst, off, width, v)
	}
}

func getBits(src []byte, le bool, off, width uint32) uint64 {
	if le {
		return bitpack.GetLE(src, off, width)
	}
	return bitpack.GetBE(src, off, width)
}

// orderAdjust applies the declared byte order and bit inversion to an
// encoded pattern entering the stream. Byte reversal and inversion are
// involutions, so the same call undoes them on the way out. ok is false
// for a little-endian field whose width is not a whole byte count.
func orderAdjust(nd *dictionary.NumberDescriptor, bits uint32, raw uint64) (uint64, bool) {
	if nd.Order == dictionary.ByteOrderLittle && bits > 8 {
		if bits%8 != 0 {
			return 0, false
		}
		raw = numenc.SwapBytes(raw, bits)
	}
	if nd.BitInvert {
		raw ^= numenc.Mask(bits)
	}
	return raw, true
}

// readNativeUint loads an n-byte host-order scalar. n must be 1, 2, 4,
// or 8; the caller validates widths.
func readNativeUint(buf []byte, off, n uint32) (uint64, bool) {
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return 0, false
	}
	b := buf[off : off+n]
	switch n {
	case 1:
		return uint64(b[0]), true
	case 2:
		return uint64(binary.NativeEndian.Uint16(b)), true
	case 4:
		return uint64(binary.NativeEndian.Uint32(b)), true
	case 8:
		return binary.NativeEndian.Uint64(b), true
	}
	return 0, false
}

// writeNativeUint stores the low n bytes of v in host order.
func writeNativeUint(buf []byte, off, n uint32, v uint64) bool {
	if uint64(off)+uint64(n) > uint64(len(buf)) {
		return false
	}
	b := buf[off : off+n]
	switch n {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(b, uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(b, uint32(v))
	case 8:
		binary.NativeEndian.PutUint64(b, v)
	default:
		return false
	}
	return true
}

func signExtendNative(u uint64, n uint32) int64 {
	if n >= 8 {
		return int64(u)
	}
	shift := 64 - n*8
	return int64(u<<shift) >> shift
}

func validScalarWidth(n uint32) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

// nativeRange reports whether v is representable in an n-byte native
// field of the given basic type.
func nativeRange(basic dictionary.BasicType, n uint32, v int64) bool {
	if n >= 8 {
		return true
	}
	if basic == dictionary.BasicSignedInt {
		lim := int64(1) << (n*8 - 1)
		return v >= -lim && v < lim
	}
	return v >= 0 && uint64(v) <= numenc.Mask(n*8)
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

func overflowErr(phase errors.Phase, path []string, v any, e *dictionary.TypeEntry, cause error) error {
	b := errors.New(phase, errors.KindOverflow).Path(path...).Value(v).EdsType(e.Name)
	if cause != nil {
		b = b.Cause(cause)
	}
	return b.Build()
}

func unsupportedOrder(phase errors.Phase, path []string) error {
	return errors.Unsupported(phase,
		"little-endian byte order on non-octet field "+joinPath(path))
}
