package codec

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/registry"
)

// SwapInPlace reverses the byte order of every multi-byte scalar in the
// native object in buf, converting it between host byte orders. Byte
// fields and strings are left untouched; padding has no native bytes.
// Swapping twice restores the original buffer.
func SwapInPlace(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte) error {
	e, err := reg.Resolve(h)
	if err != nil {
		return err
	}
	if uint64(len(buf)) < uint64(e.Size.Bytes) {
		return errors.SizeMismatch(errors.PhaseSwap, []string{e.Name}, int(e.Size.Bytes), len(buf), "bytes")
	}
	return swapValue(reg, e, buf, 0, nil, 0)
}

// ByteSwap reverses b in place.
func ByteSwap(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func swapValue(reg *registry.Registry, e *dictionary.TypeEntry, buf []byte, off uint32, path []string, depth int) error {
	switch e.Basic {
	case dictionary.BasicSignedInt, dictionary.BasicUnsignedInt, dictionary.BasicFloat:
		n := e.Size.Bytes
		if n <= 1 {
			return nil
		}
		if uint64(off)+uint64(n) > uint64(len(buf)) {
			return errors.SizeMismatch(errors.PhaseSwap, path, int(off+n), len(buf), "bytes")
		}
		ByteSwap(buf[off : off+n])
	case dictionary.BasicArray:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhaseSwap, path, "nesting exceeds depth limit")
		}
		ad := e.Array()
		if ad == nil {
			return errors.InvalidData(errors.PhaseSwap, path, "array entry without descriptor")
		}
		elem, err := reg.Resolve(ad.Element)
		if err != nil {
			return err
		}
		for i := uint32(0); i < e.NumSubElements; i++ {
			if err := swapValue(reg, elem, buf, off+i*elem.Size.Bytes, path, depth+1); err != nil {
				return err
			}
		}
	case dictionary.BasicContainer:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhaseSwap, path, "nesting exceeds depth limit")
		}
		desc := e.Container()
		if desc == nil {
			return errors.InvalidData(errors.PhaseSwap, path, "container entry without descriptor")
		}
		if err := swapEntries(reg, desc.Entries, buf, off, path, depth); err != nil {
			return err
		}
		return swapEntries(reg, desc.TrailerEntries, buf, off, path, depth)
	}
	return nil
}

func swapEntries(reg *registry.Registry, entries []dictionary.FieldEntry, buf []byte, off uint32, path []string, depth int) error {
	for i := range entries {
		fe := &entries[i]
		if !fe.Kind.HasNative() {
			continue
		}
		if fe.Kind == dictionary.EntryBase {
			if depth+1 >= maxNestDepth {
				return errors.InvalidData(errors.PhaseSwap, path, "base chain exceeds depth limit")
			}
			be, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			bd := be.Container()
			if bd == nil {
				return errors.InvalidData(errors.PhaseSwap, append(path, fe.Name), "base entry does not reference a container")
			}
			if err := swapEntries(reg, bd.Entries, buf, off+fe.Offset.Bytes, path, depth+1); err != nil {
				return err
			}
			continue
		}
		te, err := reg.Resolve(fe.Type)
		if err != nil {
			return err
		}
		if err := swapValue(reg, te, buf, off+fe.Offset.Bytes, append(path, fe.Name), depth+1); err != nil {
			return err
		}
	}
	return nil
}
