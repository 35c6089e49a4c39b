// Package identify resolves which derivative of a base container a buffer
// holds, by walking the precompiled decision tree the dictionary carries.
//
// Identification is deterministic: the same dictionary and buffer always
// produce the same answer. "No derivative matched" is a normal outcome,
// not an error; the lookup functions return the base handle and a false
// flag for it. Errors are reserved for unresolvable handles, undersized
// buffers, and malformed identification tables.
package identify

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/registry"
)

// maxIdentDepth bounds nested type-condition recursion.
const maxIdentDepth = 16

// LookupDerivedType identifies the most derived type of a packed buffer.
// It walks the decision tree of the base container, reading discriminator
// fields from the packed stream, and repeats the walk on each matched
// derivative until no deeper match exists. A handle that is not a
// container identifies as itself.
func LookupDerivedType(reg *registry.Registry, base edsruntime.TypeHandle, packed []byte) (edsruntime.TypeHandle, bool, error) {
	e, err := reg.Resolve(base)
	if err != nil {
		return 0, false, err
	}
	r := wireReader{buf: packed, le: e.Flags&dictionary.FlagPackedLE != 0}
	return descend(reg, base, e, dictionary.Offset{}, r, 0)
}

// LookupNative identifies the most derived type of a native buffer. The
// pack engine uses this to honor discriminator fields the caller set
// before packing.
func LookupNative(reg *registry.Registry, base edsruntime.TypeHandle, native []byte) (edsruntime.TypeHandle, bool, error) {
	e, err := reg.Resolve(base)
	if err != nil {
		return 0, false, err
	}
	return descend(reg, base, e, dictionary.Offset{}, nativeReader{buf: native}, 0)
}

// DerivedTypeInfo summarizes the derivation closure of a type.
type DerivedTypeInfo struct {
	MaxSize        dictionary.SizeInfo
	NumDerivatives int
}

// GetDerivedInfo returns the maximum size over a container and every type
// derived from it, and the count of its direct derivatives. Types without
// derivatives report their own size.
func GetDerivedInfo(reg *registry.Registry, base edsruntime.TypeHandle) (DerivedTypeInfo, error) {
	e, err := reg.Resolve(base)
	if err != nil {
		return DerivedTypeInfo{}, err
	}
	desc := e.Container()
	if desc == nil {
		return DerivedTypeInfo{MaxSize: e.Size}, nil
	}
	return DerivedTypeInfo{MaxSize: desc.MaxSize, NumDerivatives: len(desc.Derivatives)}, nil
}

// GetDerivedTypeById returns a direct derivative by its flat enumeration
// index, independent of the decision tree.
func GetDerivedTypeById(reg *registry.Registry, base edsruntime.TypeHandle, index int) (edsruntime.TypeHandle, error) {
	e, err := reg.Resolve(base)
	if err != nil {
		return 0, err
	}
	desc := e.Container()
	n := 0
	if desc != nil {
		n = len(desc.Derivatives)
	}
	if index < 0 || index >= n {
		return 0, errors.OutOfBounds(errors.PhaseIdentify, []string{e.Name}, index, n)
	}
	return desc.Derivatives[index].Type, nil
}

// IsDerivedFrom reports whether derived reaches base through its base
// chain. Every type derives from itself.
func IsDerivedFrom(reg *registry.Registry, derived, base edsruntime.TypeHandle) bool {
	for h := derived; ; {
		if h.Similar(base) {
			return true
		}
		e, err := reg.Resolve(h)
		if err != nil {
			return false
		}
		desc := e.Container()
		if desc == nil || desc.Base == 0 {
			return false
		}
		h = desc.Base
	}
}

// descend iterates the tree walk over successive derivative levels until
// no further match exists.
func descend(reg *registry.Registry, h edsruntime.TypeHandle, e *dictionary.TypeEntry, at dictionary.Offset, r valueReader, depth int) (edsruntime.TypeHandle, bool, error) {
	matched := false
	for {
		d, ok, err := walk(reg, h, e, at, r, depth)
		if err != nil {
			return h, matched, err
		}
		if !ok {
			return h, matched, nil
		}
		matched = true
		h = d
		e, err = reg.Resolve(h)
		if err != nil {
			return h, matched, err
		}
	}
}

// walk runs one container's decision tree and returns the matched direct
// derivative. Bounds and step guards turn malformed tables into errors.
func walk(reg *registry.Registry, base edsruntime.TypeHandle, e *dictionary.TypeEntry, at dictionary.Offset, r valueReader, depth int) (edsruntime.TypeHandle, bool, error) {
	desc := e.Container()
	if desc == nil || desc.IdentBase == 0 || len(desc.Derivatives) == 0 {
		return base, false, nil
	}
	seq := desc.IdentSequence

	var curEnt *dictionary.ConstraintEntity
	var curType *dictionary.TypeEntry
	idx := desc.IdentBase
	for steps := 0; ; steps++ {
		if idx == 0 {
			return base, false, nil
		}
		if int(idx) >= len(seq) {
			return 0, false, identTableErr(e, "node %d out of range", idx)
		}
		if steps > len(seq) {
			return 0, false, identTableErr(e, "sequence does not terminate")
		}
		n := &seq[idx]
		switch n.Op {
		case dictionary.IdentEntityLocation:
			if int(n.RefIdx) >= len(desc.ConstraintEntities) {
				return 0, false, identTableErr(e, "entity reference %d out of range", n.RefIdx)
			}
			curEnt = &desc.ConstraintEntities[n.RefIdx]
			te, err := reg.Resolve(curEnt.Type)
			if err != nil {
				return 0, false, err
			}
			curType = te
			idx = n.NextGreater

		case dictionary.IdentValueCondition, dictionary.IdentRangeCondition:
			if curEnt == nil {
				return 0, false, identTableErr(e, "condition before entity location")
			}
			if int(n.RefIdx) >= len(desc.Values) {
				return 0, false, identTableErr(e, "value reference %d out of range", n.RefIdx)
			}
			v, err := r.value(curEnt, curType, at)
			if err != nil {
				return 0, false, err
			}
			pivot := desc.Values[n.RefIdx]
			if n.Op == dictionary.IdentValueCondition {
				if v == pivot {
					idx = n.NextGreater
				} else {
					idx = n.NextLess
				}
			} else {
				if v <= pivot {
					idx = n.NextLess
				} else {
					idx = n.NextGreater
				}
			}

		case dictionary.IdentTypeCondition:
			if curEnt == nil {
				return 0, false, identTableErr(e, "type condition before entity location")
			}
			if int(n.RefIdx) >= len(desc.Values) {
				return 0, false, identTableErr(e, "value reference %d out of range", n.RefIdx)
			}
			if depth >= maxIdentDepth {
				return 0, false, identTableErr(e, "type condition nesting exceeds depth limit")
			}
			subAt := dictionary.Offset{Bits: at.Bits + curEnt.Offset.Bits, Bytes: at.Bytes + curEnt.Offset.Bytes}
			sub, _, err := descend(reg, curEnt.Type, curType, subAt, r, depth+1)
			if err != nil {
				return 0, false, err
			}
			if int64(sub.Word()) == desc.Values[n.RefIdx] {
				idx = n.NextGreater
			} else {
				idx = n.NextLess
			}

		case dictionary.IdentResult:
			if int(n.RefIdx) >= len(desc.Derivatives) {
				return 0, false, identTableErr(e, "result reference %d out of range", n.RefIdx)
			}
			return desc.Derivatives[n.RefIdx].Type, true, nil

		default:
			return 0, false, identTableErr(e, "unknown op %d", uint8(n.Op))
		}
	}
}

func identTableErr(e *dictionary.TypeEntry, format string, args ...any) error {
	return errors.New(errors.PhaseIdentify, errors.KindInvalidData).
		Path(e.Name).
		Detail("malformed identification table: "+format, args...).
		Build()
}
