package codec

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/registry"
)

// InitializeNativeObject prepares buf as a blank native object of h:
// everything is zeroed, fixed value entries receive their literals,
// length entries the complete object's packed byte count, and the
// constraint values of h's derivation chain are written into their
// discriminator fields. The result identifies as h when handed back to
// PackCompleteObject. Error control slots stay zero; their packed form
// is computed during the pack.
func (p *Packer) InitializeNativeObject(h edsruntime.TypeHandle, buf []byte) error {
	e, err := p.reg.Resolve(h)
	if err != nil {
		return err
	}
	if uint64(len(buf)) < uint64(e.Size.Bytes) {
		return errors.SizeMismatch(errors.PhasePack, []string{e.Name}, int(e.Size.Bytes), len(buf), "bytes")
	}
	zeroBytes(buf[:e.Size.Bytes])
	total := int64((e.Size.Bits + 7) / 8)
	if err := initValue(p.reg, e, buf, dictionary.Offset{}, total, nil, 0); err != nil {
		return err
	}
	return initConstraints(p.reg, h, buf, dictionary.Offset{}, nil, 0)
}

func initValue(reg *registry.Registry, e *dictionary.TypeEntry, buf []byte, at dictionary.Offset, total int64, path []string, depth int) error {
	switch e.Basic {
	case dictionary.BasicContainer:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhasePack, path, "nesting exceeds depth limit")
		}
		desc := e.Container()
		if desc == nil {
			return errors.InvalidData(errors.PhasePack, path, "container entry without descriptor")
		}
		if err := initEntries(reg, desc.Entries, buf, at, total, path, depth); err != nil {
			return err
		}
		return initEntries(reg, desc.TrailerEntries, buf, at, total, path, depth)
	case dictionary.BasicArray:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhasePack, path, "nesting exceeds depth limit")
		}
		ad := e.Array()
		if ad == nil {
			return errors.InvalidData(errors.PhasePack, path, "array entry without descriptor")
		}
		elem, err := reg.Resolve(ad.Element)
		if err != nil {
			return err
		}
		if elem.Basic != dictionary.BasicContainer && elem.Basic != dictionary.BasicArray {
			return nil
		}
		for i := uint32(0); i < e.NumSubElements; i++ {
			eat := dictionary.Offset{Bits: at.Bits + i*elem.Size.Bits, Bytes: at.Bytes + i*elem.Size.Bytes}
			if err := initValue(reg, elem, buf, eat, total, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func initEntries(reg *registry.Registry, entries []dictionary.FieldEntry, buf []byte, at dictionary.Offset, total int64, path []string, depth int) error {
	for i := range entries {
		fe := &entries[i]
		fat := dictionary.Offset{Bits: at.Bits + fe.Offset.Bits, Bytes: at.Bytes + fe.Offset.Bytes}
		switch fe.Kind {
		case dictionary.EntryPadding:
			continue
		case dictionary.EntryBase:
			if depth+1 >= maxNestDepth {
				return errors.InvalidData(errors.PhasePack, path, "base chain exceeds depth limit")
			}
			be, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			bd := be.Container()
			if bd == nil {
				return errors.InvalidData(errors.PhasePack, append(path, fe.Name), "base entry does not reference a container")
			}
			if err := initEntries(reg, bd.Entries, buf, fat, total, path, depth+1); err != nil {
				return err
			}
		case dictionary.EntryFixedValue:
			arg, ok := fe.Arg.(*dictionary.FixedValueArg)
			if !ok {
				return errors.InvalidData(errors.PhasePack, append(path, fe.Name), "fixed value entry without literal")
			}
			te, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := writeNativeScalar(buf, te, fat, arg.Value, append(path, fe.Name), errors.PhasePack); err != nil {
				return err
			}
		case dictionary.EntryLength:
			// The native slot holds the engineering value: the byte
			// count itself, not its calibrated wire form.
			te, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := writeNativeScalar(buf, te, fat, total, append(path, fe.Name), errors.PhasePack); err != nil {
				return err
			}
		default:
			te, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if te.Basic == dictionary.BasicContainer || te.Basic == dictionary.BasicArray {
				if err := initValue(reg, te, buf, fat, total, append(path, fe.Name), depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func initConstraints(reg *registry.Registry, h edsruntime.TypeHandle, buf []byte, at dictionary.Offset, path []string, depth int) error {
	if depth >= maxNestDepth {
		return errors.InvalidData(errors.PhasePack, path, "constraint nesting exceeds depth limit")
	}
	it, err := identify.Constraints(reg, h)
	if err != nil {
		return err
	}
	for it.Next() {
		c := it.Info()
		fat := dictionary.Offset{Bits: at.Bits + c.Offset.Bits, Bytes: at.Bytes + c.Offset.Bytes}
		if c.Kind == dictionary.ConstraintType {
			if err := initConstraints(reg, c.TypeValue(), buf, fat, append(path, c.Entity), depth+1); err != nil {
				return err
			}
			continue
		}
		te, err := reg.Resolve(c.Type)
		if err != nil {
			return err
		}
		if err := writeNativeScalar(buf, te, fat, c.Value, append(path, c.Entity), errors.PhasePack); err != nil {
			return err
		}
	}
	return nil
}

// VerifyUnpackedObject checks every fixed value entry of the native
// object in buf against its dictionary literal. Decoding stores what the
// stream carried; this pass reports where the stream disagreed with the
// dictionary.
func (u *Unpacker) VerifyUnpackedObject(h edsruntime.TypeHandle, buf []byte) error {
	e, err := u.reg.Resolve(h)
	if err != nil {
		return err
	}
	if uint64(len(buf)) < uint64(e.Size.Bytes) {
		return errors.SizeMismatch(errors.PhaseUnpack, []string{e.Name}, int(e.Size.Bytes), len(buf), "bytes")
	}
	return verifyValue(u.reg, e, buf, dictionary.Offset{}, nil, 0)
}

func verifyValue(reg *registry.Registry, e *dictionary.TypeEntry, buf []byte, at dictionary.Offset, path []string, depth int) error {
	switch e.Basic {
	case dictionary.BasicContainer:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhaseUnpack, path, "nesting exceeds depth limit")
		}
		desc := e.Container()
		if desc == nil {
			return errors.InvalidData(errors.PhaseUnpack, path, "container entry without descriptor")
		}
		if err := verifyEntries(reg, desc.Entries, buf, at, path, depth); err != nil {
			return err
		}
		return verifyEntries(reg, desc.TrailerEntries, buf, at, path, depth)
	case dictionary.BasicArray:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhaseUnpack, path, "nesting exceeds depth limit")
		}
		ad := e.Array()
		if ad == nil {
			return errors.InvalidData(errors.PhaseUnpack, path, "array entry without descriptor")
		}
		elem, err := reg.Resolve(ad.Element)
		if err != nil {
			return err
		}
		if elem.Basic != dictionary.BasicContainer && elem.Basic != dictionary.BasicArray {
			return nil
		}
		for i := uint32(0); i < e.NumSubElements; i++ {
			eat := dictionary.Offset{Bits: at.Bits + i*elem.Size.Bits, Bytes: at.Bytes + i*elem.Size.Bytes}
			if err := verifyValue(reg, elem, buf, eat, path, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyEntries(reg *registry.Registry, entries []dictionary.FieldEntry, buf []byte, at dictionary.Offset, path []string, depth int) error {
	for i := range entries {
		fe := &entries[i]
		fat := dictionary.Offset{Bits: at.Bits + fe.Offset.Bits, Bytes: at.Bytes + fe.Offset.Bytes}
		switch fe.Kind {
		case dictionary.EntryBase:
			if depth+1 >= maxNestDepth {
				return errors.InvalidData(errors.PhaseUnpack, path, "base chain exceeds depth limit")
			}
			be, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			bd := be.Container()
			if bd == nil {
				return errors.InvalidData(errors.PhaseUnpack, append(path, fe.Name), "base entry does not reference a container")
			}
			if err := verifyEntries(reg, bd.Entries, buf, fat, path, depth+1); err != nil {
				return err
			}
		case dictionary.EntryFixedValue:
			arg, ok := fe.Arg.(*dictionary.FixedValueArg)
			if !ok {
				return errors.InvalidData(errors.PhaseUnpack, append(path, fe.Name), "fixed value entry without literal")
			}
			te, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			got, err := readNativeScalar(buf, te, fat, append(path, fe.Name), errors.PhaseUnpack)
			if err != nil {
				return err
			}
			if got != arg.Value {
				return errors.New(errors.PhaseUnpack, errors.KindInvalidData).
					Path(append(path, fe.Name)...).
					Value(got).
					EdsType(te.Name).
					Detail("fixed value mismatch: stream carried %d, dictionary says %d", got, arg.Value).
					Build()
			}
		default:
			te, err := reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if te.Basic == dictionary.BasicContainer || te.Basic == dictionary.BasicArray {
				if err := verifyValue(reg, te, buf, fat, append(path, fe.Name), depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// writeNativeScalar stores an integer literal into a native scalar slot.
func writeNativeScalar(buf []byte, te *dictionary.TypeEntry, at dictionary.Offset, v int64, path []string, phase errors.Phase) error {
	n := te.Size.Bytes
	if !validScalarWidth(n) || !te.Basic.IsNumber() || te.Basic == dictionary.BasicFloat {
		return errors.InvalidData(phase, path, "engine-produced field is not an integer scalar")
	}
	if !nativeRange(te.Basic, n, v) {
		return overflowErr(phase, path, v, te, nil)
	}
	if !writeNativeUint(buf, at.Bytes, n, uint64(v)) {
		return errors.SizeMismatch(phase, path, int(at.Bytes+n), len(buf), "bytes")
	}
	return nil
}

// readNativeScalar loads an integer scalar slot back as int64.
func readNativeScalar(buf []byte, te *dictionary.TypeEntry, at dictionary.Offset, path []string, phase errors.Phase) (int64, error) {
	n := te.Size.Bytes
	if !validScalarWidth(n) || !te.Basic.IsNumber() || te.Basic == dictionary.BasicFloat {
		return 0, errors.InvalidData(phase, path, "engine-produced field is not an integer scalar")
	}
	u, ok := readNativeUint(buf, at.Bytes, n)
	if !ok {
		return 0, errors.SizeMismatch(phase, path, int(at.Bytes+n), len(buf), "bytes")
	}
	if te.Basic == dictionary.BasicSignedInt {
		return signExtendNative(u, n), nil
	}
	return int64(u), nil
}
