package codec

import (
	"math"
	"sort"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/internal/bitpack"
	"github.com/edsworks/eds-runtime/internal/numenc"
	"github.com/edsworks/eds-runtime/registry"
)

// unpackState carries one unpack operation over caller-owned buffers.
type unpackState struct {
	reg      *registry.Registry
	dst      []byte // native out
	src      []byte // packed in
	le       bool   // stream bit order
	bitLimit uint32 // readable wire prefix
	partial  bool
	fixups   *[]fixup // error control entries pending verification
}

// UnpackCompleteObject decodes the packed stream in src into the native
// object in dst. When h is a container with derivatives, the stream's
// own discriminator values select the most derived type, which is
// decoded in full and returned. Error control entries are verified after
// the decode completes: on mismatch the returned handle and dst are
// still valid and the error reports the stored and computed sums.
func (u *Unpacker) UnpackCompleteObject(h edsruntime.TypeHandle, dst, src []byte) (edsruntime.TypeHandle, error) {
	e, err := u.reg.Resolve(h)
	if err != nil {
		return 0, err
	}
	final, fe := h, e
	if e.Basic == dictionary.BasicContainer {
		d, matched, err := identify.LookupDerivedType(u.reg, h, src)
		if err != nil {
			return 0, err
		}
		if matched {
			final = d
			if fe, err = u.reg.Resolve(final); err != nil {
				return 0, err
			}
		} else {
			debugf("unpack %s: no derivative identified, decoding base", e.Name)
		}
	}
	if uint64(len(src))*8 < uint64(fe.Size.Bits) {
		return 0, errors.SizeMismatch(errors.PhaseUnpack, []string{fe.Name}, int(fe.Size.Bits), len(src)*8, "bits")
	}
	if uint64(len(dst)) < uint64(fe.Size.Bytes) {
		return 0, errors.SizeMismatch(errors.PhaseUnpack, []string{fe.Name}, int(fe.Size.Bytes), len(dst), "bytes")
	}
	zeroBytes(dst[:fe.Size.Bytes])

	fixups := getFixups()
	defer putFixups(fixups)
	st := &unpackState{
		reg:      u.reg,
		dst:      dst,
		src:      src,
		le:       fe.Flags&dictionary.FlagPackedLE != 0,
		bitLimit: fe.Size.Bits,
		fixups:   fixups,
	}
	if err := st.unpackValue(fe, nil, dictionary.Offset{}, nil, 0); err != nil {
		return 0, err
	}
	return final, st.verifySums()
}

// UnpackPartialObject decodes the leading entries of h that fit both the
// packed prefix in src and the native prefix in dst, stopping at the
// first entry that does not. No derivative identification takes place.
// Error control entries inside the prefix are still verified.
func (u *Unpacker) UnpackPartialObject(h edsruntime.TypeHandle, dst, src []byte) (edsruntime.TypeHandle, error) {
	e, err := u.reg.Resolve(h)
	if err != nil {
		return 0, err
	}
	limit := uint64(len(src)) * 8
	if limit > uint64(e.Size.Bits) {
		limit = uint64(e.Size.Bits)
	}
	nb := uint64(e.Size.Bytes)
	if nb > uint64(len(dst)) {
		nb = uint64(len(dst))
	}
	zeroBytes(dst[:nb])

	fixups := getFixups()
	defer putFixups(fixups)
	st := &unpackState{
		reg:      u.reg,
		dst:      dst,
		src:      src,
		le:       e.Flags&dictionary.FlagPackedLE != 0,
		bitLimit: uint32(limit),
		partial:  true,
		fixups:   fixups,
	}
	if err := st.unpackValue(e, nil, dictionary.Offset{}, nil, 0); err != nil && err != errPrefixEnd {
		return 0, err
	}
	return h, st.verifySums()
}

// srcOver guards the wire extent of one field against the readable
// prefix.
func (st *unpackState) srcOver(off, bits uint32, path []string) error {
	if uint64(off)+uint64(bits) <= uint64(st.bitLimit) {
		return nil
	}
	if st.partial {
		return errPrefixEnd
	}
	return errors.SizeMismatch(errors.PhaseUnpack, path, int(off+bits), int(st.bitLimit), "bits")
}

// nativeOver guards the native extent of one field.
func (st *unpackState) nativeOver(off, n uint32, path []string) error {
	if uint64(off)+uint64(n) <= uint64(len(st.dst)) {
		return nil
	}
	if st.partial {
		return errPrefixEnd
	}
	return errors.SizeMismatch(errors.PhaseUnpack, path, int(off+n), len(st.dst), "bytes")
}

func (st *unpackState) unpackValue(e *dictionary.TypeEntry, arg dictionary.HandlerArg, at dictionary.Offset, path []string, depth int) error {
	switch e.Basic {
	case dictionary.BasicSignedInt, dictionary.BasicUnsignedInt, dictionary.BasicFloat:
		return st.unpackNumber(e, arg, at, path)
	case dictionary.BasicBinary:
		return st.unpackBinary(e, at, path)
	case dictionary.BasicArray:
		return st.unpackArray(e, at, path, depth)
	case dictionary.BasicContainer:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhaseUnpack, path, "nesting exceeds depth limit")
		}
		desc := e.Container()
		if desc == nil {
			return errors.InvalidData(errors.PhaseUnpack, path, "container entry without descriptor")
		}
		if err := st.unpackEntries(desc.Entries, at, path, depth); err != nil {
			return err
		}
		return st.unpackEntries(desc.TrailerEntries, at, path, depth)
	}
	return errors.InvalidData(errors.PhaseUnpack, path, "type cannot be decoded")
}

func (st *unpackState) unpackEntries(entries []dictionary.FieldEntry, at dictionary.Offset, path []string, depth int) error {
	for i := range entries {
		fe := &entries[i]
		fat := dictionary.Offset{Bits: at.Bits + fe.Offset.Bits, Bytes: at.Bytes + fe.Offset.Bytes}
		switch fe.Kind {
		case dictionary.EntryPadding:
			continue
		case dictionary.EntryBase:
			if depth+1 >= maxNestDepth {
				return errors.InvalidData(errors.PhaseUnpack, path, "base chain exceeds depth limit")
			}
			be, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			bd := be.Container()
			if bd == nil {
				return errors.InvalidData(errors.PhaseUnpack, append(path, fe.Name), "base entry does not reference a container")
			}
			if err := st.unpackEntries(bd.Entries, fat, path, depth+1); err != nil {
				return err
			}
		case dictionary.EntryFixedValue:
			// The stored value decodes verbatim; VerifyUnpackedObject
			// checks it against the literal.
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.unpackNumber(te, nil, fat, append(path, fe.Name)); err != nil {
				return err
			}
		case dictionary.EntryErrorControl:
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.unpackNumber(te, nil, fat, append(path, fe.Name)); err != nil {
				return err
			}
			*st.fixups = append(*st.fixups, fixup{kind: fe.Kind, name: fe.Name, at: fat, te: te, arg: fe.Arg})
		default:
			// Length entries decode through their calibrator like any
			// other calibrated number.
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.unpackValue(te, fe.Arg, fat, append(path, fe.Name), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *unpackState) unpackNumber(e *dictionary.TypeEntry, arg dictionary.HandlerArg, at dictionary.Offset, path []string) error {
	bits := e.Size.Bits
	if bits == 0 || bits > 64 {
		return errors.InvalidData(errors.PhaseUnpack, path, "numeric field width outside 1..64 bits")
	}
	if err := st.srcOver(at.Bits, bits, path); err != nil {
		return err
	}
	n := e.Size.Bytes
	if !validScalarWidth(n) {
		return errors.InvalidData(errors.PhaseUnpack, path, "unsupported native scalar width")
	}
	if err := st.nativeOver(at.Bytes, n, path); err != nil {
		return err
	}
	nd := e.Number()
	if nd == nil {
		return errors.InvalidData(errors.PhaseUnpack, path, "numeric entry without number descriptor")
	}

	raw := getBits(st.src, st.le, at.Bits, bits)
	adj, ok := orderAdjust(nd, bits, raw)
	if !ok {
		return unsupportedOrder(errors.PhaseUnpack, path)
	}

	var out uint64
	switch e.Basic {
	case dictionary.BasicUnsignedInt:
		v, err := numenc.DecodeUint(nd.Encoding, adj, bits)
		if err != nil {
			return errors.Wrap(errors.PhaseUnpack, errors.KindInvalidData, err, joinPath(path))
		}
		if c, ok := arg.(*dictionary.CalibratorArg); ok {
			eng := c.Calibrator.Forward(int64(v))
			if eng < 0 {
				return overflowErr(errors.PhaseUnpack, path, eng, e, nil)
			}
			v = uint64(eng)
		}
		if n < 8 && v > numenc.Mask(n*8) {
			return overflowErr(errors.PhaseUnpack, path, v, e, nil)
		}
		out = v
	case dictionary.BasicSignedInt:
		v, err := numenc.DecodeInt(nd.Encoding, adj, bits)
		if err != nil {
			return errors.Wrap(errors.PhaseUnpack, errors.KindInvalidData, err, joinPath(path))
		}
		if c, ok := arg.(*dictionary.CalibratorArg); ok {
			v = c.Calibrator.Forward(v)
		}
		if !nativeRange(dictionary.BasicSignedInt, n, v) {
			return overflowErr(errors.PhaseUnpack, path, v, e, nil)
		}
		out = uint64(v)
	default:
		f, err := numenc.DecodeFloat(nd.Encoding, adj, bits)
		if err != nil {
			return errors.Wrap(errors.PhaseUnpack, errors.KindInvalidData, err, joinPath(path))
		}
		if n == 4 {
			out = uint64(math.Float32bits(float32(f)))
		} else {
			out = math.Float64bits(f)
		}
	}
	writeNativeUint(st.dst, at.Bytes, n, out)
	return nil
}

func (st *unpackState) unpackBinary(e *dictionary.TypeEntry, at dictionary.Offset, path []string) error {
	bits := e.Size.Bits
	if bits%8 != 0 {
		return errors.InvalidData(errors.PhaseUnpack, path, "byte field width is not octet aligned")
	}
	if err := st.srcOver(at.Bits, bits, path); err != nil {
		return err
	}
	n := bits / 8
	if err := st.nativeOver(at.Bytes, n, path); err != nil {
		return err
	}
	if st.le && at.Bits%8 != 0 {
		return errors.Unsupported(errors.PhaseUnpack, "unaligned byte field in little-endian stream at "+joinPath(path))
	}
	// Strings come back at full declared width, embedded NULs included.
	bitpack.CopyFromBits(st.dst[at.Bytes:at.Bytes+n], st.src, at.Bits)
	return nil
}

func (st *unpackState) unpackArray(e *dictionary.TypeEntry, at dictionary.Offset, path []string, depth int) error {
	if depth >= maxNestDepth {
		return errors.InvalidData(errors.PhaseUnpack, path, "nesting exceeds depth limit")
	}
	ad := e.Array()
	if ad == nil {
		return errors.InvalidData(errors.PhaseUnpack, path, "array entry without descriptor")
	}
	elem, err := st.reg.Resolve(ad.Element)
	if err != nil {
		return err
	}
	for i := uint32(0); i < e.NumSubElements; i++ {
		eat := dictionary.Offset{
			Bits:  at.Bits + i*elem.Size.Bits,
			Bytes: at.Bytes + i*elem.Size.Bytes,
		}
		if err := st.unpackValue(elem, nil, eat, path, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// verifySums checks recorded error control entries against sums computed
// over the received stream. The first mismatch in stream order is
// returned; the decoded output is complete either way.
func (st *unpackState) verifySums() error {
	fx := *st.fixups
	sort.SliceStable(fx, func(i, j int) bool { return fx[i].at.Bits < fx[j].at.Bits })
	for i := range fx {
		a, ok := fx[i].arg.(*dictionary.ErrorControlArg)
		if !ok {
			return errors.InvalidData(errors.PhaseUnpack, []string{fx[i].name}, "error control entry without algorithm")
		}
		te := fx[i].te
		nd := te.Number()
		if nd == nil {
			return errors.InvalidData(errors.PhaseUnpack, []string{fx[i].name}, "error control entry is not numeric")
		}
		bits := te.Size.Bits
		raw := getBits(st.src, st.le, fx[i].at.Bits, bits)
		adj, ok := orderAdjust(nd, bits, raw)
		if !ok {
			return unsupportedOrder(errors.PhaseUnpack, []string{fx[i].name})
		}
		var got uint64
		if te.Basic == dictionary.BasicSignedInt {
			v, err := numenc.DecodeInt(nd.Encoding, adj, bits)
			if err != nil {
				return errors.Wrap(errors.PhaseUnpack, errors.KindInvalidData, err, fx[i].name)
			}
			got = uint64(v)
		} else {
			v, err := numenc.DecodeUint(nd.Encoding, adj, bits)
			if err != nil {
				return errors.Wrap(errors.PhaseUnpack, errors.KindInvalidData, err, fx[i].name)
			}
			got = v
		}
		want := errctlCompute(a.Algorithm, st.src[:fx[i].at.Bits/8])
		if got != want {
			return errors.ChecksumMismatch(errors.PhaseUnpack, []string{fx[i].name}, want, got)
		}
	}
	return nil
}
