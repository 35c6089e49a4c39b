package codec

import (
	"bytes"
	"math"
	"sort"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/identify"
	"github.com/edsworks/eds-runtime/internal/bitpack"
	"github.com/edsworks/eds-runtime/internal/numenc"
	"github.com/edsworks/eds-runtime/registry"
)

// packState carries one pack operation over caller-owned buffers.
type packState struct {
	reg      *registry.Registry
	dst      []byte // packed out
	src      []byte // native in
	le       bool   // stream bit order
	bitLimit uint32 // writable wire prefix
	total    uint32 // packed byte count of the complete object
	partial  bool
	fixups   *[]fixup
}

// PackCompleteObject serializes the native object in src into dst. When h
// is a container with derivatives, the most derived type matching the
// discriminator values in src is packed, and its handle returned; src
// must span that object (GetDerivedInfo bounds the allocation). Length
// and error control entries are computed, fixed value entries written
// from their literals, padding zero-filled, and the constraint values of
// the packed derivative written over the stream so the output identifies
// as what it is.
func (p *Packer) PackCompleteObject(h edsruntime.TypeHandle, dst, src []byte) (edsruntime.TypeHandle, error) {
	e, err := p.reg.Resolve(h)
	if err != nil {
		return 0, err
	}
	final, fe := h, e
	if e.Basic == dictionary.BasicContainer {
		d, matched, err := identify.LookupNative(p.reg, h, src)
		if err != nil {
			return 0, err
		}
		if matched {
			final = d
			if fe, err = p.reg.Resolve(final); err != nil {
				return 0, err
			}
		} else {
			debugf("pack %s: no derivative identified, packing base", e.Name)
		}
	}
	if uint64(len(src)) < uint64(fe.Size.Bytes) {
		return 0, errors.SizeMismatch(errors.PhasePack, []string{fe.Name}, int(fe.Size.Bytes), len(src), "bytes")
	}
	if uint64(len(dst))*8 < uint64(fe.Size.Bits) {
		return 0, errors.SizeMismatch(errors.PhasePack, []string{fe.Name}, int(fe.Size.Bits), len(dst)*8, "bits")
	}
	wireBytes := (fe.Size.Bits + 7) / 8
	zeroBytes(dst[:wireBytes])

	fixups := getFixups()
	defer putFixups(fixups)
	st := &packState{
		reg:      p.reg,
		dst:      dst,
		src:      src,
		le:       fe.Flags&dictionary.FlagPackedLE != 0,
		bitLimit: fe.Size.Bits,
		total:    wireBytes,
		fixups:   fixups,
	}
	if err := st.packValue(fe, nil, dictionary.Offset{}, nil, 0); err != nil {
		return 0, err
	}
	if err := st.applyConstraints(final, dictionary.Offset{}, nil, 0); err != nil {
		return 0, err
	}
	if err := st.finalize(); err != nil {
		return 0, err
	}
	return final, nil
}

// PackPartialObject packs the leading entries of h that fit dst and the
// native content in src, stopping at the first entry that does not. No
// derivative identification takes place; h is packed as supplied. Length
// entries inside the prefix still carry the complete object's byte
// count, and error control entries inside it are computed over their
// packed range.
func (p *Packer) PackPartialObject(h edsruntime.TypeHandle, dst, src []byte) (edsruntime.TypeHandle, error) {
	e, err := p.reg.Resolve(h)
	if err != nil {
		return 0, err
	}
	limit := uint64(len(dst)) * 8
	if limit > uint64(e.Size.Bits) {
		limit = uint64(e.Size.Bits)
	}
	zeroBytes(dst[:(limit+7)/8])

	fixups := getFixups()
	defer putFixups(fixups)
	st := &packState{
		reg:      p.reg,
		dst:      dst,
		src:      src,
		le:       e.Flags&dictionary.FlagPackedLE != 0,
		bitLimit: uint32(limit),
		total:    (e.Size.Bits + 7) / 8,
		partial:  true,
		fixups:   fixups,
	}
	if err := st.packValue(e, nil, dictionary.Offset{}, nil, 0); err != nil && err != errPrefixEnd {
		return 0, err
	}
	if err := st.applyConstraints(h, dictionary.Offset{}, nil, 0); err != nil {
		return 0, err
	}
	if err := st.finalize(); err != nil {
		return 0, err
	}
	return h, nil
}

// wireOver guards the wire extent of one field. Beyond the limit it is a
// prefix stop for partial packs and a size error otherwise.
func (st *packState) wireOver(off, bits uint32, path []string) error {
	if uint64(off)+uint64(bits) <= uint64(st.bitLimit) {
		return nil
	}
	if st.partial {
		return errPrefixEnd
	}
	return errors.SizeMismatch(errors.PhasePack, path, int(off+bits), int(st.bitLimit), "bits")
}

func (st *packState) packValue(e *dictionary.TypeEntry, arg dictionary.HandlerArg, at dictionary.Offset, path []string, depth int) error {
	switch e.Basic {
	case dictionary.BasicSignedInt, dictionary.BasicUnsignedInt, dictionary.BasicFloat:
		return st.packNumber(e, arg, at, path)
	case dictionary.BasicBinary:
		return st.packBinary(e, at, path)
	case dictionary.BasicArray:
		return st.packArray(e, at, path, depth)
	case dictionary.BasicContainer:
		if depth >= maxNestDepth {
			return errors.InvalidData(errors.PhasePack, path, "nesting exceeds depth limit")
		}
		desc := e.Container()
		if desc == nil {
			return errors.InvalidData(errors.PhasePack, path, "container entry without descriptor")
		}
		if err := st.packEntries(desc.Entries, at, path, depth); err != nil {
			return err
		}
		return st.packEntries(desc.TrailerEntries, at, path, depth)
	}
	return errors.InvalidData(errors.PhasePack, path, "type cannot be encoded")
}

func (st *packState) packEntries(entries []dictionary.FieldEntry, at dictionary.Offset, path []string, depth int) error {
	for i := range entries {
		fe := &entries[i]
		fat := dictionary.Offset{Bits: at.Bits + fe.Offset.Bits, Bytes: at.Bytes + fe.Offset.Bytes}
		switch fe.Kind {
		case dictionary.EntryPadding:
			// dst is pre-zeroed, so skipped padding stays deterministic.
			continue
		case dictionary.EntryBase:
			if depth+1 >= maxNestDepth {
				return errors.InvalidData(errors.PhasePack, path, "base chain exceeds depth limit")
			}
			be, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			bd := be.Container()
			if bd == nil {
				return errors.InvalidData(errors.PhasePack, append(path, fe.Name), "base entry does not reference a container")
			}
			// Base trailers were cloned into this container's trailer
			// list when it was built; only content descends here.
			if err := st.packEntries(bd.Entries, fat, path, depth+1); err != nil {
				return err
			}
		case dictionary.EntryFixedValue:
			arg, ok := fe.Arg.(*dictionary.FixedValueArg)
			if !ok {
				return errors.InvalidData(errors.PhasePack, append(path, fe.Name), "fixed value entry without literal")
			}
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.packInteger(te, arg.Value, fat, append(path, fe.Name)); err != nil {
				return err
			}
		case dictionary.EntryLength, dictionary.EntryErrorControl:
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.wireOver(fat.Bits, te.Size.Bits, append(path, fe.Name)); err != nil {
				return err
			}
			*st.fixups = append(*st.fixups, fixup{kind: fe.Kind, name: fe.Name, at: fat, te: te, arg: fe.Arg})
		default:
			te, err := st.reg.Resolve(fe.Type)
			if err != nil {
				return err
			}
			if err := st.packValue(te, fe.Arg, fat, append(path, fe.Name), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *packState) packNumber(e *dictionary.TypeEntry, arg dictionary.HandlerArg, at dictionary.Offset, path []string) error {
	bits := e.Size.Bits
	if bits == 0 || bits > 64 {
		return errors.InvalidData(errors.PhasePack, path, "numeric field width outside 1..64 bits")
	}
	if err := st.wireOver(at.Bits, bits, path); err != nil {
		return err
	}
	n := e.Size.Bytes
	if !validScalarWidth(n) {
		return errors.InvalidData(errors.PhasePack, path, "unsupported native scalar width")
	}
	u, ok := readNativeUint(st.src, at.Bytes, n)
	if !ok {
		if st.partial {
			return errPrefixEnd
		}
		return errors.SizeMismatch(errors.PhasePack, path, int(at.Bytes+n), len(st.src), "bytes")
	}
	nd := e.Number()
	if nd == nil {
		return errors.InvalidData(errors.PhasePack, path, "numeric entry without number descriptor")
	}

	var raw uint64
	var err error
	switch e.Basic {
	case dictionary.BasicUnsignedInt:
		if c, ok := arg.(*dictionary.CalibratorArg); ok {
			r, cerr := c.Calibrator.Reverse(int64(u))
			if cerr != nil {
				return errors.Wrap(errors.PhasePack, errors.KindInvalidData, cerr, joinPath(path))
			}
			u = uint64(r)
		}
		raw, err = numenc.EncodeUint(nd.Encoding, u, bits)
		if err != nil {
			return overflowErr(errors.PhasePack, path, u, e, err)
		}
	case dictionary.BasicSignedInt:
		v := signExtendNative(u, n)
		if c, ok := arg.(*dictionary.CalibratorArg); ok {
			r, cerr := c.Calibrator.Reverse(v)
			if cerr != nil {
				return errors.Wrap(errors.PhasePack, errors.KindInvalidData, cerr, joinPath(path))
			}
			v = r
		}
		raw, err = numenc.EncodeInt(nd.Encoding, v, bits)
		if err != nil {
			return overflowErr(errors.PhasePack, path, v, e, err)
		}
	default:
		var f float64
		if n == 4 {
			f = float64(math.Float32frombits(uint32(u)))
		} else {
			f = math.Float64frombits(u)
		}
		raw, err = numenc.EncodeFloat(nd.Encoding, f, bits)
		if err != nil {
			return overflowErr(errors.PhasePack, path, f, e, err)
		}
	}

	adj, ok := orderAdjust(nd, bits, raw)
	if !ok {
		return unsupportedOrder(errors.PhasePack, path)
	}
	putBits(st.dst, st.le, at.Bits, bits, adj)
	return nil
}

// packInteger writes an engine-produced integer (fixed values, lengths,
// error control sums, constraint values) straight into the stream.
func (st *packState) packInteger(te *dictionary.TypeEntry, v int64, at dictionary.Offset, path []string) error {
	bits := te.Size.Bits
	if bits == 0 || bits > 64 {
		return errors.InvalidData(errors.PhasePack, path, "numeric field width outside 1..64 bits")
	}
	if err := st.wireOver(at.Bits, bits, path); err != nil {
		return err
	}
	nd := te.Number()
	if nd == nil {
		return errors.InvalidData(errors.PhasePack, path, "engine-produced field is not numeric")
	}
	var raw uint64
	var err error
	if te.Basic == dictionary.BasicSignedInt {
		raw, err = numenc.EncodeInt(nd.Encoding, v, bits)
	} else {
		raw, err = numenc.EncodeUint(nd.Encoding, uint64(v), bits)
	}
	if err != nil {
		return overflowErr(errors.PhasePack, path, v, te, err)
	}
	adj, ok := orderAdjust(nd, bits, raw)
	if !ok {
		return unsupportedOrder(errors.PhasePack, path)
	}
	putBits(st.dst, st.le, at.Bits, bits, adj)
	return nil
}

func (st *packState) packBinary(e *dictionary.TypeEntry, at dictionary.Offset, path []string) error {
	bits := e.Size.Bits
	if bits%8 != 0 {
		return errors.InvalidData(errors.PhasePack, path, "byte field width is not octet aligned")
	}
	if err := st.wireOver(at.Bits, bits, path); err != nil {
		return err
	}
	n := bits / 8
	if uint64(at.Bytes)+uint64(n) > uint64(len(st.src)) {
		if st.partial {
			return errPrefixEnd
		}
		return errors.SizeMismatch(errors.PhasePack, path, int(at.Bytes+n), len(st.src), "bytes")
	}
	if st.le && at.Bits%8 != 0 {
		return errors.Unsupported(errors.PhasePack, "unaligned byte field in little-endian stream at "+joinPath(path))
	}
	data := st.src[at.Bytes : at.Bytes+n]
	if e.StringDetail() != nil {
		// Characters after the first NUL are not significant; the
		// pre-zeroed destination supplies the padding.
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
	}
	bitpack.CopyToBits(st.dst, at.Bits, data)
	return nil
}

func (st *packState) packArray(e *dictionary.TypeEntry, at dictionary.Offset, path []string, depth int) error {
	if depth >= maxNestDepth {
		return errors.InvalidData(errors.PhasePack, path, "nesting exceeds depth limit")
	}
	ad := e.Array()
	if ad == nil {
		return errors.InvalidData(errors.PhasePack, path, "array entry without descriptor")
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
		if err := st.packValue(elem, nil, eat, path, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// applyConstraints writes the constraint values of the packed type's
// derivation chain into the stream, making the output identify as that
// type regardless of what the source discriminators held. Type
// constraints recurse into the constrained sub-entity.
func (st *packState) applyConstraints(h edsruntime.TypeHandle, at dictionary.Offset, path []string, depth int) error {
	if depth >= maxNestDepth {
		return errors.InvalidData(errors.PhasePack, path, "constraint nesting exceeds depth limit")
	}
	it, err := identify.Constraints(st.reg, h)
	if err != nil {
		return err
	}
	for it.Next() {
		c := it.Info()
		te, err := st.reg.Resolve(c.Type)
		if err != nil {
			return err
		}
		fat := dictionary.Offset{Bits: at.Bits + c.Offset.Bits, Bytes: at.Bytes + c.Offset.Bytes}
		switch c.Kind {
		case dictionary.ConstraintType:
			if err := st.applyConstraints(c.TypeValue(), fat, append(path, c.Entity), depth+1); err != nil {
				return err
			}
		default:
			if st.partial && uint64(fat.Bits)+uint64(te.Size.Bits) > uint64(st.bitLimit) {
				continue
			}
			if err := st.packInteger(te, c.Value, fat, append(path, c.Entity)); err != nil {
				return err
			}
		}
	}
	return nil
}

// finalize settles deferred fields: length entries first, then error
// control entries in ascending stream order so an outer sum covers inner
// ones and the final length bytes.
func (st *packState) finalize() error {
	fx := *st.fixups
	for i := range fx {
		if fx[i].kind != dictionary.EntryLength {
			continue
		}
		cal := calib.None()
		if a, ok := fx[i].arg.(*dictionary.CalibratorArg); ok {
			cal = a.Calibrator
		}
		raw, err := cal.Reverse(int64(st.total))
		if err != nil {
			return errors.Wrap(errors.PhasePack, errors.KindInvalidData, err, fx[i].name)
		}
		if err := st.packInteger(fx[i].te, raw, fx[i].at, []string{fx[i].name}); err != nil {
			return err
		}
	}
	sort.SliceStable(fx, func(i, j int) bool { return fx[i].at.Bits < fx[j].at.Bits })
	for i := range fx {
		if fx[i].kind != dictionary.EntryErrorControl {
			continue
		}
		a, ok := fx[i].arg.(*dictionary.ErrorControlArg)
		if !ok {
			return errors.InvalidData(errors.PhasePack, []string{fx[i].name}, "error control entry without algorithm")
		}
		sum := errctlCompute(a.Algorithm, st.dst[:fx[i].at.Bits/8])
		if err := st.packInteger(fx[i].te, int64(sum), fx[i].at, []string{fx[i].name}); err != nil {
			return err
		}
	}
	return nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
