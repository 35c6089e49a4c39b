package dictionary

import (
	"fmt"
	"strings"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
	"github.com/edsworks/eds-runtime/errors"
)

// ContainerBuilder assembles one container's entry lists. Entries are
// placed in declaration order: packed offsets advance densely bit by bit,
// native offsets advance under C alignment rules. Errors stick to the
// builder and surface from Build.
type ContainerBuilder struct {
	b           *Builder
	name        string
	base        edsruntime.TypeHandle
	entries     []FieldEntry
	trailer     []FieldEntry
	constraints []pendingConstraint

	bitCursor    uint32
	byteCursor   uint32
	align        uint32
	contentBits  uint32
	contentBytes uint32
	inTrailer    bool
	err          error
}

type pendingConstraint struct {
	path  string
	value int64
	kind  ConstraintKind
}

// Container starts a new container type.
func (b *Builder) Container(name string) *ContainerBuilder {
	return &ContainerBuilder{b: b, name: name, align: 1}
}

// Derive starts a container deriving from a previously built base
// container. The base's content is included at offset zero and the new
// container's own entries follow it.
func (b *Builder) Derive(name string, base edsruntime.TypeHandle) *ContainerBuilder {
	cb := &ContainerBuilder{b: b, name: name, align: 1}
	baseEntry, baseAlign, err := b.resolve(base)
	if err != nil {
		cb.err = err
		return cb
	}
	desc := baseEntry.Container()
	if desc == nil {
		cb.err = errors.InvalidHandle(errors.PhaseBuild, base.String(), "derivation base must be a container")
		return cb
	}
	cb.base = base
	cb.entries = append(cb.entries, FieldEntry{
		Name: baseEntry.Name,
		Kind: EntryBase,
		Type: base,
	})
	cb.bitCursor = desc.ContentSize.Bits
	cb.byteCursor = desc.ContentSize.Bytes
	cb.align = baseAlign
	return cb
}

func (cb *ContainerBuilder) fail(err error) *ContainerBuilder {
	if cb.err == nil {
		cb.err = err
	}
	return cb
}

func (cb *ContainerBuilder) appendEntry(e FieldEntry) {
	if cb.inTrailer {
		cb.trailer = append(cb.trailer, e)
	} else {
		cb.entries = append(cb.entries, e)
	}
}

func (cb *ContainerBuilder) place(kind EntryKind, name string, h edsruntime.TypeHandle, arg HandlerArg) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	t, al, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	byteOff := alignTo(cb.byteCursor, al)
	cb.appendEntry(FieldEntry{
		Name:   name,
		Kind:   kind,
		Offset: Offset{Bits: cb.bitCursor, Bytes: byteOff},
		Type:   h,
		Arg:    arg,
	})
	cb.bitCursor += t.Size.Bits
	cb.byteCursor = byteOff + t.Size.Bytes
	if al > cb.align {
		cb.align = al
	}
	return cb
}

// Member appends a normal named member.
func (cb *ContainerBuilder) Member(name string, h edsruntime.TypeHandle) *ContainerBuilder {
	return cb.place(EntryMember, name, h, nil)
}

// MemberAt appends a member at explicit packed and native offsets,
// bypassing automatic layout. The cursors continue past it.
func (cb *ContainerBuilder) MemberAt(name string, h edsruntime.TypeHandle, off Offset) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	cb.bitCursor = off.Bits
	cb.byteCursor = off.Bytes
	t, al, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	cb.appendEntry(FieldEntry{
		Name:   name,
		Kind:   EntryMember,
		Offset: off,
		Type:   h,
	})
	cb.bitCursor = off.Bits + t.Size.Bits
	cb.byteCursor = off.Bytes + t.Size.Bytes
	if al > cb.align {
		cb.align = al
	}
	return cb
}

// ListData appends a member whose array content is governed by a separate
// list size field.
func (cb *ContainerBuilder) ListData(name string, h edsruntime.TypeHandle) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	t, _, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	if t.Basic != BasicArray {
		return cb.fail(errors.InvalidHandle(errors.PhaseBuild, h.String(), "list data entry needs an array type"))
	}
	return cb.place(EntryListData, name, h, nil)
}

// Padding advances the packed cursor without adding native storage.
func (cb *ContainerBuilder) Padding(bits uint32) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	cb.appendEntry(FieldEntry{
		Kind:   EntryPadding,
		Offset: Offset{Bits: cb.bitCursor},
	})
	cb.bitCursor += bits
	return cb
}

// FixedValue appends an entry packed from a dictionary literal rather than
// the native object. Unpack decodes it into the native field like any
// member.
func (cb *ContainerBuilder) FixedValue(name string, h edsruntime.TypeHandle, value int64) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	t, _, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	if !t.Basic.IsNumber() || t.Basic == BasicFloat {
		return cb.fail(errors.InvalidHandle(errors.PhaseBuild, h.String(), "fixed value entry needs an integer type"))
	}
	return cb.place(EntryFixedValue, name, h, &FixedValueArg{Value: value})
}

// Length appends an entry recomputed on pack from the total encoded byte
// count of the object, passed through the calibrator's Reverse.
func (cb *ContainerBuilder) Length(name string, h edsruntime.TypeHandle, cal calib.Calibrator) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	t, _, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	if t.Basic != BasicUnsignedInt {
		return cb.fail(errors.InvalidHandle(errors.PhaseBuild, h.String(), "length entry needs an unsigned integer type"))
	}
	if cal.Kind == calib.KindNone {
		cal = calib.None()
	}
	return cb.place(EntryLength, name, h, &CalibratorArg{Calibrator: cal})
}

// ErrorControl appends an integrity entry recomputed on pack over the
// encoded bytes preceding it. The entry must start on a byte boundary and
// its width must match the algorithm result.
func (cb *ContainerBuilder) ErrorControl(name string, h edsruntime.TypeHandle, alg ErrCtlAlgorithm) *ContainerBuilder {
	if cb.err != nil {
		return cb
	}
	t, _, err := cb.b.resolve(h)
	if err != nil {
		return cb.fail(err)
	}
	if t.Basic != BasicUnsignedInt {
		return cb.fail(errors.InvalidHandle(errors.PhaseBuild, h.String(), "error control entry needs an unsigned integer type"))
	}
	if t.Size.Bits != alg.Width() {
		return cb.fail(errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("error control field is %d bits, %s produces %d", t.Size.Bits, alg, alg.Width())))
	}
	if cb.bitCursor%8 != 0 {
		return cb.fail(errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("error control entry at bit %d is not byte aligned", cb.bitCursor)))
	}
	return cb.place(EntryErrorControl, name, h, &ErrorControlArg{Algorithm: alg})
}

// Trailer switches subsequent entries into the trailer region, which
// follows the content of the most-derived object being packed.
func (cb *ContainerBuilder) Trailer() *ContainerBuilder {
	if cb.err != nil || cb.inTrailer {
		return cb
	}
	cb.contentBits = cb.bitCursor
	cb.contentBytes = alignTo(cb.byteCursor, cb.align)
	cb.byteCursor = cb.contentBytes
	cb.inTrailer = true
	return cb
}

// Constrain records a value constraint selecting this derivative: the named
// base entity must decode to the given value. Only meaningful on builders
// started with Derive.
func (cb *ContainerBuilder) Constrain(path string, value int64) *ContainerBuilder {
	cb.constraints = append(cb.constraints, pendingConstraint{path: path, value: value, kind: ConstraintValue})
	return cb
}

// ConstrainType records a type constraint: the named base entity, itself
// identified recursively, must resolve to the given type.
func (cb *ContainerBuilder) ConstrainType(path string, h edsruntime.TypeHandle) *ContainerBuilder {
	cb.constraints = append(cb.constraints, pendingConstraint{path: path, value: int64(h.Word()), kind: ConstraintType})
	return cb
}

// Build finalizes the container, adds it to the dictionary, and, for
// derived containers, records the derivative and its constraints in the
// base descriptor.
func (cb *ContainerBuilder) Build() (edsruntime.TypeHandle, error) {
	if cb.err != nil {
		cb.b.fail(cb.err)
		return 0, cb.err
	}
	if len(cb.constraints) > 0 && cb.base == 0 {
		err := errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("container %q has constraints but no base", cb.name))
		cb.b.fail(err)
		return 0, err
	}
	cb.cloneBaseTrailer()
	if cb.err != nil {
		cb.b.fail(cb.err)
		return 0, cb.err
	}
	if !cb.inTrailer {
		cb.contentBits = cb.bitCursor
		cb.contentBytes = alignTo(cb.byteCursor, cb.align)
	}

	totalBytes := cb.byteCursor
	if cb.contentBytes > totalBytes {
		totalBytes = cb.contentBytes
	}
	size := SizeInfo{
		Bits:  cb.bitCursor,
		Bytes: alignTo(totalBytes, cb.align),
	}
	desc := &ContainerDescriptor{
		MaxSize:        size,
		ContentSize:    SizeInfo{Bits: cb.contentBits, Bytes: cb.contentBytes},
		Base:           cb.base,
		Entries:        cb.entries,
		TrailerEntries: cb.trailer,
	}
	e := TypeEntry{
		Name:           cb.name,
		Basic:          BasicContainer,
		Flags:          FlagPackedBE,
		Size:           size,
		NumSubElements: uint32(len(cb.entries) + len(cb.trailer)),
		Detail:         desc,
	}
	h, err := cb.b.addEntry(e, cb.align)
	if err != nil {
		return 0, err
	}
	if cb.base != 0 {
		if err := cb.b.registerDerivative(cb.base, h, cb.constraints); err != nil {
			cb.b.fail(err)
			return 0, err
		}
	}
	return h, nil
}

// cloneBaseTrailer copies the base container's trailer entries behind this
// container's content so that a complete packed object ends with the frame
// the base declares. Cloned entries are re-laid at the current cursors,
// which recomputes their offsets for the wider derived extent. The base's
// own trailer always lands outermost.
func (cb *ContainerBuilder) cloneBaseTrailer() {
	if cb.err != nil || cb.base == 0 {
		return
	}
	baseEntry, _, err := cb.b.resolve(cb.base)
	if err != nil {
		cb.err = err
		return
	}
	bd := baseEntry.Container()
	if bd == nil || len(bd.TrailerEntries) == 0 {
		return
	}
	cb.Trailer()
	for i, te := range bd.TrailerEntries {
		if te.Kind == EntryPadding {
			end := baseEntry.Size.Bits
			if i+1 < len(bd.TrailerEntries) {
				end = bd.TrailerEntries[i+1].Offset.Bits
			}
			cb.Padding(end - te.Offset.Bits)
			continue
		}
		cb.place(te.Kind, te.Name, te.Type, te.Arg)
	}
}

// registerDerivative resolves the pending constraints of a derived
// container against its base and appends the derivative entry to the base
// descriptor.
func (b *Builder) registerDerivative(base, derived edsruntime.TypeHandle, pending []pendingConstraint) error {
	baseEntry, _, err := b.resolve(base)
	if err != nil {
		return err
	}
	desc := baseEntry.Container()

	refs := make([]ConstraintRef, 0, len(pending))
	for _, pc := range pending {
		off, h, err := b.findEntity(baseEntry, pc.path)
		if err != nil {
			return err
		}
		t, _, err := b.resolve(h)
		if err != nil {
			return err
		}
		if pc.kind == ConstraintValue && t.Basic != BasicSignedInt && t.Basic != BasicUnsignedInt {
			return errors.InvalidHandle(errors.PhaseBuild, h.String(),
				fmt.Sprintf("constraint entity %q must be an integer", pc.path))
		}
		if pc.kind == ConstraintType && t.Basic != BasicContainer {
			return errors.InvalidHandle(errors.PhaseBuild, h.String(),
				fmt.Sprintf("type constraint entity %q must be a container", pc.path))
		}

		entIdx := -1
		for i, ent := range desc.ConstraintEntities {
			if ent.Name == pc.path {
				if ent.Offset != off || ent.Type != h {
					return errors.InvalidInput(errors.PhaseBuild,
						fmt.Sprintf("constraint entity %q redeclared with a different location", pc.path))
				}
				entIdx = i
				break
			}
		}
		if entIdx < 0 {
			entIdx = len(desc.ConstraintEntities)
			desc.ConstraintEntities = append(desc.ConstraintEntities, ConstraintEntity{
				Name:   pc.path,
				Offset: off,
				Type:   h,
			})
		}

		valIdx := -1
		for i, v := range desc.Values {
			if v == pc.value {
				valIdx = i
				break
			}
		}
		if valIdx < 0 {
			valIdx = len(desc.Values)
			desc.Values = append(desc.Values, pc.value)
		}

		refs = append(refs, ConstraintRef{
			EntityIdx: uint16(entIdx),
			ValueIdx:  uint16(valIdx),
			Kind:      pc.kind,
		})
	}

	desc.Derivatives = append(desc.Derivatives, DerivativeEntry{Type: derived, Constraints: refs})
	return nil
}

// findEntity resolves a dotted member path within a container, flattening
// base inclusions, and returns the absolute offset pair and type handle of
// the final member.
func (b *Builder) findEntity(container *TypeEntry, path string) (Offset, edsruntime.TypeHandle, error) {
	cur := container
	var abs Offset
	var h edsruntime.TypeHandle

	segs := strings.Split(path, ".")
	for si, seg := range segs {
		desc := cur.Container()
		if desc == nil {
			return Offset{}, 0, errors.NameNotFound(errors.PhaseBuild, segs[:si], seg)
		}
		off, found, ok := b.findInEntries(desc, seg)
		if !ok {
			return Offset{}, 0, errors.NameNotFound(errors.PhaseBuild, segs[:si], seg)
		}
		abs.Bits += off.Bits
		abs.Bytes += off.Bytes
		h = found
		next, _, err := b.resolve(found)
		if err != nil {
			return Offset{}, 0, err
		}
		cur = next
	}
	return abs, h, nil
}

// findInEntries searches one container's entry lists for a named member,
// descending transparently into base inclusions.
func (b *Builder) findInEntries(desc *ContainerDescriptor, name string) (Offset, edsruntime.TypeHandle, bool) {
	for _, list := range [][]FieldEntry{desc.Entries, desc.TrailerEntries} {
		for _, e := range list {
			if e.Kind == EntryBase {
				be, _, err := b.resolve(e.Type)
				if err != nil {
					continue
				}
				if bd := be.Container(); bd != nil {
					if off, h, ok := b.findInEntries(bd, name); ok {
						return Offset{Bits: e.Offset.Bits + off.Bits, Bytes: e.Offset.Bytes + off.Bytes}, h, true
					}
				}
				continue
			}
			if e.Name == name && e.Kind != EntryPadding {
				return e.Offset, e.Type, true
			}
		}
	}
	return Offset{}, 0, false
}
