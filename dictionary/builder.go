package dictionary

import (
	"fmt"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/errors"
)

// Builder assembles an application dictionary in process. It plays the role
// of the offline generator: types are added bottom-up, each add returns the
// handle later types reference, and Seal freezes the result after computing
// derived tables and checksums.
//
// Native layout follows the target C compiler rules: members are placed at
// offsets aligned to their natural alignment, and aggregates are padded to
// a multiple of their largest member alignment. Packed layout is dense bit
// placement in declaration order unless an explicit offset is given.
type Builder struct {
	dict  *AppDictionary
	align []uint32 // natural alignment per format index
	err   error
}

// NewBuilder starts a dictionary for one application. The app index must be
// the application's mission-assigned registry slot, since handles embedded
// in the tables reference it.
func NewBuilder(name string, missionIdx, appIndex uint16) *Builder {
	b := &Builder{
		dict: &AppDictionary{
			Name:          name,
			MissionIdx:    missionIdx,
			AppIndex:      appIndex,
			FormatVersion: CurrentFormatVersion,
		},
		align: make([]uint32, 1),
	}
	b.dict.entries = make([]TypeEntry, 1)
	if appIndex == 0 || appIndex > edsruntime.MaxAppIndex {
		b.fail(errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("app index %d outside 1..%d", appIndex, edsruntime.MaxAppIndex)))
	}
	return b
}

// WithFormatVersion overrides the snapshot format version recorded in the
// dictionary.
func (b *Builder) WithFormatVersion(v string) *Builder {
	b.dict.FormatVersion = v
	return b
}

// Err returns the first error the builder has encountered.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) addEntry(e TypeEntry, align uint32) (edsruntime.TypeHandle, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.dict.sealed {
		return 0, errors.InvalidInput(errors.PhaseBuild, "dictionary already sealed")
	}
	if len(b.dict.entries) > edsruntime.MaxFormatIndex {
		err := errors.OutOfBounds(errors.PhaseBuild, []string{b.dict.Name, e.Name},
			len(b.dict.entries), edsruntime.MaxFormatIndex)
		b.fail(err)
		return 0, err
	}
	if e.Name != "" {
		if _, _, ok := b.dict.EntryByName(e.Name); ok {
			err := errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("duplicate type name %q", e.Name))
			b.fail(err)
			return 0, err
		}
	}
	format := uint16(len(b.dict.entries))
	b.dict.entries = append(b.dict.entries, e)
	b.align = append(b.align, align)
	return edsruntime.MakeTypeHandle(0, b.dict.AppIndex, format), nil
}

// resolve looks up a handle that must reference this dictionary.
func (b *Builder) resolve(h edsruntime.TypeHandle) (*TypeEntry, uint32, error) {
	if h.AppIndex() != b.dict.AppIndex {
		return nil, 0, errors.InvalidHandle(errors.PhaseBuild, h.String(),
			"handle references another application dictionary")
	}
	e, ok := b.dict.Entry(h.FormatIndex())
	if !ok {
		return nil, 0, errors.InvalidFormatIndex(errors.PhaseBuild,
			int(h.AppIndex()), int(h.FormatIndex()))
	}
	return e, b.align[h.FormatIndex()], nil
}

// NumberSpec is the full declaration of a numeric scalar. Bits is the
// packed width; Bytes the native width (zero derives the smallest natural
// width that holds the value range).
type NumberSpec struct {
	Bits      uint32
	Bytes     uint32
	Encoding  NumberEncoding
	Order     ByteOrder
	BitInvert bool
}

// AddUnsignedInt declares an unsigned binary integer.
func (b *Builder) AddUnsignedInt(name string, bits uint32, order ByteOrder) (edsruntime.TypeHandle, error) {
	return b.AddNumber(name, BasicUnsignedInt, NumberSpec{Bits: bits, Encoding: EncodingUnsigned, Order: order})
}

// AddSignedInt declares a two's complement signed integer.
func (b *Builder) AddSignedInt(name string, bits uint32, order ByteOrder) (edsruntime.TypeHandle, error) {
	return b.AddNumber(name, BasicSignedInt, NumberSpec{Bits: bits, Encoding: EncodingTwosComplement, Order: order})
}

// AddFloat declares an IEEE 754 floating point number of 32 or 64 bits.
func (b *Builder) AddFloat(name string, bits uint32, order ByteOrder) (edsruntime.TypeHandle, error) {
	return b.AddNumber(name, BasicFloat, NumberSpec{Bits: bits, Encoding: EncodingIEEE754, Order: order})
}

// AddNumber declares a numeric scalar with full encoding control.
func (b *Builder) AddNumber(name string, basic BasicType, spec NumberSpec) (edsruntime.TypeHandle, error) {
	if err := validateNumber(basic, spec); err != nil {
		b.fail(err)
		return 0, err
	}
	bytes := spec.Bytes
	if bytes == 0 {
		bytes = nativeBytesFor(basic, spec)
	}
	e := TypeEntry{
		Name:  name,
		Basic: basic,
		Size:  SizeInfo{Bits: spec.Bits, Bytes: bytes},
		Detail: &NumberDescriptor{
			Encoding:  spec.Encoding,
			Order:     spec.Order,
			BitInvert: spec.BitInvert,
		},
	}
	return b.addEntry(e, bytes)
}

func validateNumber(basic BasicType, spec NumberSpec) error {
	if spec.Bits == 0 || spec.Bits > 64 {
		return errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("number width %d outside 1..64 bits", spec.Bits))
	}
	switch basic {
	case BasicSignedInt:
		switch spec.Encoding {
		case EncodingTwosComplement, EncodingOnesComplement, EncodingSignMagnitude:
		default:
			return errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("encoding %s not valid for signed integers", spec.Encoding))
		}
		if spec.Bits < 2 {
			return errors.InvalidInput(errors.PhaseBuild, "signed integers need at least 2 bits")
		}
	case BasicUnsignedInt:
		switch spec.Encoding {
		case EncodingUnsigned:
		case EncodingBCDOctet:
			if spec.Bits%8 != 0 {
				return errors.InvalidInput(errors.PhaseBuild, "BCD octet width must be a byte multiple")
			}
		case EncodingPackedBCD:
			if spec.Bits%4 != 0 {
				return errors.InvalidInput(errors.PhaseBuild, "packed BCD width must be a nibble multiple")
			}
		default:
			return errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("encoding %s not valid for unsigned integers", spec.Encoding))
		}
	case BasicFloat:
		switch spec.Encoding {
		case EncodingIEEE754:
			if spec.Bits != 32 && spec.Bits != 64 {
				return errors.InvalidInput(errors.PhaseBuild, "IEEE 754 width must be 32 or 64 bits")
			}
		case EncodingMILSTD1750A:
			if spec.Bits != 32 && spec.Bits != 48 {
				return errors.InvalidInput(errors.PhaseBuild, "MIL-STD-1750A width must be 32 or 48 bits")
			}
		default:
			return errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("encoding %s not valid for floats", spec.Encoding))
		}
	default:
		return errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("%s is not a numeric category", basic))
	}
	if spec.Bytes != 0 {
		switch spec.Bytes {
		case 1, 2, 4, 8:
		default:
			return errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("native width %d must be 1, 2, 4, or 8 bytes", spec.Bytes))
		}
		if spec.Bytes < nativeBytesFor(basic, spec) {
			return errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("native width %d bytes cannot hold a %d bit value", spec.Bytes, spec.Bits))
		}
	}
	return nil
}

func nativeBytesFor(basic BasicType, spec NumberSpec) uint32 {
	if basic == BasicFloat {
		if spec.Encoding == EncodingIEEE754 && spec.Bits == 32 {
			return 4
		}
		// 1750A decodes into float64 regardless of packed width.
		return 8
	}
	rangeBits := spec.Bits
	switch spec.Encoding {
	case EncodingBCDOctet:
		rangeBits = decimalRangeBits(spec.Bits / 8)
	case EncodingPackedBCD:
		rangeBits = decimalRangeBits(spec.Bits / 4)
	}
	switch {
	case rangeBits <= 8:
		return 1
	case rangeBits <= 16:
		return 2
	case rangeBits <= 32:
		return 4
	default:
		return 8
	}
}

// decimalRangeBits returns the binary bits needed to hold any value of the
// given decimal digit count.
func decimalRangeBits(digits uint32) uint32 {
	limit := uint64(1)
	for i := uint32(0); i < digits && limit < 1<<63; i++ {
		limit *= 10
	}
	bits := uint32(0)
	for v := limit - 1; v != 0; v >>= 1 {
		bits++
	}
	if bits == 0 {
		bits = 1
	}
	return bits
}

// AddEnumLabels attaches an enumeration label table to an integer type.
func (b *Builder) AddEnumLabels(h edsruntime.TypeHandle, labels []EnumLabel) error {
	e, _, err := b.resolve(h)
	if err != nil {
		b.fail(err)
		return err
	}
	if e.Basic != BasicSignedInt && e.Basic != BasicUnsignedInt {
		err := errors.InvalidHandle(errors.PhaseBuild, h.String(), "enum labels need an integer type")
		b.fail(err)
		return err
	}
	seen := make(map[string]bool, len(labels))
	vals := make(map[int64]bool, len(labels))
	for _, l := range labels {
		if seen[l.Name] || vals[l.Value] {
			err := errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("duplicate enum label %q or value %d", l.Name, l.Value))
			b.fail(err)
			return err
		}
		seen[l.Name] = true
		vals[l.Value] = true
	}
	e.Number().Enum = NewEnumLabelTable(labels)
	return nil
}

// AddString declares a fixed-width NUL-delimited text field.
func (b *Builder) AddString(name string, bytes uint32, charset Charset) (edsruntime.TypeHandle, error) {
	if bytes == 0 {
		err := errors.InvalidInput(errors.PhaseBuild, "string width must be nonzero")
		b.fail(err)
		return 0, err
	}
	e := TypeEntry{
		Name:   name,
		Basic:  BasicBinary,
		Size:   SizeInfo{Bits: bytes * 8, Bytes: bytes},
		Detail: &StringDescriptor{Charset: charset},
	}
	return b.addEntry(e, 1)
}

// AddBinary declares a raw octet blob.
func (b *Builder) AddBinary(name string, bytes uint32) (edsruntime.TypeHandle, error) {
	if bytes == 0 {
		err := errors.InvalidInput(errors.PhaseBuild, "binary width must be nonzero")
		b.fail(err)
		return 0, err
	}
	e := TypeEntry{
		Name:  name,
		Basic: BasicBinary,
		Size:  SizeInfo{Bits: bytes * 8, Bytes: bytes},
	}
	return b.addEntry(e, 1)
}

// AddArray declares a fixed-count sequence of a previously added element
// type.
func (b *Builder) AddArray(name string, elem edsruntime.TypeHandle, count uint32) (edsruntime.TypeHandle, error) {
	return b.addArray(name, elem, 0, count)
}

// AddIndexedArray declares an array whose slots are addressed by the labels
// of an enumerated index type.
func (b *Builder) AddIndexedArray(name string, elem, indexType edsruntime.TypeHandle, count uint32) (edsruntime.TypeHandle, error) {
	idx, _, err := b.resolve(indexType)
	if err != nil {
		b.fail(err)
		return 0, err
	}
	num := idx.Number()
	if num == nil || num.Enum == nil {
		err := errors.InvalidHandle(errors.PhaseBuild, indexType.String(),
			"array index type needs enum labels")
		b.fail(err)
		return 0, err
	}
	for _, l := range num.Enum.Labels {
		if l.Value < 0 || uint64(l.Value) >= uint64(count) {
			err := errors.OutOfBounds(errors.PhaseBuild, []string{name, l.Name}, int(l.Value), int(count))
			b.fail(err)
			return 0, err
		}
	}
	return b.addArray(name, elem, indexType, count)
}

func (b *Builder) addArray(name string, elem, indexType edsruntime.TypeHandle, count uint32) (edsruntime.TypeHandle, error) {
	if count == 0 {
		err := errors.InvalidInput(errors.PhaseBuild, "array count must be nonzero")
		b.fail(err)
		return 0, err
	}
	el, elAlign, err := b.resolve(elem)
	if err != nil {
		b.fail(err)
		return 0, err
	}
	e := TypeEntry{
		Name:           name,
		Basic:          BasicArray,
		Size:           SizeInfo{Bits: el.Size.Bits * count, Bytes: el.Size.Bytes * count},
		NumSubElements: count,
		Detail:         &ArrayDescriptor{Element: elem, IndexType: indexType},
	}
	return b.addEntry(e, elAlign)
}

// alignTo rounds offset up to the next multiple of align.
func alignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
