package dictionary

import (
	"sort"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
)

// TypeEntry is one compiled type in an application dictionary, addressed by
// its format index. Size carries both extents of the type: the exact packed
// bit width and the native structure byte width. Checksum is the structural
// digest verified at registration.
type TypeEntry struct {
	Name           string
	Basic          BasicType
	Flags          Flags
	Size           SizeInfo
	NumSubElements uint32
	Checksum       uint64
	Detail         Detail
}

// Number returns the number descriptor, or nil when the entry is not a
// numeric scalar.
func (e *TypeEntry) Number() *NumberDescriptor {
	d, _ := e.Detail.(*NumberDescriptor)
	return d
}

// StringDetail returns the string descriptor, or nil for non-string entries.
func (e *TypeEntry) StringDetail() *StringDescriptor {
	d, _ := e.Detail.(*StringDescriptor)
	return d
}

// Array returns the array descriptor, or nil for non-array entries.
func (e *TypeEntry) Array() *ArrayDescriptor {
	d, _ := e.Detail.(*ArrayDescriptor)
	return d
}

// Container returns the container descriptor, or nil for non-container
// entries.
func (e *TypeEntry) Container() *ContainerDescriptor {
	d, _ := e.Detail.(*ContainerDescriptor)
	return d
}

// Detail is the category-specific descriptor of a type entry. Exactly one
// variant matches each BasicType: numbers carry a NumberDescriptor, strings
// a StringDescriptor, arrays an ArrayDescriptor, containers a
// ContainerDescriptor, and raw binary blobs carry no detail at all.
type Detail interface {
	isDetail()
}

func (*NumberDescriptor) isDetail()    {}
func (*StringDescriptor) isDetail()    {}
func (*ArrayDescriptor) isDetail()     {}
func (*ContainerDescriptor) isDetail() {}

// NumberDescriptor describes the wire representation of a numeric scalar.
type NumberDescriptor struct {
	Encoding  NumberEncoding
	Order     ByteOrder
	BitInvert bool
	Enum      *EnumLabelTable
}

// StringDescriptor describes a fixed-width text field. The field is
// NUL-delimited: characters after the first NUL are not significant.
type StringDescriptor struct {
	Charset Charset
}

// ArrayDescriptor describes a fixed-count sequence. IndexType, when valid,
// names the enumeration whose labels index the array.
type ArrayDescriptor struct {
	Element   edsruntime.TypeHandle
	IndexType edsruntime.TypeHandle
}

// ContainerDescriptor describes an ordered aggregate and its derivation
// relationships.
//
// Entries is the content region; TrailerEntries follow the content of the
// most-derived object being packed and are materialized per container by
// the generator with static offsets. ContentSize is the extent of Entries
// alone, which is where a derivative's own fields begin; the owning
// TypeEntry.Size spans content plus trailer.
//
// The identification tables (ConstraintEntities, Values, IdentSequence)
// drive derived-type identification: the sequence is a decision tree over
// constraint entity values, rooted at IdentBase, with node 0 reserved as
// the invalid sentinel.
type ContainerDescriptor struct {
	MaxSize            SizeInfo
	ContentSize        SizeInfo
	Base               edsruntime.TypeHandle
	Entries            []FieldEntry
	TrailerEntries     []FieldEntry
	Derivatives        []DerivativeEntry
	ConstraintEntities []ConstraintEntity
	Values             []int64
	IdentSequence      []IdentSequenceNode
	IdentBase          uint16
}

// EntryKind classifies one container entry.
type EntryKind uint8

const (
	// EntryMember is a normal named member backed by native storage.
	EntryMember EntryKind = iota
	// EntryBase includes another container's content at the entry offset.
	EntryBase
	// EntryArrayElement is a synthesized entity for one array slot; it
	// appears in lookup results, never in stored entry lists.
	EntryArrayElement
	// EntryPadding occupies packed bits with no native counterpart.
	EntryPadding
	// EntryListData marks a member whose array content length is governed
	// by a separate list-size field.
	EntryListData
	// EntryFixedValue is written from a dictionary literal, not from the
	// native object.
	EntryFixedValue
	// EntryLength is recomputed on pack from the encoded object size.
	EntryLength
	// EntryErrorControl is recomputed on pack from the encoded bytes.
	EntryErrorControl
)

var entryKindNames = [...]string{
	EntryMember:       "member",
	EntryBase:         "base",
	EntryArrayElement: "array_element",
	EntryPadding:      "padding",
	EntryListData:     "list_data",
	EntryFixedValue:   "fixed_value",
	EntryLength:       "length",
	EntryErrorControl: "error_control",
}

func (k EntryKind) String() string {
	if int(k) < len(entryKindNames) {
		return entryKindNames[k]
	}
	return "entrykind"
}

func entryKindFromName(name string) (EntryKind, bool) {
	for i, n := range entryKindNames {
		if n == name {
			return EntryKind(i), true
		}
	}
	return EntryMember, false
}

// HasNative reports whether the entry kind occupies native structure bytes.
func (k EntryKind) HasNative() bool {
	return k != EntryPadding
}

// FieldEntry is one entry in a container's entry list. Offset is absolute
// within the container on both sides. Arg is present only for the entry
// kinds that need a handler argument: a calibrator for length entries, a
// literal for fixed values, an algorithm for error control.
type FieldEntry struct {
	Name   string
	Kind   EntryKind
	Offset Offset
	Type   edsruntime.TypeHandle
	Arg    HandlerArg
}

// HandlerArg is the per-entry argument of fixed value, length, and error
// control entries.
type HandlerArg interface {
	isHandlerArg()
}

func (*CalibratorArg) isHandlerArg()   {}
func (*FixedValueArg) isHandlerArg()   {}
func (*ErrorControlArg) isHandlerArg() {}

// CalibratorArg carries the length entry calibrator: Reverse turns the
// encoded byte count into the raw field value on pack, Forward recovers the
// byte count on unpack.
type CalibratorArg struct {
	Calibrator calib.Calibrator
}

// FixedValueArg carries the literal a fixed value entry writes.
type FixedValueArg struct {
	Value int64
}

// ErrorControlArg carries the integrity algorithm of an error control entry.
type ErrorControlArg struct {
	Algorithm ErrCtlAlgorithm
}

// DerivativeEntry records one direct derivative of a container together
// with the constraint pairs that select it.
type DerivativeEntry struct {
	Type        edsruntime.TypeHandle
	Constraints []ConstraintRef
}

// ConstraintKind distinguishes how a constraint value is interpreted.
type ConstraintKind uint8

const (
	// ConstraintValue matches the decoded entity value against a literal.
	ConstraintValue ConstraintKind = iota
	// ConstraintType matches the recursively identified type of the entity
	// against a handle word stored in the value table.
	ConstraintType
)

func (k ConstraintKind) String() string {
	if k == ConstraintType {
		return "type"
	}
	return "value"
}

// ConstraintRef points one derivative constraint at a constraint entity and
// the value it must hold, both by table index.
type ConstraintRef struct {
	EntityIdx uint16
	ValueIdx  uint16
	Kind      ConstraintKind
}

// ConstraintEntity locates one discriminator field in the packed stream of
// a base container.
type ConstraintEntity struct {
	Name   string
	Offset Offset
	Type   edsruntime.TypeHandle
}

// IdentSequenceNode is one node of a container's identification decision
// tree. The links are indices into the same sequence; 0 is the invalid
// sentinel and terminates a walk without a match.
//
//	EntityLocation  RefIdx: constraint entity; NextGreater: subtree over
//	                its decoded value
//	RangeCondition  RefIdx: value; decoded <= value follows NextLess,
//	                otherwise NextGreater
//	ValueCondition  RefIdx: value; decoded == value follows NextGreater,
//	                otherwise NextLess
//	TypeCondition   RefIdx: value holding a type handle word the recursively
//	                identified sub-entity must equal
//	Result          RefIdx: index into Derivatives
type IdentSequenceNode struct {
	Op          IdentOp
	NextLess    uint16
	NextGreater uint16
	Parent      uint16
	RefIdx      uint16
}

// EnumLabel pairs one enumeration label with its value.
type EnumLabel struct {
	Name  string
	Value int64
}

// EnumLabelTable resolves enumeration labels in both directions. Labels are
// kept sorted by value.
type EnumLabelTable struct {
	Labels []EnumLabel
}

// NewEnumLabelTable copies and sorts the given labels by value.
func NewEnumLabelTable(labels []EnumLabel) *EnumLabelTable {
	t := &EnumLabelTable{Labels: make([]EnumLabel, len(labels))}
	copy(t.Labels, labels)
	sort.Slice(t.Labels, func(i, j int) bool { return t.Labels[i].Value < t.Labels[j].Value })
	return t
}

// LabelForValue returns the label of a value.
func (t *EnumLabelTable) LabelForValue(v int64) (string, bool) {
	i := sort.Search(len(t.Labels), func(i int) bool { return t.Labels[i].Value >= v })
	if i < len(t.Labels) && t.Labels[i].Value == v {
		return t.Labels[i].Name, true
	}
	return "", false
}

// ValueForLabel returns the value of a label.
func (t *EnumLabelTable) ValueForLabel(name string) (int64, bool) {
	for _, l := range t.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return 0, false
}
