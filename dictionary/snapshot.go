package dictionary

import (
	"bytes"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
	"github.com/edsworks/eds-runtime/errors"
)

// CurrentFormatVersion is the snapshot format this package writes and the
// newest major version it accepts on import.
const CurrentFormatVersion = "1.0.0"

//go:embed schema/snapshot.schema.json
var schemaBytes []byte

var (
	snapshotSchema *jsonschema.Schema
	schemaOnce     sync.Once
	schemaErr      error
	schemaPrinter  = message.NewPrinter(language.English)
)

// Snapshot wire model. Type references between entries are format indices
// into the same snapshot; digests are fixed-width hex so 64-bit values
// survive JSON number handling.
type snapshotDoc struct {
	FormatVersion string         `json:"format_version"`
	Name          string         `json:"name"`
	MissionIdx    uint16         `json:"mission_idx"`
	AppIndex      uint16         `json:"app_index"`
	Checksum      string         `json:"checksum"`
	Types         []snapshotType `json:"types"`
}

type snapshotType struct {
	Name      string             `json:"name"`
	Kind      string             `json:"kind"`
	Bits      uint32             `json:"bits"`
	Bytes     uint32             `json:"bytes"`
	NumSub    uint32             `json:"num_sub_elements,omitempty"`
	Checksum  string             `json:"checksum"`
	Flags     []string           `json:"flags,omitempty"`
	Number    *snapshotNumber    `json:"number,omitempty"`
	String    *snapshotString    `json:"string,omitempty"`
	Array     *snapshotArray     `json:"array,omitempty"`
	Container *snapshotContainer `json:"container,omitempty"`
}

type snapshotNumber struct {
	Encoding  string              `json:"encoding"`
	ByteOrder string              `json:"byte_order"`
	BitInvert bool                `json:"bit_invert,omitempty"`
	Enum      []snapshotEnumLabel `json:"enum,omitempty"`
}

type snapshotEnumLabel struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type snapshotString struct {
	Charset string `json:"charset"`
}

type snapshotArray struct {
	Element   uint16 `json:"element"`
	IndexType uint16 `json:"index_type,omitempty"`
}

type snapshotContainer struct {
	MaxBits      uint32               `json:"max_bits"`
	MaxBytes     uint32               `json:"max_bytes"`
	ContentBits  uint32               `json:"content_bits"`
	ContentBytes uint32               `json:"content_bytes"`
	Base         uint16               `json:"base,omitempty"`
	Entries      []snapshotEntry      `json:"entries"`
	Trailer      []snapshotEntry      `json:"trailer,omitempty"`
	Derivatives  []snapshotDerivative `json:"derivatives,omitempty"`
	Entities     []snapshotEntity     `json:"entities,omitempty"`
	Values       []int64              `json:"values,omitempty"`
	Ident        []snapshotIdentNode  `json:"ident,omitempty"`
	IdentBase    uint16               `json:"ident_base,omitempty"`
}

type snapshotEntry struct {
	Name         string              `json:"name,omitempty"`
	Kind         string              `json:"kind"`
	BitOffset    uint32              `json:"bit_offset"`
	ByteOffset   uint32              `json:"byte_offset"`
	Type         uint16              `json:"type,omitempty"`
	Calibrator   *snapshotCalibrator `json:"calibrator,omitempty"`
	FixedValue   *int64              `json:"fixed_value,omitempty"`
	ErrorControl string              `json:"error_control,omitempty"`
}

type snapshotCalibrator struct {
	Kind      string    `json:"kind"`
	Coeffs    []float64 `json:"coefficients,omitempty"`
	RawCoeffs []int64   `json:"raw_coefficients,omitempty"`
	Divisor   int64     `json:"divisor,omitempty"`
}

type snapshotDerivative struct {
	Type        uint16               `json:"type"`
	Constraints []snapshotConstraint `json:"constraints,omitempty"`
}

type snapshotConstraint struct {
	Entity uint16 `json:"entity"`
	Value  uint16 `json:"value"`
	Kind   string `json:"kind,omitempty"`
}

type snapshotEntity struct {
	Name       string `json:"name"`
	BitOffset  uint32 `json:"bit_offset"`
	ByteOffset uint32 `json:"byte_offset"`
	Type       uint16 `json:"type"`
}

type snapshotIdentNode struct {
	Op      string `json:"op"`
	Less    uint16 `json:"less,omitempty"`
	Greater uint16 `json:"greater,omitempty"`
	Parent  uint16 `json:"parent,omitempty"`
	Ref     uint16 `json:"ref,omitempty"`
}

// Export serializes a sealed dictionary to the JSON snapshot format.
func Export(d *AppDictionary) ([]byte, error) {
	if !d.sealed {
		return nil, errors.InvalidInput(errors.PhaseBuild, "dictionary must be sealed before export")
	}
	doc := snapshotDoc{
		FormatVersion: d.FormatVersion,
		Name:          d.Name,
		MissionIdx:    d.MissionIdx,
		AppIndex:      d.AppIndex,
		Checksum:      digestString(d.Checksum),
		Types:         make([]snapshotType, 0, d.NumFormats()),
	}
	for i := 1; i < len(d.entries); i++ {
		doc.Types = append(doc.Types, exportType(&d.entries[i]))
	}
	return json.MarshalIndent(doc, "", "  ")
}

func exportType(e *TypeEntry) snapshotType {
	st := snapshotType{
		Name:     e.Name,
		Kind:     e.Basic.String(),
		Bits:     e.Size.Bits,
		Bytes:    e.Size.Bytes,
		NumSub:   e.NumSubElements,
		Checksum: digestString(e.Checksum),
		Flags:    flagNames(e.Flags),
	}
	switch d := e.Detail.(type) {
	case *NumberDescriptor:
		n := &snapshotNumber{
			Encoding:  d.Encoding.String(),
			ByteOrder: d.Order.String(),
			BitInvert: d.BitInvert,
		}
		if d.Enum != nil {
			for _, l := range d.Enum.Labels {
				n.Enum = append(n.Enum, snapshotEnumLabel{Name: l.Name, Value: l.Value})
			}
		}
		st.Number = n
	case *StringDescriptor:
		st.String = &snapshotString{Charset: d.Charset.String()}
	case *ArrayDescriptor:
		st.Array = &snapshotArray{
			Element:   d.Element.FormatIndex(),
			IndexType: d.IndexType.FormatIndex(),
		}
	case *ContainerDescriptor:
		st.Container = exportContainer(d)
	}
	return st
}

func exportContainer(d *ContainerDescriptor) *snapshotContainer {
	sc := &snapshotContainer{
		MaxBits:      d.MaxSize.Bits,
		MaxBytes:     d.MaxSize.Bytes,
		ContentBits:  d.ContentSize.Bits,
		ContentBytes: d.ContentSize.Bytes,
		Base:         d.Base.FormatIndex(),
		Entries:      make([]snapshotEntry, 0, len(d.Entries)),
		IdentBase:    d.IdentBase,
	}
	for i := range d.Entries {
		sc.Entries = append(sc.Entries, exportEntry(&d.Entries[i]))
	}
	for i := range d.TrailerEntries {
		sc.Trailer = append(sc.Trailer, exportEntry(&d.TrailerEntries[i]))
	}
	for _, dv := range d.Derivatives {
		sd := snapshotDerivative{Type: dv.Type.FormatIndex()}
		for _, c := range dv.Constraints {
			sd.Constraints = append(sd.Constraints, snapshotConstraint{
				Entity: c.EntityIdx,
				Value:  c.ValueIdx,
				Kind:   c.Kind.String(),
			})
		}
		sc.Derivatives = append(sc.Derivatives, sd)
	}
	for _, ent := range d.ConstraintEntities {
		sc.Entities = append(sc.Entities, snapshotEntity{
			Name:       ent.Name,
			BitOffset:  ent.Offset.Bits,
			ByteOffset: ent.Offset.Bytes,
			Type:       ent.Type.FormatIndex(),
		})
	}
	sc.Values = append(sc.Values, d.Values...)
	for _, n := range d.IdentSequence {
		sc.Ident = append(sc.Ident, snapshotIdentNode{
			Op:      n.Op.String(),
			Less:    n.NextLess,
			Greater: n.NextGreater,
			Parent:  n.Parent,
			Ref:     n.RefIdx,
		})
	}
	return sc
}

func exportEntry(e *FieldEntry) snapshotEntry {
	se := snapshotEntry{
		Name:       e.Name,
		Kind:       e.Kind.String(),
		BitOffset:  e.Offset.Bits,
		ByteOffset: e.Offset.Bytes,
		Type:       e.Type.FormatIndex(),
	}
	switch a := e.Arg.(type) {
	case *CalibratorArg:
		se.Calibrator = &snapshotCalibrator{
			Kind:      a.Calibrator.Kind.String(),
			RawCoeffs: a.Calibrator.Coeffs,
			Divisor:   a.Calibrator.Divisor,
		}
	case *FixedValueArg:
		v := a.Value
		se.FixedValue = &v
	case *ErrorControlArg:
		se.ErrorControl = a.Algorithm.String()
	}
	return se
}

// Import parses, validates, and reconstructs a dictionary from snapshot
// JSON. The document is checked against the embedded schema, the format
// version is gated on major compatibility, and the reconstructed tables
// must reproduce the recorded checksums.
func Import(data []byte) (*AppDictionary, error) {
	if err := validateSnapshot(data); err != nil {
		return nil, err
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Import("snapshot does not decode", err)
	}
	if err := checkFormatVersion(doc.FormatVersion); err != nil {
		return nil, err
	}

	d := &AppDictionary{
		Name:          doc.Name,
		MissionIdx:    doc.MissionIdx,
		AppIndex:      doc.AppIndex,
		FormatVersion: doc.FormatVersion,
	}
	var err error
	if d.Checksum, err = parseDigest(doc.Checksum); err != nil {
		return nil, err
	}
	d.entries = make([]TypeEntry, 1, len(doc.Types)+1)
	for i := range doc.Types {
		e, err := importType(doc.AppIndex, &doc.Types[i])
		if err != nil {
			return nil, err
		}
		d.entries = append(d.entries, e)
	}
	d.sealed = true
	if err := d.VerifyChecksums(); err != nil {
		return nil, errors.Import("snapshot tables do not match their recorded checksums", err)
	}
	return d, nil
}

func checkFormatVersion(v string) error {
	have, err := semver.NewVersion(strings.TrimPrefix(v, "v"))
	if err != nil {
		return errors.Import(fmt.Sprintf("cannot parse snapshot format version %q", v), err)
	}
	want := semver.MustParse(CurrentFormatVersion)
	if have.Major() != want.Major() {
		return errors.Import(fmt.Sprintf("snapshot format %s is incompatible with supported %s", v, CurrentFormatVersion), nil)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("snapshot.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		snapshotSchema, schemaErr = c.Compile("snapshot.schema.json")
	})
	return snapshotSchema, schemaErr
}

func validateSnapshot(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return errors.Import("snapshot schema failed to compile", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return errors.Import("snapshot is not valid JSON", err)
	}
	if err := schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if stderrors.As(err, &ve) {
			path, msg := firstIssue(ve)
			return errors.New(errors.PhaseImport, errors.KindInvalidData).
				Path(path...).
				Detail("snapshot rejected by schema: %s", msg).
				Cause(ve).
				Build()
		}
		return errors.Import("snapshot failed schema validation", err)
	}
	return nil
}

// firstIssue walks the validation error tree to its deepest first cause,
// which names the specific property that failed rather than the document
// root.
func firstIssue(ve *jsonschema.ValidationError) ([]string, string) {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	msg := ve.Error()
	if ve.ErrorKind != nil {
		msg = ve.ErrorKind.LocalizedString(schemaPrinter)
	}
	return ve.InstanceLocation, msg
}

func importType(appIdx uint16, st *snapshotType) (TypeEntry, error) {
	basic, ok := basicTypeFromName(st.Kind)
	if !ok || basic == BasicNone {
		return TypeEntry{}, errors.Import(fmt.Sprintf("type %q has unknown kind %q", st.Name, st.Kind), nil)
	}
	checksum, err := parseDigest(st.Checksum)
	if err != nil {
		return TypeEntry{}, err
	}
	flags, err := flagsFromNames(st.Flags)
	if err != nil {
		return TypeEntry{}, err
	}
	e := TypeEntry{
		Name:           st.Name,
		Basic:          basic,
		Flags:          flags,
		Size:           SizeInfo{Bits: st.Bits, Bytes: st.Bytes},
		NumSubElements: st.NumSub,
		Checksum:       checksum,
	}
	switch {
	case basic.IsNumber():
		if st.Number == nil {
			return TypeEntry{}, errors.Import(fmt.Sprintf("numeric type %q lacks a number descriptor", st.Name), nil)
		}
		nd, err := importNumber(st.Name, st.Number)
		if err != nil {
			return TypeEntry{}, err
		}
		e.Detail = nd
	case basic == BasicBinary:
		if st.String != nil {
			cs, err := charsetFromName(st.String.Charset)
			if err != nil {
				return TypeEntry{}, err
			}
			e.Detail = &StringDescriptor{Charset: cs}
		}
	case basic == BasicArray:
		if st.Array == nil {
			return TypeEntry{}, errors.Import(fmt.Sprintf("array type %q lacks an array descriptor", st.Name), nil)
		}
		e.Detail = &ArrayDescriptor{
			Element:   handleFor(appIdx, st.Array.Element),
			IndexType: handleFor(appIdx, st.Array.IndexType),
		}
	case basic == BasicContainer:
		if st.Container == nil {
			return TypeEntry{}, errors.Import(fmt.Sprintf("container type %q lacks a container descriptor", st.Name), nil)
		}
		cd, err := importContainer(appIdx, st.Name, st.Container)
		if err != nil {
			return TypeEntry{}, err
		}
		e.Detail = cd
	}
	return e, nil
}

func importNumber(typeName string, sn *snapshotNumber) (*NumberDescriptor, error) {
	enc, ok := encodingFromName(sn.Encoding)
	if !ok {
		return nil, errors.Import(fmt.Sprintf("type %q has unknown encoding %q", typeName, sn.Encoding), nil)
	}
	order, err := orderFromName(sn.ByteOrder)
	if err != nil {
		return nil, err
	}
	nd := &NumberDescriptor{Encoding: enc, Order: order, BitInvert: sn.BitInvert}
	if len(sn.Enum) > 0 {
		labels := make([]EnumLabel, 0, len(sn.Enum))
		for _, l := range sn.Enum {
			labels = append(labels, EnumLabel{Name: l.Name, Value: l.Value})
		}
		nd.Enum = NewEnumLabelTable(labels)
	}
	return nd, nil
}

func importContainer(appIdx uint16, typeName string, sc *snapshotContainer) (*ContainerDescriptor, error) {
	d := &ContainerDescriptor{
		MaxSize:     SizeInfo{Bits: sc.MaxBits, Bytes: sc.MaxBytes},
		ContentSize: SizeInfo{Bits: sc.ContentBits, Bytes: sc.ContentBytes},
		Base:        handleFor(appIdx, sc.Base),
		IdentBase:   sc.IdentBase,
	}
	var err error
	if d.Entries, err = importEntries(appIdx, typeName, sc.Entries); err != nil {
		return nil, err
	}
	if d.TrailerEntries, err = importEntries(appIdx, typeName, sc.Trailer); err != nil {
		return nil, err
	}
	for _, sd := range sc.Derivatives {
		dv := DerivativeEntry{Type: handleFor(appIdx, sd.Type)}
		for _, c := range sd.Constraints {
			kind := ConstraintValue
			if c.Kind == "type" {
				kind = ConstraintType
			}
			dv.Constraints = append(dv.Constraints, ConstraintRef{
				EntityIdx: c.Entity,
				ValueIdx:  c.Value,
				Kind:      kind,
			})
		}
		d.Derivatives = append(d.Derivatives, dv)
	}
	for _, ent := range sc.Entities {
		d.ConstraintEntities = append(d.ConstraintEntities, ConstraintEntity{
			Name:   ent.Name,
			Offset: Offset{Bits: ent.BitOffset, Bytes: ent.ByteOffset},
			Type:   handleFor(appIdx, ent.Type),
		})
	}
	d.Values = append(d.Values, sc.Values...)
	for _, n := range sc.Ident {
		op, ok := identOpFromName(n.Op)
		if !ok {
			return nil, errors.Import(fmt.Sprintf("container %q has unknown ident op %q", typeName, n.Op), nil)
		}
		d.IdentSequence = append(d.IdentSequence, IdentSequenceNode{
			Op:          op,
			NextLess:    n.Less,
			NextGreater: n.Greater,
			Parent:      n.Parent,
			RefIdx:      n.Ref,
		})
	}
	return d, nil
}

func importEntries(appIdx uint16, typeName string, ses []snapshotEntry) ([]FieldEntry, error) {
	if len(ses) == 0 {
		return nil, nil
	}
	out := make([]FieldEntry, 0, len(ses))
	for _, se := range ses {
		kind, ok := entryKindFromName(se.Kind)
		if !ok || kind == EntryArrayElement {
			return nil, errors.Import(fmt.Sprintf("container %q has unknown entry kind %q", typeName, se.Kind), nil)
		}
		fe := FieldEntry{
			Name:   se.Name,
			Kind:   kind,
			Offset: Offset{Bits: se.BitOffset, Bytes: se.ByteOffset},
			Type:   handleFor(appIdx, se.Type),
		}
		switch {
		case se.Calibrator != nil:
			cal, err := importCalibrator(typeName, se.Calibrator)
			if err != nil {
				return nil, err
			}
			fe.Arg = &CalibratorArg{Calibrator: cal}
		case se.FixedValue != nil:
			fe.Arg = &FixedValueArg{Value: *se.FixedValue}
		case se.ErrorControl != "":
			alg, ok := errCtlFromName(se.ErrorControl)
			if !ok {
				return nil, errors.Import(fmt.Sprintf("container %q has unknown error control algorithm %q", typeName, se.ErrorControl), nil)
			}
			fe.Arg = &ErrorControlArg{Algorithm: alg}
		}
		out = append(out, fe)
	}
	return out, nil
}

// importCalibrator accepts either the exact integer form or engineering
// float coefficients, which are reduced to integers on the spot. Spline
// calibrators are not representable in integer flight arithmetic.
func importCalibrator(typeName string, sc *snapshotCalibrator) (calib.Calibrator, error) {
	switch sc.Kind {
	case "none":
		return calib.None(), nil
	case "polynomial":
		if len(sc.RawCoeffs) > 0 {
			div := sc.Divisor
			if div == 0 {
				div = 1
			}
			cal, err := calib.Polynomial(sc.RawCoeffs, div)
			if err != nil {
				return calib.Calibrator{}, errors.Import(fmt.Sprintf("container %q carries an invalid calibrator", typeName), err)
			}
			return cal, nil
		}
		cal, err := calib.Reduce(sc.Coeffs)
		if err != nil {
			return calib.Calibrator{}, errors.Import(fmt.Sprintf("container %q carries an irreducible calibrator", typeName), err)
		}
		return cal, nil
	case "spline":
		return calib.Calibrator{}, errors.Unsupported(errors.PhaseImport, "spline calibrators")
	default:
		return calib.Calibrator{}, errors.Import(fmt.Sprintf("container %q has unknown calibrator kind %q", typeName, sc.Kind), nil)
	}
}

func handleFor(appIdx uint16, format uint16) edsruntime.TypeHandle {
	if format == 0 {
		return 0
	}
	return edsruntime.MakeTypeHandle(0, appIdx, format)
}

func digestString(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

func parseDigest(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Import(fmt.Sprintf("cannot parse checksum %q", s), err)
	}
	return v, nil
}

var snapshotFlagNames = []struct {
	bit  Flags
	name string
}{
	{FlagPackedBE, "packed_be"},
	{FlagPackedLE, "packed_le"},
}

func flagNames(f Flags) []string {
	var out []string
	for _, fn := range snapshotFlagNames {
		if f&fn.bit != 0 {
			out = append(out, fn.name)
		}
	}
	return out
}

func flagsFromNames(names []string) (Flags, error) {
	var f Flags
	for _, n := range names {
		found := false
		for _, fn := range snapshotFlagNames {
			if fn.name == n {
				f |= fn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, errors.Import(fmt.Sprintf("unknown flag %q", n), nil)
		}
	}
	return f, nil
}

func orderFromName(name string) (ByteOrder, error) {
	switch name {
	case "big", "":
		return ByteOrderBig, nil
	case "little":
		return ByteOrderLittle, nil
	}
	return ByteOrderBig, errors.Import(fmt.Sprintf("unknown byte order %q", name), nil)
}

func charsetFromName(name string) (Charset, error) {
	switch name {
	case "ascii", "":
		return CharsetASCII, nil
	case "utf8":
		return CharsetUTF8, nil
	}
	return CharsetASCII, errors.Import(fmt.Sprintf("unknown charset %q", name), nil)
}
