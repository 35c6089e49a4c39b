package dictionary

import (
	"reflect"
	"strings"

	"github.com/edsworks/eds-runtime/errors"
)

// maxBindDepth bounds type recursion, protecting against imported tables
// with reference cycles.
const maxBindDepth = 64

// BindNative verifies that a Go type matches the native layout the
// dictionary records for a format index: overall size, field order, field
// offsets, and scalar widths. A mismatch means the dictionary was generated
// against a different structure definition than the program was compiled
// with. sample may be a value of the type, a pointer to one, or a
// reflect.Type.
func (d *AppDictionary) BindNative(format uint16, sample any) error {
	e, ok := d.Entry(format)
	if !ok {
		return errors.InvalidFormatIndex(errors.PhaseRegister, int(d.AppIndex), int(format))
	}
	t, ok := sample.(reflect.Type)
	if !ok {
		t = reflect.TypeOf(sample)
	}
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return errors.TypeMismatch(errors.PhaseRegister, []string{e.Name}, "<nil>", e.Name)
	}
	return d.bindType([]string{e.Name}, e, t, 0)
}

func (d *AppDictionary) bindType(path []string, e *TypeEntry, t reflect.Type, depth int) error {
	if depth > maxBindDepth {
		return errors.InvalidData(errors.PhaseRegister, path, "type nesting exceeds depth limit")
	}
	switch e.Basic {
	case BasicSignedInt:
		switch t.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		default:
			return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), e.Basic.String())
		}
		return d.bindScalarSize(path, e, t)
	case BasicUnsignedInt:
		switch t.Kind() {
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), e.Basic.String())
		}
		return d.bindScalarSize(path, e, t)
	case BasicFloat:
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
		default:
			return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), e.Basic.String())
		}
		return d.bindScalarSize(path, e, t)
	case BasicBinary:
		if t.Kind() != reflect.Array || t.Elem().Kind() != reflect.Uint8 {
			return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), "byte array")
		}
		if uint32(t.Len()) != e.Size.Bytes {
			return errors.SizeMismatch(errors.PhaseRegister, path, int(e.Size.Bytes), t.Len(), "bytes")
		}
		return nil
	case BasicArray:
		if t.Kind() != reflect.Array {
			return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), "array")
		}
		if uint32(t.Len()) != e.NumSubElements {
			return errors.SizeMismatch(errors.PhaseRegister, path, int(e.NumSubElements), t.Len(), "elements")
		}
		el, ok := d.Entry(e.Array().Element.FormatIndex())
		if !ok {
			return errors.InvalidHandle(errors.PhaseRegister, e.Array().Element.String(), "array element references a missing type")
		}
		return d.bindType(appendPath(path, "[]"), el, t.Elem(), depth+1)
	case BasicContainer:
		return d.bindContainer(path, e, t, depth)
	}
	return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), e.Basic.String())
}

func (d *AppDictionary) bindScalarSize(path []string, e *TypeEntry, t reflect.Type) error {
	if uint32(t.Size()) != e.Size.Bytes {
		return errors.SizeMismatch(errors.PhaseRegister, path, int(e.Size.Bytes), int(t.Size()), "bytes")
	}
	return nil
}

func (d *AppDictionary) bindContainer(path []string, e *TypeEntry, t reflect.Type, depth int) error {
	if t.Kind() != reflect.Struct {
		return errors.TypeMismatch(errors.PhaseRegister, path, t.String(), "container")
	}
	if uint32(t.Size()) != e.Size.Bytes {
		return errors.SizeMismatch(errors.PhaseRegister, path, int(e.Size.Bytes), int(t.Size()), "bytes")
	}
	desc := e.Container()
	idx := 0
	for _, list := range [][]FieldEntry{desc.Entries, desc.TrailerEntries} {
		for i := range list {
			entry := &list[i]
			if !entry.Kind.HasNative() {
				continue
			}
			if idx >= t.NumField() {
				return errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
					Path(path...).
					GoType(t.String()).
					EdsType(e.Name).
					Detail("struct has %d fields, layout names more", t.NumField()).
					Build()
			}
			f := t.Field(idx)
			idx++
			fpath := appendPath(path, entry.Name)
			if entry.Name != "" && !strings.EqualFold(f.Name, entry.Name) {
				return errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
					Path(fpath...).
					GoType(t.String()).
					EdsType(e.Name).
					Detail("field %s does not match entry %s", f.Name, entry.Name).
					Build()
			}
			if uint32(f.Offset) != entry.Offset.Bytes {
				return errors.New(errors.PhaseRegister, errors.KindSizeMismatch).
					Path(fpath...).
					GoType(t.String()).
					EdsType(e.Name).
					Detail("field %s at byte %d, layout requires byte %d", f.Name, f.Offset, entry.Offset.Bytes).
					Build()
			}
			sub, ok := d.Entry(entry.Type.FormatIndex())
			if !ok {
				return errors.InvalidHandle(errors.PhaseRegister, entry.Type.String(), "entry references a missing type")
			}
			if err := d.bindType(fpath, sub, f.Type, depth+1); err != nil {
				return err
			}
		}
	}
	if idx != t.NumField() {
		return errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
			Path(path...).
			GoType(t.String()).
			EdsType(e.Name).
			Detail("struct has %d fields beyond the recorded layout", t.NumField()-idx).
			Build()
	}
	return nil
}

func appendPath(path []string, name string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, path...)
	return append(out, name)
}
