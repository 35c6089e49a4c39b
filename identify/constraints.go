package identify

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
	"github.com/edsworks/eds-runtime/registry"
)

// ConstraintInfo describes one constraint a derived type places on a field
// of its base. Offset locates the constrained entity in the packed stream
// of the type that declared it.
type ConstraintInfo struct {
	Entity string
	Offset dictionary.Offset
	Type   edsruntime.TypeHandle
	Kind   dictionary.ConstraintKind
	Value  int64
}

// TypeValue returns the constraint value as a handle. Only meaningful for
// type constraints.
func (c ConstraintInfo) TypeValue() edsruntime.TypeHandle {
	return edsruntime.HandleFromWord(uint32(c.Value))
}

// ConstraintIterator walks the constraints collected over a derivation
// chain, outermost base first.
type ConstraintIterator struct {
	list []ConstraintInfo
	pos  int
}

// Next advances to the next constraint. It returns false once the list is
// exhausted.
func (it *ConstraintIterator) Next() bool {
	if it.pos+1 >= len(it.list) {
		it.pos = len(it.list)
		return false
	}
	it.pos++
	return true
}

// Info returns the constraint at the current position.
func (it *ConstraintIterator) Info() ConstraintInfo {
	if it.pos < 0 || it.pos >= len(it.list) {
		return ConstraintInfo{}
	}
	return it.list[it.pos]
}

// Len returns the total number of constraints.
func (it *ConstraintIterator) Len() int { return len(it.list) }

// Reset rewinds the iterator to before the first constraint.
func (it *ConstraintIterator) Reset() { it.pos = -1 }

// Constraints collects every constraint the derivation chain of derived
// imposes, from the outermost base inward. A type with no bases or no
// constraints yields an empty iterator.
func Constraints(reg *registry.Registry, derived edsruntime.TypeHandle) (*ConstraintIterator, error) {
	var chain []edsruntime.TypeHandle
	for h := derived; ; {
		e, err := reg.Resolve(h)
		if err != nil {
			return nil, err
		}
		desc := e.Container()
		if desc == nil || desc.Base == 0 {
			chain = append(chain, h)
			break
		}
		chain = append(chain, h)
		h = desc.Base
	}

	var list []ConstraintInfo
	// chain runs derived-first; emit base-first so outer discriminators
	// come before inner ones.
	for i := len(chain) - 1; i > 0; i-- {
		base := chain[i]
		child := chain[i-1]
		be, err := reg.Resolve(base)
		if err != nil {
			return nil, err
		}
		desc := be.Container()
		de := findDerivative(desc, child)
		if de == nil {
			return nil, errors.InvalidData(errors.PhaseIdentify, []string{be.Name}, "derivative not recorded in base")
		}
		for _, ref := range de.Constraints {
			if int(ref.EntityIdx) >= len(desc.ConstraintEntities) || int(ref.ValueIdx) >= len(desc.Values) {
				return nil, errors.InvalidData(errors.PhaseIdentify, []string{be.Name}, "constraint reference out of range")
			}
			ent := desc.ConstraintEntities[ref.EntityIdx]
			list = append(list, ConstraintInfo{
				Entity: ent.Name,
				Offset: ent.Offset,
				Type:   ent.Type,
				Kind:   ref.Kind,
				Value:  desc.Values[ref.ValueIdx],
			})
		}
	}
	return &ConstraintIterator{list: list, pos: -1}, nil
}

func findDerivative(desc *dictionary.ContainerDescriptor, child edsruntime.TypeHandle) *dictionary.DerivativeEntry {
	if desc == nil {
		return nil
	}
	for i := range desc.Derivatives {
		if desc.Derivatives[i].Type.Similar(child) {
			return &desc.Derivatives[i]
		}
	}
	return nil
}
