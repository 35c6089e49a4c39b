package dictionary

import (
	"fmt"
	"math"
	"sort"

	"github.com/edsworks/eds-runtime/errors"
)

// Seal freezes the dictionary. Maximum sizes are folded upward over every
// derivation closure, an identification decision tree is generated for each
// container with constrained derivatives, and layout checksums are
// computed. Registration accepts only sealed dictionaries.
func (b *Builder) Seal() (*AppDictionary, error) {
	if b.err != nil {
		return nil, b.err
	}
	d := b.dict
	if d.sealed {
		return d, nil
	}

	// A derivative always carries a higher format index than its base, so a
	// reverse pass settles MaxSize over arbitrarily deep derivations.
	for i := len(d.entries) - 1; i >= 1; i-- {
		e := &d.entries[i]
		desc := e.Container()
		if desc == nil {
			continue
		}
		for _, dv := range desc.Derivatives {
			de, ok := d.Entry(dv.Type.FormatIndex())
			if !ok {
				return nil, errors.InvalidHandle(errors.PhaseBuild, dv.Type.String(), "derivative handle out of range")
			}
			dd := de.Container()
			if dd == nil {
				return nil, errors.InvalidHandle(errors.PhaseBuild, dv.Type.String(), "derivative is not a container")
			}
			if dd.MaxSize.Bits > desc.MaxSize.Bits {
				desc.MaxSize.Bits = dd.MaxSize.Bits
			}
			if dd.MaxSize.Bytes > desc.MaxSize.Bytes {
				desc.MaxSize.Bytes = dd.MaxSize.Bytes
			}
		}
		if len(desc.Derivatives) > 0 {
			if err := buildIdentTree(e.Name, desc); err != nil {
				return nil, err
			}
		}
	}

	for i := 1; i < len(d.entries); i++ {
		d.entries[i].Checksum = ChecksumEntry(&d.entries[i])
	}
	d.Checksum = ChecksumDictionary(d)
	d.sealed = true
	return d, nil
}

// identBuild lays out one container's identification decision tree.
type identBuild struct {
	name  string
	desc  *ContainerDescriptor
	nodes []IdentSequenceNode
	seq   []uint16
	kinds []ConstraintKind
}

// buildIdentTree turns the derivative constraint table of a container into
// a decision tree: one entity location node per constrained entity, a
// balanced comparison tree over the distinct values below it, and result
// nodes at the leaves. Derivatives without constraints are never selected
// by identification and are left out of the tree.
func buildIdentTree(name string, desc *ContainerDescriptor) error {
	var constrained []int
	for i, dv := range desc.Derivatives {
		if len(dv.Constraints) > 0 {
			constrained = append(constrained, i)
		}
	}
	if len(constrained) == 0 {
		return nil
	}

	ib := &identBuild{name: name, desc: desc}
	for _, c := range desc.Derivatives[constrained[0]].Constraints {
		ib.seq = append(ib.seq, c.EntityIdx)
		ib.kinds = append(ib.kinds, c.Kind)
	}
	for _, di := range constrained[1:] {
		cs := desc.Derivatives[di].Constraints
		if len(cs) != len(ib.seq) {
			return errors.Unsupported(errors.PhaseBuild,
				fmt.Sprintf("derivatives of %s constrain different entity counts", name))
		}
		for j, c := range cs {
			if c.EntityIdx != ib.seq[j] || c.Kind != ib.kinds[j] {
				return errors.Unsupported(errors.PhaseBuild,
					fmt.Sprintf("derivatives of %s constrain different entity sequences", name))
			}
		}
	}

	ib.nodes = append(ib.nodes, IdentSequenceNode{Op: IdentInvalid})
	root, err := ib.level(0, constrained)
	if err != nil {
		return err
	}
	for i, n := range ib.nodes {
		if n.NextLess != 0 {
			ib.nodes[n.NextLess].Parent = uint16(i)
		}
		if n.NextGreater != 0 {
			ib.nodes[n.NextGreater].Parent = uint16(i)
		}
	}
	desc.IdentSequence = ib.nodes
	desc.IdentBase = root
	return nil
}

func (ib *identBuild) alloc(n IdentSequenceNode) (uint16, error) {
	if len(ib.nodes) >= math.MaxUint16 {
		return 0, errors.InvalidInput(errors.PhaseBuild,
			fmt.Sprintf("identification sequence of %s exceeds the node limit", ib.name))
	}
	ib.nodes = append(ib.nodes, n)
	return uint16(len(ib.nodes) - 1), nil
}

func (ib *identBuild) valueIdx(v int64) uint16 {
	for i, w := range ib.desc.Values {
		if w == v {
			return uint16(i)
		}
	}
	return 0
}

// level emits the subtree deciding one entity of the constraint sequence
// for the given candidate derivatives.
func (ib *identBuild) level(lv int, derivs []int) (uint16, error) {
	groups := make(map[int64][]int)
	for _, di := range derivs {
		ref := ib.desc.Derivatives[di].Constraints[lv]
		v := ib.desc.Values[ref.ValueIdx]
		groups[v] = append(groups[v], di)
	}
	vals := make([]int64, 0, len(groups))
	for v := range groups {
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })

	var sub uint16
	var err error
	if ib.kinds[lv] == ConstraintType {
		// Type conditions identify the sub-entity recursively, so ordering
		// comparisons do not apply: chain them, tried in ascending value
		// order, falling through to the invalid sentinel.
		for i := len(vals) - 1; i >= 0; i-- {
			tgt, terr := ib.target(lv, groups[vals[i]])
			if terr != nil {
				return 0, terr
			}
			sub, err = ib.alloc(IdentSequenceNode{
				Op:          IdentTypeCondition,
				RefIdx:      ib.valueIdx(vals[i]),
				NextGreater: tgt,
				NextLess:    sub,
			})
			if err != nil {
				return 0, err
			}
		}
	} else {
		sub, err = ib.bst(lv, vals, groups)
		if err != nil {
			return 0, err
		}
	}
	return ib.alloc(IdentSequenceNode{
		Op:          IdentEntityLocation,
		RefIdx:      ib.seq[lv],
		NextGreater: sub,
	})
}

// bst emits a balanced comparison tree over sorted distinct values: range
// nodes split the value set, equality leaves select the next level or a
// result.
func (ib *identBuild) bst(lv int, vals []int64, groups map[int64][]int) (uint16, error) {
	if len(vals) == 1 {
		tgt, err := ib.target(lv, groups[vals[0]])
		if err != nil {
			return 0, err
		}
		return ib.alloc(IdentSequenceNode{
			Op:          IdentValueCondition,
			RefIdx:      ib.valueIdx(vals[0]),
			NextGreater: tgt,
		})
	}
	mid := (len(vals) - 1) / 2
	left, err := ib.bst(lv, vals[:mid+1], groups)
	if err != nil {
		return 0, err
	}
	right, err := ib.bst(lv, vals[mid+1:], groups)
	if err != nil {
		return 0, err
	}
	return ib.alloc(IdentSequenceNode{
		Op:          IdentRangeCondition,
		RefIdx:      ib.valueIdx(vals[mid]),
		NextLess:    left,
		NextGreater: right,
	})
}

// target emits the node a fully matched value leads to: the next level's
// subtree, or a result node when every entity has been decided.
func (ib *identBuild) target(lv int, group []int) (uint16, error) {
	if lv == len(ib.seq)-1 {
		if len(group) > 1 {
			a := ib.desc.Derivatives[group[0]].Type
			b := ib.desc.Derivatives[group[1]].Type
			return 0, errors.InvalidInput(errors.PhaseBuild,
				fmt.Sprintf("derivatives %s and %s of %s have identical constraints", a, b, ib.name))
		}
		return ib.alloc(IdentSequenceNode{Op: IdentResult, RefIdx: uint16(group[0])})
	}
	return ib.level(lv+1, group)
}
