package registry

import (
	"strconv"
	"strings"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
)

// maxMemberDepth bounds recursive member walks. Builder-made dictionaries
// cannot nest this deep; the guard converts reference cycles in malformed
// imported tables into errors.
const maxMemberDepth = 64

// EntityInfo locates one sub-entity of a type: the entity's own type
// handle and size, plus its name and absolute offset within the queried
// type. Offsets stay absolute for members inherited from a base container.
type EntityInfo struct {
	Handle edsruntime.TypeHandle
	Name   string
	Kind   dictionary.EntryKind
	Offset dictionary.Offset
	Size   dictionary.SizeInfo
}

// MemberByIndex returns the idx'th sub-entity of an aggregate. Container
// members are counted over the flattened sequence: inherited base members
// first, then own content entries, then the trailer, with padding skipped.
// Array members are the elements in index order.
func (r *Registry) MemberByIndex(h edsruntime.TypeHandle, idx int) (EntityInfo, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return EntityInfo{}, err
	}
	switch e.Basic {
	case dictionary.BasicArray:
		if idx < 0 || uint32(idx) >= e.NumSubElements {
			return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, idx, int(e.NumSubElements))
		}
		return r.arrayElement(e, uint32(idx))
	case dictionary.BasicContainer:
		list, err := r.members(e.Container(), 0)
		if err != nil {
			return EntityInfo{}, err
		}
		if idx < 0 || idx >= len(list) {
			return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, idx, len(list))
		}
		return list[idx], nil
	default:
		return EntityInfo{}, noSubEntities(e)
	}
}

// LocateSubEntity resolves a dotted member path against a type and returns
// the located entity with its absolute offset. Path segments name container
// members exactly as declared; inherited base members are addressable
// without naming the base. Array elements are selected with a bracketed
// decimal index or enumeration label, as in "payload.samples[3]" or
// "volts[VOLTS_A]".
func (r *Registry) LocateSubEntity(h edsruntime.TypeHandle, path string) (EntityInfo, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return EntityInfo{}, err
	}
	if path == "" {
		return EntityInfo{}, errors.InvalidInput(errors.PhaseResolve, "empty entity path")
	}
	cur := EntityInfo{Handle: h, Name: e.Name, Size: e.Size}
	var walked []string
	for i := 0; i < len(path); {
		switch path[i] {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return EntityInfo{}, errors.InvalidInput(errors.PhaseResolve,
					"unterminated selector in entity path "+strconv.Quote(path))
			}
			sel := path[i+1 : i+end]
			if sel == "" {
				return EntityInfo{}, errors.InvalidInput(errors.PhaseResolve,
					"empty selector in entity path "+strconv.Quote(path))
			}
			cur, err = r.selectElement(cur, sel, walked)
			if err != nil {
				return EntityInfo{}, err
			}
			walked = append(walked, "["+sel+"]")
			i += end + 1
		case '.':
			if i == 0 || i+1 >= len(path) || path[i+1] == '.' {
				return EntityInfo{}, errors.InvalidInput(errors.PhaseResolve,
					"malformed entity path "+strconv.Quote(path))
			}
			i++
		default:
			j := i
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			cur, err = r.memberNamed(cur, path[i:j], walked)
			if err != nil {
				return EntityInfo{}, err
			}
			walked = append(walked, path[i:j])
			i = j
		}
	}
	return cur, nil
}

// SubMemberByOffset maps a native byte offset to the direct member whose
// storage covers it. Array offsets dispatch by element stride; container
// offsets scan the flattened member sequence. Offsets that land in padding
// belong to no member.
func (r *Registry) SubMemberByOffset(h edsruntime.TypeHandle, byteOffset uint32) (EntityInfo, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return EntityInfo{}, err
	}
	if byteOffset >= e.Size.Bytes {
		return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, int(byteOffset), int(e.Size.Bytes))
	}
	switch e.Basic {
	case dictionary.BasicArray:
		elem, err := r.Resolve(e.Array().Element)
		if err != nil {
			return EntityInfo{}, err
		}
		if elem.Size.Bytes == 0 {
			return EntityInfo{}, errors.InvalidData(errors.PhaseResolve, []string{e.Name}, "array element has zero size")
		}
		return r.arrayElement(e, byteOffset/elem.Size.Bytes)
	case dictionary.BasicContainer:
		list, err := r.members(e.Container(), 0)
		if err != nil {
			return EntityInfo{}, err
		}
		for _, m := range list {
			if byteOffset >= m.Offset.Bytes && byteOffset < m.Offset.Bytes+m.Size.Bytes {
				return m, nil
			}
		}
		return EntityInfo{}, errors.NotFound(errors.PhaseResolve, "member at byte offset", strconv.Itoa(int(byteOffset)))
	default:
		return EntityInfo{}, noSubEntities(e)
	}
}

// SubMemberByIndex maps a flat leaf ordinal to the direct member whose
// scalar cells cover it. Leaves are the scalar, string, and binary cells
// of the type counted depth-first, so an array of three two-field
// containers contributes six. The ordinal space is what a flattened
// telemetry row addresses.
func (r *Registry) SubMemberByIndex(h edsruntime.TypeHandle, flatIndex int) (EntityInfo, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return EntityInfo{}, err
	}
	if flatIndex < 0 {
		return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, flatIndex, 0)
	}
	switch e.Basic {
	case dictionary.BasicArray:
		per, err := r.leafCount(e.Array().Element, 0)
		if err != nil {
			return EntityInfo{}, err
		}
		total := per * int(e.NumSubElements)
		if per == 0 || flatIndex >= total {
			return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, flatIndex, total)
		}
		return r.arrayElement(e, uint32(flatIndex/per))
	case dictionary.BasicContainer:
		list, err := r.members(e.Container(), 0)
		if err != nil {
			return EntityInfo{}, err
		}
		cum := 0
		for _, m := range list {
			n, err := r.leafCount(m.Handle, 0)
			if err != nil {
				return EntityInfo{}, err
			}
			if flatIndex < cum+n {
				return m, nil
			}
			cum += n
		}
		return EntityInfo{}, errors.OutOfBounds(errors.PhaseResolve, []string{e.Name}, flatIndex, cum)
	default:
		return EntityInfo{}, noSubEntities(e)
	}
}

// members returns the flattened member sequence of a container: inherited
// base members first, then own content entries, then the trailer. Padding
// entries have no native presence and are skipped. A derivative's trailer
// list already holds the re-laid clones of its base trailer, so the base
// descent covers content entries only.
func (r *Registry) members(desc *dictionary.ContainerDescriptor, depth int) ([]EntityInfo, error) {
	out, err := r.appendContent(nil, desc, dictionary.Offset{}, depth)
	if err != nil {
		return nil, err
	}
	for i := range desc.TrailerEntries {
		fe := &desc.TrailerEntries[i]
		if !fe.Kind.HasNative() {
			continue
		}
		info, err := r.entryInfo(fe, dictionary.Offset{})
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

func (r *Registry) appendContent(dst []EntityInfo, desc *dictionary.ContainerDescriptor, at dictionary.Offset, depth int) ([]EntityInfo, error) {
	if depth >= maxMemberDepth {
		return nil, errors.InvalidData(errors.PhaseResolve, nil, "base chain exceeds depth limit")
	}
	for i := range desc.Entries {
		fe := &desc.Entries[i]
		switch fe.Kind {
		case dictionary.EntryPadding:
			continue
		case dictionary.EntryBase:
			be, err := r.Resolve(fe.Type)
			if err != nil {
				return nil, err
			}
			bd := be.Container()
			if bd == nil {
				return nil, errors.InvalidData(errors.PhaseResolve, []string{fe.Name}, "base entry does not reference a container")
			}
			dst, err = r.appendContent(dst, bd, addOffset(at, fe.Offset), depth+1)
			if err != nil {
				return nil, err
			}
		default:
			info, err := r.entryInfo(fe, at)
			if err != nil {
				return nil, err
			}
			dst = append(dst, info)
		}
	}
	return dst, nil
}

func (r *Registry) entryInfo(fe *dictionary.FieldEntry, at dictionary.Offset) (EntityInfo, error) {
	te, err := r.Resolve(fe.Type)
	if err != nil {
		return EntityInfo{}, err
	}
	return EntityInfo{
		Handle: fe.Type,
		Name:   fe.Name,
		Kind:   fe.Kind,
		Offset: addOffset(at, fe.Offset),
		Size:   te.Size,
	}, nil
}

// arrayElement synthesizes the entity info of one array element. Elements
// are not materialized as entries; the name is the index label when the
// array declares an indexing enumeration, otherwise the decimal index.
func (r *Registry) arrayElement(e *dictionary.TypeEntry, idx uint32) (EntityInfo, error) {
	ad := e.Array()
	elem, err := r.Resolve(ad.Element)
	if err != nil {
		return EntityInfo{}, err
	}
	name := strconv.FormatUint(uint64(idx), 10)
	if ad.IndexType.IsValid() {
		it, err := r.Resolve(ad.IndexType)
		if err != nil {
			return EntityInfo{}, err
		}
		if nd := it.Number(); nd != nil && nd.Enum != nil {
			if label, ok := nd.Enum.LabelForValue(int64(idx)); ok {
				name = label
			}
		}
	}
	return EntityInfo{
		Handle: ad.Element,
		Name:   name,
		Kind:   dictionary.EntryArrayElement,
		Offset: dictionary.Offset{Bits: idx * elem.Size.Bits, Bytes: idx * elem.Size.Bytes},
		Size:   elem.Size,
	}, nil
}

func (r *Registry) memberNamed(cur EntityInfo, name string, walked []string) (EntityInfo, error) {
	e, err := r.Resolve(cur.Handle)
	if err != nil {
		return EntityInfo{}, err
	}
	if e.Basic != dictionary.BasicContainer {
		return EntityInfo{}, errors.NameNotFound(errors.PhaseResolve, walked, name)
	}
	list, err := r.members(e.Container(), 0)
	if err != nil {
		return EntityInfo{}, err
	}
	for _, m := range list {
		if m.Name == name {
			m.Offset = addOffset(cur.Offset, m.Offset)
			return m, nil
		}
	}
	return EntityInfo{}, errors.NameNotFound(errors.PhaseResolve, walked, name)
}

func (r *Registry) selectElement(cur EntityInfo, sel string, walked []string) (EntityInfo, error) {
	e, err := r.Resolve(cur.Handle)
	if err != nil {
		return EntityInfo{}, err
	}
	if e.Basic != dictionary.BasicArray {
		return EntityInfo{}, errors.New(errors.PhaseResolve, errors.KindTypeMismatch).
			Path(walked...).
			EdsType(e.Basic.String()).
			Detail("selector %q applied to a non-array entity", sel).
			Build()
	}
	idx, err := r.elementIndex(e, sel, walked)
	if err != nil {
		return EntityInfo{}, err
	}
	info, err := r.arrayElement(e, idx)
	if err != nil {
		return EntityInfo{}, err
	}
	info.Offset = addOffset(cur.Offset, info.Offset)
	return info, nil
}

func (r *Registry) elementIndex(e *dictionary.TypeEntry, sel string, walked []string) (uint32, error) {
	if n, err := strconv.ParseInt(sel, 10, 32); err == nil {
		if n < 0 || uint32(n) >= e.NumSubElements {
			return 0, errors.OutOfBounds(errors.PhaseResolve, walked, int(n), int(e.NumSubElements))
		}
		return uint32(n), nil
	}
	ad := e.Array()
	if ad.IndexType.IsValid() {
		it, err := r.Resolve(ad.IndexType)
		if err != nil {
			return 0, err
		}
		if nd := it.Number(); nd != nil && nd.Enum != nil {
			v, ok := nd.Enum.ValueForLabel(sel)
			if !ok {
				return 0, errors.NameNotFound(errors.PhaseResolve, walked, sel)
			}
			if v < 0 || uint64(v) >= uint64(e.NumSubElements) {
				return 0, errors.OutOfBounds(errors.PhaseResolve, walked, int(v), int(e.NumSubElements))
			}
			return uint32(v), nil
		}
	}
	return 0, errors.NameNotFound(errors.PhaseResolve, walked, sel)
}

// leafCount counts the scalar cells of a type, descending aggregates.
func (r *Registry) leafCount(h edsruntime.TypeHandle, depth int) (int, error) {
	if depth >= maxMemberDepth {
		return 0, errors.InvalidData(errors.PhaseResolve, nil, "type nesting exceeds depth limit")
	}
	e, err := r.Resolve(h)
	if err != nil {
		return 0, err
	}
	switch e.Basic {
	case dictionary.BasicArray:
		per, err := r.leafCount(e.Array().Element, depth+1)
		if err != nil {
			return 0, err
		}
		return per * int(e.NumSubElements), nil
	case dictionary.BasicContainer:
		list, err := r.members(e.Container(), depth)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, m := range list {
			n, err := r.leafCount(m.Handle, depth+1)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	default:
		return 1, nil
	}
}

func addOffset(a, b dictionary.Offset) dictionary.Offset {
	return dictionary.Offset{Bits: a.Bits + b.Bits, Bytes: a.Bytes + b.Bytes}
}

func noSubEntities(e *dictionary.TypeEntry) error {
	return errors.New(errors.PhaseResolve, errors.KindTypeMismatch).
		Path(e.Name).
		EdsType(e.Basic.String()).
		Detail("type has no sub-entities").
		Build()
}
