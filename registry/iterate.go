package registry

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
)

// MemberIterator walks the flattened member sequence of one aggregate.
// It is restartable: Reset rewinds to the first member without touching
// the registry again.
//
//	it, err := reg.Members(handle)
//	if err != nil { ... }
//	for it.Next() {
//		use(it.Entity())
//	}
type MemberIterator struct {
	list []EntityInfo
	pos  int
}

// Members returns an iterator over the direct sub-entities of an
// aggregate, in the same order MemberByIndex counts them.
func (r *Registry) Members(h edsruntime.TypeHandle) (*MemberIterator, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return nil, err
	}
	switch e.Basic {
	case dictionary.BasicArray:
		list := make([]EntityInfo, 0, e.NumSubElements)
		for i := uint32(0); i < e.NumSubElements; i++ {
			info, err := r.arrayElement(e, i)
			if err != nil {
				return nil, err
			}
			list = append(list, info)
		}
		return &MemberIterator{list: list, pos: -1}, nil
	case dictionary.BasicContainer:
		list, err := r.members(e.Container(), 0)
		if err != nil {
			return nil, err
		}
		return &MemberIterator{list: list, pos: -1}, nil
	default:
		return nil, noSubEntities(e)
	}
}

// Next advances to the next member and reports whether one exists.
func (it *MemberIterator) Next() bool {
	if it.pos+1 >= len(it.list) {
		return false
	}
	it.pos++
	return true
}

// Entity returns the member Next advanced to.
func (it *MemberIterator) Entity() EntityInfo {
	if it.pos < 0 || it.pos >= len(it.list) {
		return EntityInfo{}
	}
	return it.list[it.pos]
}

// Len returns the total member count.
func (it *MemberIterator) Len() int { return len(it.list) }

// Reset rewinds the iterator to the first member.
func (it *MemberIterator) Reset() { it.pos = -1 }
