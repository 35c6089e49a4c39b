package registry

import (
	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
)

// TypeInfo is the caller-facing summary of one type entry: its basic type
// category, native and packed sizes, and direct sub-element count. It is a
// value copy and stays meaningful after the owning dictionary is
// unregistered.
type TypeInfo struct {
	ElemType       dictionary.BasicType
	Size           dictionary.SizeInfo
	NumSubElements uint32
}

// TypeInfo summarizes the entry a handle addresses.
func (r *Registry) TypeInfo(h edsruntime.TypeHandle) (TypeInfo, error) {
	e, err := r.Resolve(h)
	if err != nil {
		return TypeInfo{}, err
	}
	return TypeInfo{
		ElemType:       e.Basic,
		Size:           e.Size,
		NumSubElements: e.NumSubElements,
	}, nil
}
