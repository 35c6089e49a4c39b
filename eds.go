package edsruntime

import "fmt"

// TypeHandle identifies one type entry in one registered application
// dictionary. The handle packs three coordinates into a single word so it
// can be stored in telemetry, command headers, and table files directly:
//
//	bits 21-17  CpuNumber    originating processor (0 = unspecified)
//	bits 16-10  AppIndex     dictionary slot in the registry
//	bits  9-0   FormatIndex  entry index within the dictionary
//
// AppIndex and FormatIndex are 1-based; a zero in either field makes the
// handle invalid. CpuNumber is advisory routing information and never
// participates in dictionary resolution.
type TypeHandle uint32

// Field widths of the packed handle word.
const (
	FormatIndexBits = 10
	AppIndexBits    = 7
	CpuNumberBits   = 5
)

const (
	formatIndexShift = 0
	appIndexShift    = FormatIndexBits
	cpuNumberShift   = FormatIndexBits + AppIndexBits

	formatIndexMask = 1<<FormatIndexBits - 1
	appIndexMask    = 1<<AppIndexBits - 1
	cpuNumberMask   = 1<<CpuNumberBits - 1
)

// Largest representable value of each handle coordinate.
const (
	MaxFormatIndex = formatIndexMask
	MaxAppIndex    = appIndexMask
	MaxCpuNumber   = cpuNumberMask
)

// MakeTypeHandle assembles a handle from its coordinates. Values wider than
// the field are truncated to the field width.
func MakeTypeHandle(cpu, app, format uint16) TypeHandle {
	return TypeHandle(uint32(cpu&cpuNumberMask)<<cpuNumberShift |
		uint32(app&appIndexMask)<<appIndexShift |
		uint32(format&formatIndexMask)<<formatIndexShift)
}

// HandleFromWord reinterprets a raw wire word as a handle. Bits above the
// packed fields are discarded.
func HandleFromWord(w uint32) TypeHandle {
	return TypeHandle(w) & (1<<(cpuNumberShift+CpuNumberBits) - 1)
}

// Word returns the handle as a raw word for embedding in wire structures.
func (h TypeHandle) Word() uint32 { return uint32(h) }

// CpuNumber returns the processor coordinate.
func (h TypeHandle) CpuNumber() uint16 {
	return uint16(h>>cpuNumberShift) & cpuNumberMask
}

// AppIndex returns the dictionary slot coordinate. Zero is invalid.
func (h TypeHandle) AppIndex() uint16 {
	return uint16(h>>appIndexShift) & appIndexMask
}

// FormatIndex returns the entry coordinate within the dictionary. Zero is
// invalid.
func (h TypeHandle) FormatIndex() uint16 {
	return uint16(h>>formatIndexShift) & formatIndexMask
}

// IsValid reports whether both dictionary coordinates are nonzero. The zero
// TypeHandle is the canonical "no type" value.
func (h TypeHandle) IsValid() bool {
	return h.AppIndex() != 0 && h.FormatIndex() != 0
}

// Similar reports whether two handles name the same dictionary entry,
// ignoring the CpuNumber coordinate. Telemetry tagged by different
// processors still compares equal for dictionary purposes.
func (h TypeHandle) Similar(other TypeHandle) bool {
	const dictMask = appIndexMask<<appIndexShift | formatIndexMask<<formatIndexShift
	return h&dictMask == other&dictMask
}

// WithCpuNumber returns a copy of the handle with the processor coordinate
// replaced.
func (h TypeHandle) WithCpuNumber(cpu uint16) TypeHandle {
	const clear = ^TypeHandle(cpuNumberMask << cpuNumberShift)
	return h&clear | TypeHandle(uint32(cpu&cpuNumberMask)<<cpuNumberShift)
}

// String renders the handle as "app.format" with a "cpu:" prefix when the
// processor coordinate is set.
func (h TypeHandle) String() string {
	if cpu := h.CpuNumber(); cpu != 0 {
		return fmt.Sprintf("%d:%d.%d", cpu, h.AppIndex(), h.FormatIndex())
	}
	return fmt.Sprintf("%d.%d", h.AppIndex(), h.FormatIndex())
}
