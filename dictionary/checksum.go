package dictionary

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/edsworks/eds-runtime/errors"
)

// digestWriter serializes table content into an xxhash state in a fixed
// canonical order, so equal structure always produces an equal digest.
type digestWriter struct {
	h *xxhash.Digest
}

func newDigestWriter() digestWriter {
	return digestWriter{h: xxhash.New()}
}

func (w digestWriter) u8(v uint8) {
	w.h.Write([]byte{v})
}

func (w digestWriter) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.h.Write(b[:])
}

func (w digestWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.h.Write(b[:])
}

func (w digestWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.h.Write(b[:])
}

func (w digestWriter) i64(v int64) {
	w.u64(uint64(v))
}

func (w digestWriter) flag(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w digestWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.h.WriteString(s)
}

func (w digestWriter) fieldEntry(e *FieldEntry) {
	w.str(e.Name)
	w.u8(uint8(e.Kind))
	w.u32(e.Offset.Bits)
	w.u32(e.Offset.Bytes)
	w.u32(e.Type.Word())
	switch a := e.Arg.(type) {
	case nil:
		w.u8(0)
	case *CalibratorArg:
		w.u8(1)
		w.u8(uint8(a.Calibrator.Kind))
		w.u32(uint32(len(a.Calibrator.Coeffs)))
		for _, c := range a.Calibrator.Coeffs {
			w.i64(c)
		}
		w.i64(a.Calibrator.Divisor)
	case *FixedValueArg:
		w.u8(2)
		w.i64(a.Value)
	case *ErrorControlArg:
		w.u8(3)
		w.u8(uint8(a.Algorithm))
	}
}

// ChecksumEntry computes the structural digest of one type entry. The
// stored Checksum field does not participate.
func ChecksumEntry(e *TypeEntry) uint64 {
	w := newDigestWriter()
	w.str(e.Name)
	w.u8(uint8(e.Basic))
	w.u8(uint8(e.Flags))
	w.u32(e.Size.Bits)
	w.u32(e.Size.Bytes)
	w.u32(e.NumSubElements)

	switch d := e.Detail.(type) {
	case nil:
		w.u8(0)
	case *NumberDescriptor:
		w.u8(1)
		w.u8(uint8(d.Encoding))
		w.u8(uint8(d.Order))
		w.flag(d.BitInvert)
		if d.Enum == nil {
			w.u32(0)
		} else {
			w.u32(uint32(len(d.Enum.Labels)))
			for _, l := range d.Enum.Labels {
				w.str(l.Name)
				w.i64(l.Value)
			}
		}
	case *StringDescriptor:
		w.u8(2)
		w.u8(uint8(d.Charset))
	case *ArrayDescriptor:
		w.u8(3)
		w.u32(d.Element.Word())
		w.u32(d.IndexType.Word())
	case *ContainerDescriptor:
		w.u8(4)
		w.u32(d.MaxSize.Bits)
		w.u32(d.MaxSize.Bytes)
		w.u32(d.ContentSize.Bits)
		w.u32(d.ContentSize.Bytes)
		w.u32(d.Base.Word())
		w.u32(uint32(len(d.Entries)))
		for i := range d.Entries {
			w.fieldEntry(&d.Entries[i])
		}
		w.u32(uint32(len(d.TrailerEntries)))
		for i := range d.TrailerEntries {
			w.fieldEntry(&d.TrailerEntries[i])
		}
		w.u32(uint32(len(d.Derivatives)))
		for _, dv := range d.Derivatives {
			w.u32(dv.Type.Word())
			w.u32(uint32(len(dv.Constraints)))
			for _, c := range dv.Constraints {
				w.u16(c.EntityIdx)
				w.u16(c.ValueIdx)
				w.u8(uint8(c.Kind))
			}
		}
		w.u32(uint32(len(d.ConstraintEntities)))
		for _, ent := range d.ConstraintEntities {
			w.str(ent.Name)
			w.u32(ent.Offset.Bits)
			w.u32(ent.Offset.Bytes)
			w.u32(ent.Type.Word())
		}
		w.u32(uint32(len(d.Values)))
		for _, v := range d.Values {
			w.i64(v)
		}
		w.u32(uint32(len(d.IdentSequence)))
		for _, n := range d.IdentSequence {
			w.u8(uint8(n.Op))
			w.u16(n.NextLess)
			w.u16(n.NextGreater)
			w.u16(n.Parent)
			w.u16(n.RefIdx)
		}
		w.u16(d.IdentBase)
	}

	return w.h.Sum64()
}

// ChecksumDictionary computes the whole-dictionary digest by folding the
// header fields and every entry digest.
func ChecksumDictionary(d *AppDictionary) uint64 {
	w := newDigestWriter()
	w.str(d.Name)
	w.u16(d.MissionIdx)
	w.u16(d.AppIndex)
	w.str(d.FormatVersion)
	w.u32(uint32(d.NumFormats()))
	for i := 1; i < len(d.entries); i++ {
		w.u64(d.entries[i].Checksum)
	}
	return w.h.Sum64()
}

// VerifyChecksums recomputes every entry digest and the dictionary digest
// and compares them to the stored values. A mismatch means the tables were
// generated against a different structure layout than they claim.
func (d *AppDictionary) VerifyChecksums() error {
	for i := 1; i < len(d.entries); i++ {
		e := &d.entries[i]
		if got := ChecksumEntry(e); got != e.Checksum {
			return errors.ChecksumMismatch(errors.PhaseRegister, []string{d.Name, e.Name}, e.Checksum, got)
		}
	}
	if got := ChecksumDictionary(d); got != d.Checksum {
		return errors.ChecksumMismatch(errors.PhaseRegister, []string{d.Name}, d.Checksum, got)
	}
	return nil
}
