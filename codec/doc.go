// Package codec converts objects between their native and packed forms.
//
// The two representations of every registered type:
//
//	┌──────────────────────────────────────────────────────────────┐
//	│ Native buffer ←→ [Packer / Unpacker] ←→ Packed bit stream    │
//	└──────────────────────────────────────────────────────────────┘
//
// # Native form
//
// Host-order scalars at the byte offsets the dictionary records, sized
// and aligned the way the generated structures are. Strings and binaries
// occupy their declared widths in place.
//
// # Packed form
//
// A bit stream. Every field occupies exactly its declared bit width at
// its declared bit offset, in its declared encoding and byte order.
// Stream bit 0 is the most significant bit of byte 0 for big-endian
// packed containers, the least significant for little-endian ones.
//
// # Engine-produced fields
//
// Padding bits are zero-filled. Fixed value entries write their literal,
// ignoring the source. Length entries carry the total packed byte count
// of the complete object through the entry's reverse calibration. Error
// control entries are computed over the packed bytes preceding them and
// are verified, not trusted, on unpack: a mismatch is reported after the
// decode completes so the caller still holds the decoded content.
//
// Packing a container with derivatives identifies the most derived type
// from the discriminator fields in the native source and packs that, so
// the native buffer must span the derived object (GetDerivedInfo gives
// the allocation bound). Unpacking identifies from the packed stream.
// The constraint values selecting the packed derivative are written into
// the output even when the source holds something else, keeping every
// packed object self-describing.
package codec
