// Package dictionary defines the generator-emitted type tables the runtime
// operates on: basic type categories, per-entry descriptors, container entry
// lists, derivative identification tables, and the application dictionary
// that groups one application's entries.
//
// A dictionary is produced offline by the EDS toolchain and is immutable
// once sealed. This package also provides the Builder, an in-process stand-in
// for the offline generator used by tests and tools, plus JSON snapshot
// import/export for moving sealed dictionaries between processes.
//
// # Descriptor model
//
// Every type is one TypeEntry. The entry carries category, packed bit size,
// native byte size, and a Detail describing the category-specific shape:
//
//	NumberDescriptor     encoding family, byte order, optional enum labels
//	StringDescriptor     character set of a NUL-delimited text field
//	ArrayDescriptor      element type and optional enumeration index type
//	ContainerDescriptor  entry lists, derivatives, identification tables
//
// Offsets come in pairs: a bit offset into the packed stream and a byte
// offset into the native structure. The pair is the contract between the
// wire format the datasheet prescribes and the generated structure layout
// the application compiles against.
//
// # Layout checksums
//
// Each entry carries a digest of its structural content, and the dictionary
// carries a digest folding all entries. The registry recomputes both at
// registration and refuses tables whose digests disagree, which catches a
// dictionary generated for a different structure layout before it can
// corrupt data.
package dictionary
