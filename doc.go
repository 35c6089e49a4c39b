// Package edsruntime provides a Go implementation of a CCSDS SOIS Electronic
// Data Sheet runtime type database and bit-level binary codec.
//
// This library is the runtime half of an EDS toolchain: an offline generator
// compiles EDS datasheets into per-application dictionaries (static type
// tables), and this library loads those dictionaries, resolves type handles,
// converts objects between the host-native memory layout and the exact
// bit-packed wire layout the datasheets prescribe, and identifies derived
// container types from packed bytes.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	edsruntime/          Root package with the TypeHandle contract
//	├── dictionary/      Generator-emitted type tables, builder, snapshots
//	├── registry/        Mount table for dictionaries, handle resolution,
//	│                    member lookup and entity iteration
//	├── codec/           Pack/unpack engine between native and packed form,
//	│                    byte-order conversion, error-control algorithms
//	├── identify/        Derived-type identification from packed buffers
//	├── calib/           Integer polynomial calibrators
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Register a dictionary and round-trip an object:
//
//	reg := registry.New()
//	app, err := reg.Register(dict)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h := edsruntime.MakeTypeHandle(0, app, pointFormat)
//	packer := codec.NewPacker(reg)
//
//	wire := make([]byte, 4)
//	if _, err := packer.PackCompleteObject(h, wire, native); err != nil {
//	    log.Fatal(err)
//	}
//
// # Type System
//
// Dictionaries describe types with six basic categories:
//
//   - Numbers: signed and unsigned integers, floats, with per-field bit
//     widths, byte orders, and encodings (two's/ones' complement,
//     sign/magnitude, BCD, IEEE 754, MIL-STD-1750A)
//   - Binary: raw octet blobs and NUL-delimited ASCII/UTF-8 strings
//   - Arrays: fixed-count sequences, optionally indexed by enumeration labels
//   - Containers: ordered entry lists with base-type inclusion, padding,
//     fixed-value, length, and error-control entries, plus derived types
//     identified by constraint values in the packed stream
//
// # Thread Safety
//
// Dictionary registration is NOT synchronized: a registry is expected to be
// populated during startup, before concurrent use. Once registration is
// quiescent, all lookup, pack, unpack, and identification operations are
// read-only over immutable tables and are safe to call from any number of
// goroutines, provided each call uses a distinct destination buffer.
//
// # Native Layout Model
//
// The "native" side of every conversion is a byte image of the generated C
// or Go structure for the type, in host byte order, with the field offsets
// and trailing padding the dictionary records. A dictionary compiled for a
// different architecture's layout must not be registered; the per-entry
// layout checksums exist to catch exactly that mismatch at registration
// time rather than as silent data corruption later.
package edsruntime
