// Package errors provides structured error types for the eds-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: entity path, Go/EDS type
// names, and cause chain. Every Kind corresponds to one of the library's
// status conditions, so callers can branch on outcomes without string
// matching.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseUnpack, errors.KindSizeMismatch).
//		Path("ccsds", "length").
//		EdsType("uint16").
//		Detail("buffer ends inside field").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidFormatIndex(errors.PhaseResolve, 5, 900)
//	err := errors.SizeMismatch(errors.PhaseUnpack, path, 48, 32, "bits")
//
// All errors implement the standard error interface and support errors.Is/As.
// Kind predicates (IsChecksumMismatch, IsSizeMismatch, ...) match a kind
// anywhere in a wrap chain regardless of phase; recoverable conditions such
// as a trailing checksum mismatch are detected this way.
package errors
