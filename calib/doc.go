// Package calib implements the integer polynomial calibrators attached to
// dictionary field entries.
//
// Datasheets declare calibrators with floating point coefficients, but the
// runtime evaluates them in exact integer arithmetic so that quantities such
// as message byte counts survive a pack/unpack round trip bit for bit. At
// build or import time each float polynomial is reduced to an integer
// coefficient vector over a common power-of-ten divisor (Reduce); evaluation
// then divides the integer polynomial result by the divisor.
//
// Forward converts a raw wire count to the engineering quantity. Reverse is
// the algebraic inverse and exists only for polynomials of order one or
// none; the pack engine uses it to recompute length fields.
//
// Spline calibrators are not representable here. The offline generator
// rejects them, and snapshot import reports them as unsupported.
package calib
