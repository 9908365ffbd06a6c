// Package record defines the value model shared by every other internal
// package: column kinds, the sealed storage Value interface, the untyped
// RawRecord property bag, the typed TypedRecord, and the structured error
// types raised while converting between the two.
//
// This package imports nothing internal. All other internal packages import
// record; record stays the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Decimal and Money never touch float64; they carry apd.Decimal so
//     currency values survive parse/format round-trips exactly.
//   - RawRecord and TypedRecord preserve insertion order so conversion and
//     diffing are deterministic and error messages are stable.
//   - Value is sealed: only the variants in this package implement it, so a
//     type switch over Value is exhaustive.
package record
