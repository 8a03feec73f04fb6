// Package codec implements the primitive byte reader/writer that every
// synchronized value in lockstep is encoded with.
//
// The format is fixed across peers:
//   - Fixed-width integers and floats are little endian.
//   - Strings are UTF-8 in Normalization Form C, prefixed with their byte
//     length as an unsigned varint. Other spellings are rejected in both
//     directions, so every string has exactly one encoding.
//   - Byte blocks are opaque and prefixed the same way.
//
// Length prefixes are checked against Limits before anything sized by the
// prefix is allocated. A prefix above the limit is a FormatError (protocol
// violation); a prefix larger than the remaining input is a
// TruncatedDataError. There is no resynchronization: once a Reader fails the
// enclosing decode must be abandoned.
//
// Writers and Readers hold no shared state and may be used on any goroutine
// that owns the underlying buffer.
package codec
