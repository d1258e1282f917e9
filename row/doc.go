// Package row defines the field values replayed between a source table and
// its rebuilt copy, together with their self-contained binary encoding.
//
// Text and blob values may carry a compressed payload (snappy or zstd) and may
// reference out-of-line bytes owned by an Arena. Encode always inlines such
// references while keeping compressed payloads compressed, so an encoded row
// stays readable after the arena that produced it has been reset.
package row
