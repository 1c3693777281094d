// Package serializer implements the byte-oriented encoding used to move
// deferred-call payloads between processes: fixed-width values as raw
// native-endian bytes, variable-length values prefixed with an unsigned
// 32-bit length, containers prefixed with an unsigned 32-bit count.
//
// A [Serializer] latches its first write error and turns every subsequent
// write into a no-op, so a chain of writes needs a single Err check at the
// end. A [Deserializer] treats a short or failed read as evidence of a
// corrupt or truncated stream and panics rather than silently truncating;
// decode boundaries that can tolerate corrupt input must recover.
package serializer
