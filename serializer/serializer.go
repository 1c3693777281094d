package serializer

import (
	"cmp"
	"encoding/binary"
	"io"
	"math"
	"slices"
)

// Serializer writes the wire encoding to an io.Writer, counting bytes and
// latching the first error. Write methods return the receiver so encodings
// chain; check Err once at the end.
type Serializer struct {
	w   io.Writer
	n   int
	err error
}

// NewSerializer returns a Serializer writing to w.
func NewSerializer(w io.Writer) *Serializer {
	return &Serializer{w: w}
}

// Err returns the first write error, or nil. Once non-nil every subsequent
// write is a no-op.
func (s *Serializer) Err() error { return s.err }

// Pos returns the number of bytes successfully written.
func (s *Serializer) Pos() int { return s.n }

func (s *Serializer) write(p []byte) {
	if s.err != nil {
		return
	}
	n, err := s.w.Write(p)
	s.n += n
	if err != nil {
		s.err = err
	}
}

// WriteRaw writes p verbatim, with no length prefix.
func (s *Serializer) WriteRaw(p []byte) *Serializer {
	s.write(p)
	return s
}

func (s *Serializer) WriteBool(v bool) *Serializer {
	b := byte(0)
	if v {
		b = 1
	}
	s.write([]byte{b})
	return s
}

func (s *Serializer) WriteUint8(v uint8) *Serializer {
	s.write([]byte{v})
	return s
}

func (s *Serializer) WriteInt8(v int8) *Serializer {
	return s.WriteUint8(uint8(v))
}

func (s *Serializer) WriteUint16(v uint16) *Serializer {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], v)
	s.write(buf[:])
	return s
}

func (s *Serializer) WriteInt16(v int16) *Serializer {
	return s.WriteUint16(uint16(v))
}

func (s *Serializer) WriteUint32(v uint32) *Serializer {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], v)
	s.write(buf[:])
	return s
}

func (s *Serializer) WriteInt32(v int32) *Serializer {
	return s.WriteUint32(uint32(v))
}

func (s *Serializer) WriteUint64(v uint64) *Serializer {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], v)
	s.write(buf[:])
	return s
}

func (s *Serializer) WriteInt64(v int64) *Serializer {
	return s.WriteUint64(uint64(v))
}

func (s *Serializer) WriteFloat64(v float64) *Serializer {
	return s.WriteUint64(math.Float64bits(v))
}

// WriteString writes the unsigned 32-bit byte length followed by the bytes.
func (s *Serializer) WriteString(v string) *Serializer {
	s.WriteUint32(uint32(len(v)))
	if len(v) > 0 {
		s.write([]byte(v))
	}
	return s
}

// WriteBytes writes the unsigned 32-bit length followed by the bytes.
func (s *Serializer) WriteBytes(v []byte) *Serializer {
	s.WriteUint32(uint32(len(v)))
	if len(v) > 0 {
		s.write(v)
	}
	return s
}

// WriteSlice writes the unsigned 32-bit element count, then each element
// via write, in order.
func WriteSlice[T any](s *Serializer, items []T, write func(*Serializer, T)) *Serializer {
	s.WriteUint32(uint32(len(items)))
	for _, item := range items {
		write(s, item)
	}
	return s
}

// WriteMap writes the unsigned 32-bit entry count, then each key/value pair
// in ascending key order, so equal maps produce identical bytes.
func WriteMap[K cmp.Ordered, V any](s *Serializer, m map[K]V, writeKey func(*Serializer, K), writeValue func(*Serializer, V)) *Serializer {
	s.WriteUint32(uint32(len(m)))
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeKey(s, k)
		writeValue(s, m[k])
	}
	return s
}

// WriteSet writes the unsigned 32-bit element count, then each element via
// write, in ascending order, so equal sets produce identical bytes.
func WriteSet[T cmp.Ordered](s *Serializer, set map[T]struct{}, write func(*Serializer, T)) *Serializer {
	s.WriteUint32(uint32(len(set)))
	items := make([]T, 0, len(set))
	for item := range set {
		items = append(items, item)
	}
	slices.Sort(items)
	for _, item := range items {
		write(s, item)
	}
	return s
}
