package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ErrShortRead is the panic value (wrapped) when a Deserializer cannot
// produce the requested bytes.
var ErrShortRead = fmt.Errorf("serializer: short read")

// Deserializer reads the wire encoding from an io.Reader, counting bytes.
// A short or failed read panics with an error wrapping ErrShortRead; a
// stream that ends early is corrupt, and truncated values must never be
// handed to the caller as data.
type Deserializer struct {
	r   io.Reader
	n   int
	len int
}

// NewDeserializer returns a Deserializer reading from r. The total stream
// length is unknown, so AtEnd reports false until a read fails.
func NewDeserializer(r io.Reader) *Deserializer {
	return &Deserializer{r: r, len: -1}
}

// NewDeserializerBytes returns a Deserializer over an in-memory encoding,
// with Len and AtEnd fully defined.
func NewDeserializerBytes(data []byte) *Deserializer {
	return &Deserializer{r: bytes.NewReader(data), len: len(data)}
}

// Pos returns the number of bytes consumed.
func (d *Deserializer) Pos() int { return d.n }

// Len returns the total stream length, or -1 when unknown.
func (d *Deserializer) Len() int { return d.len }

// AtEnd reports whether every byte of a known-length stream was consumed.
func (d *Deserializer) AtEnd() bool { return d.len >= 0 && d.n == d.len }

func (d *Deserializer) read(p []byte) {
	n, err := io.ReadFull(d.r, p)
	d.n += n
	if err != nil {
		panic(fmt.Errorf("%w: need %d bytes at offset %d: %v", ErrShortRead, len(p), d.n-n, err))
	}
}

// ReadRaw reads exactly len(p) bytes into p.
func (d *Deserializer) ReadRaw(p []byte) {
	if len(p) > 0 {
		d.read(p)
	}
}

func (d *Deserializer) ReadBool() bool {
	var buf [1]byte
	d.read(buf[:])
	return buf[0] != 0
}

func (d *Deserializer) ReadUint8() uint8 {
	var buf [1]byte
	d.read(buf[:])
	return buf[0]
}

func (d *Deserializer) ReadInt8() int8 {
	return int8(d.ReadUint8())
}

func (d *Deserializer) ReadUint16() uint16 {
	var buf [2]byte
	d.read(buf[:])
	return binary.NativeEndian.Uint16(buf[:])
}

func (d *Deserializer) ReadInt16() int16 {
	return int16(d.ReadUint16())
}

func (d *Deserializer) ReadUint32() uint32 {
	var buf [4]byte
	d.read(buf[:])
	return binary.NativeEndian.Uint32(buf[:])
}

func (d *Deserializer) ReadInt32() int32 {
	return int32(d.ReadUint32())
}

func (d *Deserializer) ReadUint64() uint64 {
	var buf [8]byte
	d.read(buf[:])
	return binary.NativeEndian.Uint64(buf[:])
}

func (d *Deserializer) ReadInt64() int64 {
	return int64(d.ReadUint64())
}

func (d *Deserializer) ReadFloat64() float64 {
	return math.Float64frombits(d.ReadUint64())
}

// ReadString reads an unsigned 32-bit byte length followed by the bytes.
func (d *Deserializer) ReadString() string {
	return string(d.ReadBytes())
}

// ReadBytes reads an unsigned 32-bit length followed by the bytes. An empty
// value yields a nil slice.
func (d *Deserializer) ReadBytes() []byte {
	size := d.ReadUint32()
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	d.read(buf)
	return buf
}

// ReadSlice reads an unsigned 32-bit element count, then each element via
// read, in order.
func ReadSlice[T any](d *Deserializer, read func(*Deserializer) T) []T {
	size := d.ReadUint32()
	if size == 0 {
		return nil
	}
	items := make([]T, 0, size)
	for i := uint32(0); i < size; i++ {
		items = append(items, read(d))
	}
	return items
}

// ReadMap reads an unsigned 32-bit entry count, then each key/value pair.
func ReadMap[K comparable, V any](d *Deserializer, readKey func(*Deserializer) K, readValue func(*Deserializer) V) map[K]V {
	size := d.ReadUint32()
	m := make(map[K]V, size)
	for i := uint32(0); i < size; i++ {
		k := readKey(d)
		m[k] = readValue(d)
	}
	return m
}

// ReadSet reads an unsigned 32-bit element count, then each element via
// read.
func ReadSet[T comparable](d *Deserializer, read func(*Deserializer) T) map[T]struct{} {
	size := d.ReadUint32()
	set := make(map[T]struct{}, size)
	for i := uint32(0); i < size; i++ {
		set[read(d)] = struct{}{}
	}
	return set
}
