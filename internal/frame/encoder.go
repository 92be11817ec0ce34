package frame

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

// Encoder builds a canonical byte encoding of a row for hashing and exact
// equality. Every value is type-tagged and strings are length-prefixed, so
// two rows encode identically only if every column is equal. A nil pointer
// encodes differently from any present value, including the zero value.
type Encoder struct {
	buf []byte
}

const (
	tagNull byte = iota
	tagString
	tagInt
	tagFloat
	tagBool
)

// Reset clears the buffer for reuse.
func (e *Encoder) Reset() { e.buf = e.buf[:0] }

// Bytes returns the encoding. It is only valid until the next Reset.
func (e *Encoder) Bytes() []byte { return e.buf }

// Sum64 is the xxh3 hash of the encoding.
func (e *Encoder) Sum64() uint64 { return xxh3.Hash(e.buf) }

// Sum128 is the 128-bit xxh3 hash of the encoding.
func (e *Encoder) Sum128() xxh3.Uint128 { return xxh3.Hash128(e.buf) }

// Null appends a null marker.
func (e *Encoder) Null() { e.buf = append(e.buf, tagNull) }

// String appends a string value.
func (e *Encoder) String(s string) {
	e.buf = append(e.buf, tagString)
	e.buf = binary.AppendUvarint(e.buf, uint64(len(s)))
	e.buf = append(e.buf, s...)
}

// Int appends an integer value.
func (e *Encoder) Int(v int64) {
	e.buf = append(e.buf, tagInt)
	e.buf = binary.AppendVarint(e.buf, v)
}

// Float appends a float value. -0 and +0 encode the same.
func (e *Encoder) Float(v float64) {
	if v == 0 {
		v = 0
	}
	e.buf = append(e.buf, tagFloat)
	e.buf = binary.BigEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// Bool appends a boolean value.
func (e *Encoder) Bool(v bool) {
	e.buf = append(e.buf, tagBool)
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// OptString appends *s or a null marker.
func (e *Encoder) OptString(s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.String(*s)
}

// OptInt appends *v or a null marker.
func (e *Encoder) OptInt(v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int(*v)
}

// OptInt32 appends *v or a null marker.
func (e *Encoder) OptInt32(v *int32) {
	if v == nil {
		e.Null()
		return
	}
	e.Int(int64(*v))
}

// OptFloat appends *v or a null marker.
func (e *Encoder) OptFloat(v *float64) {
	if v == nil {
		e.Null()
		return
	}
	e.Float(*v)
}
