package fingerprint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// enc is the byte order used for all serialization.
// BigEndian keeps fingerprints identical across platforms.
var enc = binary.BigEndian

// Serializer converts geometry row fields to bytes for hashing.
// Equal field values always produce equal bytes.
type Serializer struct {
	buf bytes.Buffer
}

// NewSerializer creates a new Serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize converts values to bytes.
// The format is deterministic: each value is type-tagged and length-prefixed.
func (s *Serializer) Serialize(values ...any) []byte {
	s.buf.Reset()

	for _, v := range values {
		s.serializeValue(v)
	}

	// Return a copy to avoid buffer reuse issues
	result := make([]byte, s.buf.Len())
	copy(result, s.buf.Bytes())
	return result
}

func (s *Serializer) serializeValue(v any) {
	switch val := v.(type) {
	case nil:
		s.writeType(0)

	case string:
		s.writeType(1)
		s.writeBytes([]byte(val))

	case int64:
		s.writeType(2)
		s.writeInt64(val)

	case int:
		s.writeType(2)
		s.writeInt64(int64(val))

	case float64:
		s.writeType(3)
		s.writeFloat64(val)

	case bool:
		s.writeType(4)
		if val {
			s.buf.WriteByte(1)
		} else {
			s.buf.WriteByte(0)
		}

	case []float64:
		s.writeType(5)
		s.writeInt64(int64(len(val)))
		for _, f := range val {
			s.writeFloat64(f)
		}

	case [][]float64:
		if val == nil {
			s.writeType(0)
			return
		}
		s.writeType(6)
		s.writeInt64(int64(len(val)))
		for _, ring := range val {
			s.serializeValue(ring)
		}

	default:
		s.writeType(1)
		s.writeBytes([]byte(fmt.Sprintf("%v", val)))
	}
}

func (s *Serializer) writeType(t byte) {
	s.buf.WriteByte(t)
}

func (s *Serializer) writeBytes(b []byte) {
	var lenBuf [4]byte
	enc.PutUint32(lenBuf[:], uint32(len(b)))
	s.buf.Write(lenBuf[:])
	s.buf.Write(b)
}

func (s *Serializer) writeInt64(i int64) {
	var buf [8]byte
	enc.PutUint64(buf[:], uint64(i))
	s.buf.Write(buf[:])
}

func (s *Serializer) writeFloat64(f float64) {
	var buf [8]byte
	enc.PutUint64(buf[:], math.Float64bits(f))
	s.buf.Write(buf[:])
}
