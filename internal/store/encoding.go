package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector blobs are length-prefixed little-endian: a uint32 element count
// followed by the elements. Full-precision elements are float32 bits,
// half-precision elements are IEEE 754 binary16 bits.

// EncodeVector serializes a float32 vector into a full-precision blob.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes a full-precision blob back into a float32 vector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	if len(data) != int(4+n*4) {
		return nil, fmt.Errorf("vector blob size mismatch: %d elements, %d bytes", n, len(data))
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+i*4:]))
	}
	return vec, nil
}

// EncodeHalfVector serializes a vector into a half-precision blob. Values
// outside the float16 range saturate to infinity; tiny values flush through
// the subnormal range toward zero.
func EncodeHalfVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*2)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint16(buf[4+i*2:], float32ToFloat16(v))
	}
	return buf
}

// DecodeHalfVector deserializes a half-precision blob into float32 values.
func DecodeHalfVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("halfvec blob too short: %d bytes", len(data))
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	if len(data) != int(4+n*2) {
		return nil, fmt.Errorf("halfvec blob size mismatch: %d elements, %d bytes", n, len(data))
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = float16ToFloat32(binary.LittleEndian.Uint16(data[4+i*2:]))
	}
	return vec, nil
}

// RoundHalf returns vec rounded through float16 precision, element-wise.
// Records store their half-precision values this way so in-memory scoring
// matches what a decode of the stored blob would produce.
func RoundHalf(vec []float32) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float16ToFloat32(float32ToFloat16(v))
	}
	return out
}

// float32ToFloat16 converts with round-to-nearest-even.
func float32ToFloat16(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xFF
	mant := bits & 0x7FFFFF

	switch {
	case exp == 0xFF: // inf or NaN
		if mant != 0 {
			return sign | 0x7E00 // quiet NaN
		}
		return sign | 0x7C00
	case exp > 112+30: // overflows float16 exponent range
		return sign | 0x7C00
	case exp >= 113: // normal float16
		// float16 bias 15, float32 bias 127: 127-15 = 112
		h := sign | uint16(exp-112)<<10 | uint16(mant>>13)
		// round to nearest even on the 13 dropped mantissa bits
		round := mant & 0x1FFF
		if round > 0x1000 || (round == 0x1000 && h&1 == 1) {
			h++ // carries cleanly into exponent, up to inf
		}
		return h
	case exp >= 103: // subnormal float16
		mant |= 0x800000 // implicit leading bit
		shift := uint32(126 - exp)
		h := sign | uint16(mant>>shift)
		round := mant & ((1 << shift) - 1)
		half := uint32(1) << (shift - 1)
		if round > half || (round == half && h&1 == 1) {
			h++
		}
		return h
	default: // underflows to zero
		return sign
	}
}

// float16ToFloat32 converts exactly; every float16 value is representable.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h & 0x3FF)

	switch {
	case exp == 0x1F: // inf or NaN
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	case exp != 0: // normal
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	case mant != 0: // subnormal: renormalize
		e := uint32(113)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3FF
		return math.Float32frombits(sign | e<<23 | mant<<13)
	default:
		return math.Float32frombits(sign)
	}
}

// CosineSimilarity returns 1 - cosine distance between two vectors. A zero
// vector or length mismatch scores 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
