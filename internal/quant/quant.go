// Package quant implements the affine quantization shared by preprocessing
// and postprocessing: real = scale * (q - zeroPoint).
package quant

import (
	"errors"
	"fmt"
	"math"
)

// ErrParams is returned for unusable quantization parameters.
var ErrParams = errors.New("invalid quantization parameters")

// Type is the integer element type of a quantized tensor.
type Type string

const (
	Uint8 Type = "uint8"
	Int8  Type = "int8"
)

// Range returns the smallest and largest representable value.
func (t Type) Range() (lo, hi int32) {
	if t == Int8 {
		return math.MinInt8, math.MaxInt8
	}
	return 0, math.MaxUint8
}

// Params are the scale and zero point of a quantized tensor.
type Params struct {
	Scale     float32 `yaml:"scale"`
	ZeroPoint int32   `yaml:"zero_point"`
	Type      Type    `yaml:"type"`
}

// Validate checks the scale is positive and the zero point representable.
func (p Params) Validate() error {
	if p.Type != Uint8 && p.Type != Int8 {
		return fmt.Errorf("%w: type %q", ErrParams, p.Type)
	}
	if !(p.Scale > 0) || math.IsInf(float64(p.Scale), 0) {
		return fmt.Errorf("%w: scale %v", ErrParams, p.Scale)
	}
	lo, hi := p.Type.Range()
	if p.ZeroPoint < lo || p.ZeroPoint > hi {
		return fmt.Errorf("%w: zero point %d outside [%d, %d]", ErrParams, p.ZeroPoint, lo, hi)
	}
	return nil
}

// Quantize maps a real value to the nearest representable integer,
// saturating at the type range. NaN maps to the zero point.
func (p Params) Quantize(x float32) int32 {
	if math.IsNaN(float64(x)) {
		return p.ZeroPoint
	}
	lo, hi := p.Type.Range()
	v := math.Round(float64(x)/float64(p.Scale)) + float64(p.ZeroPoint)
	return int32(min(max(v, float64(lo)), float64(hi)))
}

// Dequantize maps a quantized value back to a real value.
func (p Params) Dequantize(q int32) float32 {
	return p.Scale * float32(q-p.ZeroPoint)
}

// Encode returns the byte representation of q in the tensor's type.
func (p Params) Encode(q int32) byte {
	if p.Type == Int8 {
		return byte(int8(q))
	}
	return byte(q)
}

// Decode reads a tensor element in the tensor's type.
func (p Params) Decode(b byte) int32 {
	if p.Type == Int8 {
		return int32(int8(b))
	}
	return int32(b)
}

// DequantizeAll decodes and dequantizes a whole tensor into dst.
func (p Params) DequantizeAll(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = p.Dequantize(p.Decode(src[i]))
	}
}

// QuantizeAll quantizes and encodes a whole tensor into dst.
func (p Params) QuantizeAll(dst []byte, src []float32) {
	for i := range src {
		dst[i] = p.Encode(p.Quantize(src[i]))
	}
}

// Normalizer maps an 8-bit pixel to the real network input:
// real = pixel/Scale + Offset.
type Normalizer struct {
	Scale  float32 `yaml:"scale"`
	Offset float32 `yaml:"offset"`
}

// Apply normalizes one pixel value.
func (n Normalizer) Apply(pixel uint8) float32 {
	return float32(pixel)/n.Scale + n.Offset
}

// LUT maps an 8-bit pixel straight to its encoded network input byte.
type LUT [256]byte

// BuildLUT precomputes normalization followed by quantization for every
// pixel value.
func BuildLUT(n Normalizer, p Params) *LUT {
	var lut LUT
	for i := range lut {
		lut[i] = p.Encode(p.Quantize(n.Apply(uint8(i))))
	}
	return &lut
}
