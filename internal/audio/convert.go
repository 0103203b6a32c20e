package audio

import (
	"encoding/binary"
	"math"
)

// float32FromBytes decodes little-endian IEEE-754 float32 samples.
func float32FromBytes(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// int16FromBytes decodes little-endian signed 16-bit samples to
// float32 in [-1, 1).
func int16FromBytes(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// int16ToFloat32 converts signed 16-bit samples to float32 in [-1, 1),
// copying into a new slice.
func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
