package audio

import "encoding/binary"

// int16 full scale, used to map PCM16 onto [-1,1]
const pcm16Scale = 32768.0

// NormalizePCM16 decodes little-endian signed 16-bit samples into dst as
// values in [-1,1]. It returns the number of samples decoded.
func NormalizePCM16(dst []float64, pcm []byte) int {
	n := len(pcm) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[2*i:]))
		dst[i] = float64(s) / pcm16Scale
	}
	return n
}

// EncodePCM16 writes samples as little-endian signed 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}
