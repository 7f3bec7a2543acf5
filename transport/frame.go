package transport

import (
	"encoding/binary"
	"math"
)

const (
	// HeaderSize is the length prefix: payload bytes as uint32 little-endian.
	HeaderSize = 4
	// BytesPerSample is the width of one float32 sample on the wire.
	BytesPerSample = 4
	// MaxReplySize bounds the decision token read after each chunk.
	MaxReplySize = 15
)

// EncodeHeader returns the length prefix for a payload of n bytes. The prefix
// is little-endian regardless of host byte order.
func EncodeHeader(n int) [HeaderSize]byte {
	var h [HeaderSize]byte
	binary.LittleEndian.PutUint32(h[:], uint32(n))
	return h
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(h [HeaderSize]byte) int {
	return int(binary.LittleEndian.Uint32(h[:]))
}

// AppendFrame appends the length prefix and the samples to dst. The samples
// keep host-native byte order; only the prefix is normalised.
func AppendFrame(dst []byte, samples []float32) []byte {
	n := len(samples) * BytesPerSample
	h := EncodeHeader(n)
	dst = append(dst, h[:]...)
	for _, s := range samples {
		dst = binary.NativeEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// DecodePayload converts a host-native payload back to samples. Trailing
// bytes that do not form a whole sample are ignored.
func DecodePayload(payload []byte) []float32 {
	out := make([]float32, len(payload)/BytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.NativeEndian.Uint32(payload[i*BytesPerSample:]))
	}
	return out
}
