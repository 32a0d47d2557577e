package audio

import (
	"encoding/base64"
	"math"
)

// FloatToPCM16 converts float samples in [-1, 1] to packed little-endian
// 16-bit signed PCM. Each sample is scaled by 32768 and narrowed to int16
// without clamping — out-of-range input wraps. Callers are expected to supply
// pre-clamped samples; the capture path always does.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := int16(s * 32768)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat converts packed little-endian 16-bit signed PCM to per-channel
// float samples, each divided by 32768. Interleaved multi-channel input is
// split by modulo index into channels slices of length
// len(pcm)/2/channels each. channels must be >= 1.
func PCM16ToFloat(pcm []byte, channels int) [][]float32 {
	total := len(pcm) / BytesPerSample
	perChannel := total / channels

	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, perChannel)
	}
	for i := 0; i < perChannel*channels; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i%channels][i/channels] = float32(v) / 32768.0
	}
	return out
}

// EncodeTransport encodes raw PCM bytes into the text-safe form carried by
// the wire protocol's media chunks.
func EncodeTransport(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeTransport is the exact inverse of [EncodeTransport]. It returns an
// error for malformed input; callers drop the affected payload and continue.
func DecodeTransport(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// EstimateAudioTokens approximates the number of audio tokens the model will
// bill for byteLength bytes of capture-format PCM ([CaptureRate] Hz,
// [BytesPerSample] bytes per sample, mono). The estimate is never reconciled
// against the authoritative usage counters attached to responses.
func EstimateAudioTokens(byteLength int) int {
	seconds := float64(byteLength) / float64(CaptureRate*BytesPerSample)
	return int(math.Ceil(seconds * TokensPerSecond))
}
