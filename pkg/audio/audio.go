// Package audio provides the fixed-format audio primitives for the voicewire
// pipeline: frame accumulation of microphone capture blocks, PCM sample
// conversion, and the text-safe transport encoding used on the wire.
//
// The pipeline supports exactly one sample format — 16-bit signed
// little-endian PCM, mono — at two fixed rates: [CaptureRate] for microphone
// input sent to the model and [PlaybackRate] for synthesised audio received
// from it. This package is deliberately not a general codec or DSP library.
//
// This package lives under pkg/ because platform adapters (capture sources,
// playback sinks) are expected to build on these types.
package audio

// Fixed pipeline parameters. The remote model negotiates these once per
// session; they never change mid-stream.
const (
	// CaptureRate is the microphone sample rate in Hz expected by the model.
	CaptureRate = 16000

	// PlaybackRate is the sample rate in Hz of synthesised audio returned by
	// the model.
	PlaybackRate = 24000

	// FrameSize is the number of samples in one outbound capture frame.
	FrameSize = 4096

	// BytesPerSample is the width of one PCM sample (16-bit signed).
	BytesPerSample = 2

	// TokensPerSecond is the model's audio tokenisation rate, used by
	// [EstimateAudioTokens] to approximate usage before authoritative counts
	// arrive with the response.
	TokensPerSecond = 75

	// CaptureMIMEType is the MIME type attached to every outbound media blob.
	CaptureMIMEType = "audio/pcm;rate=16000"
)
