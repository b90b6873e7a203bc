package codec

import "time"

// Frame is one fixed-duration slice of interleaved PCM audio.
type Frame struct {
	Samples    []int16
	SampleRate int
	Channels   int
	Duration   time.Duration

	// Index is the position of the frame in its stream, starting at 0.
	Index uint64

	// Concealed marks frames the decoder synthesized for a lost packet.
	Concealed bool
}

// NewFrame wraps samples produced for cfg.
func NewFrame(cfg Config, index uint64, samples []int16) Frame {
	return Frame{
		Samples:    samples,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Duration:   cfg.FrameDuration,
		Index:      index,
	}
}
