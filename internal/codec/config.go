package codec

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Application selects what the encoder optimizes for.
type Application int

const (
	ApplicationAudio Application = iota
	ApplicationVoIP
	ApplicationLowDelay
)

func (a Application) String() string {
	switch a {
	case ApplicationAudio:
		return "audio"
	case ApplicationVoIP:
		return "voip"
	case ApplicationLowDelay:
		return "lowdelay"
	default:
		return fmt.Sprintf("application(%d)", int(a))
	}
}

// ParseApplication maps a profile name onto an Application.
func ParseApplication(name string) (Application, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "audio", "":
		return ApplicationAudio, nil
	case "voip", "voice":
		return ApplicationVoIP, nil
	case "lowdelay", "low-delay", "restricted-lowdelay":
		return ApplicationLowDelay, nil
	}
	return 0, &ConfigError{Field: "application", Value: name, Reason: "unknown profile"}
}

// FrameDurations lists the frame durations a stream may be negotiated with, in
// ascending order. The index of a duration is its wire tag.
var FrameDurations = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
}

// SampleRates lists the supported sample rates in Hz.
var SampleRates = []int{8000, 12000, 16000, 24000, 48000}

const (
	MinBitrate           = 6000
	MaxBitratePerChannel = 255000

	// DefaultVBRBitratePerChannel is the target used when VBR is requested
	// without an explicit bitrate.
	DefaultVBRBitratePerChannel = 32000

	// maxLowDelayDuration is the longest frame the low delay profile accepts.
	maxLowDelayDuration = 20 * time.Millisecond
)

// DurationTag returns the wire tag of d.
func DurationTag(d time.Duration) (uint8, bool) {
	i := slices.Index(FrameDurations, d)
	if i < 0 {
		return 0, false
	}
	return uint8(i), true
}

// DurationFromTag is the inverse of DurationTag.
func DurationFromTag(tag uint8) (time.Duration, bool) {
	if int(tag) >= len(FrameDurations) {
		return 0, false
	}
	return FrameDurations[tag], true
}

// ValidateFormat checks the parameters every stage of the pipeline shares.
func ValidateFormat(sampleRate, channels int, frameDuration time.Duration) error {
	if !slices.Contains(SampleRates, sampleRate) {
		return &ConfigError{Field: "sampleRate", Value: sampleRate, Reason: "unsupported sample rate"}
	}
	if channels != 1 && channels != 2 {
		return &ConfigError{Field: "channels", Value: channels, Reason: "must be 1 or 2"}
	}
	if _, ok := DurationTag(frameDuration); !ok {
		return &ConfigError{Field: "frameDuration", Value: frameDuration, Reason: "must be one of 2.5, 5, 10, 20, 40 or 60 ms"}
	}
	return nil
}

// Config is the negotiated shape of one stream.
type Config struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration

	// Bitrate is the target in bits per second. It may be zero only when VBR
	// is set, in which case a per-channel default applies.
	Bitrate     int
	VBR         bool
	Application Application
}

// Validate reports the first unsupported parameter combination.
func (c Config) Validate() error {
	if err := ValidateFormat(c.SampleRate, c.Channels, c.FrameDuration); err != nil {
		return err
	}
	switch c.Application {
	case ApplicationAudio, ApplicationVoIP:
	case ApplicationLowDelay:
		if c.FrameDuration > maxLowDelayDuration {
			return &ConfigError{Field: "frameDuration", Value: c.FrameDuration, Reason: "low delay profile is limited to 20 ms frames"}
		}
	default:
		return &ConfigError{Field: "application", Value: c.Application, Reason: "unknown profile"}
	}
	if c.Bitrate == 0 && c.VBR {
		return nil
	}
	if c.Bitrate < MinBitrate || c.Bitrate > MaxBitratePerChannel*c.Channels {
		return &ConfigError{
			Field:  "bitrate",
			Value:  c.Bitrate,
			Reason: fmt.Sprintf("must be within [%d, %d] for %d channel(s)", MinBitrate, MaxBitratePerChannel*c.Channels, c.Channels),
		}
	}
	return nil
}

// FrameSamples is the number of samples per channel in one frame.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}

// FrameLen is the number of interleaved samples in one frame.
func (c Config) FrameLen() int {
	return c.FrameSamples() * c.Channels
}

// TargetBitrate resolves the bitrate the backend should aim for.
func (c Config) TargetBitrate() int {
	if c.Bitrate == 0 {
		return DefaultVBRBitratePerChannel * c.Channels
	}
	return c.Bitrate
}

func (c Config) String() string {
	mode := "cbr"
	if c.VBR {
		mode = "vbr"
	}
	return fmt.Sprintf("%dHz/%dch/%s/%dbps-%s/%s", c.SampleRate, c.Channels, c.FrameDuration, c.TargetBitrate(), mode, c.Application)
}
