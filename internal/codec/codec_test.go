package codec_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/google/go-cmp/cmp"
)

func validConfig() codec.Config {
	return codec.Config{
		SampleRate:    48000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
		Bitrate:       32000,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*codec.Config)
		field  string
	}{
		{name: "valid", modify: func(*codec.Config) {}},
		{name: "vbr without bitrate", modify: func(c *codec.Config) { c.Bitrate = 0; c.VBR = true }},
		{name: "unsupported rate", modify: func(c *codec.Config) { c.SampleRate = 44100 }, field: "sampleRate"},
		{name: "three channels", modify: func(c *codec.Config) { c.Channels = 3 }, field: "channels"},
		{name: "odd duration", modify: func(c *codec.Config) { c.FrameDuration = 25 * time.Millisecond }, field: "frameDuration"},
		{name: "cbr without bitrate", modify: func(c *codec.Config) { c.Bitrate = 0 }, field: "bitrate"},
		{name: "bitrate too low", modify: func(c *codec.Config) { c.Bitrate = 5999 }, field: "bitrate"},
		{name: "mono bitrate too high", modify: func(c *codec.Config) { c.Bitrate = 300000 }, field: "bitrate"},
		{name: "stereo allows double", modify: func(c *codec.Config) { c.Channels = 2; c.Bitrate = 300000 }},
		{name: "low delay 40ms", modify: func(c *codec.Config) {
			c.Application = codec.ApplicationLowDelay
			c.FrameDuration = 40 * time.Millisecond
		}, field: "frameDuration"},
		{name: "unknown application", modify: func(c *codec.Config) { c.Application = 7 }, field: "application"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			if !errors.Is(err, codec.ErrInvalidConfiguration) {
				t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
			}
			var cfgErr *codec.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestConfigFrameSamples(t *testing.T) {
	tests := []struct {
		rate     int
		channels int
		duration time.Duration
		samples  int
	}{
		{48000, 1, 20 * time.Millisecond, 960},
		{48000, 2, 20 * time.Millisecond, 960},
		{48000, 1, 2500 * time.Microsecond, 120},
		{8000, 1, 2500 * time.Microsecond, 20},
		{16000, 2, 60 * time.Millisecond, 960},
	}

	for _, tt := range tests {
		cfg := codec.Config{SampleRate: tt.rate, Channels: tt.channels, FrameDuration: tt.duration}
		if got := cfg.FrameSamples(); got != tt.samples {
			t.Errorf("%v: expected %d samples per channel, got %d", cfg, tt.samples, got)
		}
		if got := cfg.FrameLen(); got != tt.samples*tt.channels {
			t.Errorf("%v: expected frame length %d, got %d", cfg, tt.samples*tt.channels, got)
		}
	}
}

func TestParseApplication(t *testing.T) {
	for name, want := range map[string]codec.Application{
		"":          codec.ApplicationAudio,
		"Audio":     codec.ApplicationAudio,
		"voip":      codec.ApplicationVoIP,
		"voice":     codec.ApplicationVoIP,
		"lowdelay":  codec.ApplicationLowDelay,
		"low-delay": codec.ApplicationLowDelay,
	} {
		got, err := codec.ParseApplication(name)
		if err != nil {
			t.Errorf("%q: unexpected error %v", name, err)
			continue
		}
		if got != want {
			t.Errorf("%q: expected %s, got %s", name, want, got)
		}
	}

	if _, err := codec.ParseApplication("music"); !errors.Is(err, codec.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestPacketMarshalRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Channels = 2
	p := codec.NewPacket(70000, cfg, []byte{1, 2, 3, 4, 5})

	data, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal packet: %v", err)
	}

	want := []byte{codec.WireVersion, 3, 2, 0x00, 0x01, 0x11, 0x70, 0x00, 0x05, 1, 2, 3, 4, 5}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("wire bytes mismatch (-want +got):\n%s", diff)
	}

	got, err := codec.ParsePacket(data)
	if err != nil {
		t.Fatalf("failed to parse packet: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("packet mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePacketCorrupt(t *testing.T) {
	good, err := codec.NewPacket(9, validConfig(), []byte{0xAA, 0xBB, 0xCC}).MarshalBinary()
	if err != nil {
		t.Fatalf("failed to marshal packet: %v", err)
	}

	tests := []struct {
		name  string
		build func() []byte
	}{
		{"short header", func() []byte { return good[:5] }},
		{"truncated payload", func() []byte { return good[:len(good)-1] }},
		{"trailing bytes", func() []byte { return append(append([]byte(nil), good...), 0) }},
		{"declared length too long", func() []byte {
			b := append([]byte(nil), good...)
			binary.BigEndian.PutUint16(b[7:9], 4)
			return b
		}},
		{"unknown version", func() []byte {
			b := append([]byte(nil), good...)
			b[0] = 9
			return b
		}},
		{"unknown duration tag", func() []byte {
			b := append([]byte(nil), good...)
			b[1] = 42
			return b
		}},
		{"zero channels", func() []byte {
			b := append([]byte(nil), good...)
			b[2] = 0
			return b
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.ParsePacket(tt.build())
			if !errors.Is(err, codec.ErrPacketCorrupt) {
				t.Fatalf("expected ErrPacketCorrupt, got %v", err)
			}
		})
	}
}

func TestPacketCheck(t *testing.T) {
	cfg := validConfig()

	ok := codec.NewPacket(1, cfg, []byte{1, 2})
	if err := ok.Check(cfg); err != nil {
		t.Fatalf("expected consistent packet, got %v", err)
	}

	lying := ok
	lying.Length = 3
	if err := lying.Check(cfg); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt for length mismatch, got %v", err)
	}

	stereo := ok
	stereo.Channels = 2
	if err := stereo.Check(cfg); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt for channel mismatch, got %v", err)
	}

	long := ok
	long.Duration = 40 * time.Millisecond
	if err := long.Check(cfg); !errors.Is(err, codec.ErrPacketCorrupt) {
		t.Errorf("expected ErrPacketCorrupt for duration mismatch, got %v", err)
	}
}

func TestStateRequireActive(t *testing.T) {
	if err := codec.StateActive.RequireActive("encode"); err != nil {
		t.Errorf("expected active state to pass, got %v", err)
	}
	for _, s := range []codec.State{codec.StateUnopened, codec.StateClosed} {
		if err := s.RequireActive("encode"); !errors.Is(err, codec.ErrStateCorruption) {
			t.Errorf("%s: expected ErrStateCorruption, got %v", s, err)
		}
	}
}

func TestLookupUnknownBackend(t *testing.T) {
	_, err := codec.Lookup("does-not-exist")
	if !errors.Is(err, codec.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
}
