package e2e_test

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/e2e"
	"github.com/glizzus/soundcodec/internal/archive"
	"github.com/glizzus/soundcodec/internal/codec"
	_ "github.com/glizzus/soundcodec/internal/codec/adpcm"
	"github.com/glizzus/soundcodec/internal/datalayer"
	"github.com/glizzus/soundcodec/internal/generator"
	"github.com/glizzus/soundcodec/internal/pcm"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type deterministicIDGenerator struct{}

func (d *deterministicIDGenerator) Next() (string, error) {
	return "6f1c2a3e-5b7d-4e8f-9a0b-1c2d3e4f5a6b", nil
}

var _ generator.Generator[string] = (*deterministicIDGenerator)(nil)

func sine(cfg codec.Config, frames int) []byte {
	n := frames * cfg.FrameSamples()
	samples := make([]int16, 0, n*cfg.Channels)
	for i := range n {
		v := int16(math.Round(7000 * math.Sin(2*math.Pi*250*float64(i)/float64(cfg.SampleRate))))
		for range cfg.Channels {
			samples = append(samples, v)
		}
	}
	return pcm.Encode(samples)
}

func TestArchiveWithPostgresCatalog(t *testing.T) {
	connStr := e2e.UsePostgres(t)
	catalog := e2e.GetCatalog(t, connStr)
	e2e.SeedGlobalNoise(t, catalog)

	cfg := codec.Config{
		SampleRate:    24000,
		Channels:      2,
		FrameDuration: 40 * time.Millisecond,
		Bitrate:       48000,
		VBR:           true,
		Application:   codec.ApplicationAudio,
	}
	a := archive.New(datalayer.NewMemoryStorage(), catalog, archive.WithIDs(&deterministicIDGenerator{}))

	stored, err := a.Store(t.Context(), archive.StoreRequest{Name: "Take On Me (A-ha)", Config: cfg}, bytes.NewReader(sine(cfg, 10)))
	if err != nil {
		t.Fatalf("failed to store stream: %v", err)
	}

	t.Run("The newest stream should be listed first", func(t *testing.T) {
		records, err := a.List(t.Context(), 1)
		if err != nil {
			t.Fatalf("failed to list streams: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 stream, got %d", len(records))
		}
		if diff := cmp.Diff(stored, records[0], cmpopts.IgnoreFields(stored, "CreatedAt")); diff != "" {
			t.Errorf("stream mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("The stream should decode to every frame", func(t *testing.T) {
		var out bytes.Buffer
		res, err := a.Decode(t.Context(), stored.ID, &out)
		if err != nil {
			t.Fatalf("failed to decode stream: %v", err)
		}
		if res.Frames != 10 || res.Concealed != 0 {
			t.Errorf("unexpected result: %v", res)
		}
		if want := 10 * cfg.FrameLen() * pcm.BytesPerSample; out.Len() != want {
			t.Errorf("expected %d bytes, got %d", want, out.Len())
		}
	})

	t.Run("Deleting the stream should remove it from the catalog", func(t *testing.T) {
		if err := a.Delete(t.Context(), stored.ID); err != nil {
			t.Fatalf("failed to delete stream: %v", err)
		}
		records, err := a.List(t.Context(), 500)
		if err != nil {
			t.Fatalf("failed to list streams: %v", err)
		}
		for _, r := range records {
			if r.ID == stored.ID {
				t.Errorf("expected stream %s to be deleted", stored.ID)
			}
		}
	})
}
