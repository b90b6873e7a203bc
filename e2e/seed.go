package e2e

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glizzus/soundcodec/internal/codec"
	"github.com/glizzus/soundcodec/internal/generator"
	"github.com/glizzus/soundcodec/internal/repository"
)

var seedOnce sync.Once

// SeedGlobalNoise fills the catalog with unrelated streams once per run.
func SeedGlobalNoise(t *testing.T, catalog repository.StreamPersister) {
	t.Helper()
	seedOnce.Do(func() {
		uuidGen := generator.UUIDV4Generator{}
		for i := range 100 {
			id, _ := uuidGen.Next()
			record := repository.StreamRecord{
				ID:      id,
				Name:    fmt.Sprintf("noise-stream-%d", i),
				Backend: codec.DefaultBackend,
				Config: codec.Config{
					SampleRate:    16000,
					Channels:      1,
					FrameDuration: 10 * time.Millisecond,
					Bitrate:       16000,
					Application:   codec.ApplicationVoIP,
				},
				BlobKey: "noise/" + id + ".ogg",
			}
			if err := catalog.Save(t.Context(), record); err != nil {
				t.Fatalf("failed to save stream: %v", err)
			}
		}
	})
}
