package generator_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/glizzus/soundcodec/internal/generator"
)

func TestUUIDV4Generator_Next_Concurrent(t *testing.T) {
	regex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	gen := generator.UUIDV4Generator{}

	var mu sync.Mutex
	seen := make(map[string]struct{})

	total := 100000
	concurrency := 10
	batchSize := total / concurrency

	var wg sync.WaitGroup
	wg.Add(concurrency)

	for range concurrency {
		go func() {
			defer wg.Done()
			for range batchSize {
				id, err := gen.Next()
				if err != nil {
					t.Error("expected no error, got:", err)
					return
				}
				mu.Lock()
				if _, ok := seen[id]; ok {
					mu.Unlock()
					t.Errorf("expected a unique ID, got duplicate: %s", id)
					return
				}
				seen[id] = struct{}{}
				mu.Unlock()

				if !regex.MatchString(id) {
					t.Errorf("expected valid UUID format, got %s", id)
					return
				}
			}
		}()
	}

	wg.Wait()
}

func TestSequence_Next_Concurrent(t *testing.T) {
	seq := &generator.Sequence{Start: 10}

	const workers, each = 8, 500
	got := make(chan uint32, workers*each)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for range each {
				n, _ := seq.Next()
				got <- n
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := make(map[uint32]bool)
	for n := range got {
		if n < 10 || n >= 10+workers*each {
			t.Errorf("value %d outside the expected range", n)
		}
		if seen[n] {
			t.Errorf("duplicate value %d", n)
		}
		seen[n] = true
	}
	if len(seen) != workers*each {
		t.Errorf("expected %d distinct values, got %d", workers*each, len(seen))
	}
}
