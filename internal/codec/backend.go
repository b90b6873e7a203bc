package codec

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// DefaultBackend is used by sessions that do not name one.
const DefaultBackend = "adpcm"

// Compressor turns one frame of interleaved samples into a payload. It keeps
// whatever prediction state the transform needs between calls.
type Compressor interface {
	Compress(samples []int16) ([]byte, error)
	Close() error
}

// Expander turns a payload back into one frame of interleaved samples. A
// payload the expander cannot parse is reported with ErrPacketCorrupt.
type Expander interface {
	Expand(payload []byte) ([]int16, error)
	Close() error
}

// Resyncer is implemented by expanders whose state depends on the previous
// output. After a frame is concealed the decoder hands it the samples that
// were actually played so the next expansion continues from them.
type Resyncer interface {
	Resync(played []int16)
}

// Backend is a compute primitive the engines delegate the numeric transform to.
type Backend interface {
	Name() string

	// Validate rejects configurations the backend cannot serve. The engines
	// have already run Config.Validate.
	Validate(cfg Config) error

	NewCompressor(cfg Config) (Compressor, error)
	NewExpander(cfg Config) (Expander, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// Register makes a backend available by name. It panics on duplicates, so it
// is meant to be called from init.
func Register(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	name := b.Name()
	if _, dup := backends[name]; dup {
		panic(fmt.Sprintf("codec: backend %q registered twice", name))
	}
	backends[name] = b
}

// Lookup returns the backend registered under name. The empty name selects
// DefaultBackend.
func Lookup(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend
	}

	backendsMu.RLock()
	defer backendsMu.RUnlock()

	b, ok := backends[name]
	if !ok {
		return nil, &ConfigError{Field: "backend", Value: name, Reason: fmt.Sprintf("not registered (have %v)", backendNamesLocked())}
	}
	return b, nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backendNamesLocked()
}

func backendNamesLocked() []string {
	return slices.Sorted(maps.Keys(backends))
}
