package generator

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator is an interface that defines a method to generate a new value of type T.
// Stream IDs, Ogg serial numbers and similar per-stream identifiers come from one.
type Generator[T any] interface {
	Next() (T, error)
}

// UUIDV4Generator produces UUIDv4 strings used as stream IDs.
type UUIDV4Generator struct{}

func (g *UUIDV4Generator) Next() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SerialGenerator derives Ogg bitstream serial numbers from random UUIDs.
type SerialGenerator struct{}

func (g *SerialGenerator) Next() (uint32, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return 0, err
	}
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3]), nil
}

// Sequence hands out consecutive values starting at Start. It is safe for
// concurrent use.
type Sequence struct {
	Start uint32
	n     atomic.Uint32
}

func (s *Sequence) Next() (uint32, error) {
	return s.Start + s.n.Add(1) - 1, nil
}

var (
	_ Generator[string] = &UUIDV4Generator{}
	_ Generator[uint32] = &SerialGenerator{}
	_ Generator[uint32] = &Sequence{}
)
