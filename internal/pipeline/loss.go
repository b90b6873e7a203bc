package pipeline

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/glizzus/soundcodec/internal/codec"
)

// LossModel decides which packets a simulated channel loses.
type LossModel interface {
	Drop(seq uint32) bool
}

type LossFunc func(seq uint32) bool

func (f LossFunc) Drop(seq uint32) bool { return f(seq) }

// DropSequences loses exactly the listed packets.
func DropSequences(seqs ...uint32) LossModel {
	set := make(map[uint32]struct{}, len(seqs))
	for _, s := range seqs {
		set[s] = struct{}{}
	}
	return LossFunc(func(seq uint32) bool {
		_, ok := set[seq]
		return ok
	})
}

// BurstLoss loses Length consecutive packets at the start of every Period.
type BurstLoss struct {
	Period uint32
	Length uint32
}

func (b BurstLoss) Drop(seq uint32) bool {
	if b.Period == 0 {
		return false
	}
	return seq%b.Period < b.Length
}

// RandomLoss loses each packet independently with probability Rate. It is
// deterministic for a given seed.
type RandomLoss struct {
	rate float64
	rng  *rand.Rand
}

func NewRandomLoss(rate float64, seed uint64) *RandomLoss {
	return &RandomLoss{rate: rate, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomLoss) Drop(uint32) bool { return r.rng.Float64() < r.rate }

// ParseLossModel reads a loss model description:
//
//	random:RATE[:SEED]   independent loss, e.g. random:0.05
//	burst:PERIOD:LENGTH  e.g. burst:50:3
//	seq:N,N,...          the listed sequence numbers
//
// An empty string means no loss.
func ParseLossModel(s string) (LossModel, error) {
	if s == "" {
		return nil, nil
	}
	kind, args, _ := strings.Cut(s, ":")
	bad := func(reason string) error {
		return &codec.ConfigError{Field: "loss", Value: s, Reason: reason}
	}

	switch kind {
	case "random":
		rateStr, seedStr, hasSeed := strings.Cut(args, ":")
		rate, err := strconv.ParseFloat(rateStr, 64)
		if err != nil || rate < 0 || rate > 1 {
			return nil, bad("rate must be between 0 and 1")
		}
		var seed uint64 = 1
		if hasSeed {
			if seed, err = strconv.ParseUint(seedStr, 10, 64); err != nil {
				return nil, bad("seed must be an unsigned integer")
			}
		}
		return NewRandomLoss(rate, seed), nil
	case "burst":
		periodStr, lengthStr, ok := strings.Cut(args, ":")
		if !ok {
			return nil, bad("expected burst:PERIOD:LENGTH")
		}
		period, err1 := strconv.ParseUint(periodStr, 10, 32)
		length, err2 := strconv.ParseUint(lengthStr, 10, 32)
		if err1 != nil || err2 != nil || period == 0 || length > period {
			return nil, bad("period must be positive and not shorter than length")
		}
		return BurstLoss{Period: uint32(period), Length: uint32(length)}, nil
	case "seq":
		var seqs []uint32
		for _, f := range strings.Split(args, ",") {
			n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
			if err != nil {
				return nil, bad(fmt.Sprintf("bad sequence number %q", f))
			}
			seqs = append(seqs, uint32(n))
		}
		return DropSequences(seqs...), nil
	}
	return nil, bad("unknown loss model " + strconv.Quote(kind))
}
