package transport

import (
	"fmt"

	"github.com/glizzus/soundcodec/internal/codec"
)

// MaxConcealedGap is the longest run of missing packets reported as losses.
// Longer gaps are treated as a stream restart and skipped without loss
// signals.
const MaxConcealedGap = 50

// JitterStats counts what a JitterBuffer did with its input.
type JitterStats struct {
	Received  uint64
	Emitted   uint64
	Lost      uint64
	Late      uint64
	Duplicate uint64
	Resets    uint64
}

// JitterBuffer reorders packets within a window of depth packets. Output is
// in sequence order with a nil entry for every packet declared lost. Nothing
// is emitted until depth packets are held, so the stream starts at the
// earliest of them. It is not safe for concurrent use.
type JitterBuffer struct {
	depth   int
	started bool
	next    uint32
	pending map[uint32]codec.Packet
	stats   JitterStats
}

func NewJitterBuffer(depth int) (*JitterBuffer, error) {
	if depth < 1 {
		return nil, &codec.ConfigError{Field: "jitter depth", Value: depth, Reason: "must be at least 1"}
	}
	return &JitterBuffer{
		depth:   depth,
		pending: make(map[uint32]codec.Packet, depth+1),
	}, nil
}

func (j *JitterBuffer) Stats() JitterStats { return j.stats }

// Pending is the number of packets held waiting for an earlier sequence.
func (j *JitterBuffer) Pending() int { return len(j.pending) }

// before reports whether a precedes b, allowing for wraparound.
func before(a, b uint32) bool { return int32(a-b) < 0 }

// Push adds p and returns the packets that are now ready, in order. A nil
// entry stands for a lost packet.
func (j *JitterBuffer) Push(p codec.Packet) []*codec.Packet {
	j.stats.Received++
	if j.started && before(p.Sequence, j.next) {
		j.stats.Late++
		return nil
	}
	if _, ok := j.pending[p.Sequence]; ok {
		j.stats.Duplicate++
		return nil
	}
	j.pending[p.Sequence] = p
	if !j.started {
		if len(j.pending) < j.depth {
			return nil
		}
		j.start()
	}

	var out []*codec.Packet
	out = j.drain(out)
	for len(j.pending) > j.depth {
		out = j.skip(out)
		out = j.drain(out)
	}
	return out
}

// Flush returns every held packet in order, with losses for the gaps between
// them. The buffer keeps its position, so later packets continue the stream.
func (j *JitterBuffer) Flush() []*codec.Packet {
	if !j.started && len(j.pending) > 0 {
		j.start()
	}
	var out []*codec.Packet
	for len(j.pending) > 0 {
		out = j.skip(out)
		out = j.drain(out)
	}
	return out
}

func (j *JitterBuffer) start() {
	j.next, _ = j.earliest()
	j.started = true
}

func (j *JitterBuffer) drain(out []*codec.Packet) []*codec.Packet {
	for {
		p, ok := j.pending[j.next]
		if !ok {
			return out
		}
		delete(j.pending, j.next)
		out = append(out, &p)
		j.stats.Emitted++
		j.next++
	}
}

// skip gives up on the missing packets before the earliest held one.
func (j *JitterBuffer) skip(out []*codec.Packet) []*codec.Packet {
	first, ok := j.earliest()
	if !ok {
		return out
	}
	gap := first - j.next
	if gap > MaxConcealedGap {
		j.stats.Resets++
		j.next = first
		return out
	}
	for range gap {
		out = append(out, nil)
	}
	j.stats.Lost += uint64(gap)
	j.next = first
	return out
}

func (j *JitterBuffer) earliest() (uint32, bool) {
	var (
		first uint32
		found bool
	)
	for seq := range j.pending {
		if !found || before(seq, first) {
			first, found = seq, true
		}
	}
	return first, found
}

func (s JitterStats) String() string {
	return fmt.Sprintf("received=%d emitted=%d lost=%d late=%d duplicate=%d resets=%d",
		s.Received, s.Emitted, s.Lost, s.Late, s.Duplicate, s.Resets)
}
