package adpcm

import "math"

const maxStepIndex = 88

var stepTable = [maxStepIndex + 1]int32{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

var indexTable = [8]int8{-1, -1, -1, -1, 2, 4, 6, 8}

// channelState is the IMA predictor of one channel. The encoder and decoder
// hold identical copies as long as they see the same codes.
type channelState struct {
	predictor int32
	index     int8
}

// encode quantizes sample against the predictor and advances the state the
// same way the decoder will.
func (s *channelState) encode(sample int16) uint8 {
	step := stepTable[s.index]
	diff := int32(sample) - s.predictor

	var code uint8
	if diff < 0 {
		code = 8
		diff = -diff
	}

	delta := step >> 3
	if diff >= step {
		code |= 4
		diff -= step
		delta += step
	}
	step >>= 1
	if diff >= step {
		code |= 2
		diff -= step
		delta += step
	}
	step >>= 1
	if diff >= step {
		code |= 1
		delta += step
	}

	s.apply(code, delta)
	return code
}

// decode reconstructs the sample a code stands for.
func (s *channelState) decode(code uint8) int16 {
	step := stepTable[s.index]
	delta := step >> 3
	if code&4 != 0 {
		delta += step
	}
	if code&2 != 0 {
		delta += step >> 1
	}
	if code&1 != 0 {
		delta += step >> 2
	}

	s.apply(code, delta)
	return int16(s.predictor)
}

func (s *channelState) apply(code uint8, delta int32) {
	if code&8 != 0 {
		s.predictor -= delta
	} else {
		s.predictor += delta
	}
	s.predictor = min(max(s.predictor, math.MinInt16), math.MaxInt16)
	s.index = min(max(s.index+indexTable[code&7], 0), maxStepIndex)
}
