package decoder

import "math"

// concealer synthesizes audio for lost packets by repeating the last pitch
// period of the decoded signal with a decaying gain, and cross-fades the
// first real frame after a loss out of that extrapolation.
type concealer struct {
	channels int
	frame    int // samples per channel in a frame
	minLag   int
	maxLag   int
	fade     int

	// history holds the most recent output, interleaved, at most histLen
	// samples per channel.
	history []int16
	histLen int

	// decay is applied once per sample period and halves the gain over a frame.
	decay float64

	lost   int
	lag    int
	phase  int
	gain   float64
	period []int16
}

func newConcealer(sampleRate, channels, frameSamples int) *concealer {
	maxLag := sampleRate / 50
	return &concealer{
		channels: channels,
		frame:    frameSamples,
		minLag:   sampleRate / 500,
		maxLag:   maxLag,
		fade:     min(frameSamples, sampleRate/400),
		histLen:  max(frameSamples, 3*maxLag),
		decay:    math.Pow(0.5, 1/float64(frameSamples)),
	}
}

// conceal returns one frame of extrapolated audio. Before anything has been
// decoded it returns silence.
func (c *concealer) conceal() []int16 {
	out := make([]int16, c.frame*c.channels)
	if len(c.history) == 0 {
		return out
	}

	if c.lost == 0 {
		c.lag = c.estimateLag()
		c.period = append(c.period[:0], c.history[len(c.history)-c.lag*c.channels:]...)
		c.phase = 0
		c.gain = 1
	}
	c.lost++

	for n := range c.frame {
		src := ((c.phase + n) % c.lag) * c.channels
		for ch := range c.channels {
			out[n*c.channels+ch] = toSample(float64(c.period[src+ch]) * c.gain)
		}
		c.gain *= c.decay
	}
	c.phase = (c.phase + c.frame) % c.lag

	c.remember(out)
	return out
}

// recover records a decoded frame. When it follows a loss, its head is
// blended with the continued extrapolation so the splice has no step. The
// frame is modified in place.
func (c *concealer) recover(frame []int16) []int16 {
	if c.lost > 0 {
		gain := c.gain
		for n := range c.fade {
			src := ((c.phase + n) % c.lag) * c.channels
			w := float64(n+1) / float64(c.fade+1)
			for ch := range c.channels {
				i := n*c.channels + ch
				ext := float64(c.period[src+ch]) * gain
				frame[i] = toSample(w*float64(frame[i]) + (1-w)*ext)
			}
			gain *= c.decay
		}
		c.lost = 0
	}

	c.remember(frame)
	return frame
}

// losses reports how many frames in a row have been concealed.
func (c *concealer) losses() int { return c.lost }

func (c *concealer) remember(frame []int16) {
	c.history = append(c.history, frame...)
	if excess := len(c.history) - c.histLen*c.channels; excess > 0 {
		c.history = append(c.history[:0], c.history[excess:]...)
	}
}

// estimateLag picks the pitch period, in samples per channel, that maximizes
// the normalized correlation between the tail of the history and its
// delayed copy. Short histories are repeated whole.
func (c *concealer) estimateLag() int {
	mono := c.downmix()
	l := len(mono)

	maxT := min(c.maxLag, l/2)
	if maxT < c.minLag {
		return l
	}

	best, bestT := 0.0, maxT
	for t := c.minLag; t <= maxT; t++ {
		var num, energy float64
		for n := maxT; n < l; n++ {
			num += mono[n] * mono[n-t]
			energy += mono[n-t] * mono[n-t]
		}
		if energy <= 0 {
			continue
		}
		if score := num / math.Sqrt(energy); score > best {
			best, bestT = score, t
		}
	}
	return bestT
}

func (c *concealer) downmix() []float64 {
	mono := make([]float64, len(c.history)/c.channels)
	for n := range mono {
		var sum float64
		for ch := range c.channels {
			sum += float64(c.history[n*c.channels+ch])
		}
		mono[n] = sum / float64(c.channels)
	}
	return mono
}

func toSample(v float64) int16 {
	return int16(min(max(math.Round(v), math.MinInt16), math.MaxInt16))
}
