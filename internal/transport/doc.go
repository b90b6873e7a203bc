// Package transport moves wire packets between processes and restores their
// order before they reach a decoder.
//
// Redis streams and RTP over UDP are supported. Neither guarantees delivery,
// so receivers feed packets through a JitterBuffer, which turns gaps into
// the nil packets the decoder conceals.
package transport
