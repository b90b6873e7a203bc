// Package codec holds the contracts shared by the segmenter, the encoder and
// decoder engines, and the transports: frames, packets and their wire format,
// stream configuration, session lifecycle, the error taxonomy, and the registry
// of compute backends that perform the actual sample transform.
//
// Wire format of a packet (big endian):
//
//	[version u8][duration tag u8][channels u8][sequence u32][payload length u16][payload]
//
// The payload is opaque to this package; its layout belongs to the backend that
// produced it.
package codec
