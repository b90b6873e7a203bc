// Package container stores packet streams in files and blobs.
//
// Two layouts are supported. The length-prefixed layout is a bare
// concatenation of records ([uint16 LE length][wire packet]) with no header;
// every record carries its own sequence number, duration and channel count.
// The Ogg layout wraps payloads in an Ogg bitstream that begins with a header
// packet describing the stream, so a reader can reopen a decoder without any
// side channel. Streams produced by the opus backend use the standard
// OpusHead and OpusTags headers so ordinary players can open them.
package container
