// Package stream drives one connected peer transport.
//
// A Handler runs two loops over the same byte stream. The write loop takes
// packets from the hub broadcast, applies the peer's allowed-range filter and
// transforms, and writes one frame per packet. The read loop scans the byte
// stream for frames, resynchronising one byte at a time after corruption, and
// forwards decoded packets to the hub aggregation channel. The first loop to
// fail closes the stream, which ends the other.
package stream
