package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	MarkerLen      = 4
	HeaderLen      = 16
	Version uint16 = 0

	// MaxPayload is the largest payload a u16 length field can describe.
	MaxPayload = 0xFFFF
)

// SyncMarker opens every frame and is what the reader scans for after desync.
var SyncMarker = [MarkerLen]byte{0xAC, 0xAB, 0xC0, 0xDE}

var (
	ErrBufferTooSmall     = errors.New("frame: buffer too small")
	ErrBadSyncMarker      = errors.New("frame: sync marker mismatch")
	ErrUnsupportedVersion = errors.New("frame: unsupported protocol version")
	ErrNoSuchVariant      = errors.New("frame: no such variant")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
)

// NoSuchVariantError names the header field and byte that failed enum decoding.
type NoSuchVariantError struct {
	Field string
	Value uint8
}

func (e *NoSuchVariantError) Error() string {
	return fmt.Sprintf("frame: no variant exists for %s byte %d", e.Field, e.Value)
}

func (e *NoSuchVariantError) Is(target error) bool {
	return target == ErrNoSuchVariant
}

// Header is the fixed wire header.
type Header struct {
	Marker       [MarkerLen]byte
	Version      uint16
	PacketLength uint16
	Compression  Compression
	Encryption   Encryption
}

// NewHeader returns a header for the local protocol version.
func NewHeader(length uint16, c Compression, e Encryption) Header {
	return Header{
		Marker:       SyncMarker,
		Version:      Version,
		PacketLength: length,
		Compression:  c,
		Encryption:   e,
	}
}

// Encode writes h in wire order. Reserved bytes are always zero.
func Encode(h Header) [HeaderLen]byte {
	var buf [HeaderLen]byte
	copy(buf[0:4], h.Marker[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	binary.LittleEndian.PutUint16(buf[6:8], h.PacketLength)
	buf[8] = byte(h.Compression)
	buf[9] = byte(h.Encryption)
	return buf
}

// Decode parses the header at the start of b. Bytes past HeaderLen are ignored.
func Decode(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrBufferTooSmall
	}
	if !bytes.Equal(b[0:4], SyncMarker[:]) {
		return Header{}, ErrBadSyncMarker
	}
	c, err := ParseCompressionByte(b[8])
	if err != nil {
		return Header{}, err
	}
	e, err := ParseEncryptionByte(b[9])
	if err != nil {
		return Header{}, err
	}
	h := Header{
		Marker:       SyncMarker,
		Version:      binary.LittleEndian.Uint16(b[4:6]),
		PacketLength: binary.LittleEndian.Uint16(b[6:8]),
		Compression:  c,
		Encryption:   e,
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: got %d want %d", ErrUnsupportedVersion, h.Version, Version)
	}
	return h, nil
}

// AppendFrame appends header and payload to dst so the frame can go out in one Write.
func AppendFrame(dst []byte, h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	h.PacketLength = uint16(len(payload))
	hb := Encode(h)
	dst = append(dst, hb[:]...)
	return append(dst, payload...), nil
}
