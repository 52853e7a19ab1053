package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for c := range compressionNames {
		for e := range encryptionNames {
			in := NewHeader(1400, c, e)
			buf := Encode(in)
			out, err := Decode(buf[:])
			if err != nil {
				t.Fatalf("decode %s/%s: %v", c, e, err)
			}
			if out != in {
				t.Fatalf("header mismatch: got=%+v want=%+v", out, in)
			}
		}
	}
}

func TestEncodeWireLayout(t *testing.T) {
	buf := Encode(NewHeader(0x0102, CompressionGzip, EncryptionChaCha20Poly1305))
	want := []byte{
		0xAC, 0xAB, 0xC0, 0xDE,
		0x00, 0x00,
		0x02, 0x01,
		0x04,
		0x01,
		0, 0, 0, 0, 0, 0,
	}
	if !bytes.Equal(buf[:], want) {
		t.Fatalf("layout mismatch:\n got=% x\nwant=% x", buf[:], want)
	}
}

func TestDecodeIgnoresReservedBytes(t *testing.T) {
	buf := Encode(NewHeader(10, CompressionNone, EncryptionNone))
	copy(buf[10:], []byte{1, 2, 3, 4, 5, 6})
	h, err := Decode(buf[:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.PacketLength != 10 {
		t.Fatalf("unexpected length: %d", h.PacketLength)
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0xAC, 0xAB, 0xC0})
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestDecodeBadMarker(t *testing.T) {
	buf := Encode(NewHeader(1, CompressionNone, EncryptionNone))
	buf[0] = 0x00
	_, err := Decode(buf[:])
	if !errors.Is(err, ErrBadSyncMarker) {
		t.Fatalf("expected ErrBadSyncMarker, got %v", err)
	}
}

func TestDecodeVersionMismatch(t *testing.T) {
	h := NewHeader(1, CompressionNone, EncryptionNone)
	h.Version = 7
	buf := Encode(h)
	_, err := Decode(buf[:])
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeUnknownVariantNamesByte(t *testing.T) {
	buf := Encode(NewHeader(1, CompressionNone, EncryptionNone))
	buf[8] = 0x2A
	_, err := Decode(buf[:])
	if !errors.Is(err, ErrNoSuchVariant) {
		t.Fatalf("expected ErrNoSuchVariant, got %v", err)
	}
	var nsv *NoSuchVariantError
	if !errors.As(err, &nsv) {
		t.Fatalf("expected *NoSuchVariantError, got %T", err)
	}
	if nsv.Field != "compression" || nsv.Value != 0x2A {
		t.Fatalf("unexpected variant error: %+v", nsv)
	}

	buf = Encode(NewHeader(1, CompressionNone, EncryptionNone))
	buf[9] = 0xFF
	_, err = Decode(buf[:])
	if !errors.As(err, &nsv) || nsv.Field != "encryption" || nsv.Value != 0xFF {
		t.Fatalf("unexpected encryption variant error: %v", err)
	}
}

func TestAppendFrame(t *testing.T) {
	payload := []byte("payload")
	out, err := AppendFrame(nil, NewHeader(0, CompressionZstd, EncryptionNone), payload)
	if err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if len(out) != HeaderLen+len(payload) {
		t.Fatalf("unexpected frame length: %d", len(out))
	}
	h, err := Decode(out)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if int(h.PacketLength) != len(payload) || h.Compression != CompressionZstd {
		t.Fatalf("unexpected header: %+v", h)
	}
	if !bytes.Equal(out[HeaderLen:], payload) {
		t.Fatalf("payload mismatch")
	}

	_, err = AppendFrame(nil, Header{}, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestTextNames(t *testing.T) {
	var c Compression
	if err := c.UnmarshalText([]byte("zstd-fast")); err != nil || c != CompressionZstdFast {
		t.Fatalf("unmarshal compression: %v %v", c, err)
	}
	if err := c.UnmarshalText([]byte("lz4")); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
	var e Encryption
	if err := e.UnmarshalText([]byte("ChaCha20Poly1305")); err != nil || e != EncryptionChaCha20Poly1305 {
		t.Fatalf("unmarshal encryption: %v %v", e, err)
	}
	b, err := CompressionGzip.MarshalText()
	if err != nil || string(b) != "gzip" {
		t.Fatalf("marshal compression: %q %v", b, err)
	}
}
