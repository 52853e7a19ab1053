package transform

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/tunplex/internal/protocol/frame"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

func samplePayloads() [][]byte {
	return [][]byte{
		{},
		{0x45},
		bytes.Repeat([]byte("tunplex"), 200),
		func() []byte {
			b := make([]byte, 1500)
			for i := range b {
				b[i] = byte(i * 7)
			}
			return b
		}(),
	}
}

func TestCompressRoundTrip(t *testing.T) {
	kinds := []frame.Compression{
		frame.CompressionNone,
		frame.CompressionZstd,
		frame.CompressionZstdFast,
		frame.CompressionZstdSlow,
		frame.CompressionGzip,
	}
	for _, c := range kinds {
		for _, p := range samplePayloads() {
			packed, err := Compress(p, c)
			if err != nil {
				t.Fatalf("compress %s: %v", c, err)
			}
			out, err := Decompress(packed, c)
			if err != nil {
				t.Fatalf("decompress %s: %v", c, err)
			}
			if !bytes.Equal(out, p) {
				t.Fatalf("%s round trip mismatch len=%d got=%d", c, len(p), len(out))
			}
		}
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	p := []byte{1, 2, 3}
	out, err := Compress(p, frame.CompressionNone)
	if err != nil || !bytes.Equal(out, p) {
		t.Fatalf("identity compress failed: %v", err)
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	for _, e := range []frame.Encryption{frame.EncryptionNone, frame.EncryptionChaCha20Poly1305} {
		for _, p := range samplePayloads() {
			sealed, err := Encrypt(p, e, testKey)
			if err != nil {
				t.Fatalf("encrypt %s: %v", e, err)
			}
			out, err := Decrypt(sealed, e, testKey)
			if err != nil {
				t.Fatalf("decrypt %s: %v", e, err)
			}
			if !bytes.Equal(out, p) {
				t.Fatalf("%s round trip mismatch", e)
			}
		}
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	sealed, err := Encrypt([]byte("packet"), frame.EncryptionChaCha20Poly1305, testKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := Decrypt(sealed, frame.EncryptionChaCha20Poly1305, testKey); err == nil {
		t.Fatalf("expected authentication failure")
	}
	if _, err := Decrypt([]byte{1, 2}, frame.EncryptionChaCha20Poly1305, testKey); !errors.Is(err, ErrCiphertextShort) {
		t.Fatalf("expected ErrCiphertextShort, got %v", err)
	}
}

func TestUnknownTransform(t *testing.T) {
	if _, err := Compress(nil, frame.Compression(99)); !errors.Is(err, ErrUnknownTransform) {
		t.Fatalf("expected ErrUnknownTransform, got %v", err)
	}
	if _, err := Decrypt(nil, frame.Encryption(99), nil); !errors.Is(err, ErrUnknownTransform) {
		t.Fatalf("expected ErrUnknownTransform, got %v", err)
	}
}

func TestCodecSealOpen(t *testing.T) {
	codec, err := NewCodec(frame.CompressionZstd, frame.EncryptionChaCha20Poly1305, testKey)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	p := bytes.Repeat([]byte{0x45, 0x00}, 300)
	payload, h, err := codec.Seal(p)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if int(h.PacketLength) != len(payload) || h.Compression != frame.CompressionZstd || h.Encryption != frame.EncryptionChaCha20Poly1305 {
		t.Fatalf("unexpected header: %+v", h)
	}
	out, err := codec.Open(h, payload)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(out, p) {
		t.Fatalf("codec round trip mismatch")
	}
}

func TestCodecOpenFollowsSenderTags(t *testing.T) {
	sender, err := NewCodec(frame.CompressionGzip, frame.EncryptionNone, nil)
	if err != nil {
		t.Fatalf("sender codec: %v", err)
	}
	receiver, err := NewCodec(frame.CompressionNone, frame.EncryptionNone, nil)
	if err != nil {
		t.Fatalf("receiver codec: %v", err)
	}
	payload, h, err := sender.Seal([]byte("hello"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	out, err := receiver.Open(h, payload)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("unexpected payload: %q", out)
	}
}

func TestNewCodecKeyLength(t *testing.T) {
	if _, err := NewCodec(frame.CompressionNone, frame.EncryptionChaCha20Poly1305, []byte("short")); !errors.Is(err, ErrKeyRequired) {
		t.Fatalf("expected ErrKeyRequired, got %v", err)
	}
	if _, err := NewCodec(frame.Compression(42), frame.EncryptionNone, nil); !errors.Is(err, frame.ErrNoSuchVariant) {
		t.Fatalf("expected ErrNoSuchVariant, got %v", err)
	}
}
