package transform

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/tunplex/internal/protocol/frame"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
)

// MaxDecodedLen caps decompressed output. A frame never carries more than one IP packet.
const MaxDecodedLen = 1 << 16

var (
	ErrUnknownTransform = errors.New("transform: unknown transform")
	ErrDecodedTooLarge  = errors.New("transform: decoded payload too large")
	ErrKeyRequired      = errors.New("transform: encryption key required")
	ErrCiphertextShort  = errors.New("transform: ciphertext too short")
)

var (
	zstdOnce    sync.Once
	zstdErr     error
	zstdEncoder map[frame.Compression]*zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func zstdCodecs() error {
	zstdOnce.Do(func() {
		levels := map[frame.Compression]zstd.EncoderLevel{
			frame.CompressionZstd:     zstd.SpeedDefault,
			frame.CompressionZstdFast: zstd.SpeedFastest,
			frame.CompressionZstdSlow: zstd.SpeedBestCompression,
		}
		zstdEncoder = make(map[frame.Compression]*zstd.Encoder, len(levels))
		for c, level := range levels {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
			if err != nil {
				zstdErr = err
				return
			}
			zstdEncoder[c] = enc
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(16*MaxDecodedLen),
		)
	})
	return zstdErr
}

// Compress applies c to p. CompressionNone returns p unchanged.
func Compress(p []byte, c frame.Compression) ([]byte, error) {
	switch c {
	case frame.CompressionNone:
		return p, nil
	case frame.CompressionZstd, frame.CompressionZstdFast, frame.CompressionZstdSlow:
		if err := zstdCodecs(); err != nil {
			return nil, err
		}
		return zstdEncoder[c].EncodeAll(p, nil), nil
	case frame.CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(p); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, c)
	}
}

// Decompress reverses Compress for the same c.
func Decompress(p []byte, c frame.Compression) ([]byte, error) {
	switch c {
	case frame.CompressionNone:
		return p, nil
	case frame.CompressionZstd, frame.CompressionZstdFast, frame.CompressionZstdSlow:
		if err := zstdCodecs(); err != nil {
			return nil, err
		}
		out, err := zstdDecoder.DecodeAll(p, nil)
		if err != nil {
			return nil, fmt.Errorf("transform: zstd: %w", err)
		}
		if len(out) > MaxDecodedLen {
			return nil, ErrDecodedTooLarge
		}
		return out, nil
	case frame.CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(p))
		if err != nil {
			return nil, fmt.Errorf("transform: gzip: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(io.LimitReader(r, MaxDecodedLen+1))
		if err != nil {
			return nil, fmt.Errorf("transform: gzip: %w", err)
		}
		if len(out) > MaxDecodedLen {
			return nil, ErrDecodedTooLarge
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, c)
	}
}

// Encrypt applies e to p with key. EncryptionNone ignores key and returns p unchanged.
func Encrypt(p []byte, e frame.Encryption, key []byte) ([]byte, error) {
	switch e {
	case frame.EncryptionNone:
		return p, nil
	case frame.EncryptionChaCha20Poly1305:
		aead, err := newAEAD(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(p)+aead.Overhead())
		if _, err := rand.Read(out); err != nil {
			return nil, err
		}
		return aead.Seal(out, out, p, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, e)
	}
}

// Decrypt reverses Encrypt for the same e and key.
func Decrypt(p []byte, e frame.Encryption, key []byte) ([]byte, error) {
	switch e {
	case frame.EncryptionNone:
		return p, nil
	case frame.EncryptionChaCha20Poly1305:
		aead, err := newAEAD(key)
		if err != nil {
			return nil, err
		}
		if len(p) < aead.NonceSize()+aead.Overhead() {
			return nil, ErrCiphertextShort
		}
		nonce, ct := p[:aead.NonceSize()], p[aead.NonceSize():]
		out, err := aead.Open(nil, nonce, ct, nil)
		if err != nil {
			return nil, fmt.Errorf("transform: chacha20poly1305: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, e)
	}
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) == 0 {
		return nil, ErrKeyRequired
	}
	return chacha20poly1305.New(key)
}
