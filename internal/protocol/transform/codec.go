package transform

import (
	"fmt"

	"github.com/danmuck/tunplex/internal/protocol/frame"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec binds one peer's outbound transform selection and key.
type Codec struct {
	compression frame.Compression
	encryption  frame.Encryption
	key         []byte
}

func NewCodec(c frame.Compression, e frame.Encryption, key []byte) (*Codec, error) {
	if _, err := frame.ParseCompressionByte(uint8(c)); err != nil {
		return nil, err
	}
	if _, err := frame.ParseEncryptionByte(uint8(e)); err != nil {
		return nil, err
	}
	if e == frame.EncryptionChaCha20Poly1305 && len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrKeyRequired, e, chacha20poly1305.KeySize, len(key))
	}
	if err := zstdCodecs(); err != nil {
		return nil, err
	}
	return &Codec{compression: c, encryption: e, key: append([]byte(nil), key...)}, nil
}

func (c *Codec) Compression() frame.Compression { return c.compression }
func (c *Codec) Encryption() frame.Encryption   { return c.encryption }

// Seal compresses then encrypts p and returns the payload with a matching header.
func (c *Codec) Seal(p []byte) ([]byte, frame.Header, error) {
	out, err := Compress(p, c.compression)
	if err != nil {
		return nil, frame.Header{}, err
	}
	out, err = Encrypt(out, c.encryption, c.key)
	if err != nil {
		return nil, frame.Header{}, err
	}
	if len(out) > frame.MaxPayload {
		return nil, frame.Header{}, fmt.Errorf("%w: %d bytes after transform", frame.ErrPayloadTooLarge, len(out))
	}
	return out, frame.NewHeader(uint16(len(out)), c.compression, c.encryption), nil
}

// Open decrypts then decompresses p using the tags the sender put in h.
func (c *Codec) Open(h frame.Header, p []byte) ([]byte, error) {
	out, err := Decrypt(p, h.Encryption, c.key)
	if err != nil {
		return nil, err
	}
	return Decompress(out, h.Compression)
}
