package frame

import (
	"fmt"
	"strings"
)

// Compression is the payload compression tag carried in byte 8 of the header.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionZstdFast
	CompressionZstdSlow
	CompressionGzip
)

var compressionNames = map[Compression]string{
	CompressionNone:     "none",
	CompressionZstd:     "zstd",
	CompressionZstdFast: "zstd-fast",
	CompressionZstdSlow: "zstd-slow",
	CompressionGzip:     "gzip",
}

func ParseCompressionByte(b uint8) (Compression, error) {
	c := Compression(b)
	if _, ok := compressionNames[c]; !ok {
		return 0, &NoSuchVariantError{Field: "compression", Value: b}
	}
	return c, nil
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

func (c Compression) MarshalText() ([]byte, error) {
	name, ok := compressionNames[c]
	if !ok {
		return nil, &NoSuchVariantError{Field: "compression", Value: uint8(c)}
	}
	return []byte(name), nil
}

func (c *Compression) UnmarshalText(text []byte) error {
	raw := strings.ToLower(strings.TrimSpace(string(text)))
	for v, name := range compressionNames {
		if name == raw {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("frame: unknown compression %q", raw)
}

// Encryption is the payload encryption tag carried in byte 9 of the header.
type Encryption uint8

const (
	EncryptionNone Encryption = iota
	EncryptionChaCha20Poly1305
)

var encryptionNames = map[Encryption]string{
	EncryptionNone:             "none",
	EncryptionChaCha20Poly1305: "chacha20poly1305",
}

func ParseEncryptionByte(b uint8) (Encryption, error) {
	e := Encryption(b)
	if _, ok := encryptionNames[e]; !ok {
		return 0, &NoSuchVariantError{Field: "encryption", Value: b}
	}
	return e, nil
}

func (e Encryption) String() string {
	if name, ok := encryptionNames[e]; ok {
		return name
	}
	return fmt.Sprintf("encryption(%d)", uint8(e))
}

func (e Encryption) MarshalText() ([]byte, error) {
	name, ok := encryptionNames[e]
	if !ok {
		return nil, &NoSuchVariantError{Field: "encryption", Value: uint8(e)}
	}
	return []byte(name), nil
}

func (e *Encryption) UnmarshalText(text []byte) error {
	raw := strings.ToLower(strings.TrimSpace(string(text)))
	for v, name := range encryptionNames {
		if name == raw {
			*e = v
			return nil
		}
	}
	return fmt.Errorf("frame: unknown encryption %q", raw)
}
