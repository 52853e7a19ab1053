package peer

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/danmuck/tunplex/internal/protocol/frame"
)

var (
	ErrPathRequired      = errors.New("peer: path required")
	ErrAllowedIPRequired = errors.New("peer: at least one allowed ip range required")
	ErrUnknownKind       = errors.New("peer: unknown kind")
	ErrSpeedNotSupported = errors.New("peer: speed only applies to char and midi peers")
	ErrKeyRequired       = errors.New("peer: encryption key required")
)

// Kind tags which transport a descriptor connects through.
type Kind uint8

const (
	KindChar Kind = iota
	KindSock
	KindSockListen
	KindMidi
)

func (k Kind) String() string {
	switch k {
	case KindChar:
		return "char"
	case KindSock:
		return "sock"
	case KindSockListen:
		return "sock-listen"
	case KindMidi:
		return "midi"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Options is the option set every peer kind shares.
type Options struct {
	Path        string
	AllowedIPs  []netip.Prefix
	Compression *frame.Compression
	Encryption  *frame.Encryption
	Key         []byte
}

// Spec is the constructor input for a Descriptor.
type Spec struct {
	Kind      Kind
	Options   Options
	Speed     uint32
	Reconnect ReconnectPolicy
}

// Descriptor describes one peer. It is not modified after New.
type Descriptor struct {
	kind      Kind
	opts      Options
	speed     uint32
	reconnect ReconnectPolicy
	allow     *AllowList
}

func New(spec Spec) (Descriptor, error) {
	switch spec.Kind {
	case KindChar, KindSock, KindSockListen, KindMidi:
	default:
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(spec.Kind))
	}
	path := strings.TrimSpace(spec.Options.Path)
	if path == "" {
		return Descriptor{}, ErrPathRequired
	}
	if len(spec.Options.AllowedIPs) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrAllowedIPRequired, path)
	}
	if spec.Speed != 0 && spec.Kind != KindChar && spec.Kind != KindMidi {
		return Descriptor{}, fmt.Errorf("%w: %s %s", ErrSpeedNotSupported, spec.Kind, path)
	}
	if spec.Options.Encryption != nil && *spec.Options.Encryption != frame.EncryptionNone && len(spec.Options.Key) == 0 {
		return Descriptor{}, fmt.Errorf("%w: %s %s", ErrKeyRequired, spec.Kind, path)
	}

	allow, err := NewAllowList(spec.Options.AllowedIPs)
	if err != nil {
		return Descriptor{}, err
	}

	opts := Options{
		Path:       path,
		AllowedIPs: append([]netip.Prefix(nil), spec.Options.AllowedIPs...),
		Key:        append([]byte(nil), spec.Options.Key...),
	}
	if spec.Options.Compression != nil {
		c := *spec.Options.Compression
		opts.Compression = &c
	}
	if spec.Options.Encryption != nil {
		e := *spec.Options.Encryption
		opts.Encryption = &e
	}
	return Descriptor{
		kind:      spec.Kind,
		opts:      opts,
		speed:     spec.Speed,
		reconnect: spec.Reconnect,
		allow:     allow,
	}, nil
}

func (d Descriptor) Kind() Kind                 { return d.kind }
func (d Descriptor) Path() string               { return d.opts.Path }
func (d Descriptor) Speed() uint32              { return d.speed }
func (d Descriptor) Reconnect() ReconnectPolicy { return d.reconnect }
func (d Descriptor) AllowList() *AllowList      { return d.allow }

// Name identifies the peer in logs and metric labels.
func (d Descriptor) Name() string {
	return d.kind.String() + ":" + d.opts.Path
}

func (d Descriptor) AllowedIPs() []netip.Prefix {
	return append([]netip.Prefix(nil), d.opts.AllowedIPs...)
}

// Compression returns the peer override, or none.
func (d Descriptor) Compression() frame.Compression {
	if d.opts.Compression == nil {
		return frame.CompressionNone
	}
	return *d.opts.Compression
}

// Encryption returns the peer override, or none.
func (d Descriptor) Encryption() frame.Encryption {
	if d.opts.Encryption == nil {
		return frame.EncryptionNone
	}
	return *d.opts.Encryption
}

func (d Descriptor) Key() []byte {
	return append([]byte(nil), d.opts.Key...)
}
