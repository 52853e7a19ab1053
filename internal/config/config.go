// Package config loads the tunplex TOML file into interface settings and peer descriptors.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tunplex/internal/peer"
	"github.com/danmuck/tunplex/internal/protocol/frame"
	"github.com/danmuck/tunplex/internal/transport"
)

const (
	DefaultBuffer         = frame.MaxPayload
	DefaultMTU            = 1500
	DefaultBroadcastDepth = 64
	DefaultAggregateDepth = 256
)

var ErrInvalid = errors.New("config: invalid")

// Interface holds the [interface] section after defaults are applied.
type Interface struct {
	Address        netip.Prefix
	Name           string
	IPFiltering    bool
	Buffer         int
	MTU            int
	PostUp         string
	PostDown       string
	Metrics        string
	BroadcastDepth int
	AggregateDepth int
	ConnectTimeout time.Duration
}

// Config is a loaded and validated configuration file.
type Config struct {
	Interface Interface
	Peers     []peer.Descriptor
}

func DefaultInterface() Interface {
	return Interface{
		IPFiltering:    true,
		Buffer:         DefaultBuffer,
		MTU:            DefaultMTU,
		BroadcastDepth: DefaultBroadcastDepth,
		AggregateDepth: DefaultAggregateDepth,
		ConnectTimeout: transport.DefaultConfig().ConnectTimeout,
	}
}

// Transport returns the connector settings derived from the interface section.
func (i Interface) Transport() transport.Config {
	return transport.Config{ConnectTimeout: i.ConnectTimeout}.WithDefaults()
}

// tunplex config.toml key mapping.
type fileConfig struct {
	Interface      fileInterface `toml:"interface"`
	PeerChar       []filePeer    `toml:"peer-char"`
	PeerSock       []filePeer    `toml:"peer-sock"`
	PeerSockListen []filePeer    `toml:"peer-sock-listen"`
	PeerMidi       []filePeer    `toml:"peer-midi"`
}

type fileInterface struct {
	Address        string `toml:"address"`
	Name           string `toml:"name"`
	IPFiltering    bool   `toml:"ip-filtering"`
	Buffer         int    `toml:"buffer"`
	MTU            int    `toml:"mtu"`
	PostUp         string `toml:"post-up"`
	PostDown       string `toml:"post-down"`
	Metrics        string `toml:"metrics"`
	BroadcastDepth int    `toml:"broadcast-depth"`
	AggregateDepth int    `toml:"aggregate-depth"`
	ConnectTimeout string `toml:"connect-timeout"`
}

type filePeer struct {
	Path              string   `toml:"path"`
	Speed             uint32   `toml:"speed"`
	AllowedIPs        []string `toml:"allowedips"`
	Compression       string   `toml:"compression"`
	Encryption        string   `toml:"encryption"`
	Key               string   `toml:"key"`
	Reconnect         bool     `toml:"reconnect"`
	ReconnectAttempts int      `toml:"reconnect-attempts"`
	ReconnectDelay    string   `toml:"reconnect-delay"`
	ReconnectMaxDelay string   `toml:"reconnect-max-delay"`
}

// Load reads path and returns the validated configuration.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return build(meta, raw)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return build(meta, raw)
}

func build(meta toml.MetaData, raw fileConfig) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	iface, err := buildInterface(meta, raw.Interface)
	if err != nil {
		return Config{}, err
	}

	sections := []struct {
		kind  peer.Kind
		peers []filePeer
	}{
		{peer.KindChar, raw.PeerChar},
		{peer.KindSock, raw.PeerSock},
		{peer.KindSockListen, raw.PeerSockListen},
		{peer.KindMidi, raw.PeerMidi},
	}
	cfg := Config{Interface: iface}
	for _, section := range sections {
		for i, fp := range section.peers {
			d, err := buildPeer(section.kind, fp)
			if err != nil {
				return Config{}, fmt.Errorf("peer-%s[%d]: %w", section.kind, i, err)
			}
			cfg.Peers = append(cfg.Peers, d)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func buildInterface(meta toml.MetaData, raw fileInterface) (Interface, error) {
	out := DefaultInterface()
	if !meta.IsDefined("interface") {
		return Interface{}, fmt.Errorf("%w: missing [interface] section", ErrInvalid)
	}
	if meta.IsDefined("interface", "address") {
		addr, err := netip.ParsePrefix(strings.TrimSpace(raw.Address))
		if err != nil {
			return Interface{}, fmt.Errorf("%w: interface address: %v", ErrInvalid, err)
		}
		out.Address = addr
	}
	if meta.IsDefined("interface", "name") {
		out.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("interface", "ip-filtering") {
		out.IPFiltering = raw.IPFiltering
	}
	if meta.IsDefined("interface", "buffer") {
		out.Buffer = raw.Buffer
	}
	if meta.IsDefined("interface", "mtu") {
		out.MTU = raw.MTU
	}
	if meta.IsDefined("interface", "post-up") {
		out.PostUp = strings.TrimSpace(raw.PostUp)
	}
	if meta.IsDefined("interface", "post-down") {
		out.PostDown = strings.TrimSpace(raw.PostDown)
	}
	if meta.IsDefined("interface", "metrics") {
		out.Metrics = strings.TrimSpace(raw.Metrics)
	}
	if meta.IsDefined("interface", "broadcast-depth") {
		out.BroadcastDepth = raw.BroadcastDepth
	}
	if meta.IsDefined("interface", "aggregate-depth") {
		out.AggregateDepth = raw.AggregateDepth
	}
	if meta.IsDefined("interface", "connect-timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return Interface{}, fmt.Errorf("%w: interface connect-timeout: %v", ErrInvalid, err)
		}
		out.ConnectTimeout = d
	}
	return out, nil
}

func buildPeer(kind peer.Kind, raw filePeer) (peer.Descriptor, error) {
	opts := peer.Options{Path: strings.TrimSpace(raw.Path)}
	for _, s := range raw.AllowedIPs {
		p, err := netip.ParsePrefix(strings.TrimSpace(s))
		if err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: allowedips: %v", ErrInvalid, err)
		}
		opts.AllowedIPs = append(opts.AllowedIPs, p)
	}
	if raw.Compression != "" {
		var c frame.Compression
		if err := c.UnmarshalText([]byte(raw.Compression)); err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		opts.Compression = &c
	}
	if raw.Encryption != "" {
		var e frame.Encryption
		if err := e.UnmarshalText([]byte(raw.Encryption)); err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		opts.Encryption = &e
	}
	if raw.Key != "" {
		key, err := hex.DecodeString(strings.TrimSpace(raw.Key))
		if err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: key must be hex: %v", ErrInvalid, err)
		}
		opts.Key = key
	}

	policy := peer.DefaultReconnectPolicy()
	policy.Enabled = raw.Reconnect
	policy.MaxAttempts = raw.ReconnectAttempts
	if raw.ReconnectDelay != "" {
		d, err := time.ParseDuration(raw.ReconnectDelay)
		if err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: reconnect-delay: %v", ErrInvalid, err)
		}
		policy.Backoff.InitialDelay = d
	}
	if raw.ReconnectMaxDelay != "" {
		d, err := time.ParseDuration(raw.ReconnectMaxDelay)
		if err != nil {
			return peer.Descriptor{}, fmt.Errorf("%w: reconnect-max-delay: %v", ErrInvalid, err)
		}
		policy.Backoff.MaxDelay = d
	}

	return peer.New(peer.Spec{
		Kind:      kind,
		Options:   opts,
		Speed:     raw.Speed,
		Reconnect: policy,
	})
}

// Validate checks interface bounds and peer uniqueness.
func (c Config) Validate() error {
	i := c.Interface
	if !i.Address.IsValid() {
		return fmt.Errorf("%w: interface address is required", ErrInvalid)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: interface name is required", ErrInvalid)
	}
	if i.Buffer <= 0 || i.Buffer > frame.MaxPayload {
		return fmt.Errorf("%w: buffer must be in 1..%d, got %d", ErrInvalid, frame.MaxPayload, i.Buffer)
	}
	if i.MTU <= 0 || i.MTU > i.Buffer {
		return fmt.Errorf("%w: mtu must be in 1..buffer, got %d", ErrInvalid, i.MTU)
	}
	if i.BroadcastDepth <= 0 || i.AggregateDepth <= 0 {
		return fmt.Errorf("%w: broadcast-depth and aggregate-depth must be positive", ErrInvalid)
	}
	if i.ConnectTimeout < 0 {
		return fmt.Errorf("%w: connect-timeout must not be negative", ErrInvalid)
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("%w: at least one peer is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(c.Peers))
	for _, d := range c.Peers {
		if _, dup := seen[d.Name()]; dup {
			return fmt.Errorf("%w: duplicate peer %s", ErrInvalid, d.Name())
		}
		seen[d.Name()] = struct{}{}
	}
	return nil
}
