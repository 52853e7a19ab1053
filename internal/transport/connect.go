package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/peer"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

var ErrUnsupportedKind = errors.New("transport: unsupported peer kind")

// SerialOpener opens a serial device. It is swapped out in tests.
type SerialOpener func(path string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openSerial(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(path, mode)
}

// Connector opens the stream for a peer descriptor.
type Connector struct {
	cfg        Config
	openSerial SerialOpener
	log        zerolog.Logger

	// OnListen, when set, is told the bound address of a sock-listen peer before Accept.
	OnListen func(d peer.Descriptor, addr net.Addr)
}

func NewConnector(cfg Config) *Connector {
	return &Connector{
		cfg:        cfg.WithDefaults(),
		openSerial: openSerial,
		log:        logging.Component("transport"),
	}
}

// WithSerialOpener returns a copy of c that opens serial devices through open.
func (c *Connector) WithSerialOpener(open SerialOpener) *Connector {
	cp := *c
	cp.openSerial = open
	return &cp
}

// Connect opens the byte stream for d. A blocked connect only ever holds up d.
func (c *Connector) Connect(ctx context.Context, d peer.Descriptor) (io.ReadWriteCloser, error) {
	switch d.Kind() {
	case peer.KindChar:
		return c.connectSerial(d, c.speed(d, c.cfg.CharSpeed))
	case peer.KindMidi:
		return c.connectSerial(d, c.speed(d, c.cfg.MidiSpeed))
	case peer.KindSock:
		return c.connectSock(ctx, d)
	case peer.KindSockListen:
		return c.connectSockListen(ctx, d)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, d.Kind())
	}
}

func (c *Connector) speed(d peer.Descriptor, fallback uint32) uint32 {
	if d.Speed() != 0 {
		return d.Speed()
	}
	return fallback
}

func (c *Connector) connectSerial(d peer.Descriptor, speed uint32) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: int(speed),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := c.openSerial(d.Path(), mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s at %d baud: %w", d.Path(), speed, err)
	}
	c.log.Info().Str("peer", d.Name()).Uint32("speed", speed).Msg("serial device opened")
	return port, nil
}

func (c *Connector) connectSock(ctx context.Context, d peer.Descriptor) (io.ReadWriteCloser, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Path())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", d.Path(), err)
	}
	c.log.Info().Str("peer", d.Name()).Str("remote", conn.RemoteAddr().String()).Msg("connected")
	return conn, nil
}

// connectSockListen accepts exactly one connection and stops listening.
func (c *Connector) connectSockListen(ctx context.Context, d peer.Descriptor) (io.ReadWriteCloser, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.Path())
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", d.Path(), err)
	}
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	c.log.Info().Str("peer", d.Name()).Str("addr", ln.Addr().String()).Msg("waiting for inbound connection")
	if c.OnListen != nil {
		c.OnListen(d, ln.Addr())
	}
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("transport: accept %s: %w", d.Path(), err)
	}
	c.log.Info().Str("peer", d.Name()).Str("remote", conn.RemoteAddr().String()).Msg("connected")
	return conn, nil
}
