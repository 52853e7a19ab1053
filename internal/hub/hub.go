// Package hub fans device packets out to every peer and funnels peer packets
// back into the device.
//
// One goroutine reads the device and publishes each packet on a broadcaster.
// One goroutine drains the aggregation channel into the device in receipt
// order. Each peer gets a supervisor that subscribes, connects, runs a stream
// handler and, when the peer's policy allows, reconnects. A failing peer never
// stops the hub, and neither does a packet the device rejects. A device that
// is gone does.
package hub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/danmuck/tunplex/internal/broadcast"
	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/observability"
	"github.com/danmuck/tunplex/internal/peer"
	"github.com/danmuck/tunplex/internal/stream"
	"github.com/danmuck/tunplex/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultAggregateDepth = 256

var (
	ErrNoPeers    = errors.New("hub: no peers configured")
	ErrHubReused  = errors.New("hub: already started")
	ErrNilDevice  = errors.New("hub: nil device")
	ErrDeviceRead  = errors.New("hub: device read failed")
	ErrDeviceWrite = errors.New("hub: device write failed")
)

// Connector opens a peer's byte stream. *transport.Connector satisfies it.
type Connector interface {
	Connect(ctx context.Context, d peer.Descriptor) (io.ReadWriteCloser, error)
}

type Options struct {
	BufferSize     int
	IPFiltering    bool
	BroadcastDepth int
	AggregateDepth int
	Transport      transport.Config
	// Connector overrides the transport connector built from Transport.
	Connector Connector
	// OnStop runs once when the hub stops, before the device is closed.
	OnStop func()
}

type Hub struct {
	dev       io.ReadWriteCloser
	peers     []peer.Descriptor
	opts      Options
	connector Connector
	bc        *broadcast.Broadcaster
	agg       chan []byte
	log       zerolog.Logger

	started  atomic.Bool
	stopOnce sync.Once
	status   sync.Map // peer name -> PeerState
	rejected atomic.Uint64
}

// New validates every peer's stream settings up front so a bad key or
// transform fails before the device is touched.
func New(dev io.ReadWriteCloser, peers []peer.Descriptor, opts Options) (*Hub, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = stream.DefaultBufferSize
	}
	if opts.AggregateDepth <= 0 {
		opts.AggregateDepth = DefaultAggregateDepth
	}
	for _, d := range peers {
		if _, err := stream.New(d, opts.streamOptions()); err != nil {
			return nil, err
		}
	}
	connector := opts.Connector
	if connector == nil {
		connector = transport.NewConnector(opts.Transport)
	}
	h := &Hub{
		dev:       dev,
		peers:     append([]peer.Descriptor(nil), peers...),
		opts:      opts,
		connector: connector,
		bc:        broadcast.New(opts.BroadcastDepth),
		agg:       make(chan []byte, opts.AggregateDepth),
		log:       logging.Component("hub"),
	}
	for _, d := range h.peers {
		h.status.Store(d.Name(), PeerIdle)
	}
	return h, nil
}

func (o Options) streamOptions() stream.Options {
	return stream.Options{BufferSize: o.BufferSize, IPFiltering: o.IPFiltering}
}

// Run moves packets until ctx is cancelled or the device is gone, and returns
// after every goroutine it started has exited. On the way out it runs OnStop
// and then closes the device, which unblocks the device reader.
func (h *Hub) Run(ctx context.Context) error {
	if !h.started.CompareAndSwap(false, true) {
		return ErrHubReused
	}

	g, gctx := errgroup.WithContext(ctx)
	context.AfterFunc(gctx, h.stop)

	h.log.Info().Int("peers", len(h.peers)).Bool("ip_filtering", h.opts.IPFiltering).Msg("hub running")
	g.Go(func() error {
		return h.readDevice(gctx)
	})
	g.Go(func() error {
		return h.writeDevice(gctx)
	})

	var peers sync.WaitGroup
	for _, d := range h.peers {
		peers.Go(func() {
			h.supervise(gctx, d)
		})
	}

	err := g.Wait()
	h.stop()
	h.bc.Close()
	peers.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	h.log.Info().Err(err).Msg("hub stopped")
	return err
}

func (h *Hub) readDevice(ctx context.Context) error {
	buf := make([]byte, h.opts.BufferSize)
	for {
		n, err := h.dev.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %w", ErrDeviceRead, err)
		}
		if n == 0 {
			continue
		}
		observability.RecordDevicePacket(observability.DirectionOut)
		h.bc.Publish(bytes.Clone(buf[:n]))
	}
}

// stop runs OnStop then closes the device. Concurrent callers wait for the first.
func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		if h.opts.OnStop != nil {
			h.opts.OnStop()
		}
		if err := h.dev.Close(); err != nil {
			h.log.Debug().Err(err).Msg("device close")
		}
	})
}

// writeDevice drains the aggregation channel. A rejected packet is logged
// and counted; only a closed device ends the loop.
func (h *Hub) writeDevice(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt := <-h.agg:
			if _, err := h.dev.Write(pkt); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if deviceGone(err) {
					return fmt.Errorf("%w: %w", ErrDeviceWrite, err)
				}
				h.rejected.Add(1)
				observability.RecordDeviceWriteError(errnoLabel(err))
				h.log.Warn().Err(err).Int("len", len(pkt)).Msg("device rejected packet")
				continue
			}
			observability.RecordDevicePacket(observability.DirectionIn)
		}
	}
}

func deviceGone(err error) bool {
	return errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EBADF) ||
		errors.Is(err, io.ErrClosedPipe)
}

func errnoLabel(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno.Error()
	}
	return "other"
}

// supervise owns one peer for the life of the hub.
func (h *Hub) supervise(ctx context.Context, d peer.Descriptor) {
	log := h.log.With().Str("peer", d.Name()).Logger()
	policy := d.Reconnect()
	backoff := transport.NewBackoff(policy.Backoff, nil)
	defer h.status.Store(d.Name(), PeerStopped)

	for attempt := 1; ; attempt++ {
		connected, err := h.session(ctx, d)
		if ctx.Err() != nil {
			return
		}
		h.status.Store(d.Name(), PeerDown)
		switch {
		case errors.Is(err, io.EOF):
			log.Info().Msg("peer closed the stream")
		default:
			log.Error().Err(err).Msg("peer failed")
		}
		if connected {
			attempt = 1
			backoff.Reset()
		}
		if !policy.ShouldRetry(attempt) {
			log.Warn().Int("attempt", attempt).Msg("peer stopped")
			return
		}
		log.Info().Int("attempt", attempt).Msg("reconnecting after backoff")
		if err := backoff.Wait(ctx); err != nil {
			return
		}
	}
}

// session runs one connect and stream lifetime. connected reports whether the
// transport came up, which resets the reconnect attempt count.
func (h *Hub) session(ctx context.Context, d peer.Descriptor) (bool, error) {
	sub := h.bc.Subscribe()
	defer sub.Unsubscribe()

	handler, err := stream.New(d, h.opts.streamOptions())
	if err != nil {
		return false, err
	}
	h.status.Store(d.Name(), PeerConnecting)
	rw, err := h.connector.Connect(ctx, d)
	observability.RecordConnect(d.Name(), err == nil)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	h.status.Store(d.Name(), PeerUp)
	return true, handler.Run(ctx, rw, sub, h.agg)
}
