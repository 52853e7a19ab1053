package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/danmuck/tunplex/internal/broadcast"
	"github.com/danmuck/tunplex/internal/ippacket"
	"github.com/danmuck/tunplex/internal/logging"
	"github.com/danmuck/tunplex/internal/observability"
	"github.com/danmuck/tunplex/internal/peer"
	"github.com/danmuck/tunplex/internal/protocol/frame"
	"github.com/danmuck/tunplex/internal/protocol/transform"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultBufferSize = frame.MaxPayload

var (
	ErrOversizedPacket = errors.New("stream: packet length exceeds buffer capacity")
	ErrHandlerReused   = errors.New("stream: handler already started")
	ErrInvalidBuffer   = errors.New("stream: invalid buffer size")
)

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options carries the interface-wide settings a handler needs.
type Options struct {
	// BufferSize bounds the payload of one frame in both directions.
	BufferSize  int
	IPFiltering bool
}

type Stats struct {
	FramesIn    uint64
	FramesOut   uint64
	Filtered    uint64
	Lagged      uint64
	ResyncBytes uint64
	Dropped     uint64
}

type Handler struct {
	peer  peer.Descriptor
	name  string
	opts  Options
	codec *transform.Codec
	log   zerolog.Logger

	state atomic.Int32

	framesIn    atomic.Uint64
	framesOut   atomic.Uint64
	filtered    atomic.Uint64
	lagged      atomic.Uint64
	resyncBytes atomic.Uint64
	dropped     atomic.Uint64
}

func New(d peer.Descriptor, opts Options) (*Handler, error) {
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BufferSize < 0 || opts.BufferSize > frame.MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuffer, opts.BufferSize)
	}
	codec, err := transform.NewCodec(d.Compression(), d.Encryption(), d.Key())
	if err != nil {
		return nil, fmt.Errorf("stream: %s: %w", d.Name(), err)
	}
	return &Handler{
		peer:  d,
		name:  d.Name(),
		opts:  opts,
		codec: codec,
		log:   logging.Component("stream").With().Str("peer", d.Name()).Logger(),
	}, nil
}

func (h *Handler) State() State {
	return State(h.state.Load())
}

func (h *Handler) Stats() Stats {
	return Stats{
		FramesIn:    h.framesIn.Load(),
		FramesOut:   h.framesOut.Load(),
		Filtered:    h.filtered.Load(),
		Lagged:      h.lagged.Load(),
		ResyncBytes: h.resyncBytes.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Run drives rw until either loop fails or ctx is cancelled, and always closes rw.
// The returned error is the first loop failure; io.EOF means the remote end closed.
func (h *Handler) Run(ctx context.Context, rw io.ReadWriteCloser, sub *broadcast.Subscription, out chan<- []byte) error {
	if !h.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrHandlerReused
	}
	defer h.state.Store(int32(StateClosed))
	observability.SetPeerUp(h.name, true)
	defer observability.SetPeerUp(h.name, false)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = rw.Close()
	})
	defer func() {
		if stop() {
			_ = rw.Close()
		}
	}()

	h.log.Info().Msg("stream running")
	g.Go(func() error {
		return h.readLoop(gctx, rw, out)
	})
	g.Go(func() error {
		return h.writeLoop(gctx, rw, sub)
	})
	err := g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	h.log.Info().Err(err).Msg("stream closed")
	return err
}

func (h *Handler) writeLoop(ctx context.Context, w io.Writer, sub *broadcast.Subscription) error {
	scratch := make([]byte, 0, frame.HeaderLen+h.opts.BufferSize)
	for {
		pkt, lagged, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		if lagged > 0 {
			h.lagged.Add(lagged)
			observability.RecordLagged(h.name, lagged)
			h.log.Warn().Uint64("skipped", lagged).Msg("broadcast subscriber lagged")
		}
		if !h.permits(pkt) {
			h.filtered.Add(1)
			observability.RecordFiltered(h.name)
			continue
		}
		payload, hdr, err := h.codec.Seal(pkt)
		if err == nil && len(payload) > h.opts.BufferSize {
			err = fmt.Errorf("%w: %d bytes", frame.ErrPayloadTooLarge, len(payload))
		}
		if err != nil {
			h.dropped.Add(1)
			h.log.Warn().Err(err).Int("len", len(pkt)).Msg("outbound packet dropped")
			continue
		}
		scratch, err = frame.AppendFrame(scratch[:0], hdr, payload)
		if err != nil {
			h.dropped.Add(1)
			h.log.Warn().Err(err).Msg("outbound frame dropped")
			continue
		}
		if _, err := w.Write(scratch); err != nil {
			return fmt.Errorf("stream: write: %w", err)
		}
		h.framesOut.Add(1)
		observability.RecordFrame(h.name, observability.DirectionOut, len(scratch))
	}
}

// permits applies the allowed-range policy. With filtering disabled, or no
// ranges configured, every packet passes.
func (h *Handler) permits(pkt []byte) bool {
	allow := h.peer.AllowList()
	if !h.opts.IPFiltering || allow.Len() == 0 {
		return true
	}
	dst, err := ippacket.Destination(pkt)
	if err != nil {
		h.log.Debug().Err(err).Msg("outbound packet has no readable destination")
		return false
	}
	return allow.Contains(dst)
}

func (h *Handler) readLoop(ctx context.Context, r io.Reader, out chan<- []byte) error {
	buf := make([]byte, frame.HeaderLen+h.opts.BufferSize)
	start, end := 0, 0
	var readErr error
	for {
		consumed, err := h.decodeFrames(ctx, buf[start:end], out)
		if err != nil {
			return err
		}
		start += consumed
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("stream: read: %w", readErr)
		}

		if start > 0 {
			end = copy(buf, buf[start:end])
			start = 0
		}
		// A complete frame always fits, so a full buffer was drained above.
		var n int
		n, readErr = r.Read(buf[end:])
		end += n
	}
}

// decodeFrames forwards every complete frame in b and returns how many bytes
// were consumed, junk skipped during resync included.
func (h *Handler) decodeFrames(ctx context.Context, b []byte, out chan<- []byte) (int, error) {
	pos := 0
	for {
		hdr, err := frame.Decode(b[pos:])
		switch {
		case err == nil:
		case errors.Is(err, frame.ErrBufferTooSmall):
			return pos, nil
		case errors.Is(err, frame.ErrBadSyncMarker):
			pos++
			h.resyncBytes.Add(1)
			observability.RecordResync(h.name, 1)
			continue
		default:
			observability.RecordDecodeError(h.name, decodeReason(err))
			return pos, err
		}
		if int(hdr.PacketLength) > h.opts.BufferSize {
			observability.RecordDecodeError(h.name, "oversized")
			return pos, fmt.Errorf("%w: %d > %d", ErrOversizedPacket, hdr.PacketLength, h.opts.BufferSize)
		}
		total := frame.HeaderLen + int(hdr.PacketLength)
		if len(b)-pos < total {
			return pos, nil
		}
		payload := bytes.Clone(b[pos+frame.HeaderLen : pos+total])
		pos += total

		pkt, err := h.codec.Open(hdr, payload)
		if err != nil {
			h.dropped.Add(1)
			observability.RecordDecodeError(h.name, "transform")
			h.log.Warn().Err(err).Msg("inbound frame dropped")
			continue
		}
		// The device only accepts IP packets; anything else would fail the write.
		if v, err := ippacket.Version(pkt); err != nil || (v != 4 && v != 6) {
			h.dropped.Add(1)
			observability.RecordDecodeError(h.name, "not-ip")
			h.log.Warn().Int("len", len(pkt)).Msg("inbound payload is not an IP packet")
			continue
		}
		h.framesIn.Add(1)
		observability.RecordFrame(h.name, observability.DirectionIn, total)
		select {
		case out <- pkt:
		case <-ctx.Done():
			return pos, ctx.Err()
		}
	}
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrUnsupportedVersion):
		return "version"
	case errors.Is(err, frame.ErrNoSuchVariant):
		return "variant"
	default:
		return "other"
	}
}
