// Package broadcast fans one producer's packets out to many subscribers.
//
// Every subscriber owns a bounded queue. Publish never blocks: when a queue is
// full the oldest queued packet is dropped and the subscriber's lag counter is
// bumped, so a stalled peer never holds up the device reader or its siblings.
// Packets are shared between subscribers and must be treated as read-only.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

const DefaultDepth = 64

var ErrClosed = errors.New("broadcast: closed")

type Broadcaster struct {
	depth int

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	published atomic.Uint64
}

func New(depth int) *Broadcaster {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Broadcaster{
		depth: depth,
		subs:  make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber that sees packets published from now on.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{
		b:    b,
		ch:   make(chan []byte, b.depth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.stop()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish offers pkt to every subscriber without blocking.
func (b *Broadcaster) Publish(pkt []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for s := range b.subs {
		s.offer(pkt)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) Published() uint64 {
	return b.published.Load()
}

// Close ends every subscription. Later Publish calls are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.stop()
		delete(b.subs, s)
	}
}

// Subscription is one consumer's view of the broadcast.
type Subscription struct {
	b      *Broadcaster
	ch     chan []byte
	lagged atomic.Uint64
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) offer(pkt []byte) {
	for {
		select {
		case s.ch <- pkt:
			return
		default:
		}
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Recv blocks for the next packet. lagged is the number of packets dropped for
// this subscriber since the previous Recv; the returned packet is the oldest
// one still retained and is a valid starting point.
func (s *Subscription) Recv(ctx context.Context) (pkt []byte, lagged uint64, err error) {
	select {
	case pkt = <-s.ch:
		return pkt, s.lagged.Swap(0), nil
	case <-s.done:
		return nil, 0, ErrClosed
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}
}

// Unsubscribe detaches s. Pending and future Recv calls return ErrClosed.
func (s *Subscription) Unsubscribe() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()
	s.stop()
}
