// Package fanout implements the Broadcast Fanout (BF): bounded,
// lossy-to-slow-subscriber channels per topic, with a lag-count
// notification on overflow instead of a silent drop.
//
// Grounded on internal/marketdata/publisher.go's non-blocking
// select{case ch<-v: default:} fan-out pattern, generalized from
// per-symbol L1/L2/trade channel slices to one generic Topic[T] per
// spec.md's four named topics (price, order-book delta, recent
// trades, candles). The teacher's version silently drops on a full
// channel; this one counts the drop and attaches the running lag to
// the next successfully delivered message, which the teacher's
// Publisher does not do.
package fanout

import (
	"sync"
	"time"
)

// Update wraps a payload with the number of updates the subscriber
// missed since its last delivery (0 on the common path).
type Update[T any] struct {
	Payload T
	Lag     uint64
}

type subscriber[T any] struct {
	ch  chan Update[T]
	lag uint64
}

// Topic is a single fan-out point: many subscribers, each with its
// own bounded, independently-lossy channel.
type Topic[T any] struct {
	mu     sync.Mutex
	subs   map[int]*subscriber[T]
	nextID int
	buffer int
}

func NewTopic[T any](buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = 20
	}
	return &Topic[T]{subs: make(map[int]*subscriber[T]), buffer: buffer}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe func.
func (t *Topic[T]) Subscribe() (<-chan Update[T], func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	sub := &subscriber[T]{ch: make(chan Update[T], t.buffer)}
	t.subs[id] = sub

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			close(s.ch)
			delete(t.subs, id)
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers payload to every subscriber without blocking. A
// subscriber whose channel is full has its lag counter incremented
// instead of receiving the update; the lag is attached to its next
// successful delivery.
func (t *Topic[T]) Publish(payload T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sub := range t.subs {
		select {
		case sub.ch <- Update[T]{Payload: payload, Lag: sub.lag}:
			sub.lag = 0
		default:
			sub.lag++
		}
	}
}

// Close tears down every subscriber channel, for graceful shutdown.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sub := range t.subs {
		close(sub.ch)
		delete(t.subs, id)
	}
}

// Coalescer batches Publish calls onto a topic behind a fixed ticker,
// following internal/disruptor/batcher.go's ticker-or-channel select
// loop, repurposed here from event-log batching to publish
// coalescing: spec.md's §4.4 250ms cadence.
type Coalescer[T any] struct {
	topic    *Topic[T]
	window   time.Duration
	incoming chan T
	merge    func(batch []T) T
	shutdown chan struct{}
	done     chan struct{}
}

func NewCoalescer[T any](topic *Topic[T], window time.Duration, merge func([]T) T) *Coalescer[T] {
	return &Coalescer[T]{
		topic:    topic,
		window:   window,
		incoming: make(chan T, 256),
		merge:    merge,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Coalescer[T]) Push(v T) {
	select {
	case c.incoming <- v:
	default:
		// Coalescing buffer full: the next tick will merge whatever
		// arrived, dropping this one is acceptable since it will be
		// superseded by a fresher update within the same window.
	}
}

func (c *Coalescer[T]) Run() {
	ticker := time.NewTicker(c.window)
	defer ticker.Stop()
	defer close(c.done)

	var pending []T
	for {
		select {
		case v := <-c.incoming:
			pending = append(pending, v)
		case <-ticker.C:
			if len(pending) > 0 {
				c.topic.Publish(c.merge(pending))
				pending = nil
			}
		case <-c.shutdown:
			return
		}
	}
}

func (c *Coalescer[T]) Shutdown() {
	close(c.shutdown)
	<-c.done
}
