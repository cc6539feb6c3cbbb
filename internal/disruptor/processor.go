package disruptor

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// Handler processes one published request and returns the value sent
// back on the caller's response channel. internal/submit supplies the
// concrete handler (decode -> verify -> read-modify-check -> mint id
// -> publish to Kafka).
type Handler func(request interface{}) interface{}

// EventProcessor drains the ring buffer in a single goroutine,
// preserving the arrival order established by Sequencer.Next, and
// dispatches each request to Handler.
type EventProcessor struct {
	rb           *RingBuffer
	handle       Handler
	log          *slog.Logger
	running      atomic.Bool
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
}

func NewEventProcessor(rb *RingBuffer, handle Handler, log *slog.Logger) *EventProcessor {
	return &EventProcessor{
		rb:           rb,
		handle:       handle,
		log:          log,
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

func (p *EventProcessor) Start() {
	p.running.Store(true)
	go p.processLoop()
}

// processLoop maintains determinism by processing requests
// sequentially in sequence-number order, relying on the
// single-threaded nature for correctness rather than locks.
func (p *EventProcessor) processLoop() {
	defer close(p.shutdownDone)

	nextSequence := uint64(1)

	for p.running.Load() {
		index := nextSequence & p.rb.indexMask
		slot := &p.rb.slots[index]

		for {
			available := atomic.LoadUint64(&slot.SequenceNum)
			if available == nextSequence {
				break
			}
			select {
			case <-p.shutdownCh:
				return
			default:
				runtime.Gosched()
			}
		}

		p.processRequest(slot)
		atomic.StoreUint64(&p.rb.gatingSequence, nextSequence)
		nextSequence++
	}
}

func (p *EventProcessor) processRequest(slot *RingBufferSlot) {
	req := slot.Request
	responseCh := slot.ResponseCh

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("disruptor: event processor panic", "recovered", r)
			select {
			case responseCh <- fmt.Errorf("internal error: %v", r):
			default:
			}
		}
	}()

	result := p.handle(req)
	select {
	case responseCh <- result:
	default:
		p.log.Warn("disruptor: response channel full or abandoned, dropping result")
	}
}

func (p *EventProcessor) Shutdown() {
	p.running.Store(false)
	close(p.shutdownCh)
	<-p.shutdownDone
}
