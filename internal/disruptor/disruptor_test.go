package disruptor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRingBuffer_BasicOperations(t *testing.T) {
	rb := NewRingBuffer(DefaultConfig())

	if rb.GetBufferSize() != 8192 {
		t.Errorf("Expected buffer size 8192, got %d", rb.GetBufferSize())
	}

	size := rb.bufferSize
	if size&(size-1) != 0 {
		t.Errorf("Buffer size %d is not a power of 2", size)
	}

	expectedMask := size - 1
	if rb.indexMask != expectedMask {
		t.Errorf("Expected index mask %d, got %d", expectedMask, rb.indexMask)
	}
}

func TestSequencer_SingleProducer(t *testing.T) {
	rb := NewRingBuffer(Config{BufferSize: 1024})
	seq := NewSequencer(rb)

	for i := uint64(1); i <= 100; i++ {
		s, err := seq.Next()
		if err != nil {
			t.Fatalf("Failed to claim sequence %d: %v", i, err)
		}
		if s != i {
			t.Errorf("Expected sequence %d, got %d", i, s)
		}
	}
}

func TestSequencer_MultiProducer(t *testing.T) {
	rb := NewRingBuffer(Config{BufferSize: 4096})
	seq := NewSequencer(rb)

	numProducers := 10
	sequencesPerProducer := 100

	var wg sync.WaitGroup
	claimed := make(map[uint64]bool)
	claimedMu := sync.Mutex{}

	wg.Add(numProducers)

	for p := 0; p < numProducers; p++ {
		go func() {
			defer wg.Done()

			for i := 0; i < sequencesPerProducer; i++ {
				s, err := seq.Next()
				if err != nil {
					t.Errorf("Failed to claim sequence: %v", err)
					return
				}

				claimedMu.Lock()
				if claimed[s] {
					t.Errorf("Duplicate sequence claimed: %d", s)
				}
				claimed[s] = true
				claimedMu.Unlock()
			}
		}()
	}

	wg.Wait()

	expectedTotal := numProducers * sequencesPerProducer
	if len(claimed) != expectedTotal {
		t.Errorf("Expected %d unique sequences, got %d", expectedTotal, len(claimed))
	}
}

func TestSequencer_Backpressure(t *testing.T) {
	rb := NewRingBuffer(Config{BufferSize: 16})
	seq := NewSequencer(rb)

	for i := uint64(1); i <= 16; i++ {
		s, err := seq.Next()
		if err != nil {
			t.Fatalf("Failed to claim sequence %d: %v", i, err)
		}
		_ = s
	}

	_, err := seq.Next()
	if err != ErrBufferFull {
		t.Errorf("Expected ErrBufferFull, got %v", err)
	}
}

type testRequest struct {
	Symbol string
	Price  int64
}

func TestDisruptorIntegration(t *testing.T) {
	rb := NewRingBuffer(Config{BufferSize: 1024})
	seq := NewSequencer(rb)

	var consumed uint64

	numRequests := 100
	responseChs := make([]chan interface{}, numRequests)

	for i := 0; i < numRequests; i++ {
		s, err := seq.Next()
		if err != nil {
			t.Fatalf("Failed to claim sequence: %v", err)
		}

		responseChs[i] = make(chan interface{}, 1)
		req := &testRequest{Symbol: "TWAP-BTC", Price: 1500000000}
		seq.Publish(s, req, responseChs[i])
	}

	nextSeq := uint64(1)
	for nextSeq <= uint64(numRequests) {
		index := nextSeq & rb.indexMask
		slot := &rb.slots[index]

		for {
			available := atomic.LoadUint64(&slot.SequenceNum)
			if available == nextSeq {
				break
			}
			time.Sleep(10 * time.Microsecond)
		}

		req, ok := slot.Request.(*testRequest)
		if !ok || req == nil {
			t.Fatalf("Slot %d has unexpected request type", nextSeq)
		}
		if req.Symbol != "TWAP-BTC" {
			t.Errorf("Expected symbol TWAP-BTC, got %s", req.Symbol)
		}

		atomic.StoreUint64(&rb.gatingSequence, nextSeq)
		nextSeq++
		consumed++
	}

	if consumed != uint64(numRequests) {
		t.Errorf("Expected to consume %d requests, consumed %d", numRequests, consumed)
	}
}

func BenchmarkSequencer_SingleProducer(b *testing.B) {
	rb := NewRingBuffer(Config{BufferSize: 8192})
	seq := NewSequencer(rb)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s, err := seq.Next()
		if err != nil {
			b.Fatalf("Failed to claim sequence: %v", err)
		}

		index := s & rb.indexMask
		atomic.StoreUint64(&rb.slots[index].SequenceNum, s)

		if i%100 == 0 {
			atomic.StoreUint64(&rb.gatingSequence, s-rb.bufferSize/2)
		}
	}
}

func BenchmarkSequencer_MultiProducer(b *testing.B) {
	rb := NewRingBuffer(Config{BufferSize: 8192})
	seq := NewSequencer(rb)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s, err := seq.Next()
			if err != nil {
				continue
			}

			index := s & rb.indexMask
			atomic.StoreUint64(&rb.slots[index].SequenceNum, s)
		}
	})
}
