package fanout

import (
	"testing"
	"time"
)

func TestTopic_PublishSubscribe(t *testing.T) {
	topic := NewTopic[int64](4)
	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	topic.Publish(42)

	select {
	case update := <-ch:
		if update.Payload != 42 {
			t.Errorf("expected payload 42, got %d", update.Payload)
		}
		if update.Lag != 0 {
			t.Errorf("expected no lag on first delivery, got %d", update.Lag)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published update")
	}
}

func TestTopic_LagCountsOnOverflow(t *testing.T) {
	topic := NewTopic[int64](1)
	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	topic.Publish(1) // fills the buffered channel
	topic.Publish(2) // dropped, lag++
	topic.Publish(3) // dropped, lag++

	first := <-ch
	if first.Payload != 1 || first.Lag != 0 {
		t.Errorf("expected first delivery {1, lag 0}, got %+v", first)
	}

	topic.Publish(4)
	second := <-ch
	if second.Payload != 4 {
		t.Errorf("expected next delivered payload to be 4, got %d", second.Payload)
	}
	if second.Lag != 2 {
		t.Errorf("expected lag of 2 dropped updates, got %d", second.Lag)
	}
}

func TestTopic_Unsubscribe_ClosesChannel(t *testing.T) {
	topic := NewTopic[int64](1)
	ch, unsubscribe := topic.Subscribe()
	unsubscribe()

	_, open := <-ch
	if open {
		t.Errorf("expected channel closed after unsubscribe")
	}
}

func TestTopic_DefaultBuffer(t *testing.T) {
	topic := NewTopic[int64](0)
	if topic.buffer != 20 {
		t.Errorf("expected default buffer of 20, got %d", topic.buffer)
	}
}

func TestCoalescer_MergesWithinWindow(t *testing.T) {
	topic := NewTopic[int64](4)
	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	merge := func(batch []int64) int64 {
		var sum int64
		for _, v := range batch {
			sum += v
		}
		return sum
	}
	c := NewCoalescer(topic, 30*time.Millisecond, merge)
	go c.Run()
	defer c.Shutdown()

	c.Push(1)
	c.Push(2)
	c.Push(3)

	select {
	case update := <-ch:
		if update.Payload != 6 {
			t.Errorf("expected coalesced sum 6, got %d", update.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for coalesced publish")
	}
}
