// Package ingest implements the Log Consumer (LC): a sarama
// consumer-group wrapper that decodes each record into an events.Event,
// wraps each record in its own one-event (CompletionToken, []Event,
// catchup) Batch, and only commits offsets once the Archiver hands a
// token back — offset-commit discipline (I5) lives here, not in the
// Archiver.
//
// Grounded on original_source/src/kafka.rs's start_consumer: fallback
// offset Earliest, per-message-set max-offset tracking, catch-up
// computed against the partition's high water mark, and a synthetic
// Stop event on deserialize failure instead of aborting the batch.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/twilight-project/relayer-eisme/internal/events"
)

// CompletionToken is the (partition, offset) pair the Archiver must
// hand back before the Log Consumer commits that offset.
type CompletionToken struct {
	Partition int32
	Offset    int64
}

// Batch is everything the Archiver needs to process one delivered
// record.
type Batch struct {
	Token   CompletionToken
	Events  []events.Event
	Catchup bool
}

// Consumer wraps a sarama.ConsumerGroup.
type Consumer struct {
	group           sarama.ConsumerGroup
	topics          []string
	catchupInterval int64
	batches         chan Batch
	completions     chan CompletionToken
	log             *slog.Logger
}

// Config configures the Log Consumer.
type Config struct {
	Brokers         []string
	GroupID         string
	Topics          []string
	CatchupInterval int64 // default 500, per original_source's CATCHUP_INTERVAL
	ChannelSize     int
}

func New(cfg Config, log *slog.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest // fallback_offset = Earliest
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaCfg.Consumer.Offsets.AutoCommit.Enable = false // offsets are committed only in drainCompletions

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("ingest: new consumer group: %w", err)
	}

	if cfg.CatchupInterval == 0 {
		cfg.CatchupInterval = 500
	}
	if cfg.ChannelSize == 0 {
		cfg.ChannelSize = 256
	}

	return &Consumer{
		group:           group,
		topics:          cfg.Topics,
		catchupInterval: cfg.CatchupInterval,
		batches:         make(chan Batch, cfg.ChannelSize),
		completions:     make(chan CompletionToken, cfg.ChannelSize),
		log:             log,
	}, nil
}

// Batches is the bounded, backpressured outbound channel the Archiver
// reads from.
func (c *Consumer) Batches() <-chan Batch { return c.batches }

// Complete is how the Archiver authorizes an offset commit once its
// transaction for that batch has durably landed (I5).
func (c *Consumer) Complete(tok CompletionToken) {
	c.completions <- tok
}

// Run drives the consumer-group session loop until ctx is cancelled.
// sarama re-invokes Consume after every rebalance, so this wraps it in
// a loop the way a long-lived daemon goroutine must.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &groupHandler{consumer: c}
	for {
		if err := c.group.Consume(ctx, c.topics, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ingest: consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	close(c.batches)
	return c.group.Close()
}

type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim sends one Batch per record delivered on the claim,
// holding that record's single event, its own offset, and a catch-up
// flag computed against the partition's high water mark. Records are
// not grouped into multi-event batches.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer

	go c.drainCompletions(sess, claim.Topic())

	for msg := range claim.Messages() {
		ev, err := events.Unmarshal(msg.Value)
		if err != nil {
			c.log.Warn("ingest: deserialize failure, synthesizing Stop", "error", err, "offset", msg.Offset)
		}

		hwm := claim.HighWaterMarkOffset()
		catchup := (hwm - msg.Offset) > c.catchupInterval

		batch := Batch{
			Token:   CompletionToken{Partition: msg.Partition, Offset: msg.Offset},
			Events:  []events.Event{ev},
			Catchup: catchup,
		}

		select {
		case c.batches <- batch:
		case <-sess.Context().Done():
			return nil
		}
	}
	return nil
}

// drainCompletions commits offsets only for tokens the Archiver has
// acknowledged, enforcing I5.
func (c *Consumer) drainCompletions(sess sarama.ConsumerGroupSession, topic string) {
	for {
		select {
		case tok := <-c.completions:
			sess.MarkOffset(topic, tok.Partition, tok.Offset+1, "")
			sess.Commit()
		case <-sess.Context().Done():
			return
		}
	}
}
