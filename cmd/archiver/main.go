// Command archiver runs the Log Consumer, the Archiver, and the
// Materializer in one process: it is the write-side of EISME,
// consuming the event log, persisting it, and maintaining the
// in-memory projection and its Redis mirror. The api process does not
// read this projection: it tails the same log into a projection of its
// own (see cmd/api).
//
// Shutdown follows cmd/server/main.go's ordering: stop consuming new
// records, let in-flight batches finish, flush the current projection
// to a snapshot, then close every resource.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/twilight-project/relayer-eisme/internal/archive"
	"github.com/twilight-project/relayer-eisme/internal/cache"
	"github.com/twilight-project/relayer-eisme/internal/config"
	"github.com/twilight-project/relayer-eisme/internal/events"
	"github.com/twilight-project/relayer-eisme/internal/ingest"
	"github.com/twilight-project/relayer-eisme/internal/materialize"
	"github.com/twilight-project/relayer-eisme/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	snapshotPath := flag.String("snapshot", "archiver.snapshot", "path to the materializer snapshot file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "archiver: config: %v\n", err)
		os.Exit(1)
	}
	log := config.NewLogger(cfg.Logging)

	arc, err := archive.Open(archive.Config{
		DSN:        cfg.Postgres.DSN,
		MaxRetries: cfg.Postgres.MaxRetries,
		RetryDelay: cfg.Postgres.RetryDelay,
		PoolSize:   cfg.Postgres.PoolSize,
	}, log)
	if err != nil {
		log.Error("archiver: open postgres", "error", err)
		os.Exit(1)
	}
	defer arc.Close()

	consumer, err := ingest.New(ingest.Config{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.ArchiverGroup,
		Topics:          []string{cfg.Kafka.EventLogTopic},
		CatchupInterval: cfg.Kafka.CatchupInterval,
		ChannelSize:     cfg.Kafka.BatchChannelSize,
	}, log)
	if err != nil {
		log.Error("archiver: new consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	mat := materialize.New(log)
	store := snapshot.NewStore(*snapshotPath)
	if snap, _, ok, err := store.Load(); err != nil {
		log.Warn("archiver: snapshot load failed, starting from empty projection", "error", err)
	} else if ok {
		mat.LoadSnapshot(snap)
		log.Info("archiver: restored projection from snapshot", "path", *snapshotPath)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer rdb.Close()
	mirror := cache.New(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("archiver: received shutdown signal")
		cancel()
	}()

	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("archiver: consumer run failed", "error", err)
		}
	}()

	log.Info("archiver: started", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.EventLogTopic)
	runLoop(ctx, consumer, arc, mat, mirror, log)
	if err := store.Save("shutdown", 0, mat.Snapshot()); err != nil {
		log.Error("archiver: snapshot save failed", "error", err)
	}
	log.Info("archiver: stopped")
}

// runLoop pulls batches off the Log Consumer, applies them through
// the Archiver first (I4: archive commits before the projection does),
// then the Materializer, then mirrors the affected sets into Redis,
// and finally authorizes the offset commit.
func runLoop(ctx context.Context, consumer *ingest.Consumer, arc *archive.Archiver, mat *materialize.State, mirror *cache.Mirror, log *slog.Logger) {
	for {
		select {
		case batch, open := <-consumer.Batches():
			if !open {
				return
			}
			tok, err := arc.ApplyBatch(ctx, batch)
			if err != nil {
				log.Error("archiver: batch poisoned, halting without committing its offset", "error", err, "offset", batch.Token.Offset)
				return
			}

			for _, ev := range batch.Events {
				if err := mat.Apply(ev); err != nil {
					log.Error("archiver: materialize failed", "error", err, "kind", ev.Kind())
				}
				mirrorEvent(ctx, mirror, ev, log)
			}

			consumer.Complete(tok)
		case <-ctx.Done():
			return
		}
	}
}

// mirrorEvent pushes a subset of order-set membership changes to Redis
// without requiring the cache to understand every event variant the
// way MAT's EventVisitor does: a PENDING TraderOrder is added to its
// OpenLimitPrice set, and a TraderOrderUpdate removes the order from
// every set. No other event is mirrored; recent trades, close-limit and
// liquidation-set additions, and price-tick sweeps are not written to
// Redis.
func mirrorEvent(ctx context.Context, mirror *cache.Mirror, ev events.Event, log *slog.Logger) {
	switch e := ev.(type) {
	case *events.TraderOrderEvent:
		if e.Order.OrderStatus == "PENDING" {
			if err := mirror.AddMember(ctx, "OpenLimitPrice", string(e.Order.PositionType), e.Order.UUID.String(), e.Order.EntryPrice); err != nil {
				log.Warn("archiver: cache mirror failed", "error", err)
			}
		}
	case *events.TraderOrderUpdateEvent:
		id := e.Order.UUID.String()
		for _, role := range []string{"OpenLimitPrice", "CloseLimitPrice", "LiquidationPrice"} {
			for _, side := range []string{"LONG", "SHORT"} {
				_ = mirror.RemoveMember(ctx, role, side, id)
			}
		}
	}
}
