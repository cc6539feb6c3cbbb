// Command api runs the Request Submitter and the read API: it accepts
// client requests over HTTP, verifies and sequences them through
// internal/submit, and serves the JSON-RPC/websocket read surface in
// internal/rpc over a projection it keeps warm by tailing the event
// log the same way the archiver process does — see
// original_source's api.rs, which embeds its own read-side consumer
// rather than querying the archiver process directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twilight-project/relayer-eisme/internal/archive"
	"github.com/twilight-project/relayer-eisme/internal/config"
	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/fanout"
	"github.com/twilight-project/relayer-eisme/internal/ingest"
	"github.com/twilight-project/relayer-eisme/internal/materialize"
	"github.com/twilight-project/relayer-eisme/internal/risk"
	"github.com/twilight-project/relayer-eisme/internal/rpc"
	"github.com/twilight-project/relayer-eisme/internal/submit"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "api: config: %v\n", err)
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
		log.Error("api: open postgres", "error", err)
		os.Exit(1)
	}
	defer arc.Close()

	riskChecker := risk.NewChecker(cfg.Risk)

	submitter, err := submit.New(cfg.Kafka.Brokers, cfg.Kafka.ClientReqTopic, arc, riskChecker, log)
	if err != nil {
		log.Error("api: new submitter", "error", err)
		os.Exit(1)
	}
	defer submitter.Shutdown()

	mat := materialize.New(log)

	consumer, err := ingest.New(ingest.Config{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.ArchiverGroup + "-reader",
		Topics:          []string{cfg.Kafka.EventLogTopic},
		CatchupInterval: cfg.Kafka.CatchupInterval,
		ChannelSize:     cfg.Kafka.BatchChannelSize,
	}, log)
	if err != nil {
		log.Error("api: new tailing consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	server := rpc.New(cfg.RPC.ListenAddr, cfg.RPC.WSListenAddr, mat, buildTopics(cfg), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("api: received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("api: rpc shutdown error", "error", err)
		}
		cancel()
	}()

	go tailLoop(ctx, consumer, mat, log)

	submitMux := http.NewServeMux()
	submitMux.HandleFunc("/submit", newSubmitHandler(submitter))
	go func() {
		if err := http.ListenAndServe(cfg.RPC.SubmitListenAddr, submitMux); err != nil && err != http.ErrServerClosed {
			log.Error("api: submit listener stopped", "error", err)
		}
	}()

	log.Info("api: started", "rpc_addr", cfg.RPC.ListenAddr, "ws_addr", cfg.RPC.WSListenAddr)
	if err := server.Run(); err != nil && err != http.ErrServerClosed {
		log.Error("api: rpc server stopped", "error", err)
	}
	log.Info("api: stopped")
}

func buildTopics(cfg *config.Config) rpc.Topics {
	return rpc.Topics{
		Price:     fanout.NewTopic[int64](cfg.RPC.FanoutBuffer),
		OrderBook: fanout.NewTopic[rpc.OrderBookDelta](cfg.RPC.FanoutBuffer),
		Trades:    fanout.NewTopic[domain.Trade](cfg.RPC.FanoutBuffer),
		Candles:   fanout.NewTopic[rpc.Candle](cfg.RPC.FanoutBuffer),
	}
}

// tailLoop keeps the api process's read-side projection warm by
// applying the same event log the archiver process writes, without
// re-running the Archiver's SQL upserts — Postgres stays the system of
// record, this copy only serves reads.
func tailLoop(ctx context.Context, consumer *ingest.Consumer, mat *materialize.State, log *slog.Logger) {
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("api: tailing consumer run failed", "error", err)
		}
	}()
	for {
		select {
		case batch, open := <-consumer.Batches():
			if !open {
				return
			}
			for _, ev := range batch.Events {
				_ = mat.Apply(ev)
			}
			consumer.Complete(batch.Token)
		case <-ctx.Done():
			return
		}
	}
}

type submitRequest struct {
	HexBody         string `json:"hex_body"`
	TwilightAddress string `json:"twilight_address"`
	Relayer         string `json:"relayer"`
}

func newSubmitHandler(submitter *submit.Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		result := submitter.Submit(r.Context(), submit.Request{
			HexBody: req.HexBody,
			Meta: submit.Meta{
				TwilightAddress: req.TwilightAddress,
				Relayer:         req.Relayer,
			},
		})
		if result.Err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": result.Err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"request_id": result.RequestID.String()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
