// Package rpc implements EISME's read API: a gorilla/rpc JSON-RPC
// surface for point-in-time queries (order_book, recent_trades,
// market_risk_stats) and a gorilla/websocket subscription surface for
// the Broadcast Fanout topics, following cmd/server/main.go's
// mux-plus-typed-handler layout but replacing its REST handlers with
// an RPC service since spec.md's external interface is JSON-RPC, not
// a bespoke REST API.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/rpc"
	"github.com/gorilla/rpc/json2"
	"github.com/gorilla/websocket"
	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/fanout"
	"github.com/twilight-project/relayer-eisme/internal/materialize"
	"github.com/twilight-project/relayer-eisme/internal/orderset"
)

// Topics groups the Broadcast Fanout topics the websocket surface can
// subscribe a client to, by name.
type Topics struct {
	Price     *fanout.Topic[int64]
	OrderBook *fanout.Topic[OrderBookDelta]
	Trades    *fanout.Topic[domain.Trade]
	Candles   *fanout.Topic[Candle]
}

// OrderBookDelta is the payload type of the order-book topic. Neither
// MAT nor cmd/api publishes to any of the Topics; subscribers receive
// only what a caller passes to Publish.
type OrderBookDelta struct {
	Role string `json:"role"`
	Side string `json:"side"`
}

// Candle is one OHLC bar, tagged with its interval, carried on the
// single Candles topic. Nothing in the repository builds candles from
// CurrentPriceUpdate ticks, and no per-interval topic exists.
type Candle struct {
	Interval  string    `json:"interval"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	Timestamp time.Time `json:"timestamp"`
}

// Server owns the HTTP mux serving both the JSON-RPC endpoint and the
// websocket subscription endpoint.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	wsServer   *http.Server
	log        *slog.Logger
	topics     Topics
	upgrader   websocket.Upgrader
}

func New(listenAddr, wsListenAddr string, mat *materialize.State, topics Topics, log *slog.Logger) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		log:    log,
		topics: topics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rpcServer.RegisterService(&queryService{mat: mat}, ""); err != nil {
		log.Error("rpc: failed to register query service", "error", err)
	}
	s.mux.Handle("/rpc", rpcServer)
	s.mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/subscribe", s.handleSubscribe)
	s.wsServer = &http.Server{
		Addr:    wsListenAddr,
		Handler: wsMux,
	}

	return s
}

// Run starts both listeners and blocks until either returns.
func (s *Server) Run() error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.httpServer.ListenAndServe() }()
	go func() { errCh <- s.wsServer.ListenAndServe() }()
	return <-errCh
}

// Shutdown stops accepting new connections on both listeners, letting
// in-flight requests complete, following cmd/server/main.go's
// Shutdown-then-drain ordering.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.wsServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// subscribeRequest is the first message a websocket client sends to
// pick a topic.
type subscribeRequest struct {
	Topic string `json:"topic"` // "price" | "order_book" | "trades" | "candles"
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("rpc: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}

	switch req.Topic {
	case "price":
		s.pump(conn, s.topics.Price)
	case "order_book":
		s.pump(conn, s.topics.OrderBook)
	case "trades":
		s.pump(conn, s.topics.Trades)
	case "candles":
		s.pump(conn, s.topics.Candles)
	default:
		conn.WriteJSON(map[string]string{"error": fmt.Sprintf("unknown topic %q", req.Topic)})
	}
}

// pump relays every update on topic to conn until the subscriber
// falls behind (dropped writes) or the client disconnects.
func pump[T any](s *Server, conn *websocket.Conn, topic *fanout.Topic[T]) {
	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	for update := range ch {
		if err := conn.WriteJSON(update); err != nil {
			return
		}
	}
}

func (s *Server) pump(conn *websocket.Conn, topic interface{}) {
	switch t := topic.(type) {
	case *fanout.Topic[int64]:
		pump[int64](s, conn, t)
	case *fanout.Topic[OrderBookDelta]:
		pump[OrderBookDelta](s, conn, t)
	case *fanout.Topic[domain.Trade]:
		pump[domain.Trade](s, conn, t)
	case *fanout.Topic[Candle]:
		pump[Candle](s, conn, t)
	}
}

// queryService is the JSON-RPC 2.0 service registered under gorilla/rpc.
type queryService struct {
	mat *materialize.State
}

type OrderBookArgs struct{}

type OrderBookReply struct {
	OpenLong         []orderset.Member `json:"open_long"`
	OpenShort        []orderset.Member `json:"open_short"`
	CloseLong        []orderset.Member `json:"close_long"`
	CloseShort       []orderset.Member `json:"close_short"`
	LiquidationLong  []orderset.Member `json:"liquidation_long"`
	LiquidationShort []orderset.Member `json:"liquidation_short"`
	LatestPrice      int64             `json:"latest_price"`
}

// OrderBook returns every price-indexed set MAT holds, snapshotted
// under one lock so the reply is internally consistent.
func (q *queryService) OrderBook(r *http.Request, args *OrderBookArgs, reply *OrderBookReply) error {
	snap := q.mat.Snapshot()
	reply.OpenLong = snap.Sets["OpenLimitPrice_LONG"]
	reply.OpenShort = snap.Sets["OpenLimitPrice_SHORT"]
	reply.CloseLong = snap.Sets["CloseLimitPrice_LONG"]
	reply.CloseShort = snap.Sets["CloseLimitPrice_SHORT"]
	reply.LiquidationLong = snap.Sets["LiquidationPrice_LONG"]
	reply.LiquidationShort = snap.Sets["LiquidationPrice_SHORT"]
	reply.LatestPrice = snap.LatestPrice
	return nil
}

type RecentTradesArgs struct {
	Limit int `json:"limit"`
}

type RecentTradesReply struct {
	Trades []domain.Trade `json:"trades"`
}

func (q *queryService) RecentTrades(r *http.Request, args *RecentTradesArgs, reply *RecentTradesReply) error {
	snap := q.mat.Snapshot()
	trades := snap.RecentTrades
	if args.Limit > 0 && args.Limit < len(trades) {
		trades = trades[len(trades)-args.Limit:]
	}
	reply.Trades = trades
	return nil
}

type MarketRiskStatsArgs struct{}

// MarketRiskStatsReply mirrors original_source's
// compute_market_risk_stats output: aggregate open interest and
// funding rate, supplemented into this tier since the distilled spec
// only named the other three queries explicitly.
type MarketRiskStatsReply struct {
	TotalLongSize  int64   `json:"total_long_size"`
	TotalShortSize int64   `json:"total_short_size"`
	FundingRate    float64 `json:"funding_rate"`
	LatestPrice    int64   `json:"latest_price"`
}

func (q *queryService) MarketRiskStats(r *http.Request, args *MarketRiskStatsArgs, reply *MarketRiskStatsReply) error {
	snap := q.mat.Snapshot()
	reply.TotalLongSize = snap.PositionLog.TotalLongSize
	reply.TotalShortSize = snap.PositionLog.TotalShortSize
	reply.FundingRate = snap.FundingRate
	reply.LatestPrice = snap.LatestPrice
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
