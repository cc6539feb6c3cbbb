package rpc

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/events"
	"github.com/twilight-project/relayer-eisme/internal/materialize"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState(t *testing.T) *materialize.State {
	t.Helper()
	mat := materialize.New(testLogger())
	order := domain.TraderOrder{
		UUID:         uuid.New(),
		PositionType: domain.PositionLong,
		OrderStatus:  domain.StatusPending,
		EntryPrice:   15000000,
	}
	if err := mat.Apply(&events.TraderOrderEvent{Order: order, AggSeq: 1}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	return mat
}

func TestQueryService_OrderBook(t *testing.T) {
	q := &queryService{mat: newTestState(t)}

	var reply OrderBookReply
	if err := q.OrderBook(nil, &OrderBookArgs{}, &reply); err != nil {
		t.Fatalf("OrderBook: %v", err)
	}
	if len(reply.OpenLong) != 1 {
		t.Errorf("expected 1 member in OpenLong, got %d", len(reply.OpenLong))
	}
	if len(reply.OpenShort) != 0 {
		t.Errorf("expected 0 members in OpenShort, got %d", len(reply.OpenShort))
	}
}

func TestQueryService_RecentTrades_LimitApplied(t *testing.T) {
	mat := newTestState(t)
	for i := 0; i < 5; i++ {
		mat.RecordTrade(domain.Trade{OrderUUID: uuid.New(), Price: int64(i)})
	}
	q := &queryService{mat: mat}

	var reply RecentTradesReply
	if err := q.RecentTrades(nil, &RecentTradesArgs{Limit: 2}, &reply); err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
	if len(reply.Trades) != 2 {
		t.Fatalf("expected limit of 2 trades, got %d", len(reply.Trades))
	}
	if reply.Trades[len(reply.Trades)-1].Price != 4 {
		t.Errorf("expected the most recent trade to be kept, got %+v", reply.Trades)
	}
}

func TestQueryService_MarketRiskStats(t *testing.T) {
	mat := newTestState(t)
	if err := mat.Apply(&events.PositionSizeLogDBUpdateEvent{
		Cmd:      events.CmdAddPositionSize,
		Snapshot: domain.PositionSizeLog{TotalLongSize: 500, TotalShortSize: 200, SequenceNum: 1},
	}); err != nil {
		t.Fatalf("apply position size log: %v", err)
	}

	q := &queryService{mat: mat}
	var reply MarketRiskStatsReply
	if err := q.MarketRiskStats(nil, &MarketRiskStatsArgs{}, &reply); err != nil {
		t.Fatalf("MarketRiskStats: %v", err)
	}
	if reply.TotalLongSize != 500 || reply.TotalShortSize != 200 {
		t.Errorf("unexpected risk stats reply: %+v", reply)
	}
}
