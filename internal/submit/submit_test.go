package submit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/twilight-project/relayer-eisme/internal/config"
	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/events"
	"github.com/twilight-project/relayer-eisme/internal/risk"
)

func TestStructuralVerify(t *testing.T) {
	var v Structural
	if err := v.Verify([]byte{}); err == nil {
		t.Errorf("expected empty payload to fail verification")
	}
	if err := v.Verify([]byte{0x01}); err != nil {
		t.Errorf("expected non-empty payload to verify, got %v", err)
	}
}

func TestMetaContext_RoundTrip(t *testing.T) {
	ctx := WithMeta(context.Background(), Meta{TwilightAddress: "addr1", Relayer: "relayer1"})
	m := MetaFromContext(ctx)
	if m.TwilightAddress != "addr1" || m.Relayer != "relayer1" {
		t.Errorf("unexpected meta round trip: %+v", m)
	}

	empty := MetaFromContext(context.Background())
	if empty.TwilightAddress != "" || empty.Relayer != "" {
		t.Errorf("expected zero-value Meta from bare context, got %+v", empty)
	}
}

func TestOrderUUIDOf(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name string
		ev   events.Event
		want string
	}{
		{"update", &events.TraderOrderUpdateEvent{Order: domain.TraderOrder{UUID: id}}, id.String()},
		{"liquidation", &events.TraderOrderLiquidationEvent{Order: domain.TraderOrder{UUID: id}}, id.String()},
		{"funding", &events.TraderOrderFundingUpdateEvent{Order: domain.TraderOrder{UUID: id}}, id.String()},
		{"new order", &events.TraderOrderEvent{Order: domain.TraderOrder{UUID: id}}, ""},
	}
	for _, c := range cases {
		if got := orderUUIDOf(c.ev); got != c.want {
			t.Errorf("%s: orderUUIDOf() = %q, want %q", c.name, got, c.want)
		}
	}
}

type fakeArchive struct {
	exists, terminal bool
	err              error
}

func (f fakeArchive) OrderExists(ctx context.Context, orderUUID string) (bool, bool, error) {
	return f.exists, f.terminal, f.err
}

func TestReadModifyCheck_NewOrderRiskCheck(t *testing.T) {
	s := &Submitter{
		archive: fakeArchive{},
		risk:    risk.NewChecker(config.RiskConfig{MaxLeverage: 10}),
	}
	ev := &events.TraderOrderEvent{Order: domain.TraderOrder{Leverage: 50}}
	if err := s.readModifyCheck(ev); err == nil {
		t.Fatalf("expected risk check to reject high leverage order")
	}

	ev2 := &events.TraderOrderEvent{Order: domain.TraderOrder{Leverage: 5}}
	if err := s.readModifyCheck(ev2); err != nil {
		t.Fatalf("expected risk check to pass, got %v", err)
	}
}

func TestReadModifyCheck_UpdateRequiresExistingNonTerminalOrder(t *testing.T) {
	id := uuid.New()
	ev := &events.TraderOrderUpdateEvent{Order: domain.TraderOrder{UUID: id}}

	s := &Submitter{archive: fakeArchive{exists: false}}
	if err := s.readModifyCheck(ev); err == nil {
		t.Fatalf("expected error for non-existent order")
	}

	s = &Submitter{archive: fakeArchive{exists: true, terminal: true}}
	if err := s.readModifyCheck(ev); err == nil {
		t.Fatalf("expected error for terminal order")
	}

	s = &Submitter{archive: fakeArchive{exists: true, terminal: false}}
	if err := s.readModifyCheck(ev); err != nil {
		t.Fatalf("expected success for existing non-terminal order, got %v", err)
	}
}
