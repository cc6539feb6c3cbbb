package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/twilight-project/relayer-eisme/internal/domain"
)

func TestMarshalUnmarshal_TraderOrderEvent(t *testing.T) {
	in := &TraderOrderEvent{
		Order: domain.TraderOrder{
			UUID:         uuid.New(),
			AccountID:    "acct-1",
			PositionType: domain.PositionLong,
			OrderStatus:  domain.StatusPending,
			OrderType:    domain.OrderTypeLimit,
			EntryPrice:   15025000,
			PositionSize: 100,
			Leverage:     5,
			Timestamp:    time.Now().UTC().Truncate(time.Second),
		},
		Cmd:    CmdCreateTraderOrder,
		AggSeq: 42,
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	got, ok := out.(*TraderOrderEvent)
	if !ok {
		t.Fatalf("expected *TraderOrderEvent, got %T", out)
	}
	if got.Order.UUID != in.Order.UUID {
		t.Errorf("UUID mismatch: got %s, want %s", got.Order.UUID, in.Order.UUID)
	}
	if got.Order.EntryPrice != in.Order.EntryPrice {
		t.Errorf("EntryPrice mismatch: got %d, want %d", got.Order.EntryPrice, in.Order.EntryPrice)
	}
	if got.AggSeq != in.AggSeq {
		t.Errorf("AggSeq mismatch: got %d, want %d", got.AggSeq, in.AggSeq)
	}
	if got.Kind() != KindTraderOrder {
		t.Errorf("Kind() = %s, want %s", got.Kind(), KindTraderOrder)
	}
}

func TestMarshalUnmarshal_StopEvent(t *testing.T) {
	in := &StopEvent{Tag: "snapshot-fence"}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, ok := out.(*StopEvent)
	if !ok {
		t.Fatalf("expected *StopEvent, got %T", out)
	}
	if got.Tag != in.Tag {
		t.Errorf("Tag mismatch: got %q, want %q", got.Tag, in.Tag)
	}
}

func TestUnmarshal_UnknownKind(t *testing.T) {
	_, err := Unmarshal([]byte(`{"kind":"NotARealKind","payload":{}}`))
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestUnmarshal_MalformedEnvelope(t *testing.T) {
	out, err := Unmarshal([]byte(`not json`))
	if err == nil {
		t.Fatalf("expected error for malformed envelope")
	}
	if _, ok := out.(*StopEvent); !ok {
		t.Fatalf("expected malformed envelope to still produce a *StopEvent, got %T", out)
	}
}

func TestEventVisitor_Dispatch(t *testing.T) {
	v := &countingVisitor{}
	events := []Event{
		&TraderOrderEvent{},
		&TraderOrderUpdateEvent{},
		&TraderOrderFundingUpdateEvent{},
		&TraderOrderLiquidationEvent{},
		&LendOrderEvent{},
		&PoolUpdateEvent{},
		&FundingRateUpdateEvent{},
		&CurrentPriceUpdateEvent{},
		&SortedSetDBUpdateEvent{},
		&PositionSizeLogDBUpdateEvent{},
		&StopEvent{},
	}
	for _, e := range events {
		if err := e.Accept(v); err != nil {
			t.Errorf("Accept(%T): %v", e, err)
		}
	}
	if v.count != len(events) {
		t.Errorf("expected %d visits, got %d", len(events), v.count)
	}
}

type countingVisitor struct{ count int }

func (v *countingVisitor) VisitTraderOrder(*TraderOrderEvent) error { v.count++; return nil }
func (v *countingVisitor) VisitTraderOrderUpdate(*TraderOrderUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitTraderOrderFundingUpdate(*TraderOrderFundingUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitTraderOrderLiquidation(*TraderOrderLiquidationEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitLendOrder(*LendOrderEvent) error   { v.count++; return nil }
func (v *countingVisitor) VisitPoolUpdate(*PoolUpdateEvent) error { v.count++; return nil }
func (v *countingVisitor) VisitFundingRateUpdate(*FundingRateUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitCurrentPriceUpdate(*CurrentPriceUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitSortedSetDBUpdate(*SortedSetDBUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitPositionSizeLogDBUpdate(*PositionSizeLogDBUpdateEvent) error {
	v.count++
	return nil
}
func (v *countingVisitor) VisitStop(*StopEvent) error { v.count++; return nil }
