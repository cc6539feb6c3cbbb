// Package events defines the event log's wire types: the eleven-variant
// Event sum and the command payloads each event carries. This is the
// contract between the Log Consumer, Archiver, and Materializer.
//
// Event Sourcing Pattern:
// Instead of storing current state, the system stores all state
// changes (events). Current state is reconstructed by replaying
// events in order (see internal/snapshot). The eleven variants below
// are the full set the archive and the in-memory projection must
// handle — adding a twelfth means adding a method to EventVisitor,
// which is a compile error everywhere it isn't implemented.
package events

import (
	"time"

	"github.com/twilight-project/relayer-eisme/internal/domain"
)

// Kind identifies which Event variant a record carries. It is also
// used as the Kafka record key (see internal/submit).
type Kind string

const (
	KindTraderOrder              Kind = "TraderOrder"
	KindTraderOrderUpdate        Kind = "TraderOrderUpdate"
	KindTraderOrderFundingUpdate Kind = "TraderOrderFundingUpdate"
	KindTraderOrderLiquidation   Kind = "TraderOrderLiquidation"
	KindLendOrder                Kind = "LendOrder"
	KindPoolUpdate               Kind = "PoolUpdate"
	KindFundingRateUpdate        Kind = "FundingRateUpdate"
	KindCurrentPriceUpdate       Kind = "CurrentPriceUpdate"
	KindSortedSetDBUpdate        Kind = "SortedSetDBUpdate"
	KindPositionSizeLogDBUpdate  Kind = "PositionSizeLogDBUpdate"
	KindStop                     Kind = "Stop"
)

// Event is the sealed sum every ingested record decodes into. The
// partition offset is supplied by the Log Consumer from the Kafka
// record metadata and is never part of the serialized payload.
type Event interface {
	Kind() Kind
	Accept(v EventVisitor) error
}

// EventVisitor is implemented once by the Archiver and once by the
// Materializer; each gets a total, compiler-checked dispatch table
// over the event sum instead of a type switch with a default case
// that could silently swallow a new variant.
type EventVisitor interface {
	VisitTraderOrder(*TraderOrderEvent) error
	VisitTraderOrderUpdate(*TraderOrderUpdateEvent) error
	VisitTraderOrderFundingUpdate(*TraderOrderFundingUpdateEvent) error
	VisitTraderOrderLiquidation(*TraderOrderLiquidationEvent) error
	VisitLendOrder(*LendOrderEvent) error
	VisitPoolUpdate(*PoolUpdateEvent) error
	VisitFundingRateUpdate(*FundingRateUpdateEvent) error
	VisitCurrentPriceUpdate(*CurrentPriceUpdateEvent) error
	VisitSortedSetDBUpdate(*SortedSetDBUpdateEvent) error
	VisitPositionSizeLogDBUpdate(*PositionSizeLogDBUpdateEvent) error
	VisitStop(*StopEvent) error
}

// AggSeq is the per-partition producer sequence number most variants
// carry; I1 (sequence monotonicity) is checked against it.
type AggSeq = uint64

type TraderOrderEvent struct {
	Order  domain.TraderOrder
	Cmd    TraderOrderCmd
	AggSeq AggSeq
}

func (e *TraderOrderEvent) Kind() Kind                  { return KindTraderOrder }
func (e *TraderOrderEvent) Accept(v EventVisitor) error { return v.VisitTraderOrder(e) }

type TraderOrderUpdateEvent struct {
	Order      domain.TraderOrder
	RelayerCmd RelayerCmd
	AggSeq     AggSeq
}

func (e *TraderOrderUpdateEvent) Kind() Kind                  { return KindTraderOrderUpdate }
func (e *TraderOrderUpdateEvent) Accept(v EventVisitor) error { return v.VisitTraderOrderUpdate(e) }

type TraderOrderFundingUpdateEvent struct {
	Order      domain.TraderOrder
	RelayerCmd RelayerCmd
}

func (e *TraderOrderFundingUpdateEvent) Kind() Kind { return KindTraderOrderFundingUpdate }
func (e *TraderOrderFundingUpdateEvent) Accept(v EventVisitor) error {
	return v.VisitTraderOrderFundingUpdate(e)
}

type TraderOrderLiquidationEvent struct {
	Order      domain.TraderOrder
	RelayerCmd RelayerCmd
	AggSeq     AggSeq
}

func (e *TraderOrderLiquidationEvent) Kind() Kind { return KindTraderOrderLiquidation }
func (e *TraderOrderLiquidationEvent) Accept(v EventVisitor) error {
	return v.VisitTraderOrderLiquidation(e)
}

type LendOrderEvent struct {
	Order  domain.LendOrder
	Cmd    LendOrderCmd
	AggSeq AggSeq
}

func (e *LendOrderEvent) Kind() Kind                  { return KindLendOrder }
func (e *LendOrderEvent) Accept(v EventVisitor) error { return v.VisitLendOrder(e) }

// PoolUpdateEvent carries a pool command together with the signed
// deltas it applies to the pool aggregate. I6 (pool conservation) only
// needs these deltas added once in the Archiver and once in the
// Materializer — every lend-create nets a positive LiquidityDelta/
// PoolShareDelta and every lend-settle or batch-execute nets a
// negative one (see original_source/codes/snapshot_sample.rs's
// LendPoolCommand arms); commands that don't touch the pool carry
// zero deltas.
type PoolUpdateEvent struct {
	Cmd            PoolCmd
	LiquidityDelta int64 // signed, scaled by domain.PriceScale; applied to total_locked_value
	PoolShareDelta int64 // signed; applied to total_pool_share
	AggSeq         AggSeq
}

func (e *PoolUpdateEvent) Kind() Kind                  { return KindPoolUpdate }
func (e *PoolUpdateEvent) Accept(v EventVisitor) error { return v.VisitPoolUpdate(e) }

type FundingRateUpdateEvent struct {
	Rate      float64
	Timestamp time.Time
}

func (e *FundingRateUpdateEvent) Kind() Kind                  { return KindFundingRateUpdate }
func (e *FundingRateUpdateEvent) Accept(v EventVisitor) error { return v.VisitFundingRateUpdate(e) }

type CurrentPriceUpdateEvent struct {
	Price     int64 // scaled by domain.PriceScale
	Timestamp time.Time
}

func (e *CurrentPriceUpdateEvent) Kind() Kind                  { return KindCurrentPriceUpdate }
func (e *CurrentPriceUpdateEvent) Accept(v EventVisitor) error { return v.VisitCurrentPriceUpdate(e) }

type SortedSetDBUpdateEvent struct {
	Cmd SortedSetCmd
}

func (e *SortedSetDBUpdateEvent) Kind() Kind                  { return KindSortedSetDBUpdate }
func (e *SortedSetDBUpdateEvent) Accept(v EventVisitor) error { return v.VisitSortedSetDBUpdate(e) }

type PositionSizeLogDBUpdateEvent struct {
	Cmd      PositionSizeLogCmd
	Snapshot domain.PositionSizeLog
}

func (e *PositionSizeLogDBUpdateEvent) Kind() Kind { return KindPositionSizeLogDBUpdate }
func (e *PositionSizeLogDBUpdateEvent) Accept(v EventVisitor) error {
	return v.VisitPositionSizeLogDBUpdate(e)
}

// StopEvent is the snapshot fence marker (see internal/snapshot) and
// is also synthesized by the Log Consumer when a record fails to
// deserialize, carrying the error text as Tag instead of failing the
// whole batch.
type StopEvent struct {
	Tag string
}

func (e *StopEvent) Kind() Kind                  { return KindStop }
func (e *StopEvent) Accept(v EventVisitor) error { return v.VisitStop(e) }
