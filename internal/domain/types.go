// Package domain defines the core trading primitives materialized by
// EISME: trader orders, lend orders, the lend pool, and the position
// size aggregate. Every price in this package is fixed-point, scaled
// by PriceScale, stored as int64 so ordering and set membership never
// depend on float comparison.
//
// Fixed-Point Arithmetic: prices arrive as decimals and are converted
// exactly once, at ingress (see internal/fixedpoint), to int64 scaled
// by 10000 using round-half-to-even. Everything downstream — order
// sets, archive rows, cache mirrors, wire events — carries the int64
// form. This mirrors the teacher's own cents-based Order.Price but at
// a finer scale, since perpetual-futures prices need four decimal
// places of precision rather than two.
package domain

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PriceScale is the fixed-point scale applied to every price in this
// package: a stored value of 15025000 represents 1502.5000.
const PriceScale = 10000

// PositionType is the side of a trader order.
type PositionType string

const (
	PositionLong  PositionType = "LONG"
	PositionShort PositionType = "SHORT"
)

func (p PositionType) Valid() bool {
	return p == PositionLong || p == PositionShort
}

func (p *PositionType) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*p = PositionType(s)
	return nil
}

func (p PositionType) Value() (driver.Value, error) {
	return string(p), nil
}

// OrderType distinguishes how a trader order was opened.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeDark   OrderType = "DARK"
	OrderTypeLend   OrderType = "LEND"
)

func (t *OrderType) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*t = OrderType(s)
	return nil
}

func (t OrderType) Value() (driver.Value, error) {
	return string(t), nil
}

// OrderStatus is the lifecycle state of a trader or lend order.
//
// Terminal states (I2): SETTLED, CANCELLED, LIQUIDATE. Once an order
// reaches one of these, the archiver refuses further mutation of it
// (see internal/archive's upsert predicates).
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusSettled   OrderStatus = "SETTLED"
	StatusLiquidate OrderStatus = "LIQUIDATE"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusLended    OrderStatus = "LENDED"
)

// IsTerminal reports whether no further mutation of the order is valid.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusLiquidate, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s *OrderStatus) Scan(src interface{}) error {
	v, err := scanString(src)
	if err != nil {
		return err
	}
	*s = OrderStatus(v)
	return nil
}

func (s OrderStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func scanString(src interface{}) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("domain: cannot scan %T into string-backed enum", src)
	}
}

// TraderOrder is the materialized view of a single perpetual-futures
// position, keyed by its UUID. Field names follow the archive schema
// (entryprice, execution_price, ... ) so the SQL upserts in
// internal/archive map column-for-column without translation.
type TraderOrder struct {
	UUID              uuid.UUID
	AccountID         string
	PositionType      PositionType
	OrderStatus       OrderStatus
	OrderType         OrderType
	EntryPrice        int64 // scaled by PriceScale
	ExecutionPrice    int64
	PositionSize      int64
	Leverage          int64
	InitialMargin     int64
	AvailableMargin   int64
	BankruptcyPrice   int64
	BankruptcyValue   int64
	MaintenanceMargin int64
	LiquidationPrice  int64
	UnrealizedPnL     int64
	SettlementPrice   int64
	EntryNonce        int64
	ExitNonce         int64
	EntrySequence     uint64 // agg_seq at creation, enforces I1
	Timestamp         time.Time
}

// LendOrder is the materialized view of a single lend-pool deposit or
// withdrawal position.
type LendOrder struct {
	UUID               uuid.UUID
	AccountID          string
	Balance            int64
	OrderStatus        OrderStatus
	OrderType          OrderType
	EntryNonce         int64
	ExitNonce          int64
	Deposit            int64
	NewLendStateAmount int64
	NPoolShare         int64
	NWithdraw          int64
	Payment            int64
	TLV0, TPS0         int64
	TLV1, TPS1         int64
	TLV2, TPS2         int64
	TLV3, TPS3         int64
	EntrySequence      uint64
	Timestamp          time.Time
}

// LendPool is the single aggregate tracking total collateral, shares,
// and nonce state for the lend pool (I6: pool conservation).
type LendPool struct {
	TotalLiquidity int64
	TotalPoolShare int64
	Nonce          int64
	SequenceNum    uint64
}

// PositionSizeLog tracks aggregate open interest used by the risk
// surface (see internal/rpc's market_risk_stats, supplemented from
// original_source's compute_market_risk_stats).
type PositionSizeLog struct {
	TotalLongSize  int64
	TotalShortSize int64
	SequenceNum    uint64
}

// TradeSide is the BUY/SELL label attached to a recorded fill. It
// inverts from PositionType on close: a long's open is a BUY and its
// close is a SELL, a short's open is a SELL and its close is a BUY —
// the same pairing the teacher's orders.Side (SideBuy/SideSell)
// expresses for a two-sided book, applied here to one-sided
// perpetual-futures opens/closes instead of resting limit orders.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "BUY"
	TradeSideSell TradeSide = "SELL"
)

// Trade is a single fill report, used by the recent-trades ring and
// the cache mirror's "recent_orders" sorted set.
type Trade struct {
	OrderUUID    uuid.UUID
	PositionType PositionType
	Side         TradeSide
	Price        int64
	Size         int64
	Timestamp    time.Time
}
