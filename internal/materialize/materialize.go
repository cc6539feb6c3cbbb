// Package materialize implements the Materializer (MAT): the
// in-process projection that owns the six price-indexed order sets,
// the order book view, the recent-trades ring, the latest
// price/funding rate, and the pool/position-size aggregates. Its
// caller applies each batch's events here after, never before, the
// Archiver's transaction for the same batch commits (I4: archive and
// in-memory state must converge to the same result). This package does
// not write to internal/cache; cmd/archiver does that.
//
// The dispatch shape (single-threaded, deterministic, one Apply call
// per event) follows internal/matching/engine.go's ProcessOrder, even
// though MAT does not run a matching algorithm: the orders arriving
// here already carry a matching decision made upstream (see
// DESIGN.md's "dropped teacher modules" section). What MAT reuses
// from the teacher is the shape of "apply one thing at a time,
// single-threaded, update every derived index before returning" — not
// the matching logic itself.
package materialize

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/events"
	"github.com/twilight-project/relayer-eisme/internal/orderset"
)

// setKey names one of the six price-indexed ordered sets.
type setKey struct {
	role events.SortedSetName
	side domain.PositionType
}

// State is the live projection. It implements events.EventVisitor so
// the compiler enforces that every event variant has a materialization
// rule.
type State struct {
	mu sync.Mutex

	log *slog.Logger

	orders map[string]*domain.TraderOrder // uuid -> order
	lends  map[string]*domain.LendOrder
	pool   domain.LendPool
	posLog domain.PositionSizeLog

	sets map[setKey]*orderset.OrderedSet

	recentTrades []domain.Trade // capped ring, newest last
	recentCap    int

	latestPrice int64
	fundingRate float64

	maxSeqSeen uint64 // highest AggSeq applied, for I1
}

const defaultRecentCap = 500

func New(log *slog.Logger) *State {
	s := &State{
		log:       log,
		orders:    make(map[string]*domain.TraderOrder),
		lends:     make(map[string]*domain.LendOrder),
		sets:      make(map[setKey]*orderset.OrderedSet),
		recentCap: defaultRecentCap,
	}
	for _, role := range []events.SortedSetName{
		events.SetOpenLimitPrice, events.SetCloseLimitPrice, events.SetLiquidationPrice,
	} {
		for _, side := range []domain.PositionType{domain.PositionLong, domain.PositionShort} {
			s.sets[setKey{role, side}] = orderset.New()
		}
	}
	return s
}

func (s *State) setFor(role events.SortedSetName, side domain.PositionType) *orderset.OrderedSet {
	return s.sets[setKey{role, side}]
}

// Apply dispatches a single event through the visitor interface.
// Callers hold no lock; Apply takes State's own lock for the duration.
func (s *State) Apply(e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.Accept(s)
}

// acceptSeq enforces I1: sequence monotonicity per order. A stale
// AggSeq (less than or equal to what's already applied for this
// order) is a silent no-op, not an error — replay after a crash will
// re-deliver already-applied events and must be idempotent (P2).
func (s *State) acceptSeq(order *domain.TraderOrder, seq uint64) bool {
	if seq != 0 && seq <= order.EntrySequence {
		return false
	}
	if seq != 0 {
		order.EntrySequence = seq
	}
	return true
}

func (s *State) VisitTraderOrder(e *events.TraderOrderEvent) error {
	id := e.Order.UUID.String()
	if existing, ok := s.orders[id]; ok {
		if !s.acceptSeq(existing, e.AggSeq) {
			return nil
		}
	}
	order := e.Order
	s.orders[id] = &order

	if order.OrderStatus.IsTerminal() {
		return nil
	}

	switch order.OrderStatus {
	case domain.StatusPending:
		return s.setFor(events.SetOpenLimitPrice, order.PositionType).Add(id, order.EntryPrice)
	case domain.StatusFilled:
		if err := s.setFor(events.SetLiquidationPrice, order.PositionType).Add(id, order.LiquidationPrice); err != nil {
			return err
		}
		return s.setFor(events.SetCloseLimitPrice, order.PositionType).Add(id, order.ExecutionPrice)
	}
	return nil
}

func (s *State) VisitTraderOrderUpdate(e *events.TraderOrderUpdateEvent) error {
	id := e.Order.UUID.String()
	existing, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("materialize: update for unknown order %s", id)
	}
	if existing.OrderStatus.IsTerminal() {
		// I2: terminal orders are immutable.
		return nil
	}
	if !s.acceptSeq(existing, e.AggSeq) {
		return nil
	}

	switch e.RelayerCmd {
	case events.CmdCancelTraderOrder:
		s.removeFromAllSets(id)
		existing.OrderStatus = domain.StatusCancelled
	case events.CmdExecuteTraderOrder, events.CmdTraderOrderSettleOnLimit, events.CmdPriceTickerOrderSettle:
		s.removeFromAllSets(id)
		existing.OrderStatus = domain.StatusSettled
		existing.SettlementPrice = e.Order.SettlementPrice
		s.recordFillOrSettle(existing, e.Order.SettlementPrice, tradeSideClose)
	case events.CmdPriceTickerOrderFill:
		// PENDING -> FILLED: remove from open_{side}, add to
		// liquidation_{side} at liquidation_price (spec.md §4.3's
		// transition table; original_source/codes/snapshot_sample.rs
		// touches only the liquidation sorted set here, never close).
		s.setFor(events.SetOpenLimitPrice, existing.PositionType).Remove(id)
		existing.OrderStatus = domain.StatusFilled
		existing.ExecutionPrice = e.Order.ExecutionPrice
		existing.LiquidationPrice = e.Order.LiquidationPrice
		if err := s.setFor(events.SetLiquidationPrice, existing.PositionType).Add(id, existing.LiquidationPrice); err != nil {
			return err
		}
		s.recordFillOrSettle(existing, existing.ExecutionPrice, tradeSideOpen)
	default:
		// Margin/price refresh that doesn't change set membership.
		existing.AvailableMargin = e.Order.AvailableMargin
		existing.UnrealizedPnL = e.Order.UnrealizedPnL
	}
	return nil
}

func (s *State) VisitTraderOrderFundingUpdate(e *events.TraderOrderFundingUpdateEvent) error {
	id := e.Order.UUID.String()
	existing, ok := s.orders[id]
	if !ok || existing.OrderStatus.IsTerminal() {
		return nil
	}
	existing.UnrealizedPnL = e.Order.UnrealizedPnL
	existing.MaintenanceMargin = e.Order.MaintenanceMargin
	existing.LiquidationPrice = e.Order.LiquidationPrice
	// Liquidation price moved: re-key the liquidation set (I3: set
	// membership must always agree with current order state).
	if existing.OrderStatus == domain.StatusFilled {
		liq := s.setFor(events.SetLiquidationPrice, existing.PositionType)
		if liq.Contains(id) {
			return liq.Update(id, existing.LiquidationPrice)
		}
		return liq.Add(id, existing.LiquidationPrice)
	}
	return nil
}

func (s *State) VisitTraderOrderLiquidation(e *events.TraderOrderLiquidationEvent) error {
	id := e.Order.UUID.String()
	existing, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("materialize: liquidation for unknown order %s", id)
	}
	if existing.OrderStatus.IsTerminal() {
		return nil
	}
	if !s.acceptSeq(existing, e.AggSeq) {
		return nil
	}
	s.removeFromAllSets(id)
	existing.OrderStatus = domain.StatusLiquidate
	existing.BankruptcyPrice = e.Order.BankruptcyPrice
	existing.BankruptcyValue = e.Order.BankruptcyValue
	s.recordFillOrSettle(existing, existing.BankruptcyPrice, tradeSideClose)
	return nil
}

func (s *State) removeFromAllSets(id string) {
	for _, set := range s.sets {
		set.Remove(id)
	}
}

func (s *State) VisitLendOrder(e *events.LendOrderEvent) error {
	order := e.Order
	s.lends[order.UUID.String()] = &order
	return nil
}

func (s *State) VisitPoolUpdate(e *events.PoolUpdateEvent) error {
	// I6: pool conservation — additive, the same signed delta the
	// Archiver applies to the lend_pool row in the same batch (I4),
	// behind the same sequence gate: a redelivered update is ignored.
	if e.AggSeq != 0 && e.AggSeq <= s.pool.SequenceNum {
		return nil
	}
	s.pool.TotalLiquidity += e.LiquidityDelta
	s.pool.TotalPoolShare += e.PoolShareDelta
	s.pool.SequenceNum = e.AggSeq
	return nil
}

func (s *State) VisitFundingRateUpdate(e *events.FundingRateUpdateEvent) error {
	s.fundingRate = e.Rate
	return nil
}

func (s *State) VisitCurrentPriceUpdate(e *events.CurrentPriceUpdateEvent) error {
	s.latestPrice = e.Price
	return s.sweepLiquidations(e.Price)
}

// sweepLiquidations is the price-tick liquidation/fill logic (spec.md
// §4.3): a long position's liquidation level sits below its entry
// price and is crossed by a falling tick, a short position's sits
// above its entry and is crossed by a rising tick. Both sides use the
// bulk RangeAbove/RangeBelow removal so a tick that crosses k levels
// costs O((k+1) log n), not O(n).
func (s *State) sweepLiquidations(price int64) error {
	longHits := s.setFor(events.SetLiquidationPrice, domain.PositionLong).RangeAbove(price)
	for _, m := range longHits {
		if order, ok := s.orders[m.ID]; ok && !order.OrderStatus.IsTerminal() {
			order.OrderStatus = domain.StatusLiquidate
			s.removeFromAllSets(m.ID)
			s.recordFillOrSettle(order, price, tradeSideClose)
		}
	}
	shortHits := s.setFor(events.SetLiquidationPrice, domain.PositionShort).RangeBelow(price)
	for _, m := range shortHits {
		if order, ok := s.orders[m.ID]; ok && !order.OrderStatus.IsTerminal() {
			order.OrderStatus = domain.StatusLiquidate
			s.removeFromAllSets(m.ID)
			s.recordFillOrSettle(order, price, tradeSideClose)
		}
	}
	if len(longHits)+len(shortHits) > 0 {
		s.log.Info("price tick liquidation sweep",
			"price", price, "long_hits", len(longHits), "short_hits", len(shortHits))
	}
	return nil
}

func (s *State) VisitSortedSetDBUpdate(e *events.SortedSetDBUpdateEvent) error {
	cmd := e.Cmd
	var side domain.PositionType
	// The wire command names the set but not the side; the side is
	// taken from the order's PositionType in the trader-order map, and
	// a command for an order not in that map is ignored.
	if order, ok := s.orders[cmd.Order]; ok {
		side = order.PositionType
	} else {
		return nil
	}
	set := s.setFor(cmd.Set, side)
	switch cmd.Op {
	case events.OpAdd:
		return set.Add(cmd.Order, cmd.Score)
	case events.OpUpdate:
		return set.Update(cmd.Order, cmd.Score)
	case events.OpRemove:
		set.Remove(cmd.Order)
		return nil
	case events.OpBulkSearchRemove:
		return nil // handled via sweepLiquidations / explicit RangeAbove/Below calls
	}
	return nil
}

func (s *State) VisitPositionSizeLogDBUpdate(e *events.PositionSizeLogDBUpdateEvent) error {
	// The snapshot replaces the aggregate, as the Archiver does for the
	// position_size_log row (I4); one no newer than the held one is ignored.
	if e.Snapshot.SequenceNum != 0 && e.Snapshot.SequenceNum <= s.posLog.SequenceNum {
		return nil
	}
	s.posLog = e.Snapshot
	return nil
}

func (s *State) VisitStop(e *events.StopEvent) error {
	s.log.Warn("stop event observed", "tag", e.Tag)
	return nil
}

// RecordTrade appends to the capped recent-trades ring (P6: bounded
// to 500 entries / 24h, whichever evicts first — the 24h eviction is
// handled by internal/cache's Redis ZRANGEBYSCORE window, this ring
// only bounds count).
func (s *State) RecordTrade(t domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendTrade(t)
}

// appendTrade is RecordTrade's body without the lock, for call sites
// inside Apply's visitor dispatch where the lock is already held.
func (s *State) appendTrade(t domain.Trade) {
	s.recentTrades = append(s.recentTrades, t)
	if len(s.recentTrades) > s.recentCap {
		s.recentTrades = s.recentTrades[len(s.recentTrades)-s.recentCap:]
	}
}

// tradeKind distinguishes an opening fill from a closing one, for the
// BUY/SELL inversion domain.TradeSide carries.
type tradeKind int

const (
	tradeSideOpen tradeKind = iota
	tradeSideClose
)

// sideFor maps a position side and open/close kind to the BUY/SELL
// label recorded on the trade (see domain.TradeSide's doc comment).
func sideFor(position domain.PositionType, kind tradeKind) domain.TradeSide {
	long := position == domain.PositionLong
	open := kind == tradeSideOpen
	if long == open {
		return domain.TradeSideBuy
	}
	return domain.TradeSideSell
}

// recordFillOrSettle appends the close-trade report a fill, settle, or
// liquidation produces (spec.md §4.3: MAT records a CloseTrade on every
// one of these transitions). Must be called with s.mu already held.
func (s *State) recordFillOrSettle(order *domain.TraderOrder, price int64, kind tradeKind) {
	s.appendTrade(domain.Trade{
		OrderUUID:    order.UUID,
		PositionType: order.PositionType,
		Side:         sideFor(order.PositionType, kind),
		Price:        price,
		Size:         order.PositionSize,
		Timestamp:    order.Timestamp,
	})
}

// Snapshot is the serializable form of State, persisted by
// internal/snapshot and published to read APIs.
type Snapshot struct {
	Orders       map[string]domain.TraderOrder
	Lends        map[string]domain.LendOrder
	Pool         domain.LendPool
	PositionLog  domain.PositionSizeLog
	RecentTrades []domain.Trade
	LatestPrice  int64
	FundingRate  float64
	Sets         map[string][]orderset.Member // "<role>_<side>" -> members
}

// LoadSnapshot replaces the live projection with a previously
// persisted one, for warm start after internal/snapshot.Store.Load
// returns ok. It is the only mutation path that bypasses Apply/Accept,
// since a restore is not an event — it is what replaces the need to
// replay every event from the beginning.
func (s *State) LoadSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = make(map[string]*domain.TraderOrder, len(snap.Orders))
	for id, o := range snap.Orders {
		order := o
		s.orders[id] = &order
	}
	s.lends = make(map[string]*domain.LendOrder, len(snap.Lends))
	for id, l := range snap.Lends {
		lend := l
		s.lends[id] = &lend
	}
	s.pool = snap.Pool
	s.posLog = snap.PositionLog
	s.recentTrades = append([]domain.Trade(nil), snap.RecentTrades...)
	s.latestPrice = snap.LatestPrice
	s.fundingRate = snap.FundingRate

	for _, set := range s.sets {
		for _, m := range set.Snapshot() {
			set.Remove(m.ID)
		}
	}
	for key, members := range snap.Sets {
		set, ok := setForKey(s, key)
		if !ok {
			continue
		}
		for _, m := range members {
			_ = set.Add(m.ID, m.Score)
		}
	}
}

// setForKey resolves a "<role>_<side>" snapshot key back to the
// ordered set it names.
func setForKey(s *State, key string) (*orderset.OrderedSet, bool) {
	for k, set := range s.sets {
		if fmt.Sprintf("%s_%s", k.role, k.side) == key {
			return set, true
		}
	}
	return nil, false
}

// Snapshot returns a deep-enough copy of the live projection for
// persistence or a read API response.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Orders:       make(map[string]domain.TraderOrder, len(s.orders)),
		Lends:        make(map[string]domain.LendOrder, len(s.lends)),
		Pool:         s.pool,
		PositionLog:  s.posLog,
		RecentTrades: append([]domain.Trade(nil), s.recentTrades...),
		LatestPrice:  s.latestPrice,
		FundingRate:  s.fundingRate,
		Sets:         make(map[string][]orderset.Member, len(s.sets)),
	}
	for id, o := range s.orders {
		out.Orders[id] = *o
	}
	for id, l := range s.lends {
		out.Lends[id] = *l
	}
	for key, set := range s.sets {
		out.Sets[fmt.Sprintf("%s_%s", key.role, key.side)] = set.Snapshot()
	}
	return out
}
