package events

// TraderOrderCmd, RelayerCmd, LendOrderCmd, PoolCmd, SortedSetCmd and
// PositionSizeLogCmd restate the command taxonomy carried in
// original_source's RpcCommand / RelayerCommand / LendPoolCommand /
// SortedSetCommand / PositionSizeLogCommand enums. spec.md's Event
// table collapses these into a bare "cmd" field; restoring the
// concrete variants here keeps ARC and MAT dispatch total instead of
// branching on an opaque string.

// TraderOrderCmd is attached to TraderOrderEvent.
type TraderOrderCmd string

const (
	CmdCreateTraderOrder TraderOrderCmd = "CreateTraderOrder"
	CmdCreateLendOrder   TraderOrderCmd = "CreateLendOrder" // lend-side open routed through the trader order path
)

// RelayerCmd is attached to the update/funding/liquidation variants.
type RelayerCmd string

const (
	CmdExecuteTraderOrder       RelayerCmd = "ExecuteTraderOrder"
	CmdExecuteLendOrder         RelayerCmd = "ExecuteLendOrder"
	CmdCancelTraderOrder        RelayerCmd = "CancelTraderOrder"
	CmdTraderOrderSettleOnLimit RelayerCmd = "RelayerCommandTraderOrderSettleOnLimit"
	CmdFundingCycle             RelayerCmd = "FundingCycle"
	CmdFundingOrderEventUpdate  RelayerCmd = "FundingOrderEventUpdate"
	CmdPriceTickerLiquidation   RelayerCmd = "PriceTickerLiquidation"
	CmdPriceTickerOrderFill     RelayerCmd = "PriceTickerOrderFill"
	CmdPriceTickerOrderSettle   RelayerCmd = "PriceTickerOrderSettle"
	CmdFundingCycleLiquidation  RelayerCmd = "FundingCycleLiquidation"
)

// LendOrderCmd is attached to LendOrderEvent.
type LendOrderCmd string

const (
	CmdLendOrderCreateOrder LendOrderCmd = "LendOrderCreateOrder"
	CmdLendOrderSettleOrder LendOrderCmd = "LendOrderSettleOrder"
)

// PoolCmd is attached to PoolUpdateEvent, mirroring
// original_source's LendPoolCommand variants that act on the pool
// aggregate rather than on an individual order.
type PoolCmd string

const (
	CmdAddTraderOrderSettlement      PoolCmd = "AddTraderOrderSettlement"
	CmdAddTraderLimitOrderSettlement PoolCmd = "AddTraderLimitOrderSettlement"
	CmdAddFundingData                PoolCmd = "AddFundingData"
	CmdAddTraderOrderLiquidation     PoolCmd = "AddTraderOrderLiquidation"
	CmdBatchExecuteTraderOrder       PoolCmd = "BatchExecuteTraderOrder"
	CmdInitiateNewPool               PoolCmd = "InitiateNewPool"
	CmdRpcCommandPoolUpdate          PoolCmd = "RpcCommandPoolupdate"
)

// SortedSetCmd names one of the twelve operations against the six
// price-indexed ordered sets (internal/orderset): Add/Remove/Update
// crossed with {LiquidationPrice,OpenLimitPrice,CloseLimitPrice}, plus
// the three bulk range-remove variants used by price-tick liquidation
// and fill sweeps (P4).
type SortedSetCmd struct {
	Op    SortedSetOp
	Set   SortedSetName
	Order string // order UUID, empty for bulk ops
	Score int64  // scaled by domain.PriceScale
}

type SortedSetOp string

const (
	OpAdd              SortedSetOp = "Add"
	OpRemove           SortedSetOp = "Remove"
	OpUpdate           SortedSetOp = "Update"
	OpBulkSearchRemove SortedSetOp = "BulkSearchRemove"
)

type SortedSetName string

const (
	SetLiquidationPrice SortedSetName = "LiquidationPrice"
	SetOpenLimitPrice   SortedSetName = "OpenLimitPrice"
	SetCloseLimitPrice  SortedSetName = "CloseLimitPrice"
)

// PositionSizeLogCmd is attached to PositionSizeLogDBUpdateEvent.
type PositionSizeLogCmd string

const (
	CmdAddPositionSize    PositionSizeLogCmd = "AddPositionSize"
	CmdRemovePositionSize PositionSizeLogCmd = "RemovePositionSize"
)
