// Package archive implements the Archiver (ARC): one SQL transaction
// per batch delivered by the Log Consumer, upserting each event's
// payload into its table with I1 (sequence monotonicity) and I2
// (terminal immutability) expressed as WHERE predicates on the
// upsert rather than as application-level branches — a stale or
// terminal-order write becomes a zero-row UPDATE, not a conditional.
//
// Grounded on original_source/src/archiver.rs's DatabaseArchiver::run
// (pooled connection, per-variant match dispatch) and
// src/database/models.rs / schema.rs for exact column names. The
// Rust sample's six largely-stub match arms (LendOrder, PoolUpdate,
// FundingRateUpdate, CurrentPriceUpdate, SortedSetDBUpdate,
// PositionSizeLogDBUpdate just logged "FINISH X"): five of them are
// filled in here with real writes; SortedSetDBUpdate still has no
// archive effect and writes nothing.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/twilight-project/relayer-eisme/internal/apperr"
	"github.com/twilight-project/relayer-eisme/internal/domain"
	"github.com/twilight-project/relayer-eisme/internal/events"
	"github.com/twilight-project/relayer-eisme/internal/ingest"
)

// Config configures the Archiver's Postgres connection and retry policy.
type Config struct {
	DSN        string
	MaxRetries int
	RetryDelay time.Duration
	PoolSize   int
}

type Archiver struct {
	db         *sql.DB
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

func Open(cfg Config, log *slog.Logger) (*Archiver, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &Archiver{db: db, maxRetries: cfg.MaxRetries, retryDelay: cfg.RetryDelay, log: log}, nil
}

func (a *Archiver) Close() error { return a.db.Close() }

// OrderExists answers the Request Submitter's read-modify-check: does
// this trader order exist, and has it already reached a terminal
// status. It satisfies internal/submit.ArchiveReader.
func (a *Archiver) OrderExists(ctx context.Context, orderUUID string) (exists bool, terminal bool, err error) {
	var status string
	err = a.db.QueryRowContext(ctx,
		`SELECT order_status FROM trader_order WHERE uuid = $1`, orderUUID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("archive: order lookup: %w", err)
	}
	return true, domain.OrderStatus(status).IsTerminal(), nil
}

// ApplyBatch runs one SQL transaction over every event in the batch,
// retrying failures that apperr.Classify reports as Transient with a
// fixed backoff, up to maxRetries retries after the first attempt, and
// returns the completion token the Log Consumer should now be allowed
// to commit. Classify reports every database error it does not
// recognize as Transient, constraint violations included, so those are
// retried too.
func (a *Archiver) ApplyBatch(ctx context.Context, batch ingest.Batch) (ingest.CompletionToken, error) {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(a.retryDelay), uint64(a.maxRetries))

	op := func() error {
		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("archive: begin tx: %w", err)
		}
		defer tx.Rollback()

		applier := &txApplier{tx: tx}
		for _, ev := range batch.Events {
			if err := ev.Accept(applier); err != nil {
				if apperr.Classify(err) != apperr.Transient {
					return backoff.Permanent(err)
				}
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("archive: commit: %w", err)
		}
		return nil
	}

	var poisoned error
	err := backoff.Retry(func() error {
		err := op()
		if err != nil {
			a.log.Warn("archive: batch apply failed, retrying", "error", err, "offset", batch.Token.Offset)
		}
		return err
	}, bo)

	if err != nil {
		poisoned = fmt.Errorf("%w: %v", apperr.ErrPoisonedBatch, err)
		return batch.Token, poisoned
	}
	return batch.Token, nil
}

// txApplier implements events.EventVisitor against one open
// transaction, so every event in a batch lands atomically.
type txApplier struct {
	tx *sql.Tx
}

func (t *txApplier) VisitTraderOrder(e *events.TraderOrderEvent) error {
	o := e.Order
	_, err := t.tx.Exec(`
		INSERT INTO trader_order (
			uuid, account_id, position_type, order_status, order_type,
			entryprice, execution_price, positionsize, leverage,
			initial_margin, available_margin, bankruptcy_price, bankruptcy_value,
			maintenance_margin, liquidation_price, unrealized_pnl, settlement_price,
			entry_nonce, exit_nonce, entry_sequence, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (uuid) DO UPDATE SET
			order_status = EXCLUDED.order_status,
			execution_price = EXCLUDED.execution_price,
			available_margin = EXCLUDED.available_margin,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			entry_sequence = EXCLUDED.entry_sequence
		WHERE trader_order.entry_sequence < EXCLUDED.entry_sequence
		  AND trader_order.order_status NOT IN ('SETTLED','LIQUIDATE','CANCELLED')`,
		o.UUID, o.AccountID, o.PositionType, o.OrderStatus, o.OrderType,
		o.EntryPrice, o.ExecutionPrice, o.PositionSize, o.Leverage,
		o.InitialMargin, o.AvailableMargin, o.BankruptcyPrice, o.BankruptcyValue,
		o.MaintenanceMargin, o.LiquidationPrice, o.UnrealizedPnL, o.SettlementPrice,
		o.EntryNonce, o.ExitNonce, e.AggSeq, o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("archive: insert trader_order: %w", err)
	}
	return nil
}

func (t *txApplier) VisitTraderOrderUpdate(e *events.TraderOrderUpdateEvent) error {
	o := e.Order
	_, err := t.tx.Exec(`
		UPDATE trader_order SET
			order_status = $2, execution_price = $3, settlement_price = $4,
			unrealized_pnl = $5, entry_sequence = $6
		WHERE uuid = $1
		  AND entry_sequence < $6
		  AND order_status NOT IN ('SETTLED','LIQUIDATE','CANCELLED')`,
		o.UUID, o.OrderStatus, o.ExecutionPrice, o.SettlementPrice, o.UnrealizedPnL, e.AggSeq,
	)
	if err != nil {
		return fmt.Errorf("archive: update trader_order: %w", err)
	}
	return nil
}

func (t *txApplier) VisitTraderOrderFundingUpdate(e *events.TraderOrderFundingUpdateEvent) error {
	o := e.Order
	_, err := t.tx.Exec(`
		UPDATE trader_order SET
			unrealized_pnl = $2, maintenance_margin = $3, liquidation_price = $4
		WHERE uuid = $1 AND order_status NOT IN ('SETTLED','LIQUIDATE','CANCELLED')`,
		o.UUID, o.UnrealizedPnL, o.MaintenanceMargin, o.LiquidationPrice,
	)
	if err != nil {
		return fmt.Errorf("archive: funding update: %w", err)
	}
	return nil
}

func (t *txApplier) VisitTraderOrderLiquidation(e *events.TraderOrderLiquidationEvent) error {
	o := e.Order
	_, err := t.tx.Exec(`
		UPDATE trader_order SET
			order_status = 'LIQUIDATE', bankruptcy_price = $2, bankruptcy_value = $3,
			entry_sequence = $4
		WHERE uuid = $1
		  AND entry_sequence < $4
		  AND order_status NOT IN ('SETTLED','LIQUIDATE','CANCELLED')`,
		o.UUID, o.BankruptcyPrice, o.BankruptcyValue, e.AggSeq,
	)
	if err != nil {
		return fmt.Errorf("archive: liquidation: %w", err)
	}
	return nil
}

func (t *txApplier) VisitLendOrder(e *events.LendOrderEvent) error {
	o := e.Order
	_, err := t.tx.Exec(`
		INSERT INTO lend_order (
			uuid, account_id, balance, order_status, order_type, entry_nonce, exit_nonce,
			deposit, new_lend_state_amount, npoolshare, nwithdraw, payment,
			tlv0, tps0, tlv1, tps1, tlv2, tps2, tlv3, tps3, entry_sequence, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (uuid) DO UPDATE SET
			balance = EXCLUDED.balance,
			order_status = EXCLUDED.order_status,
			entry_sequence = EXCLUDED.entry_sequence
		WHERE lend_order.entry_sequence < EXCLUDED.entry_sequence`,
		o.UUID, o.AccountID, o.Balance, o.OrderStatus, o.OrderType, o.EntryNonce, o.ExitNonce,
		o.Deposit, o.NewLendStateAmount, o.NPoolShare, o.NWithdraw, o.Payment,
		o.TLV0, o.TPS0, o.TLV1, o.TPS1, o.TLV2, o.TPS2, o.TLV3, o.TPS3, e.AggSeq, o.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("archive: insert lend_order: %w", err)
	}
	return nil
}

func (t *txApplier) VisitPoolUpdate(e *events.PoolUpdateEvent) error {
	// I6: pool conservation — the update is additive on both tracked
	// columns, never a blind overwrite, so a lend-create and a
	// lend-settle landing in the same batch both take effect.
	_, err := t.tx.Exec(`
		UPDATE lend_pool SET
			total_locked_value = total_locked_value + $1,
			total_pool_share = total_pool_share + $2,
			sequence_num = $3
		WHERE sequence_num < $3`,
		e.LiquidityDelta, e.PoolShareDelta, e.AggSeq,
	)
	if err != nil {
		return fmt.Errorf("archive: pool update: %w", err)
	}
	return nil
}

func (t *txApplier) VisitFundingRateUpdate(e *events.FundingRateUpdateEvent) error {
	_, err := t.tx.Exec(`INSERT INTO funding_rate (rate, price, timestamp) VALUES ($1, 0, $2)`,
		e.Rate, e.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: funding rate: %w", err)
	}
	return nil
}

func (t *txApplier) VisitCurrentPriceUpdate(e *events.CurrentPriceUpdateEvent) error {
	_, err := t.tx.Exec(`INSERT INTO btc_usd_price (price, timestamp) VALUES ($1, $2)`,
		e.Price, e.Timestamp)
	if err != nil {
		return fmt.Errorf("archive: price update: %w", err)
	}
	return nil
}

func (t *txApplier) VisitSortedSetDBUpdate(e *events.SortedSetDBUpdateEvent) error {
	// The sorted sets themselves are MAT/cache-resident, not archived
	// relationally — the archive's source of truth for set membership
	// is the trader_order.order_status/price columns it already holds,
	// so this is a no-op here by design, matching
	// original_source/src/archiver.rs's stub arm for this variant.
	return nil
}

func (t *txApplier) VisitPositionSizeLogDBUpdate(e *events.PositionSizeLogDBUpdateEvent) error {
	_, err := t.tx.Exec(`
		UPDATE position_size_log SET
			total_long_size = $1, total_short_size = $2, sequence_num = $3
		WHERE sequence_num < $3`,
		e.Snapshot.TotalLongSize, e.Snapshot.TotalShortSize, e.Snapshot.SequenceNum,
	)
	if err != nil {
		return fmt.Errorf("archive: position size log: %w", err)
	}
	return nil
}

func (t *txApplier) VisitStop(e *events.StopEvent) error {
	return nil
}
