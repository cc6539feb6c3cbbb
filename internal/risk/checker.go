// Package risk implements the Request Submitter's pre-trade
// precondition checks.
//
// EISME runs a single perpetual-futures market, so these checks are
// simpler than the teacher's multi-symbol equities version: there is
// one reference price and one pool-wide open-interest aggregate
// rather than a per-symbol position map. The check shapes themselves
// (leverage/size limit, price band, aggregate exposure limit) and the
// "run every check, return on first failure, log which checks ran"
// structure are kept from internal/risk/checker.go.
package risk

import (
	"fmt"
	"sync"

	"github.com/twilight-project/relayer-eisme/internal/config"
	"github.com/twilight-project/relayer-eisme/internal/domain"
)

// CheckResult contains the result of a precondition check.
type CheckResult struct {
	Passed    bool
	Reason    string
	ChecksRun []string
}

// Checker performs pre-submission precondition checks on trader
// orders. It is intentionally stateless about individual orders —
// internal/archive is the system of record — and instead tracks only
// the rolling aggregates (reference price, open interest) that the
// checks below run against without a round trip per submission.
type Checker struct {
	config config.RiskConfig

	mu             sync.RWMutex
	referencePrice int64
	openLong       int64
	openShort      int64
}

func NewChecker(cfg config.RiskConfig) *Checker {
	return &Checker{config: cfg}
}

// Check runs every precondition against a not-yet-submitted trader
// order and returns on the first failure, mirroring the teacher's
// equities risk checker's early-exit shape.
func (c *Checker) Check(order *domain.TraderOrder) CheckResult {
	result := CheckResult{Passed: true, ChecksRun: make([]string, 0, 4)}

	result.ChecksRun = append(result.ChecksRun, "leverage")
	if c.config.MaxLeverage > 0 && order.Leverage > c.config.MaxLeverage {
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("leverage %d exceeds max %d", order.Leverage, c.config.MaxLeverage),
			ChecksRun: result.ChecksRun,
		}
	}

	result.ChecksRun = append(result.ChecksRun, "position_size")
	if c.config.MaxPositionSize > 0 && order.PositionSize > c.config.MaxPositionSize {
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("position size %d exceeds max %d", order.PositionSize, c.config.MaxPositionSize),
			ChecksRun: result.ChecksRun,
		}
	}

	if order.OrderType == domain.OrderTypeLimit && order.EntryPrice > 0 {
		result.ChecksRun = append(result.ChecksRun, "price_band")
		if !c.checkPriceBand(order.EntryPrice) {
			ref := c.GetReferencePrice()
			return CheckResult{
				Passed: false,
				Reason: fmt.Sprintf("entry price %d outside band (ref: %d, band: %.0f%%)",
					order.EntryPrice, ref, c.config.PriceBandPercent*100),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	result.ChecksRun = append(result.ChecksRun, "open_interest")
	if !c.checkOpenInterest(order) {
		long, short := c.GetOpenInterest()
		return CheckResult{
			Passed: false,
			Reason: fmt.Sprintf("would exceed pool open-interest limit (long: %d, short: %d, order: %d, max: %d)",
				long, short, order.PositionSize, c.config.MaxPositionSize),
			ChecksRun: result.ChecksRun,
		}
	}

	return result
}

func (c *Checker) checkPriceBand(price int64) bool {
	c.mu.RLock()
	ref := c.referencePrice
	c.mu.RUnlock()

	if ref == 0 || c.config.PriceBandPercent <= 0 {
		return true
	}

	band := int64(float64(ref) * c.config.PriceBandPercent)
	low, high := ref-band, ref+band
	return price >= low && price <= high
}

// checkOpenInterest verifies the order wouldn't push the pool's total
// open interest on one side past MaxPositionSize — the aggregate
// analogue of the teacher's per-account position limit, since EISME
// has one pool rather than one account per symbol.
func (c *Checker) checkOpenInterest(order *domain.TraderOrder) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.config.MaxPositionSize <= 0 {
		return true
	}

	var projected int64
	if order.PositionType == domain.PositionLong {
		projected = c.openLong + order.PositionSize
	} else {
		projected = c.openShort + order.PositionSize
	}
	return projected <= c.config.MaxPositionSize
}

// SetReferencePrice updates the price the price-band check compares
// against. No materialization path calls it; while the reference price
// is 0 the price-band check passes every order.
func (c *Checker) SetReferencePrice(price int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referencePrice = price
}

// SetOpenInterest updates the pool-wide long/short aggregates the
// open-interest check adds to. No materialization path calls it; the
// aggregates stay at whatever was last set here.
func (c *Checker) SetOpenInterest(long, short int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openLong = long
	c.openShort = short
}

func (c *Checker) GetReferencePrice() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.referencePrice
}

func (c *Checker) GetOpenInterest() (long, short int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.openLong, c.openShort
}
