package risk

import (
	"testing"

	"github.com/twilight-project/relayer-eisme/internal/config"
	"github.com/twilight-project/relayer-eisme/internal/domain"
)

func testConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxLeverage:      20,
		MaxPositionSize:  1_000_000,
		PriceBandPercent: 0.05,
	}
}

func TestCheck_LeverageExceeded(t *testing.T) {
	c := NewChecker(testConfig())
	order := &domain.TraderOrder{Leverage: 25, PositionSize: 100}

	result := c.Check(order)
	if result.Passed {
		t.Fatalf("expected leverage check to fail")
	}
	if result.ChecksRun[len(result.ChecksRun)-1] != "leverage" {
		t.Errorf("expected failure to stop at leverage check, got %v", result.ChecksRun)
	}
}

func TestCheck_PositionSizeExceeded(t *testing.T) {
	c := NewChecker(testConfig())
	order := &domain.TraderOrder{Leverage: 5, PositionSize: 2_000_000}

	result := c.Check(order)
	if result.Passed {
		t.Fatalf("expected position size check to fail")
	}
}

func TestCheck_PriceBand(t *testing.T) {
	c := NewChecker(testConfig())
	c.SetReferencePrice(100000)

	order := &domain.TraderOrder{
		Leverage:     5,
		PositionSize: 10,
		OrderType:    domain.OrderTypeLimit,
		EntryPrice:   200000, // far outside a 5% band
	}
	result := c.Check(order)
	if result.Passed {
		t.Fatalf("expected price band check to fail")
	}

	order.EntryPrice = 101000 // within band
	result = c.Check(order)
	if !result.Passed {
		t.Fatalf("expected order within band to pass: %s", result.Reason)
	}
}

func TestCheck_OpenInterest(t *testing.T) {
	c := NewChecker(testConfig())
	c.SetOpenInterest(900_000, 0)

	order := &domain.TraderOrder{
		Leverage:     5,
		PositionSize: 200_000,
		PositionType: domain.PositionLong,
	}
	result := c.Check(order)
	if result.Passed {
		t.Fatalf("expected open interest check to fail")
	}

	order.PositionType = domain.PositionShort
	result = c.Check(order)
	if !result.Passed {
		t.Fatalf("expected short side (no open interest) to pass: %s", result.Reason)
	}
}

func TestCheck_AllPass(t *testing.T) {
	c := NewChecker(testConfig())
	c.SetReferencePrice(100000)
	order := &domain.TraderOrder{
		Leverage:     5,
		PositionSize: 100,
		PositionType: domain.PositionLong,
		OrderType:    domain.OrderTypeMarket,
	}
	result := c.Check(order)
	if !result.Passed {
		t.Fatalf("expected all checks to pass, got: %s", result.Reason)
	}
	if len(result.ChecksRun) != 3 {
		t.Errorf("expected 3 checks run for a market order (no price band), got %v", result.ChecksRun)
	}
}

func TestZeroLimitsDisableChecks(t *testing.T) {
	c := NewChecker(config.RiskConfig{})
	order := &domain.TraderOrder{Leverage: 1000, PositionSize: 1000000000}
	result := c.Check(order)
	if !result.Passed {
		t.Fatalf("expected zero-valued limits to disable checks, got: %s", result.Reason)
	}
}
