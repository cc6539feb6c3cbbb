// Package fixedpoint converts inbound decimal prices to EISME's int64
// fixed-point representation exactly once, at ingress, as spec.md's
// design notes require — prices are never compared or sorted as
// floats anywhere downstream. shopspring/decimal is used for the
// parse step because it does banker's rounding exactly
// (round-half-to-even) without the binary-float representation error
// a plain strconv.ParseFloat + multiply would introduce, following
// 0xtitan6-polymarket-mm's use of the same library for its pricing
// paths.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/twilight-project/relayer-eisme/internal/domain"
)

// ParsePrice converts a decimal string (e.g. "1502.5") into the
// int64 scaled-by-domain.PriceScale representation.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("fixedpoint: parse price %q: %w", s, err)
	}
	scaled := d.Mul(decimal.New(domain.PriceScale, 0))
	return scaled.RoundBank(0).IntPart(), nil
}

// FormatPrice renders a fixed-point price back to a decimal string,
// for RPC responses and logging.
func FormatPrice(scaled int64) string {
	d := decimal.New(scaled, 0).Div(decimal.New(domain.PriceScale, 0))
	return d.StringFixed(4)
}
