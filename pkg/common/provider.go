package common

import (
	"math"

	"github.com/robaho/fixed"
	"github.com/shopspring/decimal"
)

// MarketDataProvider supplies quotes for the exact instrument requested. Implementations never
// return an error, a failed or empty fetch is reported as a quote with a non-positive price.
type MarketDataProvider interface {
	QuoteStock(ticker string) StockQuote
	QuoteOption(ticker string, kind OptionKind, strike decimal.Decimal, expires Expiration) OptionQuote
}

type StockQuote struct {
	Symbol string
	Price  fixed.Fixed
	Bid    fixed.Fixed
	Ask    fixed.Fixed
	Volume int64
}

// Usable is false for the provider's no-data sentinel
func (q StockQuote) Usable() bool {
	return usable(q.Price)
}

type OptionQuote struct {
	Symbol     string
	Underlying string
	Kind       OptionKind
	Strike     decimal.Decimal
	Expires    Expiration
	// Price is the last traded premium per share
	Price        fixed.Fixed
	Bid          fixed.Fixed
	Ask          fixed.Fixed
	Volume       int64
	OpenInterest int64
	// ImpliedVolatility is 0 when the provider has none
	ImpliedVolatility float64
	UnderlyingPrice   fixed.Fixed
	// Greeks as reported by the provider, nil if absent. Missing individual values are NaN.
	Greeks *Greeks
}

func (q OptionQuote) Usable() bool {
	return usable(q.Price)
}

func usable(price fixed.Fixed) bool {
	f := price.Float()
	return !math.IsNaN(f) && f > 0
}

// Greeks are the option sensitivities. Theta is per calendar day, Vega per one point of volatility.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// Complete reports whether all four sensitivities are finite
func (g Greeks) Complete() bool {
	for _, v := range [...]float64{g.Delta, g.Gamma, g.Theta, g.Vega} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
