// Package pricing implements closed form (Black-Scholes-Merton) option valuation and sensitivities.
//
// Every function is pure and safe for concurrent use. Degenerate inputs never produce an error,
// NaN or Inf: they collapse to the documented zero value instead.
package pricing

import (
	"math"

	"github.com/robaho/go-optsim/pkg/common"
)

// DaysPerYear converts calendar days to years, and annual theta to daily decay
const DaysPerYear = 365.0

// Inputs are the model parameters. T is in years, rates and volatility are annualized decimals.
type Inputs struct {
	Spot          float64
	Strike        float64
	T             float64
	Rate          float64
	Volatility    float64
	DividendYield float64
}

func (in Inputs) finite() bool {
	return isFinite(in.Spot, in.Strike, in.T, in.Rate, in.Volatility, in.DividendYield)
}

// degenerate inputs for the t > 0 branch, where d1/d2 are undefined
func (in Inputs) degenerate() bool {
	return in.Spot <= 0 || in.Strike <= 0 || in.Volatility <= 0
}

// YearsFromDays converts days to expiry to the model time unit
func YearsFromDays(days int) float64 {
	return float64(days) / DaysPerYear
}

// Intrinsic is the exercise value, max(0,S-K) for calls and max(0,K-S) for puts
func Intrinsic(spot, strike float64, kind common.OptionKind) float64 {
	if kind == common.Put {
		return math.Max(0, strike-spot)
	}
	return math.Max(0, spot-strike)
}

// D1D2 returns the two auxiliary quantities, ok is false when they are not finite or the inputs are degenerate
func D1D2(in Inputs) (d1, d2 float64, ok bool) {
	if !in.finite() || in.T <= 0 || in.degenerate() {
		return 0, 0, false
	}
	vsqrt := in.Volatility * math.Sqrt(in.T)
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate-in.DividendYield+0.5*in.Volatility*in.Volatility)*in.T) / vsqrt
	d2 = d1 - vsqrt
	if !isFinite(d1, d2) {
		return 0, 0, false
	}
	return d1, d2, true
}

// Price is the fair value per share. At or past expiry it is exactly the intrinsic value.
func Price(in Inputs, kind common.OptionKind) float64 {
	if !in.finite() {
		return 0
	}
	if in.T <= 0 {
		return Intrinsic(in.Spot, in.Strike, kind)
	}
	d1, d2, ok := D1D2(in)
	if !ok {
		return 0
	}
	spotLeg := in.Spot * math.Exp(-in.DividendYield*in.T)
	strikeLeg := in.Strike * math.Exp(-in.Rate*in.T)

	var price float64
	if kind == common.Put {
		price = strikeLeg*N(-d2) - spotLeg*N(-d1)
	} else {
		price = spotLeg*N(d1) - strikeLeg*N(d2)
	}
	if !isFinite(price) {
		return 0
	}
	// rounding can leave a deep out of the money value a hair below zero
	return math.Max(0, price)
}

// Greeks computes delta, gamma, theta per calendar day and vega per volatility point.
// Any non-finite intermediate collapses the whole result to zero.
func Greeks(in Inputs, kind common.OptionKind) common.Greeks {
	if !in.finite() {
		return common.Greeks{}
	}
	if in.T <= 0 {
		var delta float64
		if kind == common.Put && in.Spot < in.Strike {
			delta = -1
		} else if kind != common.Put && in.Spot > in.Strike {
			delta = 1
		}
		return common.Greeks{Delta: delta}
	}
	d1, d2, ok := D1D2(in)
	if !ok {
		return common.Greeks{}
	}

	sqrtT := math.Sqrt(in.T)
	qdisc := math.Exp(-in.DividendYield * in.T)
	rdisc := math.Exp(-in.Rate * in.T)
	pdf := NPrime(d1)

	var g common.Greeks
	g.Gamma = qdisc * pdf / (in.Spot * in.Volatility * sqrtT)
	g.Vega = in.Spot * qdisc * pdf * sqrtT / 100

	decay := -in.Spot * qdisc * pdf * in.Volatility / (2 * sqrtT)
	if kind == common.Put {
		g.Delta = qdisc * (N(d1) - 1)
		g.Theta = decay + in.Rate*in.Strike*rdisc*N(-d2) - in.DividendYield*in.Spot*qdisc*N(-d1)
	} else {
		g.Delta = qdisc * N(d1)
		g.Theta = decay - in.Rate*in.Strike*rdisc*N(d2) + in.DividendYield*in.Spot*qdisc*N(d1)
	}
	g.Theta /= DaysPerYear

	if !g.Complete() {
		return common.Greeks{}
	}
	return g
}

// ProbabilityOfProfit is the risk neutral probability of finishing in the money, N(d2) for calls
// and N(-d2) for puts. It is 0 whenever d2 is undefined.
func ProbabilityOfProfit(in Inputs, kind common.OptionKind) float64 {
	_, d2, ok := D1D2(in)
	if !ok {
		return 0
	}
	var p float64
	if kind == common.Put {
		p = N(-d2)
	} else {
		p = N(d2)
	}
	if !isFinite(p) {
		return 0
	}
	return p
}

// ResolveGreeks returns the provider's Greeks when all four are present and finite, otherwise all four
// are recomputed from the model. Partial provider values are never blended with model values.
func ResolveGreeks(quoted *common.Greeks, in Inputs, kind common.OptionKind) common.Greeks {
	if quoted != nil && quoted.Complete() {
		return *quoted
	}
	return Greeks(in, kind)
}

// N is the standard normal cumulative distribution
func N(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// NPrime is the standard normal density
func NPrime(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
