package payoff

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/robaho/go-optsim/pkg/common"
	"github.com/robaho/go-optsim/pkg/pricing"
)

var ErrInvalidScenario = errors.New("invalid scenario")
var ErrClosed = errors.New("simulator closed")

// Position is the purchased option whose payoff is explored
type Position struct {
	Ticker        string
	Kind          common.OptionKind
	Strike        float64
	Premium       float64
	Multiplier    int64
	Quantity      int64
	Rate          float64
	DividendYield float64
}

func (p Position) validate() error {
	if p.Kind != common.Call && p.Kind != common.Put {
		return errors.Wrapf(ErrInvalidScenario, "option kind %q", p.Kind)
	}
	if !(p.Strike > 0) || math.IsInf(p.Strike, 0) {
		return errors.Wrapf(ErrInvalidScenario, "strike %v", p.Strike)
	}
	if !(p.Premium >= 0) || math.IsInf(p.Premium, 0) {
		return errors.Wrapf(ErrInvalidScenario, "premium %v", p.Premium)
	}
	if p.Multiplier <= 0 || p.Quantity < 0 {
		return errors.Wrapf(ErrInvalidScenario, "multiplier %d quantity %d", p.Multiplier, p.Quantity)
	}
	return nil
}

func (p Position) inputs(spot float64, t float64, volatility float64) pricing.Inputs {
	return pricing.Inputs{Spot: spot, Strike: p.Strike, T: t, Rate: p.Rate, Volatility: volatility, DividendYield: p.DividendYield}
}

// PositionFromQuote builds the single contract position for an option bought at premium
func PositionFromQuote(o *common.Option, premium float64, cfg common.Config, dividendYield float64) Position {
	return Position{
		Ticker:        o.Underlying(),
		Kind:          o.Kind,
		Strike:        o.StrikeFloat(),
		Premium:       premium,
		Multiplier:    o.Multiplier(),
		Quantity:      1,
		Rate:          cfg.RiskFreeRate,
		DividendYield: dividendYield,
	}
}

// Scenario is the simulated market state
type Scenario struct {
	Days       int
	Spot       float64
	Volatility float64
}

// InitialScenario starts at the calendar days to expiry, the underlying price when known else the strike,
// and the quoted implied volatility when known else the configured default
func InitialScenario(q common.OptionQuote, now time.Time, cfg common.Config) Scenario {
	s := Scenario{Days: q.Expires.DaysUntil(now), Spot: common.ToFloat(q.Strike), Volatility: cfg.DefaultVolatility}
	if spot := q.UnderlyingPrice.Float(); spot > 0 && !math.IsInf(spot, 0) {
		s.Spot = spot
	}
	if iv := q.ImpliedVolatility; iv > 0 && !math.IsInf(iv, 0) {
		s.Volatility = iv
	}
	return s
}
