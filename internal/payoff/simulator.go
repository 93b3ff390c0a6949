// Package payoff evaluates profit and loss curves for a purchased option under simulated market
// state, caching curves per scenario and coalescing bursts of scenario changes.
package payoff

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VividCortex/gohistogram"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/robaho/go-optsim/pkg/common"
	"github.com/robaho/go-optsim/pkg/pricing"
)

type Point struct {
	Spot   float64
	Payoff float64
}

// Curve is the profit per share over the spot grid. Points is a private copy.
type Curve struct {
	Key    Key
	Points []Point
}

type Metrics struct {
	// Value is the model price per share at the simulated spot
	Value             float64
	ProfitPerShare    float64
	ProfitPerContract float64
	TotalProfit       float64
	ReturnPct         float64
	BreakEven         float64
	// ProbabilityOfProfit is in [0,1]
	ProbabilityOfProfit float64
	// MaxProfit and MaxLoss cover the whole position, like TotalProfit. MaxProfit is meaningless when
	// MaxProfitUnlimited
	MaxProfit          float64
	MaxProfitUnlimited bool
	MaxLoss            float64
	Greeks             common.Greeks
}

type Result struct {
	Scenario Scenario
	Curve    Curve
	Metrics  Metrics
}

type Stats struct {
	Requests     uint64
	CacheHits    uint64
	CacheMisses  uint64
	CachedCurves int
	MeanLatency  time.Duration
	P50Latency   time.Duration
	P99Latency   time.Duration
}

type Simulator struct {
	position Position
	grid     Grid
	cache    *curveCache
	log      *zap.Logger

	requests atomic.Uint64
	hits     atomic.Uint64
	misses   atomic.Uint64
	closed   atomic.Bool

	histLock sync.Mutex
	latency  *gohistogram.NumericHistogram
}

func NewSimulator(position Position, cfg common.Config, log *zap.Logger) (*Simulator, error) {
	if err := position.validate(); err != nil {
		return nil, err
	}
	if position.Quantity == 0 {
		position.Quantity = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := newCurveCache(cfg.CurveCacheSize)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		position: position,
		grid:     NewGrid(position.Strike, cfg.GridWidth, cfg.GridPoints),
		cache:    cache,
		log:      log.With(zap.String("ticker", position.Ticker), zap.String("kind", string(position.Kind)), zap.Float64("strike", position.Strike)),
		latency:  gohistogram.NewHistogram(50),
	}, nil
}

func (s *Simulator) Position() Position {
	return s.position
}

func (s *Simulator) Grid() Grid {
	return append(Grid(nil), s.grid...)
}

// Simulate returns the cached or freshly computed payoff curve for the scenario, and the metrics at
// the simulated spot. Numeric edge cases degrade to zero values, only a malformed scenario is an error.
func (s *Simulator) Simulate(sc Scenario) (Result, error) {
	if s.closed.Load() {
		return Result{}, ErrClosed
	}
	if sc.Days < 0 {
		return Result{}, errors.Wrapf(ErrInvalidScenario, "days %d", sc.Days)
	}
	start := time.Now()
	s.requests.Add(1)

	t := pricing.YearsFromDays(sc.Days)
	key := newKey(sc.Days, sc.Volatility, s.position.Kind)

	points, ok := s.cache.get(key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
		points = s.curve(key, t)
		s.cache.publish(key, points)
	}

	r := Result{
		Scenario: sc,
		Curve:    Curve{Key: key, Points: append([]Point(nil), points...)},
		Metrics:  s.metrics(sc, t),
	}

	s.histLock.Lock()
	s.latency.Add(float64(time.Since(start).Nanoseconds()))
	s.histLock.Unlock()

	return r, nil
}

// the curve depends only on the key, using the bucket volatility
func (s *Simulator) curve(key Key, t float64) []Point {
	p := s.position
	vol := key.Volatility()
	points := make([]Point, len(s.grid))
	degenerate := 0
	for i, spot := range s.grid {
		v := pricing.Price(p.inputs(spot, t, vol), p.Kind)
		if v == 0 && t > 0 {
			degenerate++
		}
		points[i] = Point{Spot: spot, Payoff: v - p.Premium}
	}
	if degenerate == len(points) {
		s.log.Debug("payoff curve is flat at zero value", zap.Int("days", key.Days), zap.Float64("volatility", vol))
	}
	return points
}

func (s *Simulator) metrics(sc Scenario, t float64) Metrics {
	p := s.position
	in := p.inputs(sc.Spot, t, sc.Volatility)
	mult := float64(p.Multiplier)
	contracts := mult * float64(p.Quantity)

	var m Metrics
	m.Value = pricing.Price(in, p.Kind)
	m.ProfitPerShare = m.Value - p.Premium
	m.ProfitPerContract = m.ProfitPerShare * mult
	m.TotalProfit = m.ProfitPerContract * float64(p.Quantity)
	if p.Premium > 0 {
		m.ReturnPct = m.ProfitPerShare / p.Premium * 100
	}
	m.ProbabilityOfProfit = pricing.ProbabilityOfProfit(in, p.Kind)
	m.Greeks = pricing.Greeks(in, p.Kind)
	m.MaxLoss = p.Premium * contracts

	if p.Kind == common.Put {
		m.BreakEven = p.Strike - p.Premium
		m.MaxProfit = (p.Strike - p.Premium) * contracts
	} else {
		m.BreakEven = p.Strike + p.Premium
		m.MaxProfitUnlimited = true
	}

	if math.IsNaN(sc.Spot) || math.IsInf(sc.Spot, 0) || math.IsNaN(sc.Volatility) || math.IsInf(sc.Volatility, 0) {
		s.log.Debug("non-finite scenario", zap.Float64("spot", sc.Spot), zap.Float64("volatility", sc.Volatility))
	}
	return m
}

func (s *Simulator) Stats() Stats {
	st := Stats{
		Requests:     s.requests.Load(),
		CacheHits:    s.hits.Load(),
		CacheMisses:  s.misses.Load(),
		CachedCurves: s.cache.len(),
	}
	s.histLock.Lock()
	defer s.histLock.Unlock()
	if st.Requests > 0 {
		st.MeanLatency = time.Duration(s.latency.Mean())
		st.P50Latency = time.Duration(s.latency.Quantile(.50))
		st.P99Latency = time.Duration(s.latency.Quantile(.99))
	}
	return st
}

// Close drops the cached curves, later calls to Simulate fail with ErrClosed
func (s *Simulator) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.cache.purge()
	s.log.Debug("simulator closed", zap.Uint64("requests", s.requests.Load()))
}
