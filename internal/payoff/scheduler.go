package payoff

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// RenderFunc receives the result of the most recent scenario once input has been quiet for the
// debounce window. It runs on the timer's goroutine, callers driving a UI must hand it to their event loop.
type RenderFunc func(token uint64, r Result, err error)

// Scheduler holds the current scenario driven by interactive input, and coalesces bursts of changes
// so that only the last one is simulated and rendered.
type Scheduler struct {
	sim      *Simulator
	debounce *Debouncer
	render   RenderFunc
	log      *zap.Logger

	mu      sync.Mutex
	current Scenario
}

func NewScheduler(sim *Simulator, initial Scenario, delay time.Duration, after AfterFunc, render RenderFunc) *Scheduler {
	return &Scheduler{
		sim:      sim,
		debounce: NewDebouncer(delay, after),
		render:   render,
		log:      sim.log,
		current:  initial,
	}
}

func (s *Scheduler) Current() Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update replaces the whole scenario
func (s *Scheduler) Update(sc Scenario) uint64 {
	return s.change(func(cur *Scenario) { *cur = sc })
}

func (s *Scheduler) SetDays(days int) uint64 {
	return s.change(func(cur *Scenario) { cur.Days = days })
}

func (s *Scheduler) SetSpot(spot float64) uint64 {
	return s.change(func(cur *Scenario) { cur.Spot = spot })
}

func (s *Scheduler) SetVolatility(volatility float64) uint64 {
	return s.change(func(cur *Scenario) { cur.Volatility = volatility })
}

// Refresh schedules a render of the current scenario without changing it
func (s *Scheduler) Refresh() uint64 {
	return s.change(func(*Scenario) {})
}

func (s *Scheduler) change(apply func(*Scenario)) uint64 {
	// held across Trigger so the newest token always carries the newest scenario
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&s.current)
	sc := s.current

	return s.debounce.Trigger(func(token uint64) { s.run(token, sc) })
}

func (s *Scheduler) run(token uint64, sc Scenario) {
	r, err := s.sim.Simulate(sc)
	if !s.debounce.IsCurrent(token) {
		s.log.Debug("discarding stale payoff result", zap.Uint64("token", token))
		return
	}
	if err != nil {
		s.log.Warn("unable to simulate scenario", zap.Error(err), zap.Int("days", sc.Days))
	}
	s.render(token, r, err)
}

func (s *Scheduler) Pending() bool {
	return s.debounce.Pending()
}

// Cancel drops any pending recompute without rendering it
func (s *Scheduler) Cancel() {
	s.debounce.Cancel()
}

// Close stops scheduling, a pending recompute never runs
func (s *Scheduler) Close() {
	s.debounce.Close()
}
