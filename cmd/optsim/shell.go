package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/robaho/go-optsim/internal/marketdata"
	"github.com/robaho/go-optsim/internal/orders"
	"github.com/robaho/go-optsim/internal/payoff"
	"github.com/robaho/go-optsim/internal/portfolio"
	. "github.com/robaho/go-optsim/pkg/common"
	"github.com/robaho/go-optsim/pkg/pricing"
)

const usage = `The available commands are:
  quote SYMBOL | quote UNDERLYING YYYY-MM-DD call|put STRIKE
  chain UNDERLYING [call|put] [sort=strike|volume|oi|iv|last] [min=STRIKE] [max=STRIKE] [limit=N]
  buy SYMBOL QTY [LIMIT] | buy UNDERLYING YYYY-MM-DD call|put STRIKE QTY [LIMIT]
  close INDEX, remove INDEX..., clear, portfolio
  simulate INDEX, days N, spot PRICE, vol VOLATILITY, stats, done
  quit`

// shell executes one command line at a time, simulation renders arrive asynchronously
type shell struct {
	cfg         Config
	instruments *InstrumentMap
	quotes      *marketdata.Static
	store       *portfolio.Store
	handler     *orders.Handler
	in          *bufio.Scanner
	log         *zap.Logger

	outLock sync.Mutex
	out     io.Writer

	sim   *payoff.Simulator
	sched *payoff.Scheduler
	// after is the debounce timer factory, nil for real timers
	after payoff.AfterFunc
	now   func() time.Time
}

func newShell(cfg Config, instruments *InstrumentMap, quotes *marketdata.Static, store *portfolio.Store, handler *orders.Handler, in *bufio.Scanner, out io.Writer, log *zap.Logger) *shell {
	return &shell{cfg: cfg, instruments: instruments, quotes: quotes, store: store, handler: handler, in: in, out: out, log: log, now: time.Now}
}

func (sh *shell) printf(format string, a ...interface{}) {
	sh.outLock.Lock()
	defer sh.outLock.Unlock()
	fmt.Fprintf(sh.out, format, a...)
}

// execute returns false when the shell should exit
func (sh *shell) execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	var err error
	switch strings.ToLower(parts[0]) {
	case "help":
		sh.printf("%s\n", usage)
	case "quit", "exit":
		return false
	case "quote":
		err = sh.quote(parts[1:])
	case "chain":
		err = sh.chain(parts[1:])
	case "buy":
		err = sh.buy(parts[1:])
	case "close":
		err = sh.close(parts[1:])
	case "remove":
		err = sh.remove(parts[1:])
	case "clear":
		sh.clear()
	case "portfolio":
		sh.portfolio()
	case "simulate":
		err = sh.simulate(parts[1:])
	case "days", "spot", "vol":
		err = sh.adjust(parts[0], parts[1:])
	case "stats":
		err = sh.stats()
	case "done":
		sh.closeSimulation()
	default:
		sh.printf("Unknown command, '%s' use 'help'\n", line)
	}
	if err != nil {
		sh.printf("error: %v\n", err)
	}
	return true
}

var errUsage = errors.New("invalid arguments, use 'help'")

// parseInstrument reads either SYMBOL or UNDERLYING EXPIRY KIND STRIKE, returning the remaining arguments
func (sh *shell) parseInstrument(args []string) (Instrument, []string, error) {
	if len(args) == 0 {
		return nil, nil, errUsage
	}
	if len(args) >= 4 {
		if expires, err := ParseExpiration(args[1]); err == nil {
			kind, err := ParseOptionKind(args[2])
			if err != nil {
				return nil, nil, err
			}
			strike, err := decimal.NewFromString(args[3])
			if err != nil || !strike.IsPositive() {
				return nil, nil, errors.Wrapf(errUsage, "strike %q", args[3])
			}
			return sh.instruments.Option(strings.ToUpper(args[0]), expires, kind, strike), args[4:], nil
		}
	}
	if i := sh.instruments.GetBySymbol(strings.ToUpper(args[0])); i != nil {
		return i, args[1:], nil
	}
	return sh.instruments.Equity(strings.ToUpper(args[0])), args[1:], nil
}

func (sh *shell) quote(args []string) error {
	inst, _, err := sh.parseInstrument(args)
	if err != nil {
		return err
	}
	q := sh.handler.Quote(inst)
	if !q.Price.IsPositive() {
		return errors.Wrapf(orders.ErrPriceUnavailable, "%s", inst.Symbol())
	}
	sh.printf("%s last %s bid %s ask %s volume %d", inst.Symbol(), q.Price.StringFixed(2), q.Bid.StringFixed(2), q.Ask.StringFixed(2), q.Volume)
	if o, ok := inst.(*Option); ok {
		sh.printf(" open interest %d\n", q.OpenInterest)
		sc := payoff.InitialScenario(*q.Option, sh.now(), sh.cfg)
		in := pricing.Inputs{Spot: sc.Spot, Strike: o.StrikeFloat(), T: pricing.YearsFromDays(sc.Days), Rate: sh.cfg.RiskFreeRate, Volatility: sc.Volatility}
		g := pricing.ResolveGreeks(q.Option.Greeks, in, o.Kind)
		sh.printf("  model %.2f iv %.2f%% delta %.4f gamma %.4f theta %.4f vega %.4f\n", pricing.Price(in, o.Kind), sc.Volatility*100, g.Delta, g.Gamma, g.Theta, g.Vega)
	} else {
		sh.printf("\n")
	}
	return nil
}

func (sh *shell) chain(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	var f marketdata.ChainFilter
	for _, arg := range args[1:] {
		key, value, _ := strings.Cut(arg, "=")
		var err error
		switch strings.ToLower(key) {
		case "call", "put":
			f.Kind, err = ParseOptionKind(key)
		case "sort":
			f.SortBy, err = marketdata.ParseSortBy(value)
		case "min", "max":
			var d decimal.Decimal
			if d, err = decimal.NewFromString(value); err == nil {
				if key == "min" {
					f.MinStrike = decimal.NewNullDecimal(d)
				} else {
					f.MaxStrike = decimal.NewNullDecimal(d)
				}
			}
		case "limit":
			f.Limit, err = strconv.Atoi(value)
		default:
			err = errUsage
		}
		if err != nil {
			return errors.Wrapf(err, "chain argument %q", arg)
		}
	}

	chain := marketdata.FilterChain(sh.quotes.Chain(args[0]), f)
	sh.printf("%20s %10s %4s %10s %8s %8s %8s %8s %8s %6s\n", "symbol", "expires", "kind", "strike", "last", "bid", "ask", "volume", "oi", "iv")
	for _, q := range chain {
		sh.printf("%20s %10s %4s %10s %8.2f %8.2f %8.2f %8d %8d %6.2f\n", q.Symbol, q.Expires, q.Kind, q.Strike.StringFixed(2), q.Price.Float(), q.Bid.Float(), q.Ask.Float(), q.Volume, q.OpenInterest, q.ImpliedVolatility*100)
	}
	return nil
}

func (sh *shell) confirm(w orders.LiquidityWarning) bool {
	sh.printf("Warning: %s. Proceed? [y/N]", w)
	if !sh.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sh.in.Text()))
	return answer == "y" || answer == "yes"
}

func (sh *shell) buy(args []string) error {
	inst, rest, err := sh.parseInstrument(args)
	if err != nil {
		return err
	}
	if len(rest) == 0 || len(rest) > 2 {
		return errUsage
	}
	qty, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return errors.Wrapf(errUsage, "quantity %q", rest[0])
	}
	req := orders.Request{Instrument: inst, Quantity: qty}
	if len(rest) == 2 {
		limit, err := decimal.NewFromString(rest[1])
		if err != nil {
			return errors.Wrapf(errUsage, "limit %q", rest[1])
		}
		req.LimitPrice = decimal.NewNullDecimal(limit)
	}

	if p, err := sh.handler.Preview(req); err == nil {
		sh.printf("%s %d x %d @ %s, estimated total cost %s\n", inst.Symbol(), p.Quantity, p.Multiplier, p.Price.StringFixed(2), p.EstimatedCost.StringFixed(2))
	}
	order, err := sh.handler.Buy(req, sh.confirm)
	if err != nil {
		return err
	}
	sh.printf("%s, cash %s\n", order, sh.store.Cash().StringFixed(2))
	return nil
}

func (sh *shell) position(arg string) (portfolio.Position, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return portfolio.Position{}, errors.Wrapf(errUsage, "index %q", arg)
	}
	snap := sh.store.Snapshot()
	if i < 0 || i >= len(snap.Positions) {
		return portfolio.Position{}, errors.Wrapf(portfolio.ErrIndexOutOfRange, "index %d", i)
	}
	return snap.Positions[i], nil
}

func (sh *shell) close(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	pos, err := sh.position(args[0])
	if err != nil {
		return err
	}
	order, err := sh.handler.Close(pos.ID, sh.confirm)
	if err != nil {
		return err
	}
	sh.printf("%s, proceeds %s, cash %s\n", order, order.Notional().StringFixed(2), sh.store.Cash().StringFixed(2))
	return nil
}

func (sh *shell) remove(args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	var indices []int
	for _, arg := range args {
		i, err := strconv.Atoi(arg)
		if err != nil {
			return errors.Wrapf(errUsage, "index %q", arg)
		}
		indices = append(indices, i)
	}
	n, err := sh.store.RemoveAt(indices...)
	sh.printf("removed %d positions\n", n)
	return err
}

func (sh *shell) clear() {
	sh.store.Clear()
	sh.printf("portfolio cleared, cash %s\n", sh.store.Cash().StringFixed(2))
}

func (sh *shell) portfolio() {
	snap := sh.store.Snapshot()
	sh.printf("Cash Balance: %s\n", snap.Cash.StringFixed(2))
	sh.printf("%3s %20s %6s %10s %6s %10s %10s %10s\n", "#", "symbol", "type", "strike", "qty", "premium", "expiry", "bought")
	for i, p := range snap.Positions {
		kind, strike, expiry := "equity", "", ""
		if o, ok := p.Instrument.(*Option); ok {
			kind, strike, expiry = o.Kind.Title(), o.Strike.StringFixed(2), o.Expires.String()
		}
		sh.printf("%3d %20s %6s %10s %6d %10s %10s %10s\n", i, p.Symbol(), kind, strike, p.Quantity, p.Price.StringFixed(2), expiry, p.Acquired.Format(ExpirationLayout))
	}
	sh.printf("Total Contracts: %d\n", snap.TotalQuantity)
}

// simulate opens an interactive payoff session for an option position
func (sh *shell) simulate(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	pos, err := sh.position(args[0])
	if err != nil {
		return err
	}
	o, ok := pos.Instrument.(*Option)
	if !ok {
		return errors.Wrapf(errUsage, "%s is not an option", pos.Symbol())
	}

	q := sh.handler.Quote(o)
	position := payoff.PositionFromQuote(o, ToFloat(pos.Price), sh.cfg, 0)
	position.Quantity = pos.Quantity
	sim, err := payoff.NewSimulator(position, sh.cfg, sh.log.Named("payoff"))
	if err != nil {
		return err
	}

	sh.closeSimulation()
	sh.sim = sim
	sh.sched = payoff.NewScheduler(sim, payoff.InitialScenario(*q.Option, sh.now(), sh.cfg), sh.cfg.Debounce, sh.after, sh.render)
	sh.printf("simulating %s, use days, spot and vol to change the scenario, done to finish\n", o.Symbol())
	sh.sched.Refresh()
	return nil
}

func (sh *shell) adjust(what string, args []string) error {
	if sh.sched == nil {
		return errors.New("no simulation, use 'simulate INDEX'")
	}
	if len(args) != 1 {
		return errUsage
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return errors.Wrapf(errUsage, "%s %q", what, args[0])
	}
	switch what {
	case "days":
		sh.sched.SetDays(int(v))
	case "spot":
		sh.sched.SetSpot(v)
	case "vol":
		// accept percent
		if v > 5 {
			v /= 100
		}
		sh.sched.SetVolatility(v)
	}
	return nil
}

func (sh *shell) render(token uint64, r payoff.Result, err error) {
	if err != nil {
		sh.printf("\nunable to simulate: %v\n", err)
		return
	}
	m := r.Metrics
	maxProfit := "unlimited"
	if !m.MaxProfitUnlimited {
		maxProfit = strconv.FormatFloat(m.MaxProfit, 'f', 2, 64)
	}
	sh.printf("\n[%d] days %d spot %.2f vol %.2f%%: value %.2f P/L %.2f (%.2f%%) break-even %.2f PoP %.1f%% max profit %s max loss %.2f\n",
		token, r.Scenario.Days, r.Scenario.Spot, r.Scenario.Volatility*100, m.Value, m.TotalProfit, m.ReturnPct, m.BreakEven, m.ProbabilityOfProfit*100, maxProfit, m.MaxLoss)
	sh.printf("     delta %.4f gamma %.4f theta %.4f vega %.4f\n", m.Greeks.Delta, m.Greeks.Gamma, m.Greeks.Theta, m.Greeks.Vega)
	points := r.Curve.Points
	for i := 0; i < len(points); i += (len(points) + 9) / 10 {
		sh.printf("     %10.2f %10.2f\n", points[i].Spot, points[i].Payoff)
	}
}

func (sh *shell) stats() error {
	if sh.sim == nil {
		return errors.New("no simulation, use 'simulate INDEX'")
	}
	st := sh.sim.Stats()
	sh.printf("requests %d hits %d misses %d cached %d, latency mean %s p50 %s p99 %s\n", st.Requests, st.CacheHits, st.CacheMisses, st.CachedCurves, st.MeanLatency, st.P50Latency, st.P99Latency)
	return nil
}

func (sh *shell) closeSimulation() {
	if sh.sched != nil {
		sh.sched.Close()
		sh.sched = nil
	}
	if sh.sim != nil {
		sh.sim.Close()
		sh.sim = nil
	}
}
