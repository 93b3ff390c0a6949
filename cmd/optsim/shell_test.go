package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robaho/go-optsim/internal/marketdata"
	"github.com/robaho/go-optsim/internal/orders"
	"github.com/robaho/go-optsim/internal/payoff"
	"github.com/robaho/go-optsim/internal/portfolio"
	. "github.com/robaho/go-optsim/pkg/common"
)

const testQuotes = `
equity IBM 150.25 150.20 150.30 1000000
option IBM 2025-01-17 call 150 2.50 2.45 2.55 1200 800 0.22 150.25
option IBM 2025-01-17 call 160 0.40 0.35 0.45 3 20
`

// pending holds the debounced tasks until run is called
type pending struct {
	tasks []func()
}

type stopper struct{ stopped *bool }

func (s stopper) Stop() bool {
	*s.stopped = true
	return true
}

func (p *pending) after(d time.Duration, f func()) payoff.Timer {
	stopped := new(bool)
	p.tasks = append(p.tasks, func() {
		if !*stopped {
			f()
		}
	})
	return stopper{stopped}
}

func (p *pending) run() {
	tasks := p.tasks
	p.tasks = nil
	for _, f := range tasks {
		f()
	}
}

func newTestShell(t *testing.T, input string) (*shell, *bytes.Buffer, *pending) {
	cfg := DefaultConfig()
	instruments := NewInstrumentMap()
	quotes := marketdata.NewStatic(instruments, nil)
	require.NoError(t, quotes.Load(strings.NewReader(testQuotes)))
	store := portfolio.NewStore(cfg.InitialCash, nil)
	handler := orders.NewHandler(quotes, store, cfg, nil, nil)

	var out bytes.Buffer
	sh := newShell(cfg, instruments, quotes, store, handler, bufio.NewScanner(strings.NewReader(input)), &out, zap.NewNop())
	p := &pending{}
	sh.after = p.after
	sh.now = func() time.Time { return time.Date(2024, 12, 18, 10, 0, 0, 0, time.UTC) }
	return sh, &out, p
}

func TestShellBuyAndPortfolio(t *testing.T) {
	sh, out, _ := newTestShell(t, "")

	assert.True(t, sh.execute("buy IBM 2025-01-17 call 150 10"))
	assert.Contains(t, out.String(), "estimated total cost 2500.00")
	assert.Contains(t, out.String(), "cash 97500.00")

	assert.True(t, sh.execute("buy IBM 10 150"))
	out.Reset()
	sh.execute("portfolio")
	assert.Contains(t, out.String(), "Cash Balance: 96000.00")
	assert.Contains(t, out.String(), "Total Contracts: 20")
	assert.Contains(t, out.String(), "IBM250117C00150000")

	out.Reset()
	sh.execute("remove 1 7")
	assert.Contains(t, out.String(), "removed 1 positions")
	assert.Contains(t, out.String(), "error: indices [7]: position index out of range")
	assert.Equal(t, 1, sh.store.Len())

	sh.execute("clear")
	assert.Equal(t, 0, sh.store.Len())
	assert.True(t, sh.store.Cash().Equal(NewDecimal("96000")))

	assert.False(t, sh.execute("quit"))
}

func TestShellLowLiquidityPrompt(t *testing.T) {
	sh, out, _ := newTestShell(t, "n\ny\n")

	sh.execute("buy IBM 2025-01-17 call 160 1")
	assert.Contains(t, out.String(), "Warning: low liquidity")
	assert.Contains(t, out.String(), string(UserCancelled))
	assert.Equal(t, 0, sh.store.Len())

	sh.execute("buy IBM 2025-01-17 call 160 1")
	assert.Equal(t, 1, sh.store.Len())

	out.Reset()
	sh.execute("close 0")
	assert.Contains(t, out.String(), "Proceed?")
	assert.Contains(t, out.String(), string(UserCancelled))
	assert.Equal(t, 1, sh.store.Len())
}

func TestShellQuoteAndChain(t *testing.T) {
	sh, out, _ := newTestShell(t, "")

	sh.execute("quote ibm")
	assert.Contains(t, out.String(), "IBM last 150.25")

	out.Reset()
	sh.execute("quote IBM 2025-01-17 call 150")
	assert.Contains(t, out.String(), "open interest 800")
	assert.Contains(t, out.String(), "iv 22.00%")

	out.Reset()
	sh.execute("chain IBM call sort=volume limit=1")
	assert.Contains(t, out.String(), "IBM250117C00150000")
	assert.NotContains(t, out.String(), "IBM250117C00160000")

	out.Reset()
	sh.execute("quote MSFT")
	assert.Contains(t, out.String(), "price unavailable")

	out.Reset()
	sh.execute("bogus")
	assert.Contains(t, out.String(), "Unknown command")
}

func TestShellSimulate(t *testing.T) {
	sh, out, p := newTestShell(t, "")

	sh.execute("buy IBM 2025-01-17 call 150 2")
	sh.execute("buy IBM 1")
	sh.execute("simulate 1")
	assert.Contains(t, out.String(), "is not an option")

	out.Reset()
	sh.execute("simulate 0")
	p.run()
	assert.Contains(t, out.String(), "days 30 spot 150.25 vol 22.00%")
	assert.Contains(t, out.String(), "break-even 152.50")
	assert.Contains(t, out.String(), "max profit unlimited max loss 500.00")

	out.Reset()
	sh.execute("days 0")
	sh.execute("spot 160")
	sh.execute("vol 30")
	p.run()
	assert.Equal(t, 1, strings.Count(out.String(), "days 0 spot 160.00 vol 30.00%"))
	assert.Contains(t, out.String(), "P/L 1500.00 (300.00%)")

	out.Reset()
	sh.execute("stats")
	assert.Contains(t, out.String(), "requests 2")

	sh.execute("done")
	out.Reset()
	sh.execute("days 5")
	assert.Contains(t, out.String(), "no simulation")
}
