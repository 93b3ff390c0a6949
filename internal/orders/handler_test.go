package orders

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/robaho/fixed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robaho/go-optsim/internal/marketdata"
	"github.com/robaho/go-optsim/internal/portfolio"
	"github.com/robaho/go-optsim/internal/report"
	. "github.com/robaho/go-optsim/pkg/common"
)

var jan17 = NewExpiration(2025, time.January, 17)

type fixture struct {
	instruments *InstrumentMap
	quotes      *marketdata.Static
	store       *portfolio.Store
	journal     *bytes.Buffer
	handler     *Handler
}

func newFixture(t *testing.T, cash string) *fixture {
	f := &fixture{instruments: NewInstrumentMap(), journal: &bytes.Buffer{}}
	f.quotes = marketdata.NewStatic(f.instruments, nil)
	require.NoError(t, f.quotes.Load(strings.NewReader(`
equity IBM 150.25 150.20 150.30 1000000
option IBM 2025-01-17 call 150 2.50 2.45 2.55 1200 800
option IBM 2025-01-17 call 160 0.40 0.35 0.45 3 20
option IBM 2025-01-17 put 140 0 0 0 0 0
`)))
	f.store = portfolio.NewStore(NewDecimal(cash), nil)
	f.handler = NewHandler(f.quotes, f.store, DefaultConfig(), report.NewJournal(f.journal, nil), nil)
	return f
}

func (f *fixture) option(kind OptionKind, strike string) *Option {
	return f.instruments.Option("IBM", jan17, kind, NewDecimal(strike))
}

func (f *fixture) journaled() []string {
	return strings.Split(strings.TrimSpace(f.journal.String()), "\n")
}

func always(LiquidityWarning) bool { return true }
func never(LiquidityWarning) bool  { return false }

func TestBuyOptionContracts(t *testing.T) {
	f := newFixture(t, "100000")

	order, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, Executed, order.OrderState)
	assert.True(t, order.Price.Equal(NewDecimal("2.50")))
	assert.True(t, order.Notional().Equal(NewDecimal("2500")))
	assert.True(t, f.store.Cash().Equal(NewDecimal("97500")), f.store.Cash().String())

	pos, ok := f.store.Get(order.PositionID)
	require.True(t, ok)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.True(t, pos.Price.Equal(NewDecimal("2.5")))
	assert.False(t, pos.Acquired.IsZero())

	lines := f.journaled()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "|39=2|")
}

func TestBuyEquityAtLimit(t *testing.T) {
	f := newFixture(t, "10000")
	ibm := f.instruments.Equity("IBM")

	order, err := f.handler.Buy(Request{Instrument: ibm, Quantity: 20, LimitPrice: decimal.NewNullDecimal(NewDecimal("149.50"))}, nil)
	require.NoError(t, err)
	assert.True(t, order.Price.Equal(NewDecimal("149.50")))
	assert.True(t, f.store.Cash().Equal(NewDecimal("7010")), f.store.Cash().String())

	pos, ok := f.store.Get(order.PositionID)
	require.True(t, ok)
	assert.True(t, pos.LimitPrice.Valid)
}

func TestCashDecreasesByNotional(t *testing.T) {
	f := newFixture(t, "100000")
	cash := f.store.Cash()

	for i := int64(1); i <= 5; i++ {
		order, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: i}, nil)
		require.NoError(t, err)
		want := cash.Sub(NewDecimal("250").Mul(decimal.NewFromInt(i)))
		assert.True(t, f.store.Cash().Equal(want))
		assert.True(t, f.store.Cash().Sub(cash).Neg().Equal(order.Notional()))
		cash = f.store.Cash()
	}
	assert.Equal(t, 5, f.store.Len())
}

func assertRejected(t *testing.T, f *fixture, order *Order, err error, reason RejectReason, sentinel error, cash string, positions int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel), err.Error())
	assert.Equal(t, reason, Reason(err))
	require.NotNil(t, order)
	assert.Equal(t, Rejected, order.OrderState)
	assert.Equal(t, reason, order.RejectReason)
	assert.True(t, f.store.Cash().Equal(NewDecimal(cash)), f.store.Cash().String())
	assert.Equal(t, positions, f.store.Len())

	var re *RejectError
	require.True(t, errors.As(err, &re))
	assert.Same(t, order, re.Order)
}

func TestLowLiquidityWithoutOverride(t *testing.T) {
	f := newFixture(t, "100000")

	order, err := f.handler.Buy(Request{Instrument: f.option(Call, "160"), Quantity: 1}, nil)
	assertRejected(t, f, order, err, UserCancelled, ErrUserCancelled, "100000", 0)

	order, err = f.handler.Buy(Request{Instrument: f.option(Call, "160"), Quantity: 1}, never)
	assertRejected(t, f, order, err, UserCancelled, ErrUserCancelled, "100000", 0)

	lines := f.journaled()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "|39=8|")
}

func TestLowLiquidityWithOverride(t *testing.T) {
	f := newFixture(t, "100000")

	var warned LiquidityWarning
	order, err := f.handler.Buy(Request{Instrument: f.option(Call, "160"), Quantity: 2}, func(w LiquidityWarning) bool {
		warned = w
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, Executed, order.OrderState)
	assert.Equal(t, int64(3), warned.Volume)
	assert.Equal(t, int64(20), warned.OpenInterest)
	assert.Equal(t, int64(10), warned.MinVolume)
	assert.True(t, f.store.Cash().Equal(NewDecimal("99920")))
}

func TestLiquidityOnlyForOptions(t *testing.T) {
	f := newFixture(t, "1000")
	f.quotes.PutStock(StockQuote{Symbol: "TINY", Price: fixed.NewF(1), Volume: 0})

	_, err := f.handler.Buy(Request{Instrument: f.instruments.Equity("TINY"), Quantity: 5}, never)
	require.NoError(t, err)
}

func TestInsufficientFunds(t *testing.T) {
	f := newFixture(t, "1000")

	order, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 5}, nil)
	assertRejected(t, f, order, err, InsufficientFunds, ErrInsufficientFunds, "1000", 0)
	assert.Contains(t, f.journal.String(), "InsufficientFunds")
}

func TestPriceUnavailable(t *testing.T) {
	f := newFixture(t, "1000")

	order, err := f.handler.Buy(Request{Instrument: f.option(Put, "140"), Quantity: 1}, always)
	assertRejected(t, f, order, err, PriceUnavailable, ErrPriceUnavailable, "1000", 0)

	order, err = f.handler.Buy(Request{Instrument: f.option(Put, "999"), Quantity: 1}, always)
	assertRejected(t, f, order, err, PriceUnavailable, ErrPriceUnavailable, "1000", 0)

	order, err = f.handler.Buy(Request{Instrument: f.instruments.Equity("NONE"), Quantity: 1}, always)
	assertRejected(t, f, order, err, PriceUnavailable, ErrPriceUnavailable, "1000", 0)
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t, "1000")

	for _, qty := range []int64{0, -3} {
		order, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: qty}, always)
		assertRejected(t, f, order, err, InvalidQuantity, ErrInvalidQuantity, "1000", 0)
		assert.True(t, order.Price.IsZero())
	}

	order, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 1, LimitPrice: decimal.NewNullDecimal(NewDecimal("0"))}, always)
	assertRejected(t, f, order, err, InvalidLimitPrice, ErrInvalidLimitPrice, "1000", 0)

	order, err = f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 1, LimitPrice: decimal.NewNullDecimal(NewDecimal("-1"))}, always)
	assertRejected(t, f, order, err, InvalidLimitPrice, ErrInvalidLimitPrice, "1000", 0)

	assert.Len(t, f.journaled(), 4)
}

func TestClosePosition(t *testing.T) {
	f := newFixture(t, "10000")

	bought, err := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 4, LimitPrice: decimal.NewNullDecimal(NewDecimal("2"))}, nil)
	require.NoError(t, err)
	assert.True(t, f.store.Cash().Equal(NewDecimal("9200")))

	sold, err := f.handler.Close(bought.PositionID, nil)
	require.NoError(t, err)
	assert.Equal(t, Executed, sold.OrderState)
	assert.Equal(t, Sell, sold.Side)
	assert.Equal(t, int64(4), sold.Quantity)
	assert.True(t, sold.Price.Equal(NewDecimal("2.5")))
	assert.Equal(t, bought.PositionID, sold.PositionID)
	assert.True(t, f.store.Cash().Equal(NewDecimal("10200")), f.store.Cash().String())
	assert.Equal(t, 0, f.store.Len())

	lines := f.journaled()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "|54=2|")

	order, err := f.handler.Close(bought.PositionID, nil)
	assert.Nil(t, order)
	assert.True(t, errors.Is(err, ErrUnknownPosition))
	assert.Equal(t, UnknownPosition, Reason(err))
}

func TestCloseRejections(t *testing.T) {
	f := newFixture(t, "10000")

	thin, err := f.handler.Buy(Request{Instrument: f.option(Call, "160"), Quantity: 1}, always)
	require.NoError(t, err)
	cash := f.store.Cash().String()

	order, err := f.handler.Close(thin.PositionID, never)
	assertRejected(t, f, order, err, UserCancelled, ErrUserCancelled, cash, 1)

	// the market goes away
	f.quotes.PutOption(OptionQuote{Underlying: "IBM", Kind: Call, Strike: NewDecimal("160"), Expires: jan17})
	order, err = f.handler.Close(thin.PositionID, always)
	assertRejected(t, f, order, err, PriceUnavailable, ErrPriceUnavailable, cash, 1)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, "1000")

	p, err := f.handler.Preview(Request{Instrument: f.option(Call, "150"), Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Multiplier)
	assert.True(t, p.EstimatedCost.Equal(NewDecimal("2500")))
	assert.False(t, p.Affordable)
	assert.Nil(t, p.LowLiquidity)
	assert.NotNil(t, p.Quote.Option)

	p, err = f.handler.Preview(Request{Instrument: f.option(Call, "160"), Quantity: 1, LimitPrice: decimal.NewNullDecimal(NewDecimal("0.5"))})
	require.NoError(t, err)
	assert.True(t, p.EstimatedCost.Equal(NewDecimal("50")))
	assert.True(t, p.Affordable)
	require.NotNil(t, p.LowLiquidity)
	assert.Contains(t, p.LowLiquidity.String(), "low liquidity")

	_, err = f.handler.Preview(Request{Instrument: f.option(Put, "140"), Quantity: 1})
	assert.True(t, errors.Is(err, ErrPriceUnavailable))
	_, err = f.handler.Preview(Request{Instrument: f.option(Call, "150"), Quantity: 0})
	assert.True(t, errors.Is(err, ErrInvalidQuantity))

	assert.True(t, f.store.Cash().Equal(NewDecimal("1000")))
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.journal.String())
}

type panicProvider struct{}

func (panicProvider) QuoteStock(ticker string) StockQuote {
	panic("provider failure")
}

func (panicProvider) QuoteOption(ticker string, kind OptionKind, strike decimal.Decimal, expires Expiration) OptionQuote {
	panic("provider failure")
}

func TestPanicBecomesUnexpected(t *testing.T) {
	f := newFixture(t, "1000")
	h := NewHandler(panicProvider{}, f.store, DefaultConfig(), nil, nil)

	order, err := h.Buy(Request{Instrument: f.instruments.Equity("IBM"), Quantity: 1}, nil)
	assertRejected(t, f, order, err, Unexpected, ErrUnexpected, "1000", 0)
	assert.Contains(t, err.Error(), "provider failure")
}

func TestConcurrentBuysNeverOverdraw(t *testing.T) {
	f := newFixture(t, "10000")
	opt := f.option(Call, "150")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.handler.Buy(Request{Instrument: opt, Quantity: 3}, nil)
		}()
	}
	wg.Wait()

	// 750 per order
	assert.Equal(t, 13, f.store.Len())
	assert.True(t, f.store.Cash().Equal(NewDecimal("250")), f.store.Cash().String())
	assert.Len(t, f.journaled(), 20)
}

func TestOrderIDsIncrease(t *testing.T) {
	f := newFixture(t, "10000")
	a, _ := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 1}, nil)
	b, _ := f.handler.Buy(Request{Instrument: f.option(Call, "150"), Quantity: 0}, nil)
	assert.Less(t, int32(a.Id), int32(b.Id))
}
