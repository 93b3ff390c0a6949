// Package orders executes simulated buy and close orders against market quotes and the portfolio.
//
// An order moves Requested -> Quoted -> Validated -> Executed, or is Rejected. Every check happens
// before the portfolio is touched, and the portfolio applies the cash and position change as one step,
// so a rejected order never leaves a partial change behind.
package orders

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/robaho/go-optsim/internal/portfolio"
	. "github.com/robaho/go-optsim/pkg/common"
)

// Request is a buy of Quantity units of Instrument, at LimitPrice when given, else at the last price
type Request struct {
	Instrument Instrument
	Quantity   int64
	LimitPrice decimal.NullDecimal
}

// Quote is the market state an order is priced from
type Quote struct {
	Instrument
	Price        decimal.Decimal
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	Volume       int64
	OpenInterest int64
	// Option is the provider's quote for options, nil for equities
	Option *OptionQuote
}

// LiquidityWarning is raised for thinly traded options, proceeding requires an explicit override
type LiquidityWarning struct {
	Symbol          string
	Volume          int64
	OpenInterest    int64
	MinVolume       int64
	MinOpenInterest int64
}

func (w LiquidityWarning) String() string {
	return "low liquidity on " + w.Symbol + ", volume " + strconv.FormatInt(w.Volume, 10) + " open interest " + strconv.FormatInt(w.OpenInterest, 10) + ", may have wide spreads or stale prices"
}

// ConfirmFunc decides whether to proceed despite the warning. A nil ConfirmFunc declines.
type ConfirmFunc func(w LiquidityWarning) bool

// Preview is what an order would do, computed without side effects
type Preview struct {
	Quote         Quote
	Quantity      int64
	Multiplier    int64
	Price         decimal.Decimal
	EstimatedCost decimal.Decimal
	// LowLiquidity is set when executing would require an override
	LowLiquidity *LiquidityWarning
	// Affordable against the cash balance at the time of the preview
	Affordable bool
}

// Journal receives every executed or rejected order
type Journal interface {
	Record(order *Order, text string) error
}

type Handler struct {
	provider        MarketDataProvider
	store           *portfolio.Store
	journal         Journal
	minVolume       int64
	minOpenInterest int64
	nextID          atomic.Int32
	log             *zap.Logger
	now             func() time.Time
}

// NewHandler creates a handler, journal may be nil
func NewHandler(provider MarketDataProvider, store *portfolio.Store, cfg Config, journal Journal, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		provider:        provider,
		store:           store,
		journal:         journal,
		minVolume:       cfg.MinVolume,
		minOpenInterest: cfg.MinOpenInterest,
		log:             log,
		now:             time.Now,
	}
}

// Quote fetches the current market for the instrument, the price is zero when the provider has none
func (h *Handler) Quote(instrument Instrument) Quote {
	if o, ok := instrument.(*Option); ok {
		q := h.provider.QuoteOption(o.Underlying(), o.Kind, o.Strike, o.Expires)
		return Quote{
			Instrument:   instrument,
			Price:        ToDecimal(q.Price),
			Bid:          ToDecimal(q.Bid),
			Ask:          ToDecimal(q.Ask),
			Volume:       q.Volume,
			OpenInterest: q.OpenInterest,
			Option:       &q,
		}
	}
	q := h.provider.QuoteStock(instrument.Symbol())
	return Quote{
		Instrument: instrument,
		Price:      ToDecimal(q.Price),
		Bid:        ToDecimal(q.Bid),
		Ask:        ToDecimal(q.Ask),
		Volume:     q.Volume,
	}
}

func (q Quote) usable() bool {
	return q.Price.IsPositive()
}

func (h *Handler) liquidity(q Quote) *LiquidityWarning {
	if !IsOption(q.Instrument) {
		return nil
	}
	if q.Volume >= h.minVolume && q.OpenInterest >= h.minOpenInterest {
		return nil
	}
	return &LiquidityWarning{
		Symbol:          q.Symbol(),
		Volume:          q.Volume,
		OpenInterest:    q.OpenInterest,
		MinVolume:       h.minVolume,
		MinOpenInterest: h.minOpenInterest,
	}
}

func validate(req Request) (RejectReason, error) {
	if req.Quantity <= 0 {
		return InvalidQuantity, errors.Wrapf(ErrInvalidQuantity, "quantity %d", req.Quantity)
	}
	if req.LimitPrice.Valid && !req.LimitPrice.Decimal.IsPositive() {
		return InvalidLimitPrice, errors.Wrapf(ErrInvalidLimitPrice, "limit %s", req.LimitPrice.Decimal)
	}
	return "", nil
}

// Preview quotes the request and estimates its cost without changing anything
func (h *Handler) Preview(req Request) (Preview, error) {
	if _, err := validate(req); err != nil {
		return Preview{}, err
	}
	q := h.Quote(req.Instrument)
	if !q.usable() {
		return Preview{Quote: q}, errors.Wrapf(ErrPriceUnavailable, "%s", req.Instrument.Symbol())
	}
	p := Preview{
		Quote:        q,
		Quantity:     req.Quantity,
		Multiplier:   req.Instrument.Multiplier(),
		Price:        q.Price,
		LowLiquidity: h.liquidity(q),
	}
	if req.LimitPrice.Valid {
		p.Price = req.LimitPrice.Decimal
	}
	p.EstimatedCost = Notional(p.Quantity, p.Multiplier, p.Price)
	p.Affordable = !p.EstimatedCost.GreaterThan(h.store.Cash())
	return p, nil
}

// Buy executes the request, opening a position. The returned order is Executed, or Rejected along with a
// *RejectError. confirm is consulted only for low liquidity options.
func (h *Handler) Buy(req Request, confirm ConfirmFunc) (order *Order, err error) {
	if req.LimitPrice.Valid {
		order = LimitOrder(req.Instrument, Buy, req.LimitPrice.Decimal, req.Quantity)
	} else {
		order = MarketOrder(req.Instrument, Buy, req.Quantity)
	}
	order.Id = OrderID(h.nextID.Add(1))
	defer h.finish(order, &err)

	if reason, err := validate(req); err != nil {
		return order, h.reject(order, reason, err)
	}

	q := h.Quote(req.Instrument)
	order.OrderState = Quoted
	if !q.usable() {
		return order, h.reject(order, PriceUnavailable, nil)
	}
	if w := h.liquidity(q); w != nil && !h.override(order, *w, confirm) {
		return order, h.reject(order, UserCancelled, errors.New(w.String()))
	}

	order.Price = q.Price
	if req.LimitPrice.Valid {
		order.Price = req.LimitPrice.Decimal
	}
	order.OrderState = Validated

	pos, err := h.store.Open(portfolio.Position{
		Instrument: req.Instrument,
		Quantity:   req.Quantity,
		Price:      order.Price,
		LimitPrice: req.LimitPrice,
		Acquired:   h.now(),
	})
	if errors.Is(err, portfolio.ErrInsufficientFunds) {
		return order, h.reject(order, InsufficientFunds, err)
	} else if err != nil {
		return order, h.reject(order, Unexpected, err)
	}

	order.PositionID = pos.ID
	order.OrderState = Executed
	order.Executed = pos.Acquired
	return order, nil
}

// Close sells the whole position at the last price, crediting the proceeds and removing the position
func (h *Handler) Close(positionID string, confirm ConfirmFunc) (order *Order, err error) {
	pos, ok := h.store.Get(positionID)
	if !ok {
		err := newRejectError(nil, UnknownPosition, errors.Wrapf(ErrUnknownPosition, "id %s", positionID))
		h.log.Info("order rejected", zap.String("position", positionID), zap.String("reason", string(UnknownPosition)))
		return nil, err
	}

	order = MarketOrder(pos.Instrument, Sell, pos.Quantity)
	order.Id = OrderID(h.nextID.Add(1))
	order.PositionID = pos.ID
	defer h.finish(order, &err)

	q := h.Quote(pos.Instrument)
	order.OrderState = Quoted
	if !q.usable() {
		return order, h.reject(order, PriceUnavailable, nil)
	}
	if w := h.liquidity(q); w != nil && !h.override(order, *w, confirm) {
		return order, h.reject(order, UserCancelled, errors.New(w.String()))
	}
	order.Price = q.Price
	order.OrderState = Validated

	if _, err := h.store.Close(pos.ID, order.Notional()); errors.Is(err, portfolio.ErrUnknownPosition) {
		return order, h.reject(order, UnknownPosition, err)
	} else if err != nil {
		return order, h.reject(order, Unexpected, err)
	}

	order.OrderState = Executed
	order.Executed = h.now()
	return order, nil
}

func (h *Handler) override(order *Order, w LiquidityWarning, confirm ConfirmFunc) bool {
	if confirm == nil {
		return false
	}
	ok := confirm(w)
	h.log.Info("low liquidity", zap.Stringer("order", order), zap.Bool("override", ok))
	return ok
}

func (h *Handler) reject(order *Order, reason RejectReason, err error) error {
	order.OrderState = Rejected
	order.RejectReason = reason
	return newRejectError(order, reason, err)
}

// finish converts a panic into an Unexpected rejection, then logs and journals the terminal order
func (h *Handler) finish(order *Order, err *error) {
	if r := recover(); r != nil {
		h.log.Error("order failed", zap.Stringer("order", order), zap.Any("panic", r), zap.Stack("stack"))
		*err = h.reject(order, Unexpected, fmt.Errorf("%v", r))
	}

	var text string
	if order.OrderState == Rejected {
		text = (*err).Error()
		h.log.Info("order rejected", zap.Int32("id", int32(order.Id)), zap.String("symbol", order.Symbol()), zap.String("reason", string(order.RejectReason)), zap.Error(*err))
	} else {
		h.log.Info("order executed", zap.Int32("id", int32(order.Id)), zap.String("symbol", order.Symbol()), zap.String("side", string(order.Side)),
			zap.Int64("quantity", order.Quantity), zap.String("price", order.Price.StringFixed(2)), zap.String("cash", h.store.Cash().StringFixed(2)))
	}

	if h.journal != nil {
		if jerr := h.journal.Record(order, text); jerr != nil {
			h.log.Warn("unable to journal order", zap.Int32("id", int32(order.Id)), zap.Error(jerr))
		}
	}
}
