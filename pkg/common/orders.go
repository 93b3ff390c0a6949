package common

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderState string
type RejectReason string

type OrderID int32

func (id OrderID) String() string {
	return strconv.Itoa(int(id))
}
func NewOrderID(id string) OrderID {
	return OrderID(ParseInt(id))
}

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// an order moves Requested -> Quoted -> Validated -> Executed, and may be Rejected from any non-terminal state
const (
	Requested OrderState = "requested"
	Quoted    OrderState = "quoted"
	Validated OrderState = "validated"
	Executed  OrderState = "executed"
	Rejected  OrderState = "rejected"
)

const (
	PriceUnavailable  RejectReason = "PriceUnavailable"
	InvalidQuantity   RejectReason = "InvalidQuantity"
	InvalidLimitPrice RejectReason = "InvalidLimitPrice"
	InsufficientFunds RejectReason = "InsufficientFunds"
	UserCancelled     RejectReason = "UserCancelled"
	UnknownPosition   RejectReason = "UnknownPosition"
	Unexpected        RejectReason = "Unexpected"
)

type Order struct {
	Instrument
	Id OrderID
	Side
	Quantity int64
	// LimitPrice is optional, when valid it is the requested fill price
	LimitPrice decimal.NullDecimal
	// Price is the realized fill price per share or per contract premium
	Price decimal.Decimal
	OrderState
	RejectReason RejectReason
	// PositionID is the position created by a buy, or closed by a sell
	PositionID string
	Created    time.Time
	Executed   time.Time
}

func (order *Order) String() string {
	s := "oid " + order.Id.String() +
		" " + string(order.Side) +
		" " + order.Instrument.Symbol() +
		" " + strconv.FormatInt(order.Quantity, 10) + "@" + order.Price.StringFixed(2) +
		" " + string(order.OrderState)
	if order.RejectReason != "" {
		s += " (" + string(order.RejectReason) + ")"
	}
	return s
}

func (order *Order) IsActive() bool {
	return order.OrderState != Executed && order.OrderState != Rejected
}

// Notional is quantity x multiplier x price, the cash debited by a buy or credited by a sell
func (order *Order) Notional() decimal.Decimal {
	return Notional(order.Quantity, order.Multiplier(), order.Price)
}

func Notional(quantity int64, multiplier int64, price decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(quantity).Mul(decimal.NewFromInt(multiplier)).Mul(price)
}

func MarketOrder(instrument Instrument, side Side, quantity int64) *Order {
	return newOrder(instrument, side, quantity)
}

func LimitOrder(instrument Instrument, side Side, price decimal.Decimal, quantity int64) *Order {
	order := newOrder(instrument, side, quantity)
	order.LimitPrice = decimal.NewNullDecimal(price)
	return order
}
func newOrder(instrument Instrument, side Side, qty int64) *Order {
	order := new(Order)
	order.Instrument = instrument
	order.Side = side
	order.Quantity = qty
	order.OrderState = Requested
	order.Created = time.Now()
	return order
}
