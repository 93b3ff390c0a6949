package orders

import (
	"github.com/pkg/errors"

	"github.com/robaho/go-optsim/internal/portfolio"
	. "github.com/robaho/go-optsim/pkg/common"
)

var ErrPriceUnavailable = errors.New("price unavailable")
var ErrInvalidQuantity = errors.New("quantity must be positive")
var ErrInvalidLimitPrice = errors.New("limit price must be positive")
var ErrInsufficientFunds = portfolio.ErrInsufficientFunds
var ErrUserCancelled = errors.New("cancelled by user")
var ErrUnknownPosition = portfolio.ErrUnknownPosition
var ErrUnexpected = errors.New("unexpected failure")

var sentinels = map[RejectReason]error{
	PriceUnavailable:  ErrPriceUnavailable,
	InvalidQuantity:   ErrInvalidQuantity,
	InvalidLimitPrice: ErrInvalidLimitPrice,
	InsufficientFunds: ErrInsufficientFunds,
	UserCancelled:     ErrUserCancelled,
	UnknownPosition:   ErrUnknownPosition,
	Unexpected:        ErrUnexpected,
}

// RejectError reports a rejected order. Nothing was changed by the order. errors.Is matches the
// sentinel for the reason.
type RejectError struct {
	Reason RejectReason
	// Order is nil when the order could not be created, e.g. closing an unknown position
	Order *Order
	Err   error
}

func (e *RejectError) Error() string {
	s := "order"
	if e.Order != nil {
		s += " " + e.Order.Id.String()
	}
	return s + " rejected (" + string(e.Reason) + "): " + e.Err.Error()
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func (e *RejectError) Cause() error {
	return e.Err
}

// Reason returns the reject reason of err, or "" if err is not a rejection
func Reason(err error) RejectReason {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

func newRejectError(order *Order, reason RejectReason, err error) *RejectError {
	sentinel := sentinels[reason]
	if err == nil {
		err = sentinel
	} else if !errors.Is(err, sentinel) {
		err = errors.Wrap(sentinel, err.Error())
	}
	return &RejectError{Reason: reason, Order: order, Err: err}
}
