package common

import (
	"github.com/quickfixgo/enum"
)

func MapToFixSide(side Side) enum.Side {
	switch side {
	case Buy:
		return enum.Side_BUY
	case Sell:
		return enum.Side_SELL
	}
	panic("unsupported side " + side)
}

func MapToFixOrdStatus(state OrderState) enum.OrdStatus {
	switch state {
	case Requested, Quoted, Validated:
		return enum.OrdStatus_PENDING_NEW
	case Executed:
		return enum.OrdStatus_FILLED
	case Rejected:
		return enum.OrdStatus_REJECTED
	}
	panic("unknown OrderState " + state)
}

func MapToFixExecType(state OrderState) enum.ExecType {
	switch state {
	case Executed:
		return enum.ExecType_TRADE
	case Rejected:
		return enum.ExecType_REJECTED
	}
	return enum.ExecType_PENDING_NEW
}

func MapToFixPutOrCall(kind OptionKind) enum.PutOrCall {
	if kind == Put {
		return enum.PutOrCall_PUT
	}
	return enum.PutOrCall_CALL
}

func MapToFixOrdType(order *Order) enum.OrdType {
	if order.LimitPrice.Valid {
		return enum.OrdType_LIMIT
	}
	return enum.OrdType_MARKET
}

func MapToFixOrdRejReason(reason RejectReason) enum.OrdRejReason {
	switch reason {
	case InvalidQuantity:
		return enum.OrdRejReason_INCORRECT_QUANTITY
	case UnknownPosition:
		return enum.OrdRejReason_UNKNOWN_ORDER
	}
	return enum.OrdRejReason_OTHER
}

func MapToFixSecurityType(instrument Instrument) enum.SecurityType {
	if IsOption(instrument) {
		return enum.SecurityType_OPTION
	}
	return enum.SecurityType_COMMON_STOCK
}
