package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// contract size scaling, options trade in lots of 100 shares
const (
	OptionMultiplier = 100
	EquityMultiplier = 1
)

const ExpirationLayout = "2006-01-02"

type Expiration struct {
	time.Time
}

func NewExpiration(year int, month time.Month, day int) Expiration {
	return Expiration{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseExpiration(s string) (Expiration, error) {
	t, err := time.Parse(ExpirationLayout, strings.TrimSpace(s))
	if err != nil {
		return Expiration{}, errors.Wrapf(err, "invalid expiration %q", s)
	}
	return Expiration{t}, nil
}

func (e Expiration) String() string {
	return e.Format(ExpirationLayout)
}

// DaysUntil returns the number of calendar days from the date of 'from' until expiration, never negative.
func (e Expiration) DaysUntil(from time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	days := int(e.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

type Instrument interface {
	ID() int64
	Symbol() string
	// Group is the underlying ticker, equities are their own group
	Group() string
	Multiplier() int64
}

type base struct {
	id     int64
	symbol string
	group  string
}

func (b base) ID() int64 {
	return b.id
}
func (b base) Symbol() string {
	return b.symbol
}
func (b base) Group() string {
	return b.group
}
func (b base) String() string {
	return b.symbol
}

type Equity struct {
	base
}

func NewEquity(id int64, symbol string) *Equity {
	return &Equity{base{id, symbol, symbol}}
}

func (e *Equity) String() string {
	return "equity:" + e.symbol
}

func (e *Equity) Multiplier() int64 {
	return EquityMultiplier
}

type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "calls", "c":
		return Call, nil
	case "put", "puts", "p":
		return Put, nil
	}
	return "", errors.Wrapf(InvalidOptionKind, "%q", s)
}

// Title is the display form, Call or Put
func (k OptionKind) Title() string {
	if k == Put {
		return "Put"
	}
	return "Call"
}

// Option is a listed option contract. Once referenced by a quote or position it is never modified.
type Option struct {
	base
	Expires Expiration
	Strike  decimal.Decimal
	Kind    OptionKind
}

func NewOption(id int64, underlying string, expires Expiration, kind OptionKind, strike decimal.Decimal) *Option {
	o := &Option{Expires: expires, Strike: strike, Kind: kind}
	o.base = base{id, OptionSymbol(underlying, expires, kind, strike), underlying}
	return o
}

func (o *Option) Underlying() string {
	return o.group
}

func (o *Option) Multiplier() int64 {
	return OptionMultiplier
}

func (o *Option) StrikeFloat() float64 {
	return ToFloat(o.Strike)
}

func (o *Option) String() string {
	return fmt.Sprintf("option:%s %s %s %s", o.group, o.Expires, o.Kind, o.Strike.StringFixed(2))
}

// OptionSymbol builds an OCC style symbol, e.g. IBM250117C00150000
func OptionSymbol(underlying string, expires Expiration, kind OptionKind, strike decimal.Decimal) string {
	k := "C"
	if kind == Put {
		k = "P"
	}
	thousandths := strike.Mul(decimal.NewFromInt(1000)).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(underlying), expires.Format("060102"), k, thousandths)
}

func IsOption(i Instrument) bool {
	_, ok := i.(*Option)
	return ok
}
