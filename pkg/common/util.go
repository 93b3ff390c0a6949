package common

import (
	"math"
	"strconv"
	"time"

	"github.com/robaho/fixed"
	"github.com/shopspring/decimal"
)

var ZERO = decimal.NewFromFloat(0.0)

func NewDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}
func ParseInt(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func ToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// ToDecimal converts a quoted price to the ledger representation, NaN maps to zero
func ToDecimal(f fixed.Fixed) decimal.Decimal {
	v := f.Float()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ZERO
	}
	return decimal.NewFromFloat(v)
}

func ToFixed(d decimal.Decimal) fixed.Fixed {
	return fixed.NewF(ToFloat(d))
}

func CmpTime(t1 time.Time, t2 time.Time) int {
	if t1.Equal(t2) {
		return 0
	} else if t1.Before(t2) {
		return -1
	} else {
		return 1
	}
}
