package marketdata

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	. "github.com/robaho/go-optsim/pkg/common"
)

type SortBy string

const (
	ByStrike            SortBy = "strike"
	ByVolume            SortBy = "volume"
	ByOpenInterest      SortBy = "openinterest"
	ByImpliedVolatility SortBy = "impliedvolatility"
	ByLast              SortBy = "last"
)

const DefaultChainLimit = 50

var ErrInvalidSort = errors.New("invalid sort")

func ParseSortBy(s string) (SortBy, error) {
	switch by := SortBy(strings.ToLower(s)); by {
	case ByStrike, ByVolume, ByOpenInterest, ByImpliedVolatility, ByLast:
		return by, nil
	case "oi":
		return ByOpenInterest, nil
	case "iv":
		return ByImpliedVolatility, nil
	}
	return "", errors.Wrapf(ErrInvalidSort, "%q", s)
}

// ChainFilter selects option quotes. Zero values match everything.
type ChainFilter struct {
	Kind      OptionKind
	Expires   Expiration
	MinStrike decimal.NullDecimal
	MaxStrike decimal.NullDecimal
	// SortBy defaults to strike, ascending. The other orders are descending.
	SortBy SortBy
	// Limit defaults to DefaultChainLimit, negative means unlimited
	Limit int
}

func (f ChainFilter) matches(q OptionQuote) bool {
	if f.Kind != "" && q.Kind != f.Kind {
		return false
	}
	if !f.Expires.IsZero() && !q.Expires.Equal(f.Expires.Time) {
		return false
	}
	if f.MinStrike.Valid && q.Strike.LessThan(f.MinStrike.Decimal) {
		return false
	}
	if f.MaxStrike.Valid && q.Strike.GreaterThan(f.MaxStrike.Decimal) {
		return false
	}
	return true
}

// FilterChain returns the matching quotes sorted and truncated per the filter. The input is not modified.
func FilterChain(quotes []OptionQuote, f ChainFilter) []OptionQuote {
	var out []OptionQuote
	for _, q := range quotes {
		if f.matches(q) {
			out = append(out, q)
		}
	}

	// strike then expiration then kind, so every order is deterministic
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Strike.Cmp(out[j].Strike); c != 0 {
			return c < 0
		}
		if c := CmpTime(out[i].Expires.Time, out[j].Expires.Time); c != 0 {
			return c < 0
		}
		return out[i].Kind < out[j].Kind
	})

	var key func(q OptionQuote) float64
	switch f.SortBy {
	case ByVolume:
		key = func(q OptionQuote) float64 { return float64(q.Volume) }
	case ByOpenInterest:
		key = func(q OptionQuote) float64 { return float64(q.OpenInterest) }
	case ByImpliedVolatility:
		key = func(q OptionQuote) float64 { return q.ImpliedVolatility }
	case ByLast:
		key = func(q OptionQuote) float64 { return q.Price.Float() }
	}
	if key != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return nanLow(key(out[i])) > nanLow(key(out[j]))
		})
	}

	limit := f.Limit
	if limit == 0 {
		limit = DefaultChainLimit
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// missing values sort last
func nanLow(v float64) float64 {
	if v != v {
		return -1
	}
	return v
}
