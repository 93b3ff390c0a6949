// Package marketdata provides quotes from a quotes file or an in-memory table, and option chain filtering.
package marketdata

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robaho/fixed"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	. "github.com/robaho/go-optsim/pkg/common"
)

var ErrMalformedQuote = errors.New("malformed quote")

type optionKey struct {
	underlying string
	kind       OptionKind
	strike     string
	expires    string
}

func newOptionKey(underlying string, kind OptionKind, strike decimal.Decimal, expires Expiration) optionKey {
	return optionKey{underlying: strings.ToUpper(underlying), kind: kind, strike: strike.String(), expires: expires.String()}
}

// Static is a MarketDataProvider over a fixed set of quotes. A quote that is not present is reported
// with a zero price, which callers treat as unavailable.
type Static struct {
	sync.RWMutex
	instruments *InstrumentMap
	stocks      map[string]StockQuote
	options     map[optionKey]OptionQuote
	log         *zap.Logger
}

func NewStatic(instruments *InstrumentMap, log *zap.Logger) *Static {
	if instruments == nil {
		instruments = NewInstrumentMap()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Static{
		instruments: instruments,
		stocks:      make(map[string]StockQuote),
		options:     make(map[optionKey]OptionQuote),
		log:         log,
	}
}

// LoadStatic reads the quotes file at path
func LoadStatic(path string, instruments *InstrumentMap, log *zap.Logger) (*Static, error) {
	s := NewStatic(instruments, log)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open quotes")
	}
	defer f.Close()

	if err := s.Load(f); err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", path)
	}
	return s, nil
}

func (s *Static) Instruments() *InstrumentMap {
	return s.instruments
}

func (s *Static) PutStock(q StockQuote) {
	q.Symbol = strings.ToUpper(q.Symbol)
	s.instruments.Equity(q.Symbol)

	s.Lock()
	defer s.Unlock()
	s.stocks[q.Symbol] = q
}

func (s *Static) PutOption(q OptionQuote) {
	q.Underlying = strings.ToUpper(q.Underlying)
	o := s.instruments.Option(q.Underlying, q.Expires, q.Kind, q.Strike)
	q.Symbol = o.Symbol()

	s.Lock()
	defer s.Unlock()
	s.options[newOptionKey(q.Underlying, q.Kind, q.Strike, q.Expires)] = q
}

func (s *Static) QuoteStock(ticker string) StockQuote {
	ticker = strings.ToUpper(ticker)

	s.RLock()
	q, ok := s.stocks[ticker]
	s.RUnlock()

	if !ok {
		s.log.Debug("no stock quote", zap.String("ticker", ticker))
		return StockQuote{Symbol: ticker}
	}
	return q
}

func (s *Static) QuoteOption(ticker string, kind OptionKind, strike decimal.Decimal, expires Expiration) OptionQuote {
	key := newOptionKey(ticker, kind, strike, expires)

	s.RLock()
	q, ok := s.options[key]
	s.RUnlock()

	if !ok {
		s.log.Debug("no option quote", zap.String("ticker", key.underlying), zap.String("kind", string(kind)), zap.String("strike", key.strike), zap.String("expires", key.expires))
		return OptionQuote{Symbol: OptionSymbol(key.underlying, expires, kind, strike), Underlying: key.underlying, Kind: kind, Strike: strike, Expires: expires}
	}
	return q
}

// Chain returns every option quote for the underlying, in no particular order
func (s *Static) Chain(underlying string) []OptionQuote {
	underlying = strings.ToUpper(underlying)

	s.RLock()
	defer s.RUnlock()

	var chain []OptionQuote
	for k, q := range s.options {
		if k.underlying == underlying {
			chain = append(chain, q)
		}
	}
	return chain
}

// Load reads quote lines, one per line:
//
//	equity SYMBOL LAST BID ASK VOLUME
//	option UNDERLYING YYYY-MM-DD call|put STRIKE LAST BID ASK VOLUME OPEN_INTEREST [IV [UNDERLYING_PRICE [DELTA GAMMA THETA VEGA]]]
//
// Blank lines and lines starting with # or // are ignored.
func (s *Static) Load(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if err := s.parseLine(strings.Fields(line)); err != nil {
			return errors.Wrapf(err, "line %d", lineno)
		}
	}
	return scanner.Err()
}

func (s *Static) parseLine(parts []string) error {
	switch strings.ToLower(parts[0]) {
	case "equity":
		if len(parts) != 6 {
			return errors.Wrapf(ErrMalformedQuote, "equity needs 5 fields, got %d", len(parts)-1)
		}
		var q StockQuote
		var err error
		q.Symbol = parts[1]
		if q.Price, q.Bid, q.Ask, err = parsePrices(parts[2:5]); err != nil {
			return err
		}
		if q.Volume, err = parseCount(parts[5]); err != nil {
			return err
		}
		s.PutStock(q)
	case "option":
		switch len(parts) {
		case 10, 11, 12, 16:
		default:
			return errors.Wrapf(ErrMalformedQuote, "option needs 9, 10, 11 or 15 fields, got %d", len(parts)-1)
		}
		var q OptionQuote
		var err error
		q.Underlying = parts[1]
		if q.Expires, err = ParseExpiration(parts[2]); err != nil {
			return err
		}
		if q.Kind, err = ParseOptionKind(parts[3]); err != nil {
			return err
		}
		if q.Strike, err = decimal.NewFromString(parts[4]); err != nil || !q.Strike.IsPositive() {
			return errors.Wrapf(ErrMalformedQuote, "strike %q", parts[4])
		}
		if q.Price, q.Bid, q.Ask, err = parsePrices(parts[5:8]); err != nil {
			return err
		}
		if q.Volume, err = parseCount(parts[8]); err != nil {
			return err
		}
		if q.OpenInterest, err = parseCount(parts[9]); err != nil {
			return err
		}
		if len(parts) > 10 {
			if q.ImpliedVolatility, err = parseFloat(parts[10]); err != nil {
				return err
			}
		}
		if len(parts) > 11 {
			f, err := parseFloat(parts[11])
			if err != nil {
				return err
			}
			q.UnderlyingPrice = fixed.NewF(f)
		}
		if len(parts) > 12 {
			var g Greeks
			for i, v := range []*float64{&g.Delta, &g.Gamma, &g.Theta, &g.Vega} {
				if *v, err = parseFloat(parts[12+i]); err != nil {
					return err
				}
			}
			q.Greeks = &g
		}
		s.PutOption(q)
	default:
		return errors.Wrapf(ErrMalformedQuote, "unknown quote type %q", parts[0])
	}
	return nil
}

func parsePrices(fields []string) (last, bid, ask fixed.Fixed, err error) {
	var prices [3]fixed.Fixed
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return last, bid, ask, err
		}
		prices[i] = fixed.NewF(v)
	}
	return prices[0], prices[1], prices[2], nil
}

// parseFloat accepts NaN, used for values the source did not report
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return 0, errors.Wrapf(ErrMalformedQuote, "number %q", s)
	}
	return v, nil
}

func parseCount(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.Wrapf(ErrMalformedQuote, "count %q", s)
	}
	return v, nil
}
