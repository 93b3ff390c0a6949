package common

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// InstrumentMap is a fully synchronized registry of known instruments
type InstrumentMap struct {
	sync.RWMutex
	id       int64
	bySymbol map[string]Instrument
	byID     map[int64]Instrument
}

func NewInstrumentMap() *InstrumentMap {
	return &InstrumentMap{bySymbol: make(map[string]Instrument), byID: make(map[int64]Instrument)}
}

func (im *InstrumentMap) GetBySymbol(symbol string) Instrument {
	im.RLock()
	defer im.RUnlock()

	i, ok := im.bySymbol[symbol]
	if !ok {
		return nil
	}
	return i
}
func (im *InstrumentMap) GetByID(id int64) Instrument {
	im.RLock()
	defer im.RUnlock()

	i, ok := im.byID[id]
	if !ok {
		return nil
	}
	return i
}
func (im *InstrumentMap) AllSymbols() []string {
	im.RLock()
	defer im.RUnlock()

	symbols := make([]string, 0, len(im.bySymbol))
	for k := range im.bySymbol {
		symbols = append(symbols, k)
	}
	sort.Strings(symbols)
	return symbols
}

// Options returns the registered option contracts on an underlying, ordered by symbol
func (im *InstrumentMap) Options(underlying string) []*Option {
	im.RLock()
	defer im.RUnlock()

	var options []*Option
	for _, i := range im.bySymbol {
		if o, ok := i.(*Option); ok && o.Underlying() == underlying {
			options = append(options, o)
		}
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Symbol() < options[j].Symbol() })
	return options
}

func (im *InstrumentMap) NextID() int64 {
	return atomic.AddInt64(&im.id, 1)
}

func (im *InstrumentMap) Put(instrument Instrument) {
	im.Lock()
	defer im.Unlock()

	im.bySymbol[instrument.Symbol()] = instrument
	im.byID[instrument.ID()] = instrument
}

// Equity returns the registered equity, creating it if needed
func (im *InstrumentMap) Equity(symbol string) Instrument {
	if i := im.GetBySymbol(symbol); i != nil {
		return i
	}
	e := NewEquity(im.NextID(), symbol)
	im.Put(e)
	return e
}

// Option returns the registered option contract, creating it if needed
func (im *InstrumentMap) Option(underlying string, expires Expiration, kind OptionKind, strike decimal.Decimal) *Option {
	if i, ok := im.GetBySymbol(OptionSymbol(underlying, expires, kind, strike)).(*Option); ok {
		return i
	}
	o := NewOption(im.NextID(), underlying, expires, kind, strike)
	im.Put(o)
	return o
}
