// Package portfolio holds the purchased positions and the cash balance that pays for them.
package portfolio

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	. "github.com/robaho/go-optsim/pkg/common"
)

var ErrInsufficientFunds = errors.New("insufficient funds")
var ErrUnknownPosition = errors.New("unknown position")
var ErrInvalidPosition = errors.New("invalid position")
var ErrIndexOutOfRange = errors.New("position index out of range")

type Position struct {
	ID string
	Instrument
	Quantity int64
	// Price is the acquisition price per share, the option premium for contracts
	Price decimal.Decimal
	// LimitPrice is the limit requested at order time, if any
	LimitPrice decimal.NullDecimal
	Acquired   time.Time
}

// Cost is the cash paid to acquire the position
func (p Position) Cost() decimal.Decimal {
	return Notional(p.Quantity, p.Multiplier(), p.Price)
}

func (p Position) String() string {
	return p.Instrument.Symbol() + " " + strconv.FormatInt(p.Quantity, 10) + "@" + p.Price.StringFixed(2) + " " + p.Acquired.Format(ExpirationLayout)
}

func (p Position) validate() error {
	if p.Instrument == nil {
		return errors.Wrap(ErrInvalidPosition, "no instrument")
	}
	if p.Quantity <= 0 {
		return errors.Wrapf(ErrInvalidPosition, "quantity %d", p.Quantity)
	}
	if !p.Price.IsPositive() {
		return errors.Wrapf(ErrInvalidPosition, "price %s", p.Price)
	}
	return nil
}

// Snapshot is a consistent copy of the portfolio for display
type Snapshot struct {
	Positions []Position
	Cash      decimal.Decimal
	// TotalQuantity is the number of contracts and shares across all positions
	TotalQuantity int64
}

// Store is the ordered sequence of positions, in insertion order, and the cash balance. The two are
// only ever changed together under the store lock, so a debit is never visible without its position.
type Store struct {
	sync.Mutex
	cash      decimal.Decimal
	positions []Position
	log       *zap.Logger
}

func NewStore(cash decimal.Decimal, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if cash.IsNegative() {
		cash = ZERO
	}
	return &Store{cash: cash, log: log}
}

// Open debits the position cost and appends the position, or fails with ErrInsufficientFunds leaving the store unchanged.
// The funds check and the commit happen under one lock, so concurrent opens can never overdraw.
func (s *Store) Open(p Position) (Position, error) {
	if err := p.validate(); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Acquired.IsZero() {
		p.Acquired = time.Now()
	}
	cost := p.Cost()

	s.Lock()
	defer s.Unlock()

	if cost.GreaterThan(s.cash) {
		return p, errors.Wrapf(ErrInsufficientFunds, "cost %s exceeds cash %s", cost.StringFixed(2), s.cash.StringFixed(2))
	}
	s.cash = s.cash.Sub(cost)
	s.positions = append(s.positions, p)

	s.log.Debug("position opened", zap.String("id", p.ID), zap.Stringer("position", p), zap.String("cash", s.cash.StringFixed(2)))
	return p, nil
}

// Close credits the proceeds and removes the position with the given id
func (s *Store) Close(id string, proceeds decimal.Decimal) (Position, error) {
	if proceeds.IsNegative() {
		return Position{}, errors.Wrapf(ErrInvalidPosition, "proceeds %s", proceeds)
	}

	s.Lock()
	defer s.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Position{}, errors.Wrapf(ErrUnknownPosition, "id %s", id)
	}
	p := s.positions[i]
	s.cash = s.cash.Add(proceeds)
	s.positions = append(s.positions[:i], s.positions[i+1:]...)

	s.log.Debug("position closed", zap.String("id", p.ID), zap.String("proceeds", proceeds.StringFixed(2)), zap.String("cash", s.cash.StringFixed(2)))
	return p, nil
}

// Add appends a position without touching the cash balance
func (s *Store) Add(p Position) (Position, error) {
	if err := p.validate(); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	s.Lock()
	defer s.Unlock()

	s.positions = append(s.positions, p)
	return p, nil
}

// RemoveAt removes the positions at the given display indices, all of which refer to the sequence before
// the call. Out of range indices are skipped and reported as ErrIndexOutOfRange after the valid ones are
// removed. Cash is unchanged.
func (s *Store) RemoveAt(indices ...int) (int, error) {
	s.Lock()
	defer s.Unlock()

	var valid, skipped []int
	for _, i := range indices {
		if i < 0 || i >= len(s.positions) {
			skipped = append(skipped, i)
			continue
		}
		valid = append(valid, i)
	}

	// descending, so the lower indices stay valid as the higher ones are removed
	sort.Sort(sort.Reverse(sort.IntSlice(valid)))

	removed := 0
	for n, i := range valid {
		if n > 0 && valid[n-1] == i {
			continue
		}
		s.positions = append(s.positions[:i], s.positions[i+1:]...)
		removed++
	}

	if len(skipped) > 0 {
		s.log.Debug("skipped position indices", zap.Ints("indices", skipped), zap.Int("removed", removed))
		return removed, errors.Wrapf(ErrIndexOutOfRange, "indices %v", skipped)
	}
	return removed, nil
}

// Clear drops all positions. Cash is a separate resource and is not changed.
func (s *Store) Clear() {
	s.Lock()
	defer s.Unlock()
	s.positions = nil
}

func (s *Store) Cash() decimal.Decimal {
	s.Lock()
	defer s.Unlock()
	return s.cash
}

func (s *Store) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.positions)
}

func (s *Store) Get(id string) (Position, bool) {
	s.Lock()
	defer s.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return Position{}, false
	}
	return s.positions[i], true
}

func (s *Store) Snapshot() Snapshot {
	s.Lock()
	defer s.Unlock()

	snap := Snapshot{Positions: make([]Position, len(s.positions)), Cash: s.cash}
	copy(snap.Positions, s.positions)
	for _, p := range s.positions {
		snap.TotalQuantity += p.Quantity
	}
	return snap
}

func (s *Store) indexOf(id string) int {
	for i, p := range s.positions {
		if p.ID == id {
			return i
		}
	}
	return -1
}
