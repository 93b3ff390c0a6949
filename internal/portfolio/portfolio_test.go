package portfolio

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/robaho/go-optsim/pkg/common"
)

var ibmCall = NewOption(1, "IBM", NewExpiration(2025, time.January, 17), Call, NewDecimal("150"))
var ibm = NewEquity(2, "IBM")

func position(inst Instrument, qty int64, price string) Position {
	return Position{Instrument: inst, Quantity: qty, Price: NewDecimal(price)}
}

func TestOpenDebitsCost(t *testing.T) {
	s := NewStore(NewDecimal("100000"), nil)

	p, err := s.Open(position(ibmCall, 10, "2.50"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.Acquired.IsZero())
	assert.True(t, p.Cost().Equal(NewDecimal("2500")))
	assert.True(t, s.Cash().Equal(NewDecimal("97500")), s.Cash().String())

	_, err = s.Open(position(ibm, 3, "141.25"))
	require.NoError(t, err)
	assert.True(t, s.Cash().Equal(NewDecimal("97076.25")), s.Cash().String())
	assert.Equal(t, 2, s.Len())
}

func TestOpenInsufficientFunds(t *testing.T) {
	s := NewStore(NewDecimal("1000"), nil)

	_, err := s.Open(position(ibmCall, 5, "2.01"))
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.True(t, s.Cash().Equal(NewDecimal("1000")))
	assert.Equal(t, 0, s.Len())

	// exactly the balance is allowed
	_, err = s.Open(position(ibmCall, 5, "2.00"))
	require.NoError(t, err)
	assert.True(t, s.Cash().IsZero())
}

func TestOpenInvalid(t *testing.T) {
	s := NewStore(NewDecimal("1000"), nil)
	for _, p := range []Position{
		{Quantity: 1, Price: NewDecimal("1")},
		position(ibm, 0, "1"),
		position(ibm, -1, "1"),
		position(ibm, 1, "0"),
	} {
		_, err := s.Open(p)
		assert.True(t, errors.Is(err, ErrInvalidPosition))
	}
	assert.True(t, s.Cash().Equal(NewDecimal("1000")))
}

func TestConcurrentOpensNeverOverdraw(t *testing.T) {
	s := NewStore(NewDecimal("10000"), nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	opened := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Open(position(ibmCall, 1, "3.00")); err == nil {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, opened)
	assert.Equal(t, 33, s.Len())
	assert.True(t, s.Cash().Equal(NewDecimal("100")), s.Cash().String())
}

func TestClose(t *testing.T) {
	s := NewStore(NewDecimal("10000"), nil)
	p, err := s.Open(position(ibmCall, 2, "5"))
	require.NoError(t, err)

	closed, err := s.Close(p.ID, NewDecimal("1500"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, closed.ID)
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Cash().Equal(NewDecimal("10500")))

	_, err = s.Close(p.ID, NewDecimal("1500"))
	assert.True(t, errors.Is(err, ErrUnknownPosition))
	assert.True(t, s.Cash().Equal(NewDecimal("10500")))
}

func TestRemoveAt(t *testing.T) {
	for _, indices := range [][]int{{0, 2}, {2, 0}, {0, 2, 2}} {
		s := NewStore(NewDecimal("10000"), nil)
		var ids []string
		for i := 0; i < 3; i++ {
			p, err := s.Add(position(ibm, int64(i+1), "10"))
			require.NoError(t, err)
			ids = append(ids, p.ID)
		}

		n, err := s.RemoveAt(indices...)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		snap := s.Snapshot()
		require.Len(t, snap.Positions, 1)
		assert.Equal(t, ids[1], snap.Positions[0].ID)
		assert.True(t, snap.Cash.Equal(NewDecimal("10000")))
	}
}

func TestRemoveAtOutOfRange(t *testing.T) {
	s := NewStore(NewDecimal("10000"), nil)
	var ids []string
	for i := 0; i < 2; i++ {
		p, err := s.Add(position(ibm, int64(i+1), "10"))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	// the valid index is still removed
	n, err := s.RemoveAt(0, 5)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	assert.Equal(t, 1, n)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, ids[1], s.Snapshot().Positions[0].ID)

	n, err = s.RemoveAt(-1)
	assert.True(t, errors.Is(err, ErrIndexOutOfRange))
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.Len())
}

func TestClearKeepsCash(t *testing.T) {
	s := NewStore(NewDecimal("5000"), nil)
	_, err := s.Open(position(ibmCall, 1, "10"))
	require.NoError(t, err)
	_, err = s.Open(position(ibm, 10, "10"))
	require.NoError(t, err)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Cash().Equal(NewDecimal("3900")))
}

func TestSnapshot(t *testing.T) {
	s := NewStore(decimal.NewFromInt(100000), nil)
	a, err := s.Open(position(ibmCall, 4, "1"))
	require.NoError(t, err)
	_, err = s.Open(position(ibm, 6, "1"))
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, int64(10), snap.TotalQuantity)
	assert.Equal(t, a.ID, snap.Positions[0].ID)

	// the snapshot is a copy
	snap.Positions[0].Quantity = 99
	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.Quantity)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestNegativeInitialCash(t *testing.T) {
	s := NewStore(NewDecimal("-5"), nil)
	assert.True(t, s.Cash().IsZero())
}
