// Package report journals terminal orders as FIX 4.4 execution reports, one per line, as a drop copy
// of the simulated order flow.
package report

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/quickfix"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	. "github.com/robaho/go-optsim/pkg/common"
)

var ErrNotTerminal = errors.New("order is not executed or rejected")

// Journal is safe for concurrent use
type Journal struct {
	sync.Mutex
	w      io.Writer
	closer io.Closer
	count  int
	log    *zap.Logger
}

func NewJournal(w io.Writer, log *zap.Logger) *Journal {
	if log == nil {
		log = zap.NewNop()
	}
	return &Journal{w: w, log: log}
}

// OpenJournal appends to the file at path, creating it if needed
func OpenJournal(path string, log *zap.Logger) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open journal")
	}
	j := NewJournal(f, log)
	j.closer = f
	return j, nil
}

// Record writes the execution report for an executed or rejected order, text is optional
func (j *Journal) Record(order *Order, text string) error {
	if order.IsActive() {
		return errors.Wrapf(ErrNotTerminal, "order %s", order.Id)
	}
	msg := ExecutionReport(order, uuid.NewString(), text)
	line := strings.ReplaceAll(msg.ToMessage().String(), "\x01", "|") + "\n"

	j.Lock()
	defer j.Unlock()

	if _, err := io.WriteString(j.w, line); err != nil {
		j.log.Warn("unable to journal order", zap.Stringer("order", order), zap.Error(err))
		return errors.Wrap(err, "unable to write execution report")
	}
	j.count++
	return nil
}

func (j *Journal) Count() int {
	j.Lock()
	defer j.Unlock()
	return j.count
}

func (j *Journal) Close() error {
	j.Lock()
	defer j.Unlock()
	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	return err
}

// ExecutionReport builds the FIX message for the order's current state
func ExecutionReport(order *Order, execID string, text string) executionreport.ExecutionReport {
	qty := decimal.NewFromInt(order.Quantity)
	cumQty := ZERO
	avgPx := ZERO
	if order.OrderState == Executed {
		cumQty = qty
		avgPx = order.Price
	}
	leaves := ZERO
	if order.IsActive() {
		leaves = qty
	}

	msg := executionreport.New(field.NewOrderID(order.Id.String()),
		field.NewExecID(execID),
		field.NewExecType(MapToFixExecType(order.OrderState)),
		field.NewOrdStatus(MapToFixOrdStatus(order.OrderState)),
		field.NewSide(MapToFixSide(order.Side)),
		field.NewLeavesQty(leaves, 4),
		field.NewCumQty(cumQty, 4),
		field.NewAvgPx(avgPx, 4))
	msg.SetClOrdID(order.Id.String())
	msg.SetSymbol(order.Instrument.Symbol())
	msg.SetSecurityType(MapToFixSecurityType(order.Instrument))
	msg.SetOrdType(MapToFixOrdType(order))
	msg.SetOrderQty(qty, 4)
	if order.LimitPrice.Valid {
		msg.SetPrice(order.LimitPrice.Decimal, 4)
	}
	if o, ok := order.Instrument.(*Option); ok {
		msg.Body.Set(field.NewPutOrCall(MapToFixPutOrCall(o.Kind)))
		msg.SetStrikePrice(o.Strike, 4)
		msg.SetMaturityDate(o.Expires.Format("20060102"))
	}

	switch order.OrderState {
	case Executed:
		msg.SetLastPx(order.Price, 4)
		msg.SetLastQty(qty, 4)
		msg.SetTransactTime(order.Executed)
	case Rejected:
		msg.SetOrdRejReason(MapToFixOrdRejReason(order.RejectReason))
		msg.SetTransactTime(time.Now())
		if text == "" {
			text = string(order.RejectReason)
		}
	}
	if text != "" {
		msg.SetText(text)
	}
	return msg
}

// Read parses a journal back into execution reports
func Read(r io.Reader) ([]executionreport.ExecutionReport, error) {
	var reports []executionreport.ExecutionReport
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg := quickfix.NewMessage()
		raw := bytes.NewBufferString(strings.ReplaceAll(line, "|", "\x01"))
		if err := quickfix.ParseMessage(msg, raw); err != nil {
			return reports, errors.Wrapf(err, "line %d", lineno)
		}
		reports = append(reports, executionreport.FromMessage(msg))
	}
	return reports, scanner.Err()
}
