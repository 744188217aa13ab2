package simexchange

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/fix44/ordercancelreplacerequest"
	"github.com/quickfixgo/fix44/ordercancelrequest"
	"github.com/quickfixgo/quickfix"
	logfile "github.com/quickfixgo/quickfix/log/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/orderflow-labs/mmcore/pkg/logging"
)

// FixBridge exposes a Venue over a real QuickFIX/Go acceptor session, so
// integration tests and local demos can drive the scheduler/executor/
// reactor stack against something that actually speaks FIX 4.4 on the wire
// (spec.md §6's "FIX simulated venue"). Routing and the NewOrderSingle ->
// domain-order translation are grounded on the teacher's
// pkg/oms/fix/application.go (MessageRouter + per-message-type handlers);
// execution report construction is grounded on pkg/oms/fix/message.go's
// orderReportToExecutionReport.
type FixBridge struct {
	*quickfix.MessageRouter

	venue *Venue
	log   *logging.Logger

	// clOrdToOrderID maps a client order ID to the venue-assigned order ID,
	// needed because OrderCancelRequest/Replace reference OrigClOrdID, not
	// the venue's own ID (mirrors the teacher's requestMapping sync.Map).
	clOrdToOrderID sync.Map

	acceptor *quickfix.Acceptor
}

// NewFixBridge builds a FixBridge over venue. Call Start to bring up the
// acceptor from a QuickFIX settings file.
func NewFixBridge(venue *Venue, log *logging.Logger) *FixBridge {
	b := &FixBridge{
		MessageRouter: quickfix.NewMessageRouter(),
		venue:         venue,
		log:           log,
	}
	b.AddRoute(newordersingle.Route(b.onNewOrderSingle))
	b.AddRoute(ordercancelrequest.Route(b.onOrderCancelRequest))
	b.AddRoute(ordercancelreplacerequest.Route(b.onOrderCancelReplaceRequest))
	return b
}

// Start parses a QuickFIX settings file and brings up the acceptor.
func (b *FixBridge) Start(settingsFilepath string) error {
	f, err := os.Open(settingsFilepath)
	if err != nil {
		return fmt.Errorf("simexchange: open settings: %w", err)
	}
	defer f.Close()

	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		return fmt.Errorf("simexchange: parse settings: %w", err)
	}

	logFactory, err := logfile.NewLogFactory(settings)
	if err != nil {
		return fmt.Errorf("simexchange: log factory: %w", err)
	}

	acceptor, err := quickfix.NewAcceptor(b, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return fmt.Errorf("simexchange: new acceptor: %w", err)
	}
	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("simexchange: start acceptor: %w", err)
	}
	b.acceptor = acceptor
	return nil
}

// Stop tears down the acceptor.
func (b *FixBridge) Stop() {
	if b.acceptor != nil {
		b.acceptor.Stop()
	}
}

func (b *FixBridge) OnCreate(sessionID quickfix.SessionID)  {}
func (b *FixBridge) OnLogon(sessionID quickfix.SessionID)   {}
func (b *FixBridge) OnLogout(sessionID quickfix.SessionID)  {}
func (b *FixBridge) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (b *FixBridge) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (b *FixBridge) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp routes incoming application messages by type.
func (b *FixBridge) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return b.Route(msg, sessionID)
}

var sideFromFix = map[enum.Side]core.Side{
	enum.Side_BUY:  core.Buy,
	enum.Side_SELL: core.Sell,
}

var ordTypeFromFix = map[enum.OrdType]core.OrderType{
	enum.OrdType_LIMIT:  core.Limit,
	enum.OrdType_MARKET: core.Market,
}

var sideToFix = map[core.Side]enum.Side{
	core.Buy:  enum.Side_BUY,
	core.Sell: enum.Side_SELL,
}

func (b *FixBridge) onNewOrderSingle(msg newordersingle.NewOrderSingle, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, _ := msg.GetClOrdID()
	symbol, _ := msg.GetSymbol()
	side, _ := msg.GetSide()
	ordType, _ := msg.GetOrdType()
	price, _ := msg.GetPrice()
	orderQty, _ := msg.GetOrderQty()

	order := core.Order{
		MarketID: core.MarketID(symbol),
		Side:     sideFromFix[side],
		Type:     ordTypeFromFix[ordType],
		Price:    price,
		Amount:   orderQty,
	}

	orderID, fills, err := b.venue.PlaceOrder(order)
	if err != nil {
		b.logError("place order from FIX failed", err)
		b.sendExecutionReport(sessionID, execReportInput{
			order: order, clOrdID: clOrdID, orderID: orderID,
			status: enum.OrdStatus_REJECTED, execType: enum.ExecType_REJECTED,
		})
		return nil
	}

	b.clOrdToOrderID.Store(clOrdID, orderID)

	status, execType := enum.OrdStatus_NEW, enum.ExecType_NEW
	var leaves = order.Amount
	for _, f := range fills {
		leaves = leaves.Sub(f.Amount)
	}
	if leaves.IsZero() {
		status, execType = enum.OrdStatus_FILLED, enum.ExecType_TRADE
	} else if leaves.LessThan(order.Amount) {
		status, execType = enum.OrdStatus_PARTIALLY_FILLED, enum.ExecType_TRADE
	}

	b.sendExecutionReport(sessionID, execReportInput{
		order: order, clOrdID: clOrdID, orderID: orderID,
		status: status, execType: execType, leavesQty: leaves, cumQty: order.Amount.Sub(leaves),
	})
	return nil
}

func (b *FixBridge) onOrderCancelRequest(msg ordercancelrequest.OrderCancelRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	clOrdID, _ := msg.GetClOrdID()
	origClOrdID, _ := msg.GetOrigClOrdID()
	symbol, _ := msg.GetSymbol()
	side, _ := msg.GetSide()

	orderIDRaw, ok := b.clOrdToOrderID.Load(origClOrdID)
	if !ok {
		b.sendExecutionReport(sessionID, execReportInput{
			order:   core.Order{MarketID: core.MarketID(symbol), Side: sideFromFix[side]},
			clOrdID: clOrdID, status: enum.OrdStatus_REJECTED, execType: enum.ExecType_REJECTED,
		})
		return nil
	}
	orderID := orderIDRaw.(string)

	if err := b.venue.CancelOrder(core.MarketID(symbol), orderID); err != nil {
		b.logError("cancel order from FIX failed", err)
	}
	b.clOrdToOrderID.Store(clOrdID, orderID)

	b.sendExecutionReport(sessionID, execReportInput{
		order:   core.Order{MarketID: core.MarketID(symbol), Side: sideFromFix[side]},
		clOrdID: clOrdID, orderID: orderID,
		status: enum.OrdStatus_CANCELED, execType: enum.ExecType_CANCELED,
	})
	return nil
}

// onOrderCancelReplaceRequest is not supported by the reference venue:
// callers needing a price/amount change are expected to cancel and re-send,
// same as the executor's own compare-and-cancel planning (spec.md §5).
func (b *FixBridge) onOrderCancelReplaceRequest(msg ordercancelreplacerequest.OrderCancelReplaceRequest, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

type execReportInput struct {
	order     core.Order
	clOrdID   string
	orderID   string
	status    enum.OrdStatus
	execType  enum.ExecType
	leavesQty decimal.Decimal
	cumQty    decimal.Decimal
}

func (b *FixBridge) sendExecutionReport(sessionID quickfix.SessionID, in execReportInput) {
	msg := executionreport.New(
		field.NewOrderID(in.orderID),
		field.NewExecID(fmt.Sprintf("exec-%s-%d", in.orderID, time.Now().UnixNano())),
		field.NewExecType(in.execType),
		field.NewOrdStatus(in.status),
		field.NewSymbol(string(in.order.MarketID)),
		field.NewSide(sideToFix[in.order.Side]),
		field.NewLeavesQty(in.leavesQty, 8),
		field.NewCumQty(in.cumQty, 8),
		field.NewAvgPx(in.order.Price, 8),
	)
	msg.SetClOrdID(in.clOrdID)
	msg.SetOrderQty(in.order.Amount, 8)
	msg.SetPrice(in.order.Price, 8)
	msg.SetTransactTime(time.Now())

	if err := quickfix.SendToTarget(msg, sessionID); err != nil {
		b.logError("send execution report failed", err)
	}
}

func (b *FixBridge) logError(msg string, err error) {
	if b.log == nil {
		return
	}
	b.log.Error(context.Background(), msg, zap.Error(err))
}
