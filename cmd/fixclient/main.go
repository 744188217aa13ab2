// Command fixclient is a minimal FIX 4.4 initiator demo: it logs on to
// the reference simulated venue (cmd/fixserver) and sends one crossing
// buy/sell pair on BTC-USD, grounded on the teacher's cmd/fixclient/main.go
// (InitiatorApp, sendMessageMatchLimit, ParseSettings/NewInitiator
// bring-up), retargeted from the teacher's ad hoc "ABC" symbol/account
// numbers onto this module's MarketID convention.
package main

import (
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/field"
	fix44nos "github.com/quickfixgo/fix44/newordersingle"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/shopspring/decimal"
)

type initiatorApp struct {
	sessionID *quickfix.SessionID
}

func (a *initiatorApp) OnCreate(sessionID quickfix.SessionID) {
	a.sessionID = &sessionID
}

func (a *initiatorApp) OnLogon(sessionID quickfix.SessionID) {
	log.Println("logon success", sessionID)
	sendCrossingPair(sessionID)
}

func (a *initiatorApp) OnLogout(sessionID quickfix.SessionID)                       {}
func (a *initiatorApp) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID)  {}
func (a *initiatorApp) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (a *initiatorApp) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}
func (a *initiatorApp) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	log.Println("execution report:", msg)
	return nil
}

// sendCrossingPair sends a resting sell followed by a crossing buy, the
// same two-message demo the teacher's sendMessageMatchLimit sent, so the
// venue's matching engine produces a visible fill.
func sendCrossingPair(sessionID quickfix.SessionID) {
	sell := fix44nos.New(
		field.NewClOrdID(randSeq(17)),
		field.NewSide(enum.Side_SELL),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	sell.SetSymbol("BTC-USD")
	sell.SetPrice(decimal.NewFromInt(50000), 2)
	sell.SetOrderQty(decimal.NewFromFloat(0.5), 8)
	sell.SetSenderCompID(sessionID.SenderCompID)
	sell.SetTargetCompID(sessionID.TargetCompID)
	if err := quickfix.Send(sell); err != nil {
		log.Println("send sell:", err)
	}

	buy := fix44nos.New(
		field.NewClOrdID(randSeq(17)),
		field.NewSide(enum.Side_BUY),
		field.NewTransactTime(time.Now()),
		field.NewOrdType(enum.OrdType_LIMIT))
	buy.SetSymbol("BTC-USD")
	buy.SetPrice(decimal.NewFromInt(50100), 2)
	buy.SetOrderQty(decimal.NewFromFloat(0.5), 8)
	buy.SetSenderCompID(sessionID.SenderCompID)
	buy.SetTargetCompID(sessionID.TargetCompID)
	if err := quickfix.Send(buy); err != nil {
		log.Println("send buy:", err)
	}
}

func main() {
	cfgPath := "./config/fixclient.cfg"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	log.Println("cfgPath:", cfgPath)

	app := &initiatorApp{}

	cfg, err := os.Open(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	defer cfg.Close()

	settings, err := quickfix.ParseSettings(cfg)
	if err != nil {
		log.Fatal(err)
	}

	storeFactory := quickfix.NewMemoryStoreFactory()
	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		log.Fatal(err)
	}
	initiator, err := quickfix.NewInitiator(app, storeFactory, settings, logFactory)
	if err != nil {
		log.Fatal(err)
	}
	if err := initiator.Start(); err != nil {
		log.Fatal(err)
	}
	log.Println("initiator started...")
	select {}
}

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func randSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
