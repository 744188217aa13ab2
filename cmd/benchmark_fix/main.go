// Command benchmark_fix load-tests the reference venue's FIX 4.4 acceptor
// (cmd/fixserver) by firing waves of NewOrderSingle messages and
// measuring throughput. Grounded on the teacher's
// cmd/benchmark_fix/main.go's ticker-driven load loop
// (sendMessageMatchLimitSoftly) and InitiatorApp/ParseSettings/
// NewInitiator bring-up, trimmed from the teacher's many commented-out
// amend/cancel/fix42 variants down to the one load pattern this module's
// FixBridge actually routes (NewOrderSingle on FIX 4.4 — see the dropped
// fix42 dependency note in DESIGN.md).
package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
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
	log.Println("logon success")
	go sendWave(sessionID)
}

func (a *initiatorApp) OnLogout(sessionID quickfix.SessionID)                      {}
func (a *initiatorApp) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {}
func (a *initiatorApp) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}
func (a *initiatorApp) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}
func (a *initiatorApp) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

const ordersPerWave = 500

// sendWave fires ordersPerWave randomized NewOrderSingle messages and
// reports the elapsed send time, the same shape as the teacher's
// sendMessageMatchLimitSoftly but against this module's BTC-USD market
// instead of "HCM".
func sendWave(sessionID quickfix.SessionID) {
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(ordersPerWave)
	for i := 0; i < ordersPerWave; i++ {
		go func(i int) {
			defer wg.Done()
			side := enum.Side_BUY
			if i%2 == 0 {
				side = enum.Side_SELL
			}
			price := decimal.NewFromInt(50000 + int64(rand.Intn(200)-100))

			order := fix44nos.New(
				field.NewClOrdID(randSeq(17)),
				field.NewSide(side),
				field.NewTransactTime(time.Now()),
				field.NewOrdType(enum.OrdType_LIMIT))
			order.SetSymbol("BTC-USD")
			order.SetPrice(price, 2)
			order.SetOrderQty(decimal.NewFromFloat(0.01), 8)
			order.SetSenderCompID(sessionID.SenderCompID)
			order.SetTargetCompID(sessionID.TargetCompID)

			if err := quickfix.Send(order); err != nil {
				log.Println("send:", err)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Printf("sent %d orders in %s (%.2f orders/sec)\n", ordersPerWave, elapsed, float64(ordersPerWave)/elapsed.Seconds())
}

func main() {
	cfgPath := "./config/fixclient.cfg"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

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
