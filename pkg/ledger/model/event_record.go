// Package model holds the GORM row shape the ledger persists, distinct
// from the wire-level ledger.Event the reactor publishes. Grounded on the
// teacher's pkg/oms/model/order_event.go — a flat, column-per-field struct
// with a deterministic composite ID used for insert-or-ignore dedup.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventRecord is one persisted row in the ledger_events table.
type EventRecord struct {
	ID         string `gorm:"primaryKey"`
	Kind       string
	StrategyID string
	AccountID  string
	MarketID   string
	Side       string
	Price      decimal.Decimal `gorm:"type:numeric"`
	Amount     decimal.Decimal `gorm:"type:numeric"`
	OrderID    string
	At         time.Time
}

func (EventRecord) TableName() string { return "ledger_events" }

// DedupKey is the Redis-set key used to suppress at-least-once NATS
// redelivery before it ever reaches Postgres (spec.md §8 Scenario G). An
// event's ID is assigned once, at publish time, and travels unchanged
// through every JetStream redelivery of that same message, so it is a
// valid dedup identity on its own.
func DedupKey(eventID string) string {
	return fmt.Sprintf("ledger:dedup:%s", eventID)
}
