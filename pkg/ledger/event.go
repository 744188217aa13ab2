// Package ledger is the durable, best-effort audit trail of scheduler
// actions and order-back hedges (spec.md §1 item 6): not a trade history,
// an operational journal of what the engine itself did. Grounded on the
// teacher's cmd/benchmark_nats for the JetStream publish shape and
// pkg/oms/repo for the GORM/Postgres persistence shape.
package ledger

import (
	"context"
	"time"

	"github.com/orderflow-labs/mmcore/pkg/core"
	"github.com/shopspring/decimal"
)

// Kind enumerates the ledger event types (spec.md §3).
type Kind string

const (
	KindActionDispatched Kind = "action_dispatched"
	KindActionFailed     Kind = "action_failed"
	KindHedgeEmitted     Kind = "hedge_emitted"
)

// Event is `{ID, Kind, StrategyID, AccountID, MarketID, Side, Price,
// Amount, OrderID?, At}` (spec.md §3) — the unit of work the ledger
// worker persists.
type Event struct {
	ID         string
	Kind       Kind
	StrategyID core.StrategyID
	AccountID  core.AccountID
	MarketID   core.MarketID
	Side       core.Side
	Price      decimal.Decimal
	Amount     decimal.Decimal
	OrderID    string
	At         time.Time
}

// Publisher fire-and-forget publishes a ledger event. Publish failures are
// logged by the caller and never block the reactor's hot path (spec.md
// §3). The production implementation is NATSPublisher.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards every event. Used when no NATS connection is
// configured, so callers never need a nil check.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
