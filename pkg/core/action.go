package core

import "github.com/shopspring/decimal"

// ActionKind is the instruction an Action carries (spec.md §4.3/§4.4).
type ActionKind string

const (
	ActionCreate  ActionKind = "order_create"
	ActionCancel  ActionKind = "order_cancel"
	ActionStop    ActionKind = "order_stop"
	ActionStopAll ActionKind = "order_stop_all"
)

// Action is one instruction the scheduler or a strategy hands to the
// executor. It is the shared currency between pkg/scheduler (which produces
// it while diffing a book) and pkg/executor (which dispatches it), kept in
// pkg/core so neither package has to import the other.
type Action struct {
	Kind ActionKind

	MarketID   MarketID
	StrategyID StrategyID

	Side   Side
	Price  decimal.Decimal
	Amount decimal.Decimal
	Type   OrderType

	// OrderID identifies the resting order an OrderCancel targets.
	OrderID string
}
