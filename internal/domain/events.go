package domain

import "time"

// EventType names a position lifecycle event.
type EventType string

const (
	EventPositionCreated    EventType = "position_created"
	EventPositionDeleted    EventType = "position_deleted"
	EventTransactionAdded   EventType = "transaction_added"
	EventTransactionDeleted EventType = "transaction_deleted"
	EventPhaseChanged       EventType = "phase_changed"
	EventCapitalCompounded  EventType = "capital_compounded"
	EventCapitalReverted    EventType = "capital_reverted"
	EventPositionSettled    EventType = "position_settled"
	EventPositionSplit      EventType = "position_split"
)

// PositionEvent is published after every mutation. Money fields are strings so
// consumers do not lose precision.
type PositionEvent struct {
	Type          EventType `json:"event_type"`
	PositionID    string    `json:"position_id"`
	Ticker        string    `json:"ticker"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Phase         string    `json:"phase"`
	Capital       string    `json:"capital"`
	Quantity      string    `json:"quantity"`
	AveragePrice  string    `json:"average_price"`
	TValue        string    `json:"t_value"`
	Detail        string    `json:"detail,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewPositionEvent captures the current state of p.
func NewPositionEvent(typ EventType, p *Position) PositionEvent {
	return PositionEvent{
		Type:         typ,
		PositionID:   p.ID,
		Ticker:       p.BaseTicker(),
		Phase:        p.Phase.String(),
		Capital:      p.Capital.String(),
		Quantity:     p.Quantity.String(),
		AveragePrice: p.AveragePrice.String(),
		TValue:       TValue(p.AveragePrice, p.Quantity, p.PerTradeAmount).String(),
		Timestamp:    time.Now().UTC(),
	}
}
