package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventKind names what happened at the machine.
type EventKind string

const (
	EventCoinAccepted     EventKind = "coin_accepted"
	EventCoinRejected     EventKind = "coin_rejected"
	EventGumballDispensed EventKind = "gumball_dispensed"
	EventDispenseRefused  EventKind = "dispense_refused"
	EventChangeReturned   EventKind = "change_returned"
)

// Event is one line of the sales ledger.
type Event struct {
	ID        int64     `json:"id"` // Database ID, zero until recorded
	UUID      string    `json:"uuid"`
	Kind      EventKind `json:"kind"`
	Item      string    `json:"item,omitempty"` // Coin name or gumball color
	Amount    Cents     `json:"amount"`
	Balance   Cents     `json:"balance"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var ErrInvalidEventKind = errors.New("invalid event kind")

// IsValid returns true if the kind is one of the known ledger kinds.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCoinAccepted, EventCoinRejected, EventGumballDispensed, EventDispenseRefused, EventChangeReturned:
		return true
	default:
		return false
	}
}

func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return ErrInvalidEventKind
	}
	if e.Amount < 0 || e.Balance < 0 {
		return errors.New("negative amount in event")
	}
	return nil
}

func newEvent(kind EventKind, item string, amount, balance Cents, reason string) Event {
	return Event{
		UUID:      uuid.NewString(),
		Kind:      kind,
		Item:      item,
		Amount:    amount,
		Balance:   balance,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// Event converts the coin outcome into a ledger event.
func (r CoinResult) Event() Event {
	if r.Accepted {
		return newEvent(EventCoinAccepted, r.Coin, r.Value, r.Balance, "")
	}
	return newEvent(EventCoinRejected, r.Coin, 0, r.Balance, r.Reason)
}

// Event converts the dispense outcome into a ledger event.
func (r DispenseResult) Event() Event {
	if r.Dispensed {
		return newEvent(EventGumballDispensed, r.Color, r.Price, r.Balance, "")
	}
	return newEvent(EventDispenseRefused, r.Color, 0, r.Balance, r.Reason)
}

// Event converts the change outcome into a ledger event.
func (r ChangeResult) Event() Event {
	return newEvent(EventChangeReturned, "", r.Returned, r.Balance, "")
}
