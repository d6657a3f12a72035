package core

import "fmt"

// CoinResult is the outcome of dropping a coin into the slot.
type CoinResult struct {
	Accepted bool   `json:"accepted"`
	Coin     string `json:"coin"`
	Value    Cents  `json:"value,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Balance  Cents  `json:"balance"`

	// Err is set when the coin was rejected. It wraps ErrUnknownCoin or ErrBalanceLimit.
	Err error `json:"-"`
}

// DispenseResult is the outcome of pulling a gumball lever.
type DispenseResult struct {
	Dispensed bool   `json:"dispensed"`
	Color     string `json:"color,omitempty"`
	Price     Cents  `json:"price,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Balance   Cents  `json:"balance"`

	// Err is set when nothing was dispensed. It wraps ErrUnknownProduct or ErrInsufficientFunds.
	Err error `json:"-"`
}

// ChangeResult is the outcome of pulling the return-change lever.
type ChangeResult struct {
	Returned  Cents     `json:"returned"`
	Breakdown Breakdown `json:"breakdown"`
	Remainder Cents     `json:"remainder,omitempty"`
	Balance   Cents     `json:"balance"`
}

// Machine holds the running balance of a gumball machine.
// The zero value is an empty machine ready for use.
//
// A Machine is not safe for concurrent use; callers sharing one must serialize access.
type Machine struct {
	balance Cents
}

// NewMachine returns an empty machine with a zero balance.
func NewMachine() *Machine {
	return &Machine{}
}

// Balance returns the amount currently held by the machine.
func (m *Machine) Balance() Cents {
	return m.balance
}

// AcceptCoin credits a recognized coin to the balance.
// Unrecognized coins are rejected without touching the balance.
func (m *Machine) AcceptCoin(name string) CoinResult {
	coin, ok := ParseCoin(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownCoin, coin)
		return CoinResult{Coin: string(coin), Reason: err.Error(), Balance: m.balance, Err: err}
	}
	value := coin.Value()
	if !m.balance.canAdd(value) {
		return CoinResult{Coin: string(coin), Reason: ErrBalanceLimit.Error(), Balance: m.balance, Err: ErrBalanceLimit}
	}
	m.balance += value
	return CoinResult{
		Accepted: true,
		Coin:     string(coin),
		Value:    value,
		Balance:  m.balance,
	}
}

// Dispense sells one gumball of the named color if the balance covers its price.
// Any surplus stays in the balance.
func (m *Machine) Dispense(name string) DispenseResult {
	product, ok := ParseProduct(name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownProduct, product)
		return DispenseResult{Reason: err.Error(), Balance: m.balance, Err: err}
	}
	price := product.Price()
	if m.balance < price {
		err := fmt.Errorf("%w: need %d¢, have %d¢", ErrInsufficientFunds, price, m.balance)
		return DispenseResult{Reason: err.Error(), Balance: m.balance, Err: err}
	}
	m.balance -= price
	return DispenseResult{
		Dispensed: true,
		Color:     string(product),
		Price:     price,
		Balance:   m.balance,
	}
}

// ReturnChange empties the balance and pays it out in as few coins as possible.
// It always leaves the balance at zero, even when there was nothing to return.
func (m *Machine) ReturnChange() ChangeResult {
	returned := m.balance
	m.balance = 0
	breakdown, remainder := MakeChange(returned)
	return ChangeResult{
		Returned:  returned,
		Breakdown: breakdown,
		Remainder: remainder,
		Balance:   m.balance,
	}
}
