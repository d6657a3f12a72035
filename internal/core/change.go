package core

// changeOrder is the greedy order used when paying out change, largest first.
var changeOrder = [...]Coin{Quarter, Dime, Nickel}

// Breakdown counts the coins paid out for a returned amount.
type Breakdown struct {
	Quarters int64 `json:"quarters"`
	Dimes    int64 `json:"dimes"`
	Nickels  int64 `json:"nickels"`
}

// Value returns the total paid out by the breakdown.
func (b Breakdown) Value() Cents {
	return Cents(b.Quarters)*Quarter.Value() +
		Cents(b.Dimes)*Dime.Value() +
		Cents(b.Nickels)*Nickel.Value()
}

// IsZero reports whether no coins are paid out.
func (b Breakdown) IsZero() bool {
	return b.Quarters == 0 && b.Dimes == 0 && b.Nickels == 0
}

// MakeChange splits amount into quarters, dimes and nickels, largest first.
// The part of amount that is not a multiple of the smallest coin is returned as remainder.
func MakeChange(amount Cents) (Breakdown, Cents) {
	var b Breakdown
	if amount <= 0 {
		return b, 0
	}
	remaining := amount
	for _, coin := range changeOrder {
		n := int64(remaining / coin.Value())
		remaining %= coin.Value()
		switch coin {
		case Quarter:
			b.Quarters = n
		case Dime:
			b.Dimes = n
		case Nickel:
			b.Nickels = n
		}
	}
	return b, remaining
}
