// Package core provides the vending machine state and its money handling.
//
// This file contains the minor-unit money type and its display formatting.
package core

import (
	"fmt"
	"math"
)

// Cents is an amount of money in minor currency units.
// All balances, coin values and prices are whole cents; there is no floating point
// anywhere in the calculation path.
type Cents int64

// MaxBalance is the largest balance the machine will hold.
const MaxBalance = Cents(math.MaxInt64)

// String formats cents as a dollar string for display.
//
// Examples:
//
//	Cents(15).String()   -> "$0.15"
//	Cents(125).String()  -> "$1.25"
//	Cents(-5).String()   -> "-$0.05"
func (c Cents) String() string {
	neg := c < 0
	if neg {
		c = -c
	}
	s := fmt.Sprintf("$%d.%02d", c/100, c%100)
	if neg {
		return "-" + s
	}
	return s
}

// canAdd reports whether v can be added to c without exceeding MaxBalance.
func (c Cents) canAdd(v Cents) bool {
	return v <= MaxBalance-c
}
