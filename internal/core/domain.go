package core

import (
	"errors"
	"sort"
	"strings"
)

const (
	Nickel  Coin = "nickel"
	Dime    Coin = "dime"
	Quarter Coin = "quarter"
)

const (
	Red    Product = "red"
	Yellow Product = "yellow"
)

type (
	// Coin is one of the denominations the coin slot accepts.
	Coin string

	// Product is one of the gumball types behind a dispensing lever.
	Product string

	// MenuItem pairs a name with its value in cents for listings.
	MenuItem struct {
		Name  string `json:"name"`
		Cents Cents  `json:"cents"`
	}
)

var denominations = map[Coin]Cents{
	Nickel:  5,
	Dime:    10,
	Quarter: 25,
}

var prices = map[Product]Cents{
	Red:    5,
	Yellow: 10,
}

var (
	ErrUnknownCoin       = errors.New("unknown coin")
	ErrUnknownProduct    = errors.New("unknown gumball type")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrBalanceLimit      = errors.New("balance limit reached")
)

// NormalizeName trims surrounding whitespace and lower-cases s.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseCoin normalizes name and returns the matching coin.
// The second return value is false when the name is not a known denomination.
func ParseCoin(name string) (Coin, bool) {
	c := Coin(NormalizeName(name))
	_, ok := denominations[c]
	return c, ok
}

// Value returns the face value of the coin, or 0 for an unknown coin.
func (c Coin) Value() Cents {
	return denominations[c]
}

// ParseProduct normalizes name and returns the matching gumball type.
func ParseProduct(name string) (Product, bool) {
	p := Product(NormalizeName(name))
	_, ok := prices[p]
	return p, ok
}

// Price returns the price of the gumball, or 0 for an unknown type.
func (p Product) Price() Cents {
	return prices[p]
}

// Coins lists the accepted denominations in ascending value order.
func Coins() []MenuItem {
	items := make([]MenuItem, 0, len(denominations))
	for c, v := range denominations {
		items = append(items, MenuItem{Name: string(c), Cents: v})
	}
	sortMenu(items)
	return items
}

// Products lists the gumball types in ascending price order.
func Products() []MenuItem {
	items := make([]MenuItem, 0, len(prices))
	for p, v := range prices {
		items = append(items, MenuItem{Name: string(p), Cents: v})
	}
	sortMenu(items)
	return items
}

func sortMenu(items []MenuItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Cents != items[j].Cents {
			return items[i].Cents < items[j].Cents
		}
		return items[i].Name < items[j].Name
	})
}
