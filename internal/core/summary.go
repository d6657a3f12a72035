package core

// ProductSales represents the gumballs sold of one color.
type ProductSales struct {
	Color   string `json:"color"`
	Count   int64  `json:"count"`
	Revenue Cents  `json:"revenue"`
}

// SalesSummary is a compact summary of everything the ledger has recorded.
type SalesSummary struct {
	Dispensed      int64          `json:"dispensed"`
	Revenue        Cents          `json:"revenue"`
	CoinsAccepted  int64          `json:"coins_accepted"`
	CoinsRejected  int64          `json:"coins_rejected"`
	ChangeReturned Cents          `json:"change_returned"`
	ByColor        []ProductSales `json:"by_color"`
}
