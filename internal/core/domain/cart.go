package domain

import "fmt"

// CartLine is one entry of the cart. At most one line exists per ItemID and
// Quantity is always >= 1.
type CartLine struct {
	ItemID         string `json:"itemId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
	ImageRef       string `json:"imageRef"`
}

func (l CartLine) TotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

// Pricing holds the fixed charges applied on top of the subtotal.
type Pricing struct {
	DeliveryFeeCents int64
	TaxBasisPoints   int64 // 1000 = 10%
}

var DefaultPricing = Pricing{DeliveryFeeCents: 299}

// Tax rounds half up to the nearest cent.
func (p Pricing) Tax(subtotalCents int64) int64 {
	if p.TaxBasisPoints <= 0 {
		return 0
	}
	return (subtotalCents*p.TaxBasisPoints + 5000) / 10000
}

// CartSnapshot is derived from the lines on every read and never stored.
type CartSnapshot struct {
	Lines            []CartLine `json:"lines"`
	ItemCount        int        `json:"itemCount"`
	SubtotalCents    int64      `json:"subtotalCents"`
	DeliveryFeeCents int64      `json:"deliveryFeeCents"`
	TaxCents         int64      `json:"taxCents"`
	TotalCents       int64      `json:"totalCents"`
}

func NewCartSnapshot(lines []CartLine, pricing Pricing) CartSnapshot {
	snap := CartSnapshot{
		Lines:            make([]CartLine, len(lines)),
		DeliveryFeeCents: pricing.DeliveryFeeCents,
	}
	copy(snap.Lines, lines)

	for _, l := range lines {
		snap.SubtotalCents += l.TotalCents()
		snap.ItemCount += l.Quantity
	}
	snap.TaxCents = pricing.Tax(snap.SubtotalCents)
	snap.TotalCents = snap.SubtotalCents + snap.DeliveryFeeCents + snap.TaxCents
	return snap
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// FormatCents renders an amount as dollars, e.g. 3497 -> "$34.97".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
