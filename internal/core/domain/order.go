package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Lines            []CartLine  `json:"lines"`
	SubtotalCents    int64       `json:"subtotal_cents"`
	DeliveryFeeCents int64       `json:"delivery_fee_cents"`
	TaxCents         int64       `json:"tax_cents"`
	TotalCents       int64       `json:"total_cents"`
	PaymentMethod    string      `json:"payment_method"`
	Status           OrderStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// OrderStep is one stage of the simulated delivery progress.
type OrderStep struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ETA         time.Time `json:"eta"`
}

// OrderProgress is a client-side visual approximation of delivery; it is
// never read from or written to the order record.
type OrderProgress struct {
	OrderID   string      `json:"order_id"`
	StepIndex int         `json:"step_index"`
	Steps     []OrderStep `json:"steps"`
	Simulated bool        `json:"simulated"`
}

func (p OrderProgress) Terminal() bool {
	return p.StepIndex >= len(p.Steps)-1
}

func (p OrderProgress) Current() OrderStep {
	return p.Steps[p.StepIndex]
}

// DeliverySteps returns the fixed step sequence with ETAs offset from the
// moment the order was placed.
func DeliverySteps(placedAt time.Time) []OrderStep {
	return []OrderStep{
		{Title: "Order Confirmed", Description: "Your order has been received", ETA: placedAt},
		{Title: "Preparing", Description: "The restaurant is preparing your food", ETA: placedAt.Add(5 * time.Minute)},
		{Title: "On the way", Description: "Food is on the way to you", ETA: placedAt.Add(20 * time.Minute)},
		{Title: "Delivered", Description: "Enjoy your meal!", ETA: placedAt.Add(35 * time.Minute)},
	}
}
