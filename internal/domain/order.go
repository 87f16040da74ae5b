package domain

import "time"

// OrderStatusPending is the status an order is created with. Downstream
// fulfillment owns any further transitions.
const OrderStatusPending = "pending"

// Order is an immutable record of a completed checkout. Item prices are
// locked at creation time; later catalog changes never alter an order.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalAmount     int64       `json:"total_amount"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
	CreatedAt       time.Time   `json:"created_at"`
}

// OrderItem is a snapshot of one cart line combined with the catalog data
// that was current at checkout.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Subtotal returns unit price times quantity in minor units.
func (i OrderItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// ComputeTotal sums the item subtotals. It exists so the total can be
// verified against the stored TotalAmount.
func (o *Order) ComputeTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}
