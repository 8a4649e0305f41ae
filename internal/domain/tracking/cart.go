package tracking

import "github.com/shopspring/decimal"

// CartItem is one line of the cart snapshot
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CartSnapshot is a read-only signal owned by the cart subsystem. The engine
// reads it to decide abandonment and to compute cart value and size for
// events; it never mutates cart state
type CartSnapshot struct {
	CartID      string          `json:"cartId"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// Empty reports whether the cart holds no items
func (c CartSnapshot) Empty() bool {
	return len(c.Items) == 0
}

// Size returns the total quantity across all items
func (c CartSnapshot) Size() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Value returns the cart total as a float for event properties
func (c CartSnapshot) Value() float64 {
	value, _ := c.TotalAmount.Float64()
	return value
}
