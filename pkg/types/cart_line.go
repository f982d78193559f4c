package types

import (
	"github.com/google/uuid"
)

// CartLine is the portable (productId, quantity) pair used by guest carts,
// pending carts and merge reports.
type CartLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// CartLines is an ordered list of cart lines.
type CartLines []CartLine

// Find returns the index of productID, or -1.
func (l CartLines) Find(productID uuid.UUID) int {
	for i, line := range l {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// Quantity returns the quantity held for productID, zero when absent.
func (l CartLines) Quantity(productID uuid.UUID) int {
	if idx := l.Find(productID); idx >= 0 {
		return l[idx].Quantity
	}
	return 0
}

// Without returns a copy of l with productID dropped.
func (l CartLines) Without(productID uuid.UUID) CartLines {
	out := make(CartLines, 0, len(l))
	for _, line := range l {
		if line.ProductID != productID {
			out = append(out, line)
		}
	}
	return out
}
