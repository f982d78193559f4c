package cart

import (
	"github.com/google/uuid"
)

// CartView is a reconciled cart with its total and any adjustment note.
type CartView struct {
	Items   []ViewItem `json:"items"`
	Total   string     `json:"total"`
	Message string     `json:"message,omitempty"`
}

type ViewItem struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Quantity  int       `json:"quantity"`
	LineTotal string    `json:"lineTotal"`
}
