package outbox

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderPlacedLine is one frozen line of a placed order.
type OrderPlacedLine struct {
	ProductID uuid.UUID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// OrderPlacedEvent is emitted in the checkout transaction.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	UserID        uuid.UUID           `json:"userId"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	ShippingCost  decimal.Decimal     `json:"shippingCost"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Lines         []OrderPlacedLine   `json:"lines"`
}

// OrderStatusChangedEvent is emitted when an admin moves an order along.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"orderId"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// ProductRestockedEvent is emitted when an admin sets a product's stock.
type ProductRestockedEvent struct {
	ProductID uuid.UUID `json:"productId"`
	Previous  int       `json:"previous"`
	Stock     int       `json:"stock"`
}
