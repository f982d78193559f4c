package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderDTO is the customer and admin view of an order. Money is rendered
// with two decimals.
type OrderDTO struct {
	ID                uuid.UUID           `json:"id"`
	UserID            uuid.UUID           `json:"userId"`
	Status            enums.OrderStatus   `json:"status"`
	Subtotal          string              `json:"subtotal"`
	ShippingCost      string              `json:"shippingCost"`
	Total             string              `json:"total"`
	PaymentMethod     enums.PaymentMethod `json:"paymentMethod"`
	ShippingMethodID  uuid.UUID           `json:"shippingMethodId"`
	ShippingAddressID uuid.UUID           `json:"shippingAddressId"`
	BillingAddressID  uuid.UUID           `json:"billingAddressId"`
	Items             []OrderItemDTO      `json:"items"`
	CreatedAt         time.Time           `json:"createdAt"`
}

type OrderItemDTO struct {
	ProductID uuid.UUID `json:"productId"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	LineTotal string    `json:"lineTotal"`
}

// ToDTO renders an order with its lines.
func ToDTO(order models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
			LineTotal: item.LineTotal().StringFixed(2),
		})
	}
	return OrderDTO{
		ID:                order.ID,
		UserID:            order.UserID,
		Status:            order.Status,
		Subtotal:          order.Subtotal.StringFixed(2),
		ShippingCost:      order.ShippingCost.StringFixed(2),
		Total:             order.TotalPrice.StringFixed(2),
		PaymentMethod:     order.PaymentMethod,
		ShippingMethodID:  order.ShippingMethodID,
		ShippingAddressID: order.ShippingAddressID,
		BillingAddressID:  order.BillingAddressID,
		Items:             items,
		CreatedAt:         order.CreatedAt,
	}
}
