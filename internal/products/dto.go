package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// ProductDTO is the catalog view of a product. Stock is a display value read
// without a lock.
type ProductDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Stock     int       `json:"stock"`
	InStock   bool      `json:"inStock"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateInput carries an admin edit; nil fields are left alone.
type UpdateInput struct {
	Name     *string
	Price    *decimal.Decimal
	IsActive *bool
}

func toDTO(p models.Product) ProductDTO {
	return ProductDTO{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price.StringFixed(2),
		Stock:     p.Stock,
		InStock:   p.Stock > 0,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
	}
}
