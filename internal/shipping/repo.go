package shipping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository reads shipping methods.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ActiveShippingMethod returns the method when it exists and is active.
// Anything else is INVALID_SHIPPING_METHOD. Pass the checkout transaction as
// tx so the read shares its connection; nil uses the repository handle.
func (r *Repository) ActiveShippingMethod(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ShippingMethod, error) {
	conn := r.db
	if tx != nil {
		conn = tx
	}
	var method models.ShippingMethod
	err := conn.WithContext(ctx).Where("id = ?", id).Take(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidMethod(id)
		}
		return nil, db.Classify(err, "load shipping method")
	}
	if !method.IsActive {
		return nil, invalidMethod(id)
	}
	return &method, nil
}

// ListActive returns active methods cheapest first.
func (r *Repository) ListActive(ctx context.Context) ([]models.ShippingMethod, error) {
	var methods []models.ShippingMethod
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("base_price ASC").
		Order("name ASC").
		Find(&methods).Error
	if err != nil {
		return nil, db.Classify(err, "list shipping methods")
	}
	return methods, nil
}

func invalidMethod(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeInvalidShippingMethod, "shipping method is not available").
		WithDetails(map[string]any{"shippingMethodId": id})
}
