package inventory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository is the stock ledger. Every write it performs happens under a
// row lock of the product being changed.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// CheckStock reads the current stock without taking a lock. The value is
// advisory only.
func (r *Repository) CheckStock(ctx context.Context, productID uuid.UUID) (int, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select("id", "stock").
		Where("id = ?", productID).
		Take(&product).Error
	if err != nil {
		return 0, db.Classify(err, "product not found")
	}
	return product.Stock, nil
}

// LockAndGetStock takes the row lock on the product and returns it. The lock
// is held until the surrounding transaction ends.
func (r *Repository) LockAndGetStock(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", productID).
		Take(&product).Error
	if err != nil {
		return nil, db.Classify(err, "product not found")
	}
	return &product, nil
}

// LockMany locks the given products in ascending id order and returns them
// keyed by id. Missing ids are simply absent from the result.
func (r *Repository) LockMany(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	ids := SortedIDs(productIDs)
	locked := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		product, err := r.LockAndGetStock(ctx, id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return nil, err
		}
		locked[id] = product
	}
	return locked, nil
}

// DecrementStock subtracts qty from the product's stock. The guarded UPDATE
// refuses to take stock below zero.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return db.Classify(res.Error, "decrement stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	stock, err := r.CheckStock(ctx, productID)
	if err != nil {
		return err
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(map[string]any{"productId": productID, "available": stock, "requested": qty})
}

// IncrementStock adds qty back, used when a pending order is cancelled.
func (r *Repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return db.Classify(res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

// SetStock overwrites stock under lock and returns the previous value.
func (r *Repository) SetStock(ctx context.Context, productID uuid.UUID, stock int) (int, error) {
	if stock < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}
	product, err := r.LockAndGetStock(ctx, productID)
	if err != nil {
		return 0, err
	}
	err = r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", stock).Error
	if err != nil {
		return 0, db.Classify(err, "set stock")
	}
	return product.Stock, nil
}

// SortedIDs returns a deduplicated copy of ids in ascending byte order, the
// order every multi-row lock in the storefront is taken in.
func SortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
