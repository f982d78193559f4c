package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the persisted cart of an authenticated user. Every write that
// depends on stock holds the product row lock for its transaction.
type Service interface {
	AddOrMergeItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (int, error)
	SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
	LoadCartView(ctx context.Context, userID uuid.UUID) (*CartView, error)
}

type service struct {
	repo      *Repository
	inventory *inventory.Repository
	tx        txRunner
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
}

type ServiceParams struct {
	Repo      *Repository
	Inventory *inventory.Repository
	Tx        txRunner
	Metrics   *metrics.CheckoutMetrics
	Logger    *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		inventory: params.Inventory,
		tx:        params.Tx,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

// AddOrMergeItem adds quantity to the user's line for productID, creating it
// when absent, and returns the combined quantity.
func (s *service) AddOrMergeItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (int, error) {
	if err := validateQuantity(quantity); err != nil {
		return 0, err
	}
	var combined int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.lockAvailable(ctx, tx, productID)
		if err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindLine(ctx, userID, productID)
		if err != nil {
			return err
		}
		combined = quantity
		if existing != nil {
			combined += existing.Quantity
		}
		if combined > product.Stock {
			return insufficientStock(product, combined)
		}
		return repo.Upsert(ctx, userID, productID, combined)
	})
	if err != nil {
		return 0, err
	}
	return combined, nil
}

// SetItemQuantity overwrites the quantity of an existing line.
func (s *service) SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := s.lockAvailable(ctx, tx, productID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return productNotInCart(productID)
			}
			return err
		}
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindLine(ctx, userID, productID)
		if err != nil {
			return err
		}
		if existing == nil {
			return productNotInCart(productID)
		}
		if quantity > product.Stock {
			return insufficientStock(product, quantity)
		}
		_, err = repo.SetQuantity(ctx, userID, productID, quantity)
		return err
	})
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return s.repo.Delete(ctx, userID, productID)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteAll(ctx, userID)
}

// LoadCartView reconciles the cart against live products, persists the
// healed cart and returns it.
func (s *service) LoadCartView(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	var result Reconciliation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.ListLines(ctx, userID)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			result = Reconcile(nil)
			return nil
		}

		ids := make([]uuid.UUID, 0, len(stored))
		for _, line := range stored {
			ids = append(ids, line.ProductID)
		}
		locked, err := s.inventory.WithTx(tx).LockMany(ctx, ids)
		if err != nil {
			return err
		}

		lines := make([]Line, 0, len(stored))
		for _, line := range stored {
			lines = append(lines, Line{ProductID: line.ProductID, Quantity: line.Quantity, Product: locked[line.ProductID]})
		}
		result = Reconcile(lines)

		for _, productID := range result.Removed {
			if err := repo.Delete(ctx, userID, productID); err != nil {
				return err
			}
		}
		for productID, quantity := range result.Clamped {
			if _, err := repo.SetQuantity(ctx, userID, productID, quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordReconciliation(ctx, result)
	return result.View(), nil
}

func (s *service) lockAvailable(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	product, err := s.inventory.WithTx(tx).LockAndGetStock(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	return product, nil
}

func (s *service) recordReconciliation(ctx context.Context, result Reconciliation) {
	if !result.Changed() {
		return
	}
	s.metrics.AddReconciled(metrics.ReconcileDiscontinued, result.Discontinued)
	s.metrics.AddReconciled(metrics.ReconcileOutOfStock, result.OutOfStock)
	s.metrics.AddReconciled(metrics.ReconcileClamped, result.Adjusted)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"discontinued": result.Discontinued,
		"out_of_stock": result.OutOfStock,
		"adjusted":     result.Adjusted,
	}), "cart reconciled")
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	return nil
}

func insufficientStock(product *models.Product, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("only %d of %s available", product.Stock, product.Name)).
		WithDetails(map[string]any{
			"productId": product.ID,
			"available": product.Stock,
			"requested": requested,
		})
}

func productNotInCart(productID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeProductNotInCart, "product is not in cart").
		WithDetails(map[string]any{"productId": productID})
}
