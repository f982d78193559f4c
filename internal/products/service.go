package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Service exposes catalog reads and admin edits.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	ListActive(ctx context.Context, params pagination.Params) (pagination.Page[ProductDTO], error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*ProductDTO, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*ProductDTO, error)
}

type service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

// Get returns an active product; inactive products read as not found.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	dto := toDTO(*product)
	return &dto, nil
}

func (s *service) ListActive(ctx context.Context, params pagination.Params) (pagination.Page[ProductDTO], error) {
	rows, err := s.repo.ListActive(ctx, params)
	if err != nil {
		if pkgerrors.As(err) == nil {
			return pagination.Page[ProductDTO]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return pagination.Page[ProductDTO]{}, err
	}
	dtos := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, toDTO(row))
	}
	return pagination.Trim(dtos, params.Limit, func(p ProductDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	}), nil
}

// Update applies an admin edit. Order lines already placed keep the price
// they were written with.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*ProductDTO, error) {
	changes := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name must not be empty")
		}
		changes["name"] = name
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		changes["price"] = *input.Price
	}
	if input.IsActive != nil {
		changes["is_active"] = *input.IsActive
	}
	if len(changes) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no changes supplied")
	}

	if err := s.repo.Update(ctx, id, changes); err != nil {
		return nil, err
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": id.String(),
		"price":      product.Price.StringFixed(2),
		"is_active":  product.IsActive,
	}), "product updated")
	dto := toDTO(*product)
	return &dto, nil
}

func (s *service) UpdatePrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) (*ProductDTO, error) {
	return s.Update(ctx, id, UpdateInput{Price: &price})
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*ProductDTO, error) {
	return s.Update(ctx, id, UpdateInput{IsActive: &active})
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}
	if !price.Equal(price.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must have at most two decimal places")
	}
	return nil
}
