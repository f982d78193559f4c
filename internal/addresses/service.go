package addresses

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	columnShipping = "is_shipping"
	columnBilling  = "is_billing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages addresses and answers the checkout's ownership checks.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Address, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
	SetDefaultShipping(ctx context.Context, userID, id uuid.UUID) error
	SetDefaultBilling(ctx context.Context, userID, id uuid.UUID) error
	ValidatedShippingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error)
	ValidatedBillingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error)
}

// CreateInput is a new address. The first address a user creates becomes
// their default shipping and billing address.
type CreateInput struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	Region     string
	PostalCode string
	Country    string
	IsShipping bool
	IsBilling  bool
}

type service struct {
	repo *Repository
	tx   txRunner
}

func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	address := &models.Address{
		UserID:     userID,
		Recipient:  strings.TrimSpace(input.Recipient),
		Line1:      strings.TrimSpace(input.Line1),
		Line2:      input.Line2,
		City:       strings.TrimSpace(input.City),
		Region:     strings.TrimSpace(input.Region),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(input.Country)),
	}
	if address.Recipient == "" || address.Line1 == "" || address.City == "" || address.PostalCode == "" || address.Country == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient, line1, city, postal code and country are required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockOwner(ctx, userID); err != nil {
			return err
		}
		if err := repo.Create(ctx, address); err != nil {
			return err
		}
		hasShipping, err := repo.HasFlag(ctx, userID, columnShipping)
		if err != nil {
			return err
		}
		if input.IsShipping || !hasShipping {
			if err := repo.MoveFlag(ctx, userID, address.ID, columnShipping); err != nil {
				return err
			}
			address.IsShipping = true
		}
		hasBilling, err := repo.HasFlag(ctx, userID, columnBilling)
		if err != nil {
			return err
		}
		if input.IsBilling || !hasBilling {
			if err := repo.MoveFlag(ctx, userID, address.ID, columnBilling); err != nil {
				return err
			}
			address.IsBilling = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return address, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) SetDefaultShipping(ctx context.Context, userID, id uuid.UUID) error {
	return s.setDefault(ctx, userID, id, columnShipping)
}

func (s *service) SetDefaultBilling(ctx context.Context, userID, id uuid.UUID) error {
	return s.setDefault(ctx, userID, id, columnBilling)
}

func (s *service) setDefault(ctx context.Context, userID, id uuid.UUID, column string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockOwner(ctx, userID); err != nil {
			return err
		}
		return repo.MoveFlag(ctx, userID, id, column)
	})
}

// ValidatedShippingAddress returns the address when it belongs to userID and
// is their shipping address; otherwise INVALID_ADDRESS.
func (s *service) ValidatedShippingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error) {
	address, err := s.validated(ctx, tx, userID, id, "shipping")
	if err != nil {
		return nil, err
	}
	if !address.IsShipping {
		return nil, invalidAddress(id, "shipping")
	}
	return address, nil
}

// ValidatedBillingAddress is ValidatedShippingAddress for the billing flag.
func (s *service) ValidatedBillingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error) {
	address, err := s.validated(ctx, tx, userID, id, "billing")
	if err != nil {
		return nil, err
	}
	if !address.IsBilling {
		return nil, invalidAddress(id, "billing")
	}
	return address, nil
}

func (s *service) validated(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID, kind string) (*models.Address, error) {
	if id == uuid.Nil {
		return nil, invalidAddress(id, kind)
	}
	address, err := s.repo.WithTx(tx).FindOwned(ctx, userID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, invalidAddress(id, kind)
		}
		return nil, db.Classify(err, "load address")
	}
	return address, nil
}

func invalidAddress(id uuid.UUID, kind string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidAddress, kind+" address is not valid").
		WithDetails(map[string]any{"addressId": id, "kind": kind})
}
