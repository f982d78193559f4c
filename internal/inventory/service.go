package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the admin restock flow.
type Service interface {
	SetStock(ctx context.Context, actorID, productID uuid.UUID, stock int) (int, error)
}

type service struct {
	repo   *Repository
	tx     txRunner
	events outbox.Emitter
	logg   *logger.Logger
}

func NewService(repo *Repository, tx txRunner, events outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, events: events, logg: logg}, nil
}

// SetStock overwrites the product's stock and records a product.restocked
// event in the same transaction.
func (s *service) SetStock(ctx context.Context, actorID, productID uuid.UUID, stock int) (int, error) {
	var previous int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		prev, err := s.repo.WithTx(tx).SetStock(ctx, productID, stock)
		if err != nil {
			return err
		}
		previous = prev
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductRestocked,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: enums.UserRoleAdmin.String()},
			Data:          outbox.ProductRestockedEvent{ProductID: productID, Previous: prev, Stock: stock},
		})
	})
	if err != nil {
		return 0, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": productID.String(),
		"previous":   previous,
		"stock":      stock,
	}), "stock updated")
	return previous, nil
}
