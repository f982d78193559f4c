package cartmerge

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// PendingRepository stores carts stashed while a registration awaits email
// confirmation.
type PendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *PendingRepository) WithTx(tx *gorm.DB) *PendingRepository {
	if tx == nil {
		return r
	}
	return &PendingRepository{db: tx}
}

// Upsert replaces any pending cart held for email.
func (r *PendingRepository) Upsert(ctx context.Context, cart *models.PendingCart) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"lines", "expires_at", "created_at"}),
		}).
		Create(cart).Error
	return db.Classify(err, "stash pending cart")
}

// Claim locks, reads and deletes the unexpired pending cart for email. It
// returns nil when there is none.
func (r *PendingRepository) Claim(ctx context.Context, email string, now time.Time) (*models.PendingCart, error) {
	var cart models.PendingCart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", email).
		Take(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, db.Classify(err, "load pending cart")
	}
	if err := r.db.WithContext(ctx).Where("email = ?", email).Delete(&models.PendingCart{}).Error; err != nil {
		return nil, db.Classify(err, "consume pending cart")
	}
	if !cart.ExpiresAt.After(now) {
		return nil, nil
	}
	return &cart, nil
}

// DeleteExpired drops pending carts whose expiry has passed.
func (r *PendingRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.PendingCart{})
	return res.RowsAffected, db.Classify(res.Error, "delete expired pending carts")
}
