package addresses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository persists user addresses.
type Repository struct {
	db *gorm.DB
}

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

func (r *Repository) Create(ctx context.Context, address *models.Address) error {
	if err := r.db.WithContext(ctx).Create(address).Error; err != nil {
		return db.Classify(err, "create address")
	}
	return nil
}

// FindOwned loads an address owned by userID.
func (r *Repository) FindOwned(ctx context.Context, userID, id uuid.UUID) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&address).Error
	if err != nil {
		return nil, err
	}
	return &address, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	var out []models.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, db.Classify(err, "list addresses")
	}
	return out, nil
}

// HasFlag reports whether any address of userID carries column = true.
func (r *Repository) HasFlag(ctx context.Context, userID uuid.UUID, column string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("user_id = ? AND "+column+" = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, db.Classify(err, "count addresses")
	}
	return count > 0, nil
}

// LockOwner row-locks the user and every address they own, so default flag
// moves for one user run one transaction at a time.
func (r *Repository) LockOwner(ctx context.Context, userID uuid.UUID) error {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		Pluck("id", &ids).Error
	if err != nil {
		return db.Classify(err, "lock address owner")
	}
	err = r.db.WithContext(ctx).
		Model(&models.Address{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return db.Classify(err, "lock addresses")
	}
	return nil
}

// MoveFlag clears column on every address of userID and sets it on id. Call
// LockOwner first in the same transaction.
func (r *Repository) MoveFlag(ctx context.Context, userID, id uuid.UUID, column string) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Model(&models.Address{}).
		Where("user_id = ? AND "+column+" = ?", userID, true).
		Update(column, false).Error; err != nil {
		return db.Classify(err, "clear default address")
	}
	res := conn.Model(&models.Address{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update(column, true)
	if res.Error != nil {
		return db.Classify(res.Error, "set default address")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
