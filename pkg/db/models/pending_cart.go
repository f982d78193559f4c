package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// PendingCart holds a guest cart stashed while a registration waits for
// email confirmation. It is consumed at most once.
type PendingCart struct {
	Email     string          `gorm:"column:email;primaryKey"`
	Lines     types.CartLines `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index"`
}
