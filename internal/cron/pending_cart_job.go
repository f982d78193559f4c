package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type pendingCartSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type pendingCartExpiryJob struct {
	logg *logger.Logger
	repo pendingCartSweeper
	now  func() time.Time
}

// NewPendingCartExpiryJob removes pending carts whose confirmation window
// closed without a login.
func NewPendingCartExpiryJob(logg *logger.Logger, repo pendingCartSweeper) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("pending cart repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &pendingCartExpiryJob{logg: logg, repo: repo, now: time.Now}, nil
}

func (j *pendingCartExpiryJob) Name() string { return "expire-pending-carts" }

func (j *pendingCartExpiryJob) Run(ctx context.Context) error {
	deleted, err := j.repo.DeleteExpired(ctx, j.now().UTC())
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", deleted), "expired pending carts removed")
	return nil
}
