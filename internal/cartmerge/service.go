package cartmerge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	SourceNone    = ""
	SourceGuest   = "guest"
	SourcePending = "pending"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartAdder interface {
	AddOrMergeItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (int, error)
}

// MergeInput is what the login or registration flow knows about the caller.
type MergeInput struct {
	UserID     uuid.UUID
	Email      string
	GuestLines types.CartLines
}

// MergeFailure is one line that could not be added.
type MergeFailure struct {
	ProductID uuid.UUID      `json:"productId"`
	Quantity  int            `json:"quantity"`
	Code      pkgerrors.Code `json:"code"`
	Reason    string         `json:"reason"`
}

// MergeReport lists what was merged and what was not.
type MergeReport struct {
	Source    string          `json:"source,omitempty"`
	Succeeded types.CartLines `json:"succeeded"`
	Failed    []MergeFailure  `json:"failed"`
}

// Warning is the note shown to the user when lines were dropped.
func (r MergeReport) Warning() string {
	if len(r.Failed) == 0 {
		return ""
	}
	noun := "items"
	if len(r.Failed) == 1 {
		noun = "item"
	}
	return fmt.Sprintf("%d %s from your previous cart could not be added.", len(r.Failed), noun)
}

// Service merges guest and pending carts into a user's cart.
type Service interface {
	Merge(ctx context.Context, input MergeInput) (MergeReport, error)
	StashPendingCart(ctx context.Context, email string, lines types.CartLines) error
}

type service struct {
	pending *PendingRepository
	cart    cartAdder
	tx      txRunner
	ttl     time.Duration
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

type ServiceParams struct {
	Pending    *PendingRepository
	Cart       cartAdder
	Tx         txRunner
	PendingTTL time.Duration
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Pending == nil {
		return nil, fmt.Errorf("pending cart repository required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &service{
		pending: params.Pending,
		cart:    params.Cart,
		tx:      params.Tx,
		ttl:     ttl,
		metrics: params.Metrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Merge applies the pending cart for the email when one exists, otherwise the
// guest lines. Lines are added one at a time, each in its own transaction; a
// failing line is reported and the rest still go through.
func (s *service) Merge(ctx context.Context, input MergeInput) (MergeReport, error) {
	report := MergeReport{Succeeded: types.CartLines{}, Failed: []MergeFailure{}}
	if input.UserID == uuid.Nil {
		return report, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	lines := input.GuestLines
	if len(lines) > 0 {
		report.Source = SourceGuest
	}
	if email := normalizeEmail(input.Email); email != "" {
		var claimed *models.PendingCart
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			claimed, err = s.pending.WithTx(tx).Claim(ctx, email, s.now().UTC())
			return err
		})
		if err != nil {
			return report, err
		}
		if claimed != nil {
			lines = claimed.Lines
			report.Source = SourcePending
		}
	}

	for _, line := range lines {
		if _, err := s.cart.AddOrMergeItem(ctx, input.UserID, line.ProductID, line.Quantity); err != nil {
			report.Failed = append(report.Failed, MergeFailure{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Code:      pkgerrors.CodeOf(err),
				Reason:    reason(err),
			})
			s.metrics.IncMerged(false)
			continue
		}
		report.Succeeded = append(report.Succeeded, line)
		s.metrics.IncMerged(true)
	}

	if len(lines) > 0 {
		ctx = s.logg.WithUserID(ctx, input.UserID.String())
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"source":    report.Source,
			"succeeded": len(report.Succeeded),
			"failed":    len(report.Failed),
		}), "cart merged")
	}
	return report, nil
}

// StashPendingCart keeps lines for email until the account is confirmed.
// Stashing an empty cart removes nothing and writes nothing.
func (s *service) StashPendingCart(ctx context.Context, email string, lines types.CartLines) error {
	email = normalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(lines) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.pending.Upsert(ctx, &models.PendingCart{
		Email:     email,
		Lines:     lines,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func reason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
