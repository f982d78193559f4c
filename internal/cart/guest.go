package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	redisclient "github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type guestKV interface {
	Get(ctx context.Context, key string) (string, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current string, found bool) (string, error)) error
	Del(ctx context.Context, keys ...string) error
	GuestCartKey(sessionID string) string
}

type productReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// GuestStore keeps anonymous carts in Redis keyed by session id. Every write
// is a read-modify-write retried under WATCH, so concurrent edits of one
// session never drop each other. Stock is checked with an unlocked read; the
// locked check happens when the cart is merged into a user's cart.
type GuestStore struct {
	kv       guestKV
	products productReader
	ttl      time.Duration
}

func NewGuestStore(kv guestKV, products productReader, ttl time.Duration) (*GuestStore, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	return &GuestStore{kv: kv, products: products, ttl: ttl}, nil
}

// Lines returns the stored guest cart, empty when none exists.
func (g *GuestStore) Lines(ctx context.Context, sessionID string) (types.CartLines, error) {
	if strings.TrimSpace(sessionID) == "" {
		return types.CartLines{}, nil
	}
	raw, err := g.kv.Get(ctx, g.kv.GuestCartKey(sessionID))
	if errors.Is(err, redisclient.Nil) {
		return types.CartLines{}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}
	return decodeGuestLines(raw), nil
}

// a corrupt document is treated as an empty cart
func decodeGuestLines(raw string) types.CartLines {
	var lines types.CartLines
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return types.CartLines{}
	}
	return lines
}

func (g *GuestStore) AddOrMergeItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (int, error) {
	if err := validateQuantity(quantity); err != nil {
		return 0, err
	}
	product, err := g.available(ctx, productID)
	if err != nil {
		return 0, err
	}
	var combined int
	err = g.mutate(ctx, sessionID, func(lines types.CartLines) (types.CartLines, error) {
		combined = lines.Quantity(productID) + quantity
		if combined > product.Stock {
			return nil, insufficientStock(product, combined)
		}
		if idx := lines.Find(productID); idx >= 0 {
			lines[idx].Quantity = combined
			return lines, nil
		}
		return append(lines, types.CartLine{ProductID: productID, Quantity: combined}), nil
	})
	if err != nil {
		return 0, err
	}
	return combined, nil
}

func (g *GuestStore) SetItemQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	lines, err := g.Lines(ctx, sessionID)
	if err != nil {
		return err
	}
	if lines.Find(productID) < 0 {
		return productNotInCart(productID)
	}
	product, err := g.available(ctx, productID)
	if err != nil {
		return err
	}
	if quantity > product.Stock {
		return insufficientStock(product, quantity)
	}
	return g.mutate(ctx, sessionID, func(lines types.CartLines) (types.CartLines, error) {
		idx := lines.Find(productID)
		if idx < 0 {
			return nil, productNotInCart(productID)
		}
		lines[idx].Quantity = quantity
		return lines, nil
	})
}

func (g *GuestStore) RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	return g.mutate(ctx, sessionID, func(lines types.CartLines) (types.CartLines, error) {
		return lines.Without(productID), nil
	})
}

func (g *GuestStore) Clear(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := g.kv.Del(ctx, g.kv.GuestCartKey(sessionID)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear guest cart")
	}
	return nil
}

// LoadCartView reconciles the guest cart and writes the healed document back.
func (g *GuestStore) LoadCartView(ctx context.Context, sessionID string) (*CartView, error) {
	stored, err := g.Lines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return Reconcile(nil).View(), nil
	}

	ids := make([]uuid.UUID, 0, len(stored))
	for _, line := range stored {
		ids = append(ids, line.ProductID)
	}
	products, err := g.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]Line, 0, len(stored))
	for _, line := range stored {
		l := Line{ProductID: line.ProductID, Quantity: line.Quantity}
		if product, ok := products[line.ProductID]; ok {
			p := product
			l.Product = &p
		}
		lines = append(lines, l)
	}
	result := Reconcile(lines)

	if result.Changed() {
		err := g.mutate(ctx, sessionID, func(lines types.CartLines) (types.CartLines, error) {
			return result.Heal(lines), nil
		})
		if err != nil {
			return nil, err
		}
	}
	return result.View(), nil
}

func (g *GuestStore) available(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	found, err := g.products.FindByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return nil, err
	}
	product, ok := found[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	return &product, nil
}

// mutate applies fn to the stored lines atomically. fn may run more than once
// and sees an empty slice when the cart does not exist; an empty result
// deletes the key.
func (g *GuestStore) mutate(ctx context.Context, sessionID string, fn func(types.CartLines) (types.CartLines, error)) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest session is required")
	}
	var fnErr error
	err := g.kv.Update(ctx, g.kv.GuestCartKey(sessionID), g.ttl, func(current string, found bool) (string, error) {
		lines := types.CartLines{}
		if found {
			lines = decodeGuestLines(current)
		}
		next, err := fn(lines)
		if err != nil {
			fnErr = err
			return "", err
		}
		if len(next) == 0 {
			return "", nil
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return "", err
		}
		return string(payload), nil
	})
	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	case errors.Is(err, redisclient.ErrContended):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "guest cart is being modified concurrently, please retry")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
	}
}
