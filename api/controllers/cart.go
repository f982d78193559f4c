package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// cartOps is one cart bound to its owner, either a user or a guest session.
type cartOps interface {
	Add(ctx context.Context, productID uuid.UUID, quantity int) (int, error)
	Set(ctx context.Context, productID uuid.UUID, quantity int) error
	Remove(ctx context.Context, productID uuid.UUID) error
	Clear(ctx context.Context) error
	View(ctx context.Context) (*cartsvc.CartView, error)
}

// CartResolver finds the cart the request operates on.
type CartResolver func(r *http.Request) (cartOps, error)

// GuestCartStore is the session-keyed cart for anonymous visitors.
type GuestCartStore interface {
	AddOrMergeItem(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (int, error)
	SetItemQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) error
	RemoveItem(ctx context.Context, sessionID string, productID uuid.UUID) error
	Clear(ctx context.Context, sessionID string) error
	LoadCartView(ctx context.Context, sessionID string) (*cartsvc.CartView, error)
}

// UserCarts resolves the persisted cart of the authenticated user.
func UserCarts(svc cartsvc.Service) CartResolver {
	return func(r *http.Request) (cartOps, error) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			return nil, err
		}
		return userCart{svc: svc, userID: userID}, nil
	}
}

// GuestCarts resolves the cart of the request's guest session.
func GuestCarts(store GuestCartStore) CartResolver {
	return func(r *http.Request) (cartOps, error) {
		sessionID, err := guestSessionFromRequest(r)
		if err != nil {
			return nil, err
		}
		return guestCart{store: store, sessionID: sessionID}, nil
	}
}

type userCart struct {
	svc    cartsvc.Service
	userID uuid.UUID
}

func (c userCart) Add(ctx context.Context, productID uuid.UUID, quantity int) (int, error) {
	return c.svc.AddOrMergeItem(ctx, c.userID, productID, quantity)
}

func (c userCart) Set(ctx context.Context, productID uuid.UUID, quantity int) error {
	return c.svc.SetItemQuantity(ctx, c.userID, productID, quantity)
}

func (c userCart) Remove(ctx context.Context, productID uuid.UUID) error {
	return c.svc.RemoveItem(ctx, c.userID, productID)
}

func (c userCart) Clear(ctx context.Context) error {
	return c.svc.Clear(ctx, c.userID)
}

func (c userCart) View(ctx context.Context) (*cartsvc.CartView, error) {
	return c.svc.LoadCartView(ctx, c.userID)
}

type guestCart struct {
	store     GuestCartStore
	sessionID string
}

func (c guestCart) Add(ctx context.Context, productID uuid.UUID, quantity int) (int, error) {
	return c.store.AddOrMergeItem(ctx, c.sessionID, productID, quantity)
}

func (c guestCart) Set(ctx context.Context, productID uuid.UUID, quantity int) error {
	return c.store.SetItemQuantity(ctx, c.sessionID, productID, quantity)
}

func (c guestCart) Remove(ctx context.Context, productID uuid.UUID) error {
	return c.store.RemoveItem(ctx, c.sessionID, productID)
}

func (c guestCart) Clear(ctx context.Context) error {
	return c.store.Clear(ctx, c.sessionID)
}

func (c guestCart) View(ctx context.Context) (*cartsvc.CartView, error) {
	return c.store.LoadCartView(ctx, c.sessionID)
}

type addCartItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type setCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CartFetch returns the reconciled cart; the message explains any line that
// was dropped or reduced since the last visit.
func CartFetch(resolve CartResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := c.View(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartAddItem(resolve CartResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body addCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(body.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		quantity, err := c.Add(r.Context(), productID, body.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"productId": productID, "quantity": quantity})
	}
}

func CartSetItem(resolve CartResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setCartItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := c.Set(r.Context(), productID, body.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"productId": productID, "quantity": body.Quantity})
	}
}

func CartRemoveItem(resolve CartResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := c.Remove(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func CartClear(resolve CartResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := resolve(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := c.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
