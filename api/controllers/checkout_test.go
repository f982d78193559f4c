package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubCheckout struct {
	order *models.Order
	err   error
	input checkoutsvc.PlaceOrderInput
}

func (s *stubCheckout) PlaceOrder(_ context.Context, input checkoutsvc.PlaceOrderInput) (*models.Order, error) {
	s.input = input
	return s.order, s.err
}

func checkoutBody() string {
	return `{"shippingAddressId":"` + uuid.NewString() + `","paymentMethod":"card","shippingMethodId":"` + uuid.NewString() + `"}`
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestCheckoutCreatesOrder(t *testing.T) {
	userID := uuid.New()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		Subtotal:      decimal.RequireFromString("55.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		TotalPrice:    decimal.RequireFromString("60.00"),
		PaymentMethod: enums.PaymentMethodCard,
	}
	svc := &stubCheckout{order: order}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/checkout", checkoutBody(), userID))

	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, userID, svc.input.UserID)
	assert.Nil(t, svc.input.BillingAddressID)
	assert.Equal(t, enums.PaymentMethodCard, svc.input.PaymentMethod)

	var envelope struct {
		Data struct {
			Total  string `json:"total"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "60.00", envelope.Data.Total)
	assert.Equal(t, "pending", envelope.Data.Status)
}

func TestCheckoutOutOfStockListsProducts(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.New(pkgerrors.CodeOutOfStock, "some products are out of stock").
		WithDetails(map[string]any{"products": []string{"Saucer", "Teapot"}})}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/checkout", checkoutBody(), uuid.New()))

	require.Equal(t, http.StatusConflict, resp.Code)
	var envelope types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, string(pkgerrors.CodeOutOfStock), envelope.Error.Code)
	assert.Equal(t, map[string]any{"products": []any{"Saucer", "Teapot"}}, envelope.Error.Details)
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	svc := &stubCheckout{}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/checkout", `{"shippingAddressId":"x"}`, uuid.New()))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, uuid.Nil, svc.input.UserID)
}
