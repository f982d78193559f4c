package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type shippingMethodLister interface {
	ListActive(ctx context.Context) ([]models.ShippingMethod, error)
}

type shippingMethodResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BasePrice string    `json:"basePrice"`
}

func ShippingMethodsList(methods shippingMethodLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := methods.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]shippingMethodResponse, 0, len(rows))
		for _, m := range rows {
			out = append(out, shippingMethodResponse{
				ID:        m.ID,
				Name:      m.Name,
				BasePrice: m.BasePrice.StringFixed(2),
			})
		}
		responses.WriteSuccess(w, out)
	}
}
