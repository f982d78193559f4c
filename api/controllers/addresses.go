package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type createAddressRequest struct {
	Recipient  string  `json:"recipient" validate:"required,max=200"`
	Line1      string  `json:"line1" validate:"required,max=200"`
	Line2      *string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	Region     string  `json:"region" validate:"max=100"`
	PostalCode string  `json:"postalCode" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,iso3166_1_alpha2"`
	IsShipping bool    `json:"isShipping"`
	IsBilling  bool    `json:"isBilling"`
}

type addressResponse struct {
	ID         uuid.UUID `json:"id"`
	Recipient  string    `json:"recipient"`
	Line1      string    `json:"line1"`
	Line2      *string   `json:"line2,omitempty"`
	City       string    `json:"city"`
	Region     string    `json:"region"`
	PostalCode string    `json:"postalCode"`
	Country    string    `json:"country"`
	IsShipping bool      `json:"isShipping"`
	IsBilling  bool      `json:"isBilling"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newAddressResponse(a models.Address) addressResponse {
	return addressResponse{
		ID:         a.ID,
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		IsShipping: a.IsShipping,
		IsBilling:  a.IsBilling,
		CreatedAt:  a.CreatedAt,
	}
}

func AddressesList(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]addressResponse, 0, len(rows))
		for _, a := range rows {
			out = append(out, newAddressResponse(a))
		}
		responses.WriteSuccess(w, out)
	}
}

func AddressCreate(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createAddressRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		address, err := svc.Create(r.Context(), userID, addresses.CreateInput{
			Recipient:  body.Recipient,
			Line1:      body.Line1,
			Line2:      body.Line2,
			City:       body.City,
			Region:     body.Region,
			PostalCode: body.PostalCode,
			Country:    body.Country,
			IsShipping: body.IsShipping,
			IsBilling:  body.IsBilling,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAddressResponse(*address))
	}
}

// AddressSetDefault moves the shipping or billing flag onto one address.
func AddressSetDefault(svc addresses.Service, billing bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		set := svc.SetDefaultShipping
		if billing {
			set = svc.SetDefaultBilling
		}
		if err := set(r.Context(), userID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
