package auth

import (
	"github.com/angelmondragon/storefront-backend/internal/cartmerge"
	"github.com/angelmondragon/storefront-backend/internal/users"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a customer account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type ConfirmRequest struct {
	Token string `json:"token" validate:"required"`
}

// LoginResponse contains the tokens, the user and what happened to the
// caller's previous cart.
type LoginResponse struct {
	AccessToken  string                 `json:"accessToken"`
	RefreshToken string                 `json:"refreshToken"`
	User         *users.UserDTO         `json:"user"`
	Merge        *cartmerge.MergeReport `json:"merge,omitempty"`
	Warning      string                 `json:"warning,omitempty"`
}

// RegisterResponse carries a session unless the account waits for email
// confirmation.
type RegisterResponse struct {
	User                *users.UserDTO `json:"user"`
	PendingConfirmation bool           `json:"pendingConfirmation"`
	Session             *LoginResponse `json:"session,omitempty"`
}
