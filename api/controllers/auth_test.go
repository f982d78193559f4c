package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubAuth struct {
	guestSession string
	loggedOut    string
	pending      bool
	loginErr     error
}

func (s *stubAuth) Register(_ context.Context, req auth.RegisterRequest, guestSession string) (*auth.RegisterResponse, error) {
	s.guestSession = guestSession
	return &auth.RegisterResponse{User: &users.UserDTO{Email: req.Email}, PendingConfirmation: s.pending}, nil
}

func (s *stubAuth) ConfirmEmail(context.Context, string) (*users.UserDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "confirmation token not found")
}

func (s *stubAuth) Login(_ context.Context, _ auth.LoginRequest, guestSession string) (*auth.LoginResponse, error) {
	s.guestSession = guestSession
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &auth.LoginResponse{AccessToken: "a", RefreshToken: "r"}, nil
}

func (s *stubAuth) Logout(_ context.Context, accessID string) error {
	s.loggedOut = accessID
	return nil
}

func TestAuthLoginPassesGuestSession(t *testing.T) {
	svc := &stubAuth{}
	req := guestRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"secret123"}`, "guest-1")

	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "guest-1", svc.guestSession)
}

func TestAuthLoginBadCredentials(t *testing.T) {
	svc := &stubAuth{loginErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")}
	req := guestRequest(http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"nope"}`, "guest-1")

	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthRegisterPendingConfirmationIsAccepted(t *testing.T) {
	svc := &stubAuth{pending: true}
	req := guestRequest(http.MethodPost, "/auth/register", `{"email":"a@example.com","password":"secret123"}`, "guest-2")

	resp := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "guest-2", svc.guestSession)
}

func TestAuthRegisterRejectsShortPassword(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"email":"a@example.com","password":"short"}`))

	resp := httptest.NewRecorder()
	AuthRegister(&stubAuth{}, nil).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAuthLogoutRevokesAccessID(t *testing.T) {
	svc := &stubAuth{}
	resp := httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Empty(t, svc.loggedOut)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(middleware.WithAccessID(req.Context(), "jti-1"))
	resp = httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "jti-1", svc.loggedOut)
}
