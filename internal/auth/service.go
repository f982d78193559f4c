package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cartmerge"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgAuth "github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	redisclient "github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	minPasswordLength         = 8
	confirmationTokenBytes    = 24
)

// Service defines the behavior needed by the auth controller.
type Service interface {
	Register(ctx context.Context, req RegisterRequest, guestSession string) (*RegisterResponse, error)
	ConfirmEmail(ctx context.Context, token string) (*users.UserDTO, error)
	Login(ctx context.Context, req LoginRequest, guestSession string) (*LoginResponse, error)
	Logout(ctx context.Context, accessID string) error
}

type userRepository interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Revoke(ctx context.Context, accessID string) error
}

type guestCarts interface {
	Lines(ctx context.Context, sessionID string) (types.CartLines, error)
	Clear(ctx context.Context, sessionID string) error
}

type cartMerger interface {
	Merge(ctx context.Context, input cartmerge.MergeInput) (cartmerge.MergeReport, error)
	StashPendingCart(ctx context.Context, email string, lines types.CartLines) error
}

type confirmationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	ConfirmationKey(token string) string
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Users          userRepository
	Hasher         passwordHasher
	SessionManager sessionManager
	GuestCarts     guestCarts
	Merger         cartMerger
	Tokens         confirmationStore
	Mailer         Mailer
	JWTConfig      config.JWTConfig
	AuthConfig     config.AuthConfig
	Logger         *logger.Logger
}

type service struct {
	users   userRepository
	hasher  passwordHasher
	session sessionManager
	guests  guestCarts
	merger  cartMerger
	tokens  confirmationStore
	mailer  Mailer
	jwtCfg  config.JWTConfig
	authCfg config.AuthConfig
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case params.Hasher == nil:
		return nil, fmt.Errorf("password hasher is required")
	case params.SessionManager == nil:
		return nil, fmt.Errorf("session manager is required")
	case params.GuestCarts == nil:
		return nil, fmt.Errorf("guest cart store is required")
	case params.Merger == nil:
		return nil, fmt.Errorf("cart merger is required")
	case params.Tokens == nil:
		return nil, fmt.Errorf("confirmation token store is required")
	}
	mailer := params.Mailer
	if mailer == nil {
		mailer = NewLogMailer(params.Logger)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		users:   params.Users,
		hasher:  params.Hasher,
		session: params.SessionManager,
		guests:  params.GuestCarts,
		merger:  params.Merger,
		tokens:  params.Tokens,
		mailer:  mailer,
		jwtCfg:  params.JWTConfig,
		authCfg: params.AuthConfig,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Register creates a customer. With email confirmation on, the guest cart is
// parked as a pending cart for the email and the caller gets no session
// until ConfirmEmail and Login; otherwise the caller is logged in at once.
func (s *service) Register(ctx context.Context, req RegisterRequest, guestSession string) (*RegisterResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	dto := users.CreateUserDTO{Email: email, PasswordHash: passwordHash}
	if !s.authCfg.RequireEmailConfirmation {
		now := s.now().UTC()
		dto.VerifiedAt = &now
	}
	user, err := s.users.Create(ctx, dto)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	if !s.authCfg.RequireEmailConfirmation {
		login, err := s.startSession(ctx, user, guestSession)
		if err != nil {
			return nil, err
		}
		return &RegisterResponse{User: login.User, Session: login}, nil
	}

	if err := s.stashGuestCart(ctx, email, guestSession); err != nil {
		return nil, err
	}
	token, err := newConfirmationToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation token")
	}
	if err := s.tokens.Set(ctx, s.tokens.ConfirmationKey(token), user.ID.String(), s.authCfg.ConfirmationTokenTTL); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store confirmation token")
	}
	if err := s.mailer.SendConfirmation(ctx, email, token); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send confirmation")
	}
	s.logg.Info(ctx, "registration awaiting confirmation")
	return &RegisterResponse{User: users.FromModel(user), PendingConfirmation: true}, nil
}

// ConfirmEmail consumes a confirmation token. Tokens are single use.
func (s *service) ConfirmEmail(ctx context.Context, token string) (*users.UserDTO, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	raw, err := s.tokens.GetDel(ctx, s.tokens.ConfirmationKey(token))
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired confirmation token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read confirmation token")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid or expired confirmation token")
	}
	if err := s.users.MarkVerified(ctx, userID, s.now().UTC()); err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return users.FromModel(user), nil
}

// Login authenticates and then merges the caller's previous cart into the
// account. A pending cart stashed at registration wins over the guest cart.
func (s *service) Login(ctx context.Context, req LoginRequest, guestSession string) (*LoginResponse, error) {
	user, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	if s.authCfg.RequireEmailConfirmation && user.EmailVerifiedAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "email address not confirmed")
	}
	return s.startSession(s.logg.WithUserID(ctx, user.ID.String()), user, guestSession)
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if err := s.session.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) startSession(ctx context.Context, user *models.User, guestSession string) (*LoginResponse, error) {
	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	accessID := session.NewAccessID()
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		UserID: user.ID,
		Role:   user.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refreshToken, err := s.session.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}

	resp := &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         users.FromModel(user),
	}
	report := s.mergeCarts(ctx, user, guestSession)
	if report != nil {
		resp.Merge = report
		resp.Warning = report.Warning()
	}
	return resp, nil
}

// mergeCarts never fails the login; the session already exists.
func (s *service) mergeCarts(ctx context.Context, user *models.User, guestSession string) *cartmerge.MergeReport {
	var guestLines types.CartLines
	if guestSession != "" {
		lines, err := s.guests.Lines(ctx, guestSession)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "guest cart unreadable, skipping merge")
		} else {
			guestLines = lines
		}
	}

	report, err := s.merger.Merge(ctx, cartmerge.MergeInput{
		UserID:     user.ID,
		Email:      user.Email,
		GuestLines: guestLines,
	})
	if err != nil {
		s.logg.Error(ctx, "cart merge failed", err)
		return nil
	}
	if guestSession != "" && len(guestLines) > 0 {
		if err := s.guests.Clear(ctx, guestSession); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "guest cart not cleared after merge")
		}
	}
	if report.Source == cartmerge.SourceNone {
		return nil
	}
	return &report
}

func (s *service) stashGuestCart(ctx context.Context, email, guestSession string) error {
	if guestSession == "" {
		return nil
	}
	lines, err := s.guests.Lines(ctx, guestSession)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	if err := s.merger.StashPendingCart(ctx, email, lines); err != nil {
		return err
	}
	if err := s.guests.Clear(ctx, guestSession); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "guest cart not cleared after stash")
	}
	return nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	input := normalizeEmail(email)
	if input == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	user, err := s.users.FindByEmail(ctx, input)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return user, nil
}

func newConfirmationToken() (string, error) {
	buf := make([]byte, confirmationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
