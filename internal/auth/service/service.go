// Package service implements account registration, credential login and the
// token lifecycle (refresh, logout).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"realreview/internal/auth/device"
	"realreview/internal/auth/metrics"
	"realreview/internal/auth/models"
	jwttoken "realreview/internal/jwt_token"
	id "realreview/pkg/domain"
	dErrors "realreview/pkg/domain-errors"
	"realreview/pkg/platform/sentinel"
	"realreview/pkg/requestcontext"
)

type UserStore interface {
	CreateIfEmailAvailable(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, userID id.UserID, role id.Role) error
}

type TokenIssuer interface {
	GenerateAccessToken(subject string) (string, error)
	GenerateRefreshToken(subject string) (string, error)
	ValidateRefreshToken(tokenString string) (*jwttoken.Claims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

type RevocationList interface {
	RevokeTokens(ctx context.Context, jtis []string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service orchestrates accounts and tokens.
type Service struct {
	users       UserStore
	tokens      TokenIssuer
	hasher      PasswordHasher
	revocations RevocationList
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRevocationList enables logout and refresh-token revocation checks.
func WithRevocationList(trl RevocationList) Option {
	return func(s *Service) {
		s.revocations = trl
	}
}

func New(users UserStore, tokens TokenIssuer, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{users: users, tokens: tokens, hasher: hasher}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

// Register creates a USER account. A taken email is reported as
// user_already_exists.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, req.Email, req.Password, id.RoleUser)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "user_registered", "user_id", user.ID.String())
	if s.metrics != nil {
		s.metrics.IncrementUsersRegistered()
	}
	return user, nil
}

func (s *Service) createUser(ctx context.Context, email, password string, role id.Role) (*models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user, err := models.NewUser(id.NewUserID(), email, hash, role, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.users.CreateIfEmailAvailable(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeUserExists, "user already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, nil
}

// Login exchanges credentials for a token pair. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenPair, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordLogin(ctx, false, "reason", "unknown_email")
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := s.hasher.Verify(req.Password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			s.recordLogin(ctx, false, "reason", "password_mismatch", "user_id", user.ID.String())
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	pair, err := s.issuePair(user.Email)
	if err != nil {
		return nil, err
	}
	s.recordLogin(ctx, true, "user_id", user.ID.String())
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair for the same
// subject. The presented token stays valid until it expires or is revoked
// by logout.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check token revocation")
		}
		if revoked {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
		}
	}

	if _, err := s.users.FindByEmail(ctx, claims.Subject); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	pair, err := s.issuePair(claims.Subject)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementTokensRefreshed()
	}
	return pair, nil
}

// Logout revokes the access token that authenticated the request and, when
// given, a refresh token belonging to the same subject.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if s.revocations == nil {
		return nil
	}
	now := requestcontext.Now(ctx)
	revokedAny := false

	if jti := requestcontext.TokenID(ctx); jti != "" {
		if ttl := requestcontext.TokenExpiry(ctx).Sub(now); ttl > 0 {
			if err := s.revocations.RevokeTokens(ctx, []string{jti}, ttl); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke access token")
			}
			revokedAny = true
		}
	}

	if refreshToken != "" {
		claims, err := s.tokens.ValidateRefreshToken(refreshToken)
		if err != nil {
			return err
		}
		if claims.Subject != requestcontext.Email(ctx) {
			return dErrors.New(dErrors.CodeForbidden, "refresh token belongs to another account")
		}
		if ttl := claims.ExpiresAtTime().Sub(now); ttl > 0 {
			if err := s.revocations.RevokeTokens(ctx, []string{claims.ID}, ttl); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke refresh token")
			}
			revokedAny = true
		}
	}

	if revokedAny {
		s.logAudit(ctx, "user_logged_out", "user_id", requestcontext.UserID(ctx).String())
		if s.metrics != nil {
			s.metrics.IncrementLogouts()
		}
	}
	return nil
}

// CurrentUser returns the account behind a token subject.
func (s *Service) CurrentUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

// ResolvePrincipal maps a token subject to the account ID and current role.
func (s *Service) ResolvePrincipal(ctx context.Context, subject string) (id.UserID, id.Role, error) {
	user, err := s.users.FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.UserID{}, "", dErrors.New(dErrors.CodeUnauthorized, "unknown subject")
		}
		return id.UserID{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user.ID, user.Role, nil
}

// CreateAdmin provisions an ADMIN account, promoting an existing account
// with that email instead of failing. created reports whether a new account
// was inserted.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) (user *models.User, created bool, err error) {
	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != id.RoleAdmin {
			if err := s.users.UpdateRole(ctx, existing.ID, id.RoleAdmin); err != nil {
				return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to promote user")
			}
			existing.Role = id.RoleAdmin
			s.logAudit(ctx, "user_promoted", "user_id", existing.ID.String())
		}
		return existing, false, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	req := &models.RegisterRequest{CredentialsRequest: models.CredentialsRequest{Email: email, Password: password}}
	if err := req.Validate(); err != nil {
		return nil, false, err
	}
	user, err = s.createUser(ctx, req.Email, req.Password, id.RoleAdmin)
	if err != nil {
		return nil, false, err
	}
	s.logAudit(ctx, "admin_created", "user_id", user.ID.String())
	return user, true, nil
}

func (s *Service) issuePair(subject string) (*models.TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue access token")
	}
	refresh, err := s.tokens.GenerateRefreshToken(subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue refresh token")
	}
	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) recordLogin(ctx context.Context, success bool, attributes ...any) {
	event := "login_failed"
	if success {
		event = "login_succeeded"
	}
	label := requestcontext.Device(ctx)
	if label == "" {
		label = device.ParseUserAgent(requestcontext.UserAgent(ctx))
	}
	attributes = append(attributes, "device", label, "client_ip", requestcontext.ClientIP(ctx))
	s.logAudit(ctx, event, attributes...)
	if s.metrics != nil {
		s.metrics.IncrementLogin(success)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
