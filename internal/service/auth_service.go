package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// credentialsMsg is returned for every login failure regardless of cause, so
// responses never reveal whether a username exists or an account is inactive.
const credentialsMsg = "Credenciales incorrectas"

// LoginInput carries the credentials plus the client metadata stamped onto
// refresh tokens and login-attempt audit rows.
type LoginInput struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResult bundles the token pair with the authenticated user.
type LoginResult struct {
	User   *model.User `json:"user"`
	Tokens TokenPair   `json:"tokens"`
}

// AuthService implements login with account lockout, refresh-token rotation
// and logout.
type AuthService interface {
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uint) (*model.User, error)
}

type authService struct {
	users  repository.UserRepository
	tokens repository.TokenRepository
	txm    repository.TransactionManager
	cfg    *config.Config
	log    *zap.Logger
}

// NewAuthService wires the authentication service.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	txm repository.TransactionManager,
	cfg *config.Config,
	log *zap.Logger,
) AuthService {
	return &authService{users: users, tokens: tokens, txm: txm, cfg: cfg, log: log}
}

// Login authenticates a user. Order matters: the lockout window is checked
// before credentials, every attempt is recorded, and all failure modes share
// one generic message.
func (s *authService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	since := time.Now().Add(-s.cfg.LockoutWindow)
	failures, err := s.tokens.CountRecentFailures(ctx, in.Username, since)
	if err != nil {
		return nil, err
	}
	if failures >= int64(s.cfg.LockoutMaxAttempts) {
		s.recordAttempt(ctx, in, false)
		return nil, apperror.Locked("Cuenta bloqueada temporalmente por demasiados intentos fallidos. Inténtalo de nuevo más tarde")
	}

	user, err := s.users.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordAttempt(ctx, in, false)
			return nil, apperror.Unauthorized(credentialsMsg)
		}
		return nil, err
	}
	if !user.Activo || !VerifyPassword(user.PasswordHash, in.Password) {
		s.recordAttempt(ctx, in, false)
		return nil, apperror.Unauthorized(credentialsMsg)
	}

	s.recordAttempt(ctx, in, true)

	pair, err := s.issueTokens(ctx, user, in.IPAddress, in.UserAgent)
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in",
		zap.Uint("user_id", user.ID),
		zap.String("username", user.Username),
	)
	return &LoginResult{User: user, Tokens: *pair}, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued inside one transaction, so a token can be used exactly once.
func (s *authService) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*TokenPair, error) {
	hash := hashToken(refreshToken)
	stored, err := s.tokens.GetRefreshByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("Token de refresco inválido")
		}
		return nil, err
	}
	if stored.Revoked {
		return nil, apperror.Unauthorized("Token de refresco revocado")
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, apperror.Unauthorized("Token de refresco expirado")
	}
	if !stored.User.Activo || stored.User.DeletedAt.Valid {
		return nil, apperror.Unauthorized("Cuenta inactiva o eliminada")
	}

	var pair *TokenPair
	err = s.txm.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.tokens.Revoke(txCtx, stored.ID); err != nil {
			return err
		}
		pair, err = s.issueTokens(txCtx, &stored.User, ipAddress, userAgent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the presented refresh token. It succeeds even when the
// token is unknown or already revoked.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.tokens.RevokeByHash(ctx, hashToken(refreshToken))
}

func (s *authService) Me(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("Usuario")
		}
		return nil, err
	}
	return user, nil
}

// issueTokens builds the signed access token and a fresh opaque refresh
// token, persisting only the SHA-256 hash of the latter.
func (s *authService) issueTokens(ctx context.Context, user *model.User, ipAddress, userAgent string) (*TokenPair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"roles":    user.RoleNames(),
		"jti":      uuid.NewString(),
		"type":     "access",
		"iat":      now.Unix(),
		"exp":      now.Add(s.cfg.AccessTokenTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTAccessSecret))
	if err != nil {
		return nil, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}
	row := model.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	if err := s.tokens.CreateRefresh(ctx, &row); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// recordAttempt appends to the login audit trail. A write failure is logged
// but never turns a login outcome into an error.
func (s *authService) recordAttempt(ctx context.Context, in LoginInput, success bool) {
	attempt := model.LoginAttempt{
		Username:  in.Username,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   success,
	}
	if err := s.tokens.RecordLoginAttempt(ctx, &attempt); err != nil {
		s.log.Error("failed to record login attempt", zap.Error(err))
	}
}

// newRefreshToken generates the opaque refresh credential: a UUID joined
// with 32 random bytes in hex. Only its hash is ever stored.
func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return uuid.NewString() + "-" + hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
