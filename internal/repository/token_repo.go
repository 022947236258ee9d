package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"gorm.io/gorm"
)

// TokenRepository persists refresh tokens and the append-only login-attempt
// audit trail backing the lockout window.
type TokenRepository interface {
	CreateRefresh(ctx context.Context, token *model.RefreshToken) error
	GetRefreshByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	Revoke(ctx context.Context, id uint) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint) error
	RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) error
	CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository returns the gorm-backed TokenRepository.
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) CreateRefresh(ctx context.Context, token *model.RefreshToken) error {
	return GetDB(ctx, r.db).Create(token).Error
}

// GetRefreshByHash loads the token row with its owner and roles; validity
// checks (revoked, expired, inactive owner) stay in the service.
func (r *tokenRepository) GetRefreshByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken
	err := GetDB(ctx, r.db).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("User.Roles").
		First(&token, "token_hash = ?", tokenHash).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Revoke(ctx context.Context, id uint) error {
	now := time.Now()
	return GetDB(ctx, r.db).Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
}

func (r *tokenRepository) RevokeByHash(ctx context.Context, tokenHash string) error {
	now := time.Now()
	return GetDB(ctx, r.db).Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", tokenHash, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
}

func (r *tokenRepository) RevokeAllForUser(ctx context.Context, userID uint) error {
	now := time.Now()
	return GetDB(ctx, r.db).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]interface{}{"revoked": true, "revoked_at": now}).Error
}

func (r *tokenRepository) RecordLoginAttempt(ctx context.Context, attempt *model.LoginAttempt) error {
	return GetDB(ctx, r.db).Create(attempt).Error
}

func (r *tokenRepository) CountRecentFailures(ctx context.Context, username string, since time.Time) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.LoginAttempt{}).
		Where("username = ? AND success = ? AND attempted_at >= ?", username, false, since).
		Count(&count).Error
	return count, err
}
