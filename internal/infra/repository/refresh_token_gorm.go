package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tekelbayim/internal/domain/model"
	repo "tekelbayim/internal/repository"

	"gorm.io/gorm"
)

type refreshTokenGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewRefreshTokenRepository(db *gorm.DB) repo.RefreshTokenRepository {
	return &refreshTokenGormRepository{db: db}
}

// リフレッシュトークンを保存。
func (r *refreshTokenGormRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	//タイムアウトやキャンセルをDB処理に伝える
	if err := r.db.WithContext(ctx).Omit("User").Create(token).Error; err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// token_hashで1件検索します（所有ユーザーとロールも一緒に読む）。
func (r *refreshTokenGormRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var token model.RefreshToken

	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("User.Roles").
		Where("token_hash = ?", tokenHash).
		First(&token).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	return &token, nil
}

// revoked_atをセットして無効。
// まだactiveな行だけを更新するので、同じトークンを同時にrefreshしても勝つのは1件だけ。
func (r *refreshTokenGormRepository) Revoke(ctx context.Context, tokenID string, rev model.Revocation, now time.Time) error {
	reason := rev.Reason

	result := r.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL AND expires_at > ?", tokenID, now).
		Updates(map[string]any{
			"revoked_at":             rev.At,
			"revoked_by_ip":          rev.ByIP,
			"revoke_reason":          &reason,
			"replaced_by_token_hash": rev.ReplacedByTokenHash,
		})

	if result.Error != nil {
		return fmt.Errorf("revoke refresh token: %w", result.Error)
	}
	// 更新件数が0なら「すでに失効/期限切れ/存在しない」
	if result.RowsAffected == 0 {
		return repo.ErrRefreshTokenNotActive
	}

	return nil
}

// 指定ユーザーのリフレッシュトークン（古い順）。
func (r *refreshTokenGormRepository) ListByUserID(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	var tokens []model.RefreshToken

	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}
