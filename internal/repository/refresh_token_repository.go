package repository

import (
	"context"
	"errors"
	"time"

	"tekelbayim/internal/domain/model"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	//条件付き更新が0件 => 既に失効/期限切れ（並行ローテーションで負けた）
	ErrRefreshTokenNotActive = errors.New("refresh token not active")
)

// リフレッシュトークンの保存・取得・失効
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	// token_hashで1件検索（User.Rolesもプリロード）
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	// activeな場合だけ失効させる（compare-and-swap）
	Revoke(ctx context.Context, tokenID string, rev model.Revocation, now time.Time) error
	// ユーザーの全トークン（作成順）
	ListByUserID(ctx context.Context, userID string) ([]model.RefreshToken, error)
}
