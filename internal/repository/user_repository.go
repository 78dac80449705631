package repository

import (
	"context"
	"errors"
	"time"

	"tekelbayim/internal/domain/model"
)

var (
	// ユーザーが見つかりませんを統一
	ErrUserNotFound = errors.New("user not found")
	// normalized emailのunique違反
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrRoleNotFound       = errors.New("role not found")
)

// 資格情報（ユーザー・パスワードハッシュ・ロックアウト・ロール）の保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成（重複はErrEmailAlreadyExists）
	Create(ctx context.Context, user *model.User) error
	// IDからユーザーを1件取得する（Rolesもプリロード）。
	FindByID(ctx context.Context, userID string) (*model.User, error)
	//メールからユーザーを一件取得する（大文字小文字は区別しない）。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	//ロール名一覧
	GetRoles(ctx context.Context, userID string) ([]string, error)
	//ロールを付与
	AddToRole(ctx context.Context, userID string, roleName string) error
	//失敗回数を+1して更新後の値を返す
	IncrementAccessFailedCount(ctx context.Context, userID string) (int, error)
	//ロックアウト終了時刻をセットし、失敗回数を0に戻す
	SetLockout(ctx context.Context, userID string, lockoutEnd time.Time) error
	//ログイン成功時：失敗回数とロックアウトをリセット
	ResetAccessFailedCount(ctx context.Context, userID string) error
}

// 起動時seed用
type RoleRepository interface {
	EnsureRoles(ctx context.Context, names ...string) error
}
