package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tekelbayim/internal/domain/model"
	domainrepo "tekelbayim/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type userGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewUserGormRepository(db *gorm.DB) domainrepo.UserRepository {
	return &userGormRepository{db: db}
}

// Create はユーザーを新規作成
func (r *userGormRepository) Create(ctx context.Context, user *model.User) error {
	user.NormalizedEmail = model.NormalizeEmail(user.Email)

	if err := r.db.WithContext(ctx).Omit("Roles").Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return domainrepo.ErrEmailAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// emailでユーザーを1件取得
func (r *userGormRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("normalized_email = ?", model.NormalizeEmail(email)).
		First(&u).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainrepo.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}

	return &u, nil
}

// IDでユーザーを1件取得
func (r *userGormRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("id = ?", id).
		First(&u).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainrepo.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}

	return &u, nil
}

func (r *userGormRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	var names []string

	err := r.db.WithContext(ctx).
		Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}
	return names, nil
}

// ロールを付与（付与済みなら何もしない）
func (r *userGormRepository) AddToRole(ctx context.Context, userID string, roleName string) error {
	var role model.Role
	err := r.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainrepo.ErrRoleNotFound
		}
		return fmt.Errorf("find role: %w", err)
	}

	err = r.db.WithContext(ctx).
		Table("user_roles").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(map[string]any{"user_id": userID, "role_id": role.ID}).Error
	if err != nil {
		return fmt.Errorf("add to role: %w", err)
	}
	return nil
}

// access_failed_countを+1 します（RETURNINGで更新後の値を受け取る）。
func (r *userGormRepository) IncrementAccessFailedCount(ctx context.Context, userID string) (int, error) {
	var u model.User

	res := r.db.WithContext(ctx).
		Model(&u).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "access_failed_count"}}}).
		Where("id = ?", userID).
		UpdateColumn("access_failed_count", gorm.Expr("access_failed_count + ?", 1))

	if res.Error != nil {
		return 0, fmt.Errorf("increment access failed count: %w", res.Error)
	}
	// 0件更新は「対象がない」
	if res.RowsAffected == 0 {
		return 0, domainrepo.ErrUserNotFound
	}
	return u.AccessFailedCount, nil
}

func (r *userGormRepository) SetLockout(ctx context.Context, userID string, lockoutEnd time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"lockout_end":         lockoutEnd,
			"access_failed_count": 0,
		})

	if res.Error != nil {
		return fmt.Errorf("set lockout: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainrepo.ErrUserNotFound
	}
	return nil
}

func (r *userGormRepository) ResetAccessFailedCount(ctx context.Context, userID string) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"access_failed_count": 0,
			"lockout_end":         nil,
		})

	if res.Error != nil {
		return fmt.Errorf("reset access failed count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domainrepo.ErrUserNotFound
	}
	return nil
}

type roleGormRepository struct {
	db *gorm.DB
}

func NewRoleGormRepository(db *gorm.DB) domainrepo.RoleRepository {
	return &roleGormRepository{db: db}
}

// 無ければ作る（冪等）
func (r *roleGormRepository) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		role := model.Role{Name: name}
		if err := r.db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("ensure role %s: %w", name, err)
		}
	}
	return nil
}

// unique制約違反か（TranslateError有効時はgorm.ErrDuplicatedKey）
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
