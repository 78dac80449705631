package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tekelbayim/internal/domain/model"
	domainrepo "tekelbayim/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate はテーブルを作成/更新
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&model.Role{},
		&model.User{},
		&model.RefreshToken{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

type passwordHasher interface {
	Hash(plain string) (string, error)
}

// SeedInput は初期データ投入に使う値
type SeedInput struct {
	AdminEmail    string
	AdminPassword string
	NewID         func() string
	Now           func() time.Time
}

// Seed はロールと初期管理者を作る（既にあれば何もしない）。
func Seed(
	ctx context.Context,
	roles domainrepo.RoleRepository,
	users domainrepo.UserRepository,
	hasher passwordHasher,
	in SeedInput,
	log *zap.Logger,
) error {
	if err := roles.EnsureRoles(ctx, model.DefaultRoles...); err != nil {
		return err
	}

	if in.AdminPassword == "" {
		log.Warn("ADMIN_PASSWORD is empty; admin user not seeded")
		return nil
	}

	existing, err := users.FindByEmail(ctx, in.AdminEmail)
	if err != nil && !errors.Is(err, domainrepo.ErrUserNotFound) {
		return err
	}
	//既にいる場合もロールは付け直す（AddToRoleは冪等）
	if existing != nil {
		return users.AddToRole(ctx, existing.ID, model.RoleAdmin)
	}

	hashed, err := hasher.Hash(in.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := in.Now()
	name := "System Administrator"
	admin := &model.User{
		ID:             in.NewID(),
		Email:          in.AdminEmail,
		PasswordHash:   hashed,
		DisplayName:    &name,
		EmailConfirmed: true,
		Timestamps:     model.Timestamp{CreatedAt: now, UpdatedAt: now},
	}
	if err := users.Create(ctx, admin); err != nil {
		if !errors.Is(err, domainrepo.ErrEmailAlreadyExists) {
			return err
		}
		//他インスタンスが先に作った
		if admin, err = users.FindByEmail(ctx, in.AdminEmail); err != nil {
			return err
		}
	}
	if err := users.AddToRole(ctx, admin.ID, model.RoleAdmin); err != nil {
		return err
	}

	log.Info("admin user seeded", zap.String("email", in.AdminEmail))
	return nil
}
