package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"tekelbayim/internal/config"
	"tekelbayim/internal/handler"
	"tekelbayim/internal/infra/db"
	"tekelbayim/internal/infra/logger"
	"tekelbayim/internal/infra/metrics"
	infraRepo "tekelbayim/internal/infra/repository"
	"tekelbayim/internal/middleware"
	"tekelbayim/internal/server"
	"tekelbayim/internal/usecase"
	auth "tekelbayim/internal/usecase/auth_usecase"
	"tekelbayim/internal/validator"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（コンテナでは環境変数で渡す）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	roleRepo := infraRepo.NewRoleGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	idGen := auth.UUIDGenerator{}
	clock := auth.SystemClock{}
	hasher := auth.NewBcryptPasswordHasher(12)

	//ロールと初期管理者
	if err := db.Seed(ctx, roleRepo, userRepo, hasher, db.SeedInput{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		NewID:         idGen.NewID,
		Now:           clock.Now,
	}, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	//メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	//JWT issuer / セッション
	issuer := auth.NewJWTIssuer(cfg.JWT, clock, idGen)
	sessions := auth.NewSessionCodec(cfg.Session, cfg.JWT.Issuer, clock)
	cookies := middleware.NewSessionCookies(cfg.Session.CookieName, cfg.Session.Secure)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(usecase.AuthDeps{
		Users:         userRepo,
		RefreshTokens: rtRepo,
		AuditLogs:     auditRepo,
		Tx:            txm,
		Hasher:        hasher,
		Verifier:      auth.NewBcryptPasswordVerifier(),
		Tokens:        issuer,
		Sessions:      sessions,
		Validator:     validator.NewAuthValidator(),
		IDGen:         idGen,
		Clock:         clock,
		Lockout:       cfg.Lockout,
		Metrics:       m,
		Log:           log,
	})

	//Server起動
	e := server.New(server.Deps{
		Log:     log,
		Metrics: m,
		Auth:    handler.NewAuthHandler(authUC, cookies, log),
		Audit:   handler.NewAdminAuditHandler(auditRepo, log),
		Tokens:  handler.NewAdminTokenHandler(rtRepo, clock, log),
		Bearer:  middleware.NewBearerAuthenticator(issuer),
		Cookie:  middleware.NewCookieAuthenticator(sessions, cookies),
		Limiter: middleware.NewIPRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		HealthDB: func(ctx context.Context) error {
			sqlDB, err := gormDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})

	addr := cfg.Port
	if addr == "" || addr[0] != ':' {
		addr = ":" + addr
	}
	return server.Start(ctx, e, addr, log)
}
