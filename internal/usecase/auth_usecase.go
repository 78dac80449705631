package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tekelbayim/internal/config"
	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/repository"
	auth "tekelbayim/internal/usecase/auth_usecase"

	"go.uber.org/zap"
)

var (
	//401 メールかパスワードが違う（ユーザーなしも同じ）
	ErrInvalidCredentials = errors.New("invalid email or password")
	//401 ロックアウト中
	ErrLockedOut = errors.New("account is locked out")
	//400 メール重複（大文字小文字は区別しない）
	ErrEmailInUse = errors.New("email is already in use")
	//401 存在しないリフレッシュトークン
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	//401 失効済み/期限切れ/並行ローテーションで負けた
	ErrRefreshTokenInactive = errors.New("refresh token is not active")
)

// メトリクスのイベント名
const (
	EventLogin    = "login"
	EventRegister = "register"
	EventToken    = "token"
	EventRefresh  = "refresh"
	EventRevoke   = "revoke"
)

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, req RegisterRequest) error
	ValidateLogin(ctx context.Context, email string, password string) error
}

// JWT/リフレッシュトークンを発行する約束
type TokenIssuer interface {
	MintAccessToken(user *model.User, roles []string) (auth.AccessToken, error)
	MintRefreshToken() (auth.RefreshSecret, error)
}

// セッションCookieを発行する約束
type SessionIssuer interface {
	Issue(id auth.Identity, persistent bool) (auth.Session, error)
}

// 認証イベントのカウンタ
type EventRecorder interface {
	AuthEvent(event string, outcome string)
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type RegisterRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"displayName"`
	Phone       *string `json:"phone"`
}

type TokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type UserMeResponse struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName *string  `json:"displayName"`
	Phone       *string  `json:"phone"`
	Roles       []string `json:"roles"`
}

type TokenResponse struct {
	AccessToken           string         `json:"accessToken"`
	RefreshToken          string         `json:"refreshToken"`
	AccessTokenExpiresAt  time.Time      `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time      `json:"refreshTokenExpiresAt"`
	User                  UserMeResponse `json:"user"`
}

// handlerがCookieに詰めるためにSessionも返す
type LoginResult struct {
	User    UserMeResponse
	Session auth.Session
}

// AuthDeps はAuthUsecaseの依存
type AuthDeps struct {
	Users         repository.UserRepository
	RefreshTokens repository.RefreshTokenRepository
	AuditLogs     repository.AuditLogRepository
	Tx            repository.TransactionManager
	Hasher        auth.PasswordHasher
	Verifier      auth.PasswordVerifier
	Tokens        TokenIssuer
	Sessions      SessionIssuer
	Validator     AuthValidator
	IDGen         auth.IDGenerator
	Clock         auth.Clock
	Lockout       config.LockoutSettings
	Metrics       EventRecorder
	Log           *zap.Logger
}

type AuthUsecase struct {
	users         repository.UserRepository
	refreshTokens repository.RefreshTokenRepository
	auditLogs     repository.AuditLogRepository
	tx            repository.TransactionManager
	hasher        auth.PasswordHasher
	verifier      auth.PasswordVerifier
	tokens        TokenIssuer
	sessions      SessionIssuer
	validator     AuthValidator
	idGen         auth.IDGenerator
	clock         auth.Clock
	lockout       config.LockoutSettings
	metrics       EventRecorder
	log           *zap.Logger
}

// DI
func NewAuthUsecase(d AuthDeps) *AuthUsecase {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &AuthUsecase{
		users:         d.Users,
		refreshTokens: d.RefreshTokens,
		auditLogs:     d.AuditLogs,
		tx:            d.Tx,
		hasher:        d.Hasher,
		verifier:      d.Verifier,
		tokens:        d.Tokens,
		sessions:      d.Sessions,
		validator:     d.Validator,
		idGen:         d.IDGen,
		clock:         d.Clock,
		lockout:       d.Lockout,
		metrics:       d.Metrics,
		log:           d.Log,
	}
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Cookieセッションでログイン（リフレッシュトークンは作らない）
func (u *AuthUsecase) Login(ctx context.Context, req LoginRequest, ip string) (*LoginResult, error) {
	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		u.metrics.AuthEvent(EventLogin, "failure")
		return nil, err
	}

	user, err := u.verifyCredentials(ctx, req.Email, req.Password, ip)
	if err != nil {
		u.metrics.AuthEvent(EventLogin, "failure")
		return nil, err
	}

	roles := user.RoleNames()
	sess, err := u.sessions.Issue(toIdentity(user, roles), req.RememberMe)
	if err != nil {
		return nil, err
	}

	u.metrics.AuthEvent(EventLogin, "success")
	u.log.Info("user logged in", zap.String("user_id", user.ID), zap.Bool("remember_me", req.RememberMe), zap.String("ip", ip))

	return &LoginResult{User: toUserMe(user, roles), Session: sess}, nil
}

// 会員登録（Customerロール付与まで1トランザクション）
func (u *AuthUsecase) Register(ctx context.Context, req RegisterRequest, ip string) (*LoginResult, error) {
	if err := u.validator.ValidateRegister(ctx, req); err != nil {
		u.metrics.AuthEvent(EventRegister, "failure")
		return nil, err
	}

	//先に重複チェック（最終的にはunique indexで判定）
	existing, err := u.users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	if existing != nil {
		u.metrics.AuthEvent(EventRegister, "failure")
		return nil, ErrEmailInUse
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	hashed, err := u.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := u.clock.Now()
	user := &model.User{
		ID:           u.idGen.NewID(),
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hashed,
		DisplayName:  req.DisplayName,
		Phone:        req.Phone,
		Timestamps:   model.Timestamp{CreatedAt: now, UpdatedAt: now},
	}

	var roles []string
	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := r.Users().AddToRole(ctx, user.ID, model.RoleCustomer); err != nil {
			return err
		}
		got, err := r.Users().GetRoles(ctx, user.ID)
		if err != nil {
			return err
		}
		roles = got
		return r.AuditLogs().Create(ctx, u.auditEntry(user.ID, model.AuditActionUserRegistered, model.AuditResourceUser, user.ID, ip, ""))
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailAlreadyExists) {
			u.metrics.AuthEvent(EventRegister, "failure")
			return nil, ErrEmailInUse
		}
		return nil, err
	}

	sess, err := u.sessions.Issue(toIdentity(user, roles), false)
	if err != nil {
		return nil, err
	}

	u.metrics.AuthEvent(EventRegister, "success")
	u.log.Info("user registered", zap.String("user_id", user.ID), zap.String("ip", ip))

	return &LoginResult{User: toUserMe(user, roles), Session: sess}, nil
}

// サーバー側で消すものは無い（Cookie削除はhandler）。何度呼んでもOK。
func (u *AuthUsecase) Logout(ctx context.Context, userID string) error {
	if userID != "" {
		u.log.Info("user logged out", zap.String("user_id", userID))
	}
	return nil
}

// 未ログイン/存在しないユーザーはnil
func (u *AuthUsecase) GetCurrentUser(ctx context.Context, userID string) (*UserMeResponse, error) {
	if userID == "" {
		return nil, nil
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, err
	}

	me := toUserMe(user, user.RoleNames())
	return &me, nil
}

// メール/パスワードでアクセストークン+リフレッシュトークンを発行
func (u *AuthUsecase) GenerateToken(ctx context.Context, req TokenRequest, ip string) (*TokenResponse, error) {
	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		u.metrics.AuthEvent(EventToken, "failure")
		return nil, err
	}

	user, err := u.verifyCredentials(ctx, req.Email, req.Password, ip)
	if err != nil {
		u.metrics.AuthEvent(EventToken, "failure")
		return nil, err
	}

	roles := user.RoleNames()
	access, refresh, err := u.mintPair(user, roles)
	if err != nil {
		return nil, err
	}

	if err := u.refreshTokens.Create(ctx, u.newRefreshRow(user.ID, refresh, ip)); err != nil {
		return nil, err
	}

	u.metrics.AuthEvent(EventToken, "success")
	u.log.Info("token issued", zap.String("user_id", user.ID), zap.String("jti", access.ID), zap.String("ip", ip))

	return toTokenResponse(user, roles, access, refresh), nil
}

// リフレッシュトークンのローテーション
// 後継の保存と旧トークンの失効は同じトランザクション。失効はactiveな行だけを更新する。
func (u *AuthUsecase) RefreshToken(ctx context.Context, secret string, ip string) (*TokenResponse, error) {
	if strings.TrimSpace(secret) == "" {
		u.metrics.AuthEvent(EventRefresh, "failure")
		return nil, ErrInvalidRefreshToken
	}

	old, err := u.refreshTokens.FindByTokenHash(ctx, auth.HashRefreshToken(secret))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			u.metrics.AuthEvent(EventRefresh, "failure")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	now := u.clock.Now()
	if !old.IsActive(now) {
		//置き換え済みのトークンが再提示された
		if old.ReplacedByTokenHash != nil {
			u.log.Warn("replaced refresh token presented", zap.String("user_id", old.UserID), zap.String("token_id", old.ID), zap.String("ip", ip))
			u.recordAudit(ctx, u.auditEntry(old.UserID, model.AuditActionRefreshTokenReuse, model.AuditResourceRefreshToken, old.ID, ip, ""))
		}
		u.metrics.AuthEvent(EventRefresh, "failure")
		return nil, ErrRefreshTokenInactive
	}

	user := old.User
	if user == nil {
		if user, err = u.users.FindByID(ctx, old.UserID); err != nil {
			return nil, err
		}
	}
	roles := user.RoleNames()

	access, next, err := u.mintPair(user, roles)
	if err != nil {
		return nil, err
	}
	successor := u.newRefreshRow(user.ID, next, ip)

	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.RefreshTokens().Create(ctx, successor); err != nil {
			return err
		}
		rev := model.Revocation{
			At:                  now,
			ByIP:                optionalIP(ip),
			Reason:              model.RevokeReasonReplaced,
			ReplacedByTokenHash: &next.Hash,
		}
		if err := r.RefreshTokens().Revoke(ctx, old.ID, rev, now); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, u.auditEntry(user.ID, model.AuditActionRefreshTokenRotated, model.AuditResourceRefreshToken, old.ID, ip, successor.ID))
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotActive) {
			u.log.Info("refresh token rotated concurrently", zap.String("token_id", old.ID))
			u.metrics.AuthEvent(EventRefresh, "failure")
			return nil, ErrRefreshTokenInactive
		}
		return nil, err
	}

	u.metrics.AuthEvent(EventRefresh, "success")
	return toTokenResponse(user, roles, access, next), nil
}

// activeなトークンを失効させたらtrue
func (u *AuthUsecase) RevokeToken(ctx context.Context, secret string, ip string) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, nil
	}

	token, err := u.refreshTokens.FindByTokenHash(ctx, auth.HashRefreshToken(secret))
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			u.metrics.AuthEvent(EventRevoke, "failure")
			return false, nil
		}
		return false, err
	}

	now := u.clock.Now()
	if !token.IsActive(now) {
		u.metrics.AuthEvent(EventRevoke, "failure")
		return false, nil
	}

	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		rev := model.Revocation{At: now, ByIP: optionalIP(ip), Reason: model.RevokeReasonByUser}
		if err := r.RefreshTokens().Revoke(ctx, token.ID, rev, now); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, u.auditEntry(token.UserID, model.AuditActionRefreshTokenRevoked, model.AuditResourceRefreshToken, token.ID, ip, ""))
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotActive) {
			u.metrics.AuthEvent(EventRevoke, "failure")
			return false, nil
		}
		return false, err
	}

	u.metrics.AuthEvent(EventRevoke, "success")
	return true, nil
}

// ログインとトークン発行で共通の照合（ロックアウト込み）
// 呼び出し元には理由を区別しない。ログには残す。
func (u *AuthUsecase) verifyCredentials(ctx context.Context, email string, password string, ip string) (*model.User, error) {
	user, err := u.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			u.log.Info("credential check failed", zap.String("reason", "user_not_found"), zap.String("ip", ip))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := u.clock.Now()
	if user.IsLockedOut(now) {
		u.log.Info("credential check failed", zap.String("reason", "locked_out"), zap.String("user_id", user.ID), zap.String("ip", ip))
		return nil, ErrLockedOut
	}

	if !u.verifier.Verify(password, user.PasswordHash) {
		count, err := u.users.IncrementAccessFailedCount(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		u.log.Info("credential check failed", zap.String("reason", "bad_password"), zap.String("user_id", user.ID), zap.Int("failed_count", count), zap.String("ip", ip))

		if count >= u.lockout.MaxFailedAccessAttempts {
			if err := u.users.SetLockout(ctx, user.ID, now.Add(u.lockout.Duration)); err != nil {
				return nil, err
			}
			u.log.Warn("user locked out", zap.String("user_id", user.ID), zap.Duration("duration", u.lockout.Duration))
			u.recordAudit(ctx, u.auditEntry(user.ID, model.AuditActionUserLockedOut, model.AuditResourceUser, user.ID, ip, ""))
		}
		return nil, ErrInvalidCredentials
	}

	if user.AccessFailedCount > 0 || user.LockoutEnd != nil {
		if err := u.users.ResetAccessFailedCount(ctx, user.ID); err != nil {
			return nil, err
		}
		user.AccessFailedCount = 0
		user.LockoutEnd = nil
	}
	return user, nil
}

func (u *AuthUsecase) mintPair(user *model.User, roles []string) (auth.AccessToken, auth.RefreshSecret, error) {
	access, err := u.tokens.MintAccessToken(user, roles)
	if err != nil {
		return auth.AccessToken{}, auth.RefreshSecret{}, err
	}
	refresh, err := u.tokens.MintRefreshToken()
	if err != nil {
		return auth.AccessToken{}, auth.RefreshSecret{}, err
	}
	return access, refresh, nil
}

func (u *AuthUsecase) newRefreshRow(userID string, s auth.RefreshSecret, ip string) *model.RefreshToken {
	return &model.RefreshToken{
		ID:          u.idGen.NewID(),
		TokenHash:   s.Hash,
		UserID:      userID,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   u.clock.Now(),
		CreatedByIP: optionalIP(ip),
	}
}

func (u *AuthUsecase) auditEntry(actor string, action model.AuditAction, rt model.AuditResourceType, resourceID string, ip string, detail string) model.AuditLog {
	return model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: rt,
		ResourceID:   resourceID,
		IP:           ip,
		Detail:       detail,
		CreatedAt:    u.clock.Now(),
	}
}

// トランザクション外の監査ログは失敗しても処理は続ける
func (u *AuthUsecase) recordAudit(ctx context.Context, entry model.AuditLog) {
	if err := u.auditLogs.Create(ctx, entry); err != nil {
		u.log.Error("audit log write failed", zap.String("action", string(entry.Action)), zap.Error(err))
	}
}

func toIdentity(user *model.User, roles []string) auth.Identity {
	name := user.Email
	if user.DisplayName != nil && *user.DisplayName != "" {
		name = *user.DisplayName
	}
	return auth.Identity{UserID: user.ID, Email: user.Email, Name: name, Roles: roles}
}

// model.UserをAPI返却用DTOに変換。
func toUserMe(user *model.User, roles []string) UserMeResponse {
	if roles == nil {
		roles = []string{}
	}
	return UserMeResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Phone:       user.Phone,
		Roles:       roles,
	}
}

func toTokenResponse(user *model.User, roles []string, access auth.AccessToken, refresh auth.RefreshSecret) *TokenResponse {
	return &TokenResponse{
		AccessToken:           access.Value,
		RefreshToken:          refresh.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		User:                  toUserMe(user, roles),
	}
}

func optionalIP(ip string) *string {
	if ip == "" {
		return nil
	}
	return &ip
}
