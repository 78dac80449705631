package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tekelbayim/internal/config"
	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/usecase"
	auth "tekelbayim/internal/usecase/auth_usecase"
	"tekelbayim/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingRecorder struct {
	mu     sync.Mutex
	events map[string]int
}

func (r *countingRecorder) AuthEvent(event string, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event+":"+outcome]++
}

type fixture struct {
	uc      *usecase.AuthUsecase
	store   *memStore
	clock   *testClock
	issuer  *auth.JWTIssuer
	events  *countingRecorder
	lockout config.LockoutSettings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	ids := auth.UUIDGenerator{}
	issuer := auth.NewJWTIssuer(config.JWTSettings{
		Secret:     testSecret,
		Issuer:     "TekelBayim.Api",
		Audience:   "TekelBayim.Clients",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, clock, ids)
	sessions := auth.NewSessionCodec(config.SessionSettings{
		CookieName: config.SessionCookieName,
		Secret:     testSecret,
		TTL:        24 * time.Hour,
	}, "TekelBayim.Api", clock)
	lockout := config.LockoutSettings{MaxFailedAccessAttempts: 5, Duration: 5 * time.Minute}
	events := &countingRecorder{events: map[string]int{}}

	repos := store.repos()
	uc := usecase.NewAuthUsecase(usecase.AuthDeps{
		Users:         repos.Users(),
		RefreshTokens: repos.RefreshTokens(),
		AuditLogs:     repos.AuditLogs(),
		Tx:            store,
		Hasher:        auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		Verifier:      auth.NewBcryptPasswordVerifier(),
		Tokens:        issuer,
		Sessions:      sessions,
		Validator:     validator.NewAuthValidator(),
		IDGen:         ids,
		Clock:         clock,
		Lockout:       lockout,
		Metrics:       events,
	})

	return &fixture{uc: uc, store: store, clock: clock, issuer: issuer, events: events, lockout: lockout}
}

func (f *fixture) register(t *testing.T, email, password string) *usecase.LoginResult {
	t.Helper()
	res, err := f.uc.Register(context.Background(), usecase.RegisterRequest{Email: email, Password: password}, "10.0.0.1")
	require.NoError(t, err)
	return res
}

func TestRegister_CreatesCustomerAndSession(t *testing.T) {
	f := newFixture(t)
	name := "Alice"

	res, err := f.uc.Register(context.Background(), usecase.RegisterRequest{
		Email: "alice@x.io", Password: "Secret#123", DisplayName: &name,
	}, "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "alice@x.io", res.User.Email)
	assert.Equal(t, []string{model.RoleCustomer}, res.User.Roles)
	assert.Equal(t, &name, res.User.DisplayName)
	assert.False(t, res.Session.Persistent)
	assert.Equal(t, res.User.ID, res.Session.Identity.UserID)
	assert.Contains(t, f.store.auditActions(), model.AuditActionUserRegistered)
	assert.Equal(t, 1, f.events.events["register:success"])
}

func TestRegister_CaseInsensitiveDuplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")

	_, err := f.uc.Register(context.Background(), usecase.RegisterRequest{Email: "ALICE@X.IO", Password: "Secret#123"}, "")
	assert.ErrorIs(t, err, usecase.ErrEmailInUse)
}

func TestRegister_ValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Register(context.Background(), usecase.RegisterRequest{Email: "alice@x.io", Password: "weak"}, "")
	ve, ok := validator.AsValidationError(err)
	require.True(t, ok)
	assert.NotEmpty(t, ve.Fields)
}

func TestRegister_PasswordOverBcryptLimit(t *testing.T) {
	f := newFixture(t)

	//ルールは全部満たすが72バイトを超える => 400（ハッシュまで行かない）
	_, err := f.uc.Register(context.Background(), usecase.RegisterRequest{
		Email: "bob@x.io", Password: "Aa1!" + strings.Repeat("x", 80),
	}, "")
	ve, ok := validator.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "password", ve.Fields[0].Field)

	_, err = f.store.repos().Users().FindByEmail(context.Background(), "bob@x.io")
	assert.Error(t, err)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.Register(context.Background(), usecase.RegisterRequest{Email: "race@x.io", Password: "Secret#123"}, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, usecase.ErrEmailInUse)
	}
	assert.Equal(t, 1, ok)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")

	res, err := f.uc.Login(context.Background(), usecase.LoginRequest{Email: "Alice@X.io", Password: "Secret#123", RememberMe: true}, "")
	require.NoError(t, err)
	assert.True(t, res.Session.Persistent)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), res.Session.ExpiresAt)

	//Cookieログインではリフレッシュトークンを作らない
	tokens, err := f.store.repos().RefreshTokens().ListByUserID(context.Background(), res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLogin_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Login(context.Background(), usecase.LoginRequest{Email: "ghost@x.io", Password: "Secret#123"}, "")
	assert.ErrorIs(t, err, usecase.ErrInvalidCredentials)
}

func TestLogin_LockoutBoundary(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()
	bad := usecase.LoginRequest{Email: "alice@x.io", Password: "Wrong#123"}

	// 1..5回目はinvalid credentials（5回目でロック開始）
	for i := 1; i <= f.lockout.MaxFailedAccessAttempts; i++ {
		_, err := f.uc.Login(ctx, bad, "")
		assert.ErrorIs(t, err, usecase.ErrInvalidCredentials, "attempt %d", i)
	}

	// 6回目は正しいパスワードでもロック中
	_, err := f.uc.Login(ctx, usecase.LoginRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	assert.ErrorIs(t, err, usecase.ErrLockedOut)
	assert.Contains(t, f.store.auditActions(), model.AuditActionUserLockedOut)

	// ロック明けは成功し、失敗回数は0
	f.clock.Advance(f.lockout.Duration)
	_, err = f.uc.Login(ctx, usecase.LoginRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	u, err := f.store.repos().Users().FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.AccessFailedCount)
	assert.Nil(t, u.LockoutEnd)
}

func TestLogin_SuccessResetsFailedCount(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.uc.Login(ctx, usecase.LoginRequest{Email: "alice@x.io", Password: "nope"}, "")
	}
	u, _ := f.store.repos().Users().FindByID(ctx, reg.User.ID)
	assert.Equal(t, 3, u.AccessFailedCount)

	_, err := f.uc.Login(ctx, usecase.LoginRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	u, _ = f.store.repos().Users().FindByID(ctx, reg.User.ID)
	assert.Equal(t, 0, u.AccessFailedCount)
}

func TestGenerateToken_SharesLockout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	for i := 0; i < f.lockout.MaxFailedAccessAttempts; i++ {
		_, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Wrong#123"}, "")
		assert.ErrorIs(t, err, usecase.ErrInvalidCredentials)
	}
	_, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	assert.ErrorIs(t, err, usecase.ErrLockedOut)
}

func TestGenerateToken_IssuesPair(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")

	tr, err := f.uc.GenerateToken(context.Background(), usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "10.0.0.9")
	require.NoError(t, err)

	claims, err := f.issuer.ValidateAccessToken(tr.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.Subject)
	assert.Equal(t, []string{model.RoleCustomer}, claims.Roles)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), tr.AccessTokenExpiresAt)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), tr.RefreshTokenExpiresAt)

	tokens, err := f.store.repos().RefreshTokens().ListByUserID(context.Background(), reg.User.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, auth.HashRefreshToken(tr.RefreshToken), tokens[0].TokenHash)
	require.NotNil(t, tokens[0].CreatedByIP)
	assert.Equal(t, "10.0.0.9", *tokens[0].CreatedByIP)
}

func TestRefreshToken_RotationChain(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	tr, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	const n = 4
	secrets := []string{tr.RefreshToken}
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second)
		next, err := f.uc.RefreshToken(ctx, secrets[len(secrets)-1], "10.0.0.2")
		require.NoError(t, err)
		assert.NotEqual(t, secrets[len(secrets)-1], next.RefreshToken)
		secrets = append(secrets, next.RefreshToken)
	}

	tokens, err := f.store.repos().RefreshTokens().ListByUserID(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Len(t, tokens, n+1)

	now := f.clock.Now()
	for i, tok := range tokens {
		assert.Equal(t, auth.HashRefreshToken(secrets[i]), tok.TokenHash)
		if i == n {
			assert.True(t, tok.IsActive(now))
			assert.Nil(t, tok.ReplacedByTokenHash)
			continue
		}
		assert.False(t, tok.IsActive(now))
		require.NotNil(t, tok.ReplacedByTokenHash)
		assert.Equal(t, tokens[i+1].TokenHash, *tok.ReplacedByTokenHash)
		require.NotNil(t, tok.RevokeReason)
		assert.Equal(t, model.RevokeReasonReplaced, *tok.RevokeReason)
	}
}

func TestRefreshToken_ReplayRejected(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	tr, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	_, err = f.uc.RefreshToken(ctx, tr.RefreshToken, "")
	require.NoError(t, err)

	_, err = f.uc.RefreshToken(ctx, tr.RefreshToken, "")
	assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)
	assert.Contains(t, f.store.auditActions(), model.AuditActionRefreshTokenReuse)
}

func TestRefreshToken_UnknownAndExpired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	_, err := f.uc.RefreshToken(ctx, "bm9wZQ==", "")
	assert.ErrorIs(t, err, usecase.ErrInvalidRefreshToken)

	_, err = f.uc.RefreshToken(ctx, "", "")
	assert.ErrorIs(t, err, usecase.ErrInvalidRefreshToken)

	tr, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	_, err = f.uc.RefreshToken(ctx, tr.RefreshToken, "")
	assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)
}

func TestRefreshToken_ConcurrentExactlyOneWinner(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	tr, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.uc.RefreshToken(ctx, tr.RefreshToken, "")
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)
	}
	assert.Equal(t, 1, winners)

	//負けた側の後継はロールバックされている
	tokens, err := f.store.repos().RefreshTokens().ListByUserID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestRevokeToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	tr, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	ok, err := f.uc.RevokeToken(ctx, tr.RefreshToken, "10.0.0.3")
	require.NoError(t, err)
	assert.True(t, ok)

	//2回目・未知のトークンはfalse
	ok, err = f.uc.RevokeToken(ctx, tr.RefreshToken, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.uc.RevokeToken(ctx, "unknown", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.uc.RefreshToken(ctx, tr.RefreshToken, "")
	assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)

	tok, err := f.store.repos().RefreshTokens().FindByTokenHash(ctx, auth.HashRefreshToken(tr.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, tok.RevokeReason)
	assert.Equal(t, model.RevokeReasonByUser, *tok.RevokeReason)
	require.NotNil(t, tok.RevokedByIP)
	assert.Equal(t, "10.0.0.3", *tok.RevokedByIP)
}

func TestGetCurrentUser(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "alice@x.io", "Secret#123")
	ctx := context.Background()

	me, err := f.uc.GetCurrentUser(ctx, reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.Equal(t, "alice@x.io", me.Email)
	assert.Equal(t, []string{model.RoleCustomer}, me.Roles)

	me, err = f.uc.GetCurrentUser(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, me)

	me, err = f.uc.GetCurrentUser(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, me)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.uc.Logout(context.Background(), "u1"))
	assert.NoError(t, f.uc.Logout(context.Background(), "u1"))
	assert.NoError(t, f.uc.Logout(context.Background(), ""))
}

// 登録 → トークン発行 → ローテーション → 旧トークン再利用拒否 → 失効 の一連
func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice@x.io", "Secret#123")

	t1, err := f.uc.GenerateToken(ctx, usecase.TokenRequest{Email: "alice@x.io", Password: "Secret#123"}, "")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	t2, err := f.uc.RefreshToken(ctx, t1.RefreshToken, "")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, t2.User.ID)

	// 1本目のアクセストークンはまだ有効、16分後には期限切れ
	_, err = f.issuer.ValidateAccessToken(t1.AccessToken)
	assert.NoError(t, err)
	f.clock.Advance(6 * time.Minute)
	_, err = f.issuer.ValidateAccessToken(t1.AccessToken)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)

	_, err = f.uc.RefreshToken(ctx, t1.RefreshToken, "")
	assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)

	ok, err := f.uc.RevokeToken(ctx, t2.RefreshToken, "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.uc.RefreshToken(ctx, t2.RefreshToken, "")
	assert.ErrorIs(t, err, usecase.ErrRefreshTokenInactive)

	me, err := f.uc.GetCurrentUser(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", me.Email)
}
