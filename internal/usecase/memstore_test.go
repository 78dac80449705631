package usecase_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/repository"
)

// memStore はリポジトリ一式のインメモリ実装（トランザクションは直列化＋失敗時ロールバック）
type memStore struct {
	mu sync.Mutex

	users     map[string]model.User
	userRoles map[string][]string
	tokens    map[string]model.RefreshToken
	audits    []model.AuditLog
	nextAudit int64
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]model.User{},
		userRoles: map[string][]string{},
		tokens:    map[string]model.RefreshToken{},
	}
}

type memSnapshot struct {
	users     map[string]model.User
	userRoles map[string][]string
	tokens    map[string]model.RefreshToken
	audits    []model.AuditLog
	nextAudit int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		users:     make(map[string]model.User, len(s.users)),
		userRoles: make(map[string][]string, len(s.userRoles)),
		tokens:    make(map[string]model.RefreshToken, len(s.tokens)),
		audits:    append([]model.AuditLog(nil), s.audits...),
		nextAudit: s.nextAudit,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.userRoles {
		snap.userRoles[k] = append([]string(nil), v...)
	}
	for k, v := range s.tokens {
		snap.tokens[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.users = snap.users
	s.userRoles = snap.userRoles
	s.tokens = snap.tokens
	s.audits = snap.audits
	s.nextAudit = snap.nextAudit
}

// repos はinTxならロック済み
type memRepos struct {
	s    *memStore
	inTx bool
}

func (r memRepos) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r memRepos) Users() repository.UserRepository                 { return memUsers{r} }
func (r memRepos) RefreshTokens() repository.RefreshTokenRepository { return memTokens{r} }
func (r memRepos) AuditLogs() repository.AuditLogRepository         { return memAudits{r} }

func (s *memStore) repos() memRepos { return memRepos{s: s} }

func (s *memStore) WithinTx(ctx context.Context, fn func(r repository.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(memRepos{s: s, inTx: true}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ---- users ----

type memUsers struct{ memRepos }

func (r memUsers) withRoles(u model.User) *model.User {
	u.Roles = nil
	for _, name := range r.s.userRoles[u.ID] {
		u.Roles = append(u.Roles, model.Role{Name: name})
	}
	return &u
}

func (r memUsers) Create(ctx context.Context, user *model.User) error {
	defer r.lock()()
	user.NormalizedEmail = model.NormalizeEmail(user.Email)
	for _, u := range r.s.users {
		if u.NormalizedEmail == user.NormalizedEmail {
			return repository.ErrEmailAlreadyExists
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r memUsers) FindByID(ctx context.Context, id string) (*model.User, error) {
	defer r.lock()()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return r.withRoles(u), nil
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	defer r.lock()()
	n := model.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.NormalizedEmail == n {
			return r.withRoles(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r memUsers) GetRoles(ctx context.Context, userID string) ([]string, error) {
	defer r.lock()()
	roles := append([]string{}, r.s.userRoles[userID]...)
	sort.Strings(roles)
	return roles, nil
}

func (r memUsers) AddToRole(ctx context.Context, userID string, roleName string) error {
	defer r.lock()()
	for _, have := range r.s.userRoles[userID] {
		if have == roleName {
			return nil
		}
	}
	r.s.userRoles[userID] = append(r.s.userRoles[userID], roleName)
	return nil
}

func (r memUsers) IncrementAccessFailedCount(ctx context.Context, userID string) (int, error) {
	defer r.lock()()
	u, ok := r.s.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	u.AccessFailedCount++
	r.s.users[userID] = u
	return u.AccessFailedCount, nil
}

func (r memUsers) SetLockout(ctx context.Context, userID string, end time.Time) error {
	defer r.lock()()
	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LockoutEnd = &end
	u.AccessFailedCount = 0
	r.s.users[userID] = u
	return nil
}

func (r memUsers) ResetAccessFailedCount(ctx context.Context, userID string) error {
	defer r.lock()()
	u, ok := r.s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.LockoutEnd = nil
	u.AccessFailedCount = 0
	r.s.users[userID] = u
	return nil
}

// ---- refresh tokens ----

type memTokens struct{ memRepos }

func (r memTokens) Create(ctx context.Context, token *model.RefreshToken) error {
	defer r.lock()()
	t := *token
	t.User = nil
	r.s.tokens[t.ID] = t
	return nil
}

func (r memTokens) FindByTokenHash(ctx context.Context, hash string) (*model.RefreshToken, error) {
	defer r.lock()()
	for _, t := range r.s.tokens {
		if t.TokenHash == hash {
			if u, ok := r.s.users[t.UserID]; ok {
				t.User = memUsers{r.memRepos}.withRoles(u)
			}
			return &t, nil
		}
	}
	return nil, repository.ErrRefreshTokenNotFound
}

func (r memTokens) Revoke(ctx context.Context, tokenID string, rev model.Revocation, now time.Time) error {
	defer r.lock()()
	t, ok := r.s.tokens[tokenID]
	if !ok || t.RevokedAt != nil || !now.Before(t.ExpiresAt) {
		return repository.ErrRefreshTokenNotActive
	}
	at := rev.At
	reason := rev.Reason
	t.RevokedAt = &at
	t.RevokedByIP = rev.ByIP
	t.RevokeReason = &reason
	t.ReplacedByTokenHash = rev.ReplacedByTokenHash
	r.s.tokens[tokenID] = t
	return nil
}

func (r memTokens) ListByUserID(ctx context.Context, userID string) ([]model.RefreshToken, error) {
	defer r.lock()()
	var out []model.RefreshToken
	for _, t := range r.s.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- audit logs ----

type memAudits struct{ memRepos }

func (r memAudits) Create(ctx context.Context, log model.AuditLog) error {
	defer r.lock()()
	r.s.nextAudit++
	log.ID = r.s.nextAudit
	r.s.audits = append(r.s.audits, log)
	return nil
}

func (r memAudits) List(ctx context.Context, f repository.AuditLogFilter) ([]model.AuditLog, error) {
	defer r.lock()()
	var out []model.AuditLog
	for _, a := range r.s.audits {
		if f.Action != nil && a.Action != *f.Action {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) auditActions() []model.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditAction, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}
