package auth

import "context"

// 認証方式
const (
	SchemeBearer = "Bearer"
	SchemeCookie = "Cookie"
)

// Identity は認証済みの呼び出し元
type Identity struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
	Scheme string
}

// いずれかのロールを持つか
func (i *Identity) HasAnyRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range i.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity はcontextにIdentityを入れる
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFrom はcontextからIdentityを取り出す（匿名ならfalse）
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
