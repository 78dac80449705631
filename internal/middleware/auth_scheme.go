package middleware

import (
	"net/http"
	"strings"

	auth "tekelbayim/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const CtxIdentityKey = "identity" // *auth.Identity

// Authenticator はリクエストから呼び出し元を取り出す。nil, nil は匿名。
type Authenticator interface {
	Authenticate(c echo.Context) (*auth.Identity, error)
}

// SelectScheme はAuthorizationが "Bearer " で始まればBearer、それ以外はCookie
func SelectScheme(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if len(authz) >= len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return auth.SchemeBearer
	}
	return auth.SchemeCookie
}

// Authenticate はリクエストごとに1回だけ方式を選んで認証する。
// 失敗しても匿名として続行し、401/403はガードが返す。
func Authenticate(bearer Authenticator, cookie Authenticator, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var a Authenticator = cookie
			scheme := SelectScheme(c.Request())
			if scheme == auth.SchemeBearer {
				a = bearer
			}

			id, err := a.Authenticate(c)
			if err != nil {
				log.Debug("authentication failed", zap.String("scheme", scheme), zap.Error(err))
				id = nil
			}

			if id != nil {
				c.Set(CtxIdentityKey, id)
				c.SetRequest(c.Request().WithContext(auth.WithIdentity(c.Request().Context(), id)))
			}
			return next(c)
		}
	}
}

// IdentityFrom はecho contextから認証済みの呼び出し元を取り出す
func IdentityFrom(c echo.Context) (*auth.Identity, bool) {
	id, ok := c.Get(CtxIdentityKey).(*auth.Identity)
	if !ok || id == nil {
		return nil, false
	}
	return id, true
}
