package middleware

import (
	"errors"
	"strings"

	auth "tekelbayim/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

// 期限切れのときに付けるヘッダ
const HeaderTokenExpired = "Token-Expired"

// アクセストークンを検証する約束
type AccessTokenValidator interface {
	ValidateAccessToken(raw string) (*auth.AccessClaims, error)
}

// BearerAuthenticator は Authorization: Bearer のJWTを検証する
type BearerAuthenticator struct {
	tokens AccessTokenValidator
}

func NewBearerAuthenticator(tokens AccessTokenValidator) *BearerAuthenticator {
	return &BearerAuthenticator{tokens: tokens}
}

func (b *BearerAuthenticator) Authenticate(c echo.Context) (*auth.Identity, error) {
	//Bearer形式か確認してtokenを抜く
	authz := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, nil
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return nil, auth.ErrAccessTokenInvalid
	}

	claims, err := b.tokens.ValidateAccessToken(rawToken)
	if err != nil {
		if errors.Is(err, auth.ErrAccessTokenExpired) {
			c.Response().Header().Set(HeaderTokenExpired, "true")
		}
		return nil, err
	}

	return &auth.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Roles:  claims.Roles,
		Scheme: auth.SchemeBearer,
	}, nil
}
