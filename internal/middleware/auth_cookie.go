package middleware

import (
	"net/http"

	auth "tekelbayim/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
)

// セッションを検証/再発行する約束
type SessionParser interface {
	Parse(raw string) (*auth.Session, error)
	NeedsRenewal(s *auth.Session) bool
	Renew(s *auth.Session) (auth.Session, error)
}

// CookieAuthenticator はセッションCookieを検証する（半分過ぎたら再発行）
type CookieAuthenticator struct {
	sessions SessionParser
	cookies  *SessionCookies
}

func NewCookieAuthenticator(sessions SessionParser, cookies *SessionCookies) *CookieAuthenticator {
	return &CookieAuthenticator{sessions: sessions, cookies: cookies}
}

func (a *CookieAuthenticator) Authenticate(c echo.Context) (*auth.Identity, error) {
	ck, err := c.Cookie(a.cookies.Name())
	if err != nil || ck.Value == "" {
		return nil, nil
	}

	sess, err := a.sessions.Parse(ck.Value)
	if err != nil {
		return nil, err
	}

	if a.sessions.NeedsRenewal(sess) {
		renewed, err := a.sessions.Renew(sess)
		if err != nil {
			return nil, err
		}
		a.cookies.Set(c, renewed)
		sess = &renewed
	}

	id := sess.Identity
	return &id, nil
}

// SessionCookies はセッションCookieの書き込み/削除
type SessionCookies struct {
	name   string
	secure bool
}

func NewSessionCookies(name string, secure bool) *SessionCookies {
	return &SessionCookies{name: name, secure: secure}
}

func (s *SessionCookies) Name() string {
	return s.name
}

// rememberMeのときだけExpiresを付ける（それ以外はブラウザを閉じたら消える）
func (s *SessionCookies) Set(c echo.Context, sess auth.Session) {
	cookie := &http.Cookie{
		Name:     s.name,
		Value:    sess.Value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Persistent {
		cookie.Expires = sess.ExpiresAt
	}
	c.SetCookie(cookie)
}

func (s *SessionCookies) Clear(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
