package auth

import (
	"errors"
	"fmt"
	"time"

	"tekelbayim/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")
)

// アクセストークンと混ざらないようにaudienceを分ける
const sessionAudienceSuffix = ".Session"

type sessionClaims struct {
	Email      string   `json:"email"`
	Name       string   `json:"name,omitempty"`
	Roles      []string `json:"role"`
	Persistent bool     `json:"persistent"`
	jwt.RegisteredClaims
}

// Session はCookieに入れる署名付きセッション
type Session struct {
	Value      string
	Identity   Identity
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Persistent bool // rememberMe（Cookieに Expires を付ける）
}

// SessionCodec はセッションCookieの値を発行/検証する
type SessionCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    Clock
}

func NewSessionCodec(cfg config.SessionSettings, issuer string, clock Clock) *SessionCodec {
	return &SessionCodec{
		secret:   []byte(cfg.Secret),
		issuer:   issuer,
		audience: issuer + sessionAudienceSuffix,
		ttl:      cfg.TTL,
		clock:    clock,
	}
}

// Issue は新しいセッションを発行（有効期限は now + TTL）
func (s *SessionCodec) Issue(id Identity, persistent bool) (Session, error) {
	now := s.clock.Now()
	iat := now.Truncate(time.Second)
	exp := now.Add(s.ttl).Truncate(time.Second)

	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}

	claims := sessionClaims{
		Email:      id.Email,
		Name:       id.Name,
		Roles:      roles,
		Persistent: persistent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}

	id.Roles = roles
	id.Scheme = SchemeCookie
	return Session{
		Value:      signed,
		Identity:   id,
		IssuedAt:   iat,
		ExpiresAt:  exp,
		Persistent: persistent,
	}, nil
}

// Parse はCookieの値を検証してセッションを返す
func (s *SessionCodec) Parse(raw string) (*Session, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if token == nil || !token.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrSessionInvalid
	}

	return &Session{
		Value: raw,
		Identity: Identity{
			UserID: claims.Subject,
			Email:  claims.Email,
			Name:   claims.Name,
			Roles:  claims.Roles,
			Scheme: SchemeCookie,
		},
		//NumericDateはLocalで復元されるのでUTCに揃える
		IssuedAt:   claims.IssuedAt.Time.UTC(),
		ExpiresAt:  claims.ExpiresAt.Time.UTC(),
		Persistent: claims.Persistent,
	}, nil
}

// スライディング：有効期間の半分を過ぎたら再発行
func (s *SessionCodec) NeedsRenewal(sess *Session) bool {
	if sess == nil {
		return false
	}
	half := sess.ExpiresAt.Sub(sess.IssuedAt) / 2
	return !s.clock.Now().Before(sess.IssuedAt.Add(half))
}

// Renew は同じ内容で期限だけ延ばしたセッションを発行
func (s *SessionCodec) Renew(sess *Session) (Session, error) {
	return s.Issue(sess.Identity, sess.Persistent)
}

func (s *SessionCodec) TTL() time.Duration {
	return s.ttl
}
