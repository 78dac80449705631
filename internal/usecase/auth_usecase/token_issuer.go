package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tekelbayim/internal/config"
	"tekelbayim/internal/domain/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// 期限切れ（Token-Expiredヘッダを付ける）
	ErrAccessTokenExpired = errors.New("access token expired")
	// 署名・iss・aud・alg などが不正
	ErrAccessTokenInvalid = errors.New("access token invalid")
)

// リフレッシュトークンの乱数バイト数
const refreshTokenBytes = 64

// AccessClaims はアクセストークンのclaims
type AccessClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"role"`
	jwt.RegisteredClaims
}

// 発行したアクセストークン
type AccessToken struct {
	Value     string
	ID        string // jti
	ExpiresAt time.Time
}

// 発行したリフレッシュトークン（Valueは平文、DBにはHashだけ保存）
type RefreshSecret struct {
	Value     string
	Hash      string
	ExpiresAt time.Time
}

// JWTIssuer はHS256のアクセストークンと不透明なリフレッシュトークンを作る
type JWTIssuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
	idGen      IDGenerator
}

// DI
func NewJWTIssuer(cfg config.JWTSettings, clock Clock, idGen IDGenerator) *JWTIssuer {
	return &JWTIssuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		clock:      clock,
		idGen:      idGen,
	}
}

// jwt発行
func (i *JWTIssuer) MintAccessToken(user *model.User, roles []string) (AccessToken, error) {
	now := i.clock.Now()
	//expは秒精度なので丸めた値を返す
	exp := now.Add(i.accessTTL).Truncate(time.Second)
	jti := i.idGen.NewID()

	if roles == nil {
		roles = []string{}
	}

	claims := AccessClaims{
		Email: user.Email,
		Name:  displayNameOrEmail(user),
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}

	return AccessToken{Value: signed, ID: jti, ExpiresAt: exp}, nil
}

// ValidateAccessToken は署名・alg・iss・aud・exp（猶予なし）を検証する。
func (i *JWTIssuer) ValidateAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrAccessTokenInvalid
	}
	if token == nil || !token.Valid || claims.Subject == "" {
		return nil, ErrAccessTokenInvalid
	}

	return claims, nil
}

// リフレッシュトークン生成（64バイト乱数をbase64）
func (i *JWTIssuer) MintRefreshToken() (RefreshSecret, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return RefreshSecret{}, fmt.Errorf("generate refresh token: %w", err)
	}

	plain := base64.StdEncoding.EncodeToString(b)
	return RefreshSecret{
		Value:     plain,
		Hash:      HashRefreshToken(plain),
		ExpiresAt: i.clock.Now().Add(i.refreshTTL),
	}, nil
}

// 平文トークンからDB保存用のキーを作る
func HashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

func displayNameOrEmail(u *model.User) string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}
