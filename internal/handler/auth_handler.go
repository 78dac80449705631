package handler

import (
	"context"
	"net/http"

	"tekelbayim/internal/middleware"
	"tekelbayim/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// handlerが使う認証usecaseの約束
type AuthService interface {
	Login(ctx context.Context, req usecase.LoginRequest, ip string) (*usecase.LoginResult, error)
	Register(ctx context.Context, req usecase.RegisterRequest, ip string) (*usecase.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	GetCurrentUser(ctx context.Context, userID string) (*usecase.UserMeResponse, error)
	GenerateToken(ctx context.Context, req usecase.TokenRequest, ip string) (*usecase.TokenResponse, error)
	RefreshToken(ctx context.Context, secret string, ip string) (*usecase.TokenResponse, error)
	RevokeToken(ctx context.Context, secret string, ip string) (bool, error)
}

type AuthHandler struct {
	svc     AuthService
	cookies *middleware.SessionCookies
	log     *zap.Logger
}

// DIコンストラクタ
func NewAuthHandler(svc AuthService, cookies *middleware.SessionCookies, log *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies, log: log}
}

// /api/auth 配下のルートを登録（throttleは資格情報を受けるAPIだけ）
func (h *AuthHandler) RegisterRoutes(g *echo.Group, throttle echo.MiddlewareFunc) {
	a := g.Group("/auth")

	a.POST("/login", h.Login, throttle)
	a.POST("/register", h.Register, throttle)
	a.POST("/token", h.Token, throttle)
	a.POST("/refresh-token", h.RefreshToken, throttle)
	a.GET("/access-denied", h.AccessDenied)

	a.POST("/logout", h.Logout, middleware.RequireAuthenticated())
	a.GET("/me", h.Me, middleware.RequireAuthenticated())
	a.POST("/revoke-token", h.RevokeToken, middleware.RequireAuthenticated())
}

// POST /api/auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	var req usecase.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid request body"))
	}

	res, err := h.svc.Login(c.Request().Context(), req, middleware.ClientIP(c.Request()))
	if err != nil {
		return writeError(c, h.log, err)
	}

	h.cookies.Set(c, res.Session)
	return c.JSON(http.StatusOK, res.User)
}

// POST /api/auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid request body"))
	}

	res, err := h.svc.Register(c.Request().Context(), req, middleware.ClientIP(c.Request()))
	if err != nil {
		return writeError(c, h.log, err)
	}

	h.cookies.Set(c, res.Session)
	return c.JSON(http.StatusCreated, res.User)
}

// POST /api/auth/logout（Cookieを消す。何度呼んでも200）
func (h *AuthHandler) Logout(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)

	userID := ""
	if id != nil {
		userID = id.UserID
	}
	if err := h.svc.Logout(c.Request().Context(), userID); err != nil {
		return writeError(c, h.log, err)
	}

	h.cookies.Clear(c)
	return c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
	}

	me, err := h.svc.GetCurrentUser(c.Request().Context(), id.UserID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	//トークンは有効でもユーザーが消えている
	if me == nil {
		return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
	}

	return c.JSON(http.StatusOK, me)
}

// POST /api/auth/token
func (h *AuthHandler) Token(c echo.Context) error {
	var req usecase.TokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid request body"))
	}

	res, err := h.svc.GenerateToken(c.Request().Context(), req, middleware.ClientIP(c.Request()))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req usecase.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid request body"))
	}

	res, err := h.svc.RefreshToken(c.Request().Context(), req.RefreshToken, middleware.ClientIP(c.Request()))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// POST /api/auth/revoke-token
func (h *AuthHandler) RevokeToken(c echo.Context) error {
	var req usecase.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid request body"))
	}

	ok, err := h.svc.RevokeToken(c.Request().Context(), req.RefreshToken, middleware.ClientIP(c.Request()))
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid token"))
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "token revoked"})
}

// GET /api/auth/access-denied
func (h *AuthHandler) AccessDenied(c echo.Context) error {
	return c.JSON(http.StatusForbidden, errorJSON("access denied"))
}
