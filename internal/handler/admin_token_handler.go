package handler

import (
	"net/http"
	"time"

	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/repository"
	auth "tekelbayim/internal/usecase/auth_usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AdminTokenHandler struct {
	refreshTokens repository.RefreshTokenRepository
	clock         auth.Clock
	log           *zap.Logger
}

func NewAdminTokenHandler(refreshTokens repository.RefreshTokenRepository, clock auth.Clock, log *zap.Logger) *AdminTokenHandler {
	return &AdminTokenHandler{refreshTokens: refreshTokens, clock: clock, log: log}
}

// GET /api/admin/users/:id/refresh-tokens（ガードは呼び出し側のグループで付ける）
func (h *AdminTokenHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/users/:id/refresh-tokens", h.ListByUser)
}

// ハッシュは返さない
type refreshTokenView struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"createdAt"`
	CreatedByIP  *string    `json:"createdByIp"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RevokedAt    *time.Time `json:"revokedAt"`
	RevokedByIP  *string    `json:"revokedByIp"`
	RevokeReason *string    `json:"revokeReason"`
	Replaced     bool       `json:"replaced"`
	Active       bool       `json:"active"`
}

type refreshTokenListResponse struct {
	UserID string             `json:"userId"`
	Items  []refreshTokenView `json:"items"`
}

func (h *AdminTokenHandler) ListByUser(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorJSON("invalid user id"))
	}

	tokens, err := h.refreshTokens.ListByUserID(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}

	now := h.clock.Now()
	items := make([]refreshTokenView, 0, len(tokens))
	for i := range tokens {
		items = append(items, toRefreshTokenView(&tokens[i], now))
	}

	return c.JSON(http.StatusOK, refreshTokenListResponse{UserID: userID, Items: items})
}

func toRefreshTokenView(t *model.RefreshToken, now time.Time) refreshTokenView {
	return refreshTokenView{
		ID:           t.ID,
		CreatedAt:    t.CreatedAt,
		CreatedByIP:  t.CreatedByIP,
		ExpiresAt:    t.ExpiresAt,
		RevokedAt:    t.RevokedAt,
		RevokedByIP:  t.RevokedByIP,
		RevokeReason: t.RevokeReason,
		Replaced:     t.ReplacedByTokenHash != nil,
		Active:       t.IsActive(now),
	}
}
