package handler

import (
	"net/http"
	"strconv"
	"time"

	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/repository"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type AdminAuditHandler struct {
	auditLogs repository.AuditLogRepository
	log       *zap.Logger
}

func NewAdminAuditHandler(auditLogs repository.AuditLogRepository, log *zap.Logger) *AdminAuditHandler {
	return &AdminAuditHandler{auditLogs: auditLogs, log: log}
}

// GET /api/admin/audit-logs（ガードは呼び出し側のグループで付ける）
func (h *AdminAuditHandler) RegisterRoutes(admin *echo.Group) {
	admin.GET("/audit-logs", h.List)
}

type auditLogListResponse struct {
	Items  []model.AuditLog `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func (h *AdminAuditHandler) List(c echo.Context) error {
	var f repository.AuditLogFilter

	if v := c.QueryParam("actor_user_id"); v != "" {
		f.ActorUserID = &v
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(v)
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(v)
		f.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		f.ResourceID = &v
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorJSON("invalid from"))
		}
		f.CreatedFrom = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorJSON("invalid to"))
		}
		f.CreatedTo = &t
	}

	// limit（default 50）
	f.Limit = 50
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 || l > 200 {
			return c.JSON(http.StatusBadRequest, errorJSON("invalid limit"))
		}
		f.Limit = l
	}
	if v := c.QueryParam("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil || o < 0 {
			return c.JSON(http.StatusBadRequest, errorJSON("invalid offset"))
		}
		f.Offset = o
	}

	logs, err := h.auditLogs.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}

	return c.JSON(http.StatusOK, auditLogListResponse{Items: logs, Limit: f.Limit, Offset: f.Offset})
}
