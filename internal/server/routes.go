package server

import (
	"net/http"

	"tekelbayim/internal/domain/model"
	"tekelbayim/internal/middleware"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", func(c echo.Context) error {
		if d.HealthDB != nil {
			if err := d.HealthDB(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))

	api := e.Group("/api")
	d.Auth.RegisterRoutes(api, d.Limiter.Middleware())

	// /api/admin 配下は Admin/Manager 限定
	admin := api.Group("/admin", middleware.RequireRoles(model.RoleAdmin, model.RoleManager))
	d.Audit.RegisterRoutes(admin)
	d.Tokens.RegisterRoutes(admin)
}
