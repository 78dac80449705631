package middleware

import (
	"strconv"
	"time"

	"tekelbayim/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger はアクセスログとHTTPメトリクスを記録する
func RequestLogger(log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()

			start := time.Now()
			err := next(c)
			if err != nil {
				//HTTPErrorHandlerでステータスを確定させる
				c.Error(err)
			}
			latency := time.Since(start)

			req := c.Request()
			status := c.Response().Status
			path := c.Path() //ルート定義（/api/auth/me 等）でラベルを絞る
			if path == "" {
				path = "unmatched"
			}
			code := strconv.Itoa(status)

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, code).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, code).Observe(latency.Seconds())

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("ip", ClientIP(req)),
			}
			if id, ok := IdentityFrom(c); ok {
				fields = append(fields, zap.String("user_id", id.UserID))
			}

			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		}
	}
}
