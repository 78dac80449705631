package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tekelbayim/internal/handler"
	"tekelbayim/internal/infra/metrics"
	"tekelbayim/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Deps はサーバーの組み立てに必要なもの
type Deps struct {
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	Auth     *handler.AuthHandler
	Audit    *handler.AdminAuditHandler
	Tokens   *handler.AdminTokenHandler
	Bearer   middleware.Authenticator
	Cookie   middleware.Authenticator
	Limiter  *middleware.IPRateLimiter
	HealthDB func(ctx context.Context) error
}

// New はechoを組み立てる
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(d.Log)

	e.Use(middleware.RequestLogger(d.Log, d.Metrics))
	e.Use(middleware.Authenticate(d.Bearer, d.Cookie, d.Log))

	RegisterRoutes(e, d)
	return e
}

// Start はサーバーを起動し、ctxが終わったらgraceful shutdownする
func Start(ctx context.Context, e *echo.Echo, addr string, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("server shutting down")
	return e.Shutdown(shutdownCtx)
}

// echoのHTTPErrorをJSONにし、それ以外は500として記録する
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := "internal error"

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, handler.ErrorResponse{Error: msg})
	}
}
