package handler

import (
	"errors"
	"net/http"

	"tekelbayim/internal/usecase"
	"tekelbayim/internal/validator"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error       string                 `json:"error"`
	Errors      []validator.FieldError `json:"errors,omitempty"`
	IsLockedOut bool                   `json:"is_locked_out,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func errorJSON(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// usecaseのエラーをHTTPステータスに変換
func writeError(c echo.Context, log *zap.Logger, err error) error {
	if ve, ok := validator.AsValidationError(err); ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Errors: ve.Fields})
	}

	switch {
	case errors.Is(err, usecase.ErrEmailInUse):
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  "registration failed",
			Errors: []validator.FieldError{{Field: "email", Message: "Email is already in use"}},
		})
	case errors.Is(err, usecase.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, errorJSON("invalid email or password"))
	case errors.Is(err, usecase.ErrLockedOut):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:       "account is locked out, try again later",
			IsLockedOut: true,
		})
	case errors.Is(err, usecase.ErrInvalidRefreshToken), errors.Is(err, usecase.ErrRefreshTokenInactive):
		return c.JSON(http.StatusUnauthorized, errorJSON("invalid token"))
	default:
		//500
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorJSON("internal error"))
	}
}
