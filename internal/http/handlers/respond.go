package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondServiceError renders an error coming out of the core by its kind.
// The message of a known kind is safe to show; anything else is internal and
// only reaches the log.
func RespondServiceError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		RespondError(ctx, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, apperr.ErrUnauthenticated):
		RespondUnauthorized(ctx, "unauthenticated", "Missing, invalid or expired access token.")
	case errors.Is(err, apperr.ErrForbidden):
		RespondError(ctx, http.StatusForbidden, "forbidden", "You are not allowed to perform this action.", nil)
	case errors.Is(err, apperr.ErrNotFound):
		RespondNotFound(ctx, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		RespondError(ctx, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		slog.Default().ErrorContext(ctx.Request.Context(), "request failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
		RespondInternal(ctx, "Something went wrong. Please try again.")
	}
}
