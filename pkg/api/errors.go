package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/medops-br/triagebot/pkg/services"
)

// errorBody is the JSON shape of every non-2xx response. Code is a stable
// machine-readable string; Detail is for humans.
type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func respondError(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, errorBody{Code: code, Detail: detail})
}

// writeServiceError maps service-layer errors onto HTTP statuses.
func (s *Server) writeServiceError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(c, http.StatusBadRequest, "validation_error", ve.Error())
	case errors.Is(err, services.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, services.ErrAccountInactive):
		respondError(c, http.StatusForbidden, "account_inactive", "account is not active")
	case errors.Is(err, services.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, services.ErrWrongState), errors.Is(err, services.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "wrong_state", err.Error())
	case errors.Is(err, services.ErrAlreadyExists):
		respondError(c, http.StatusConflict, "already_exists", err.Error())
	default:
		s.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
