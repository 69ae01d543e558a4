package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// login handles POST /auth/login and returns an opaque bearer token.
func (s *Server) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		respondError(c, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	ip := c.ClientIP()
	ua := c.Request.UserAgent()
	var ipPtr, uaPtr *string
	if ip != "" {
		ipPtr = &ip
	}
	if ua != "" {
		uaPtr = &ua
	}

	result, err := s.deps.Auth.Login(c.Request.Context(), body.Email, body.Password, ipPtr, uaPtr)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
