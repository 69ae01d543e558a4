package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

// listPrompts handles GET /api/admin/prompts.
func (s *Server) listPrompts(c *gin.Context) {
	versions, err := s.deps.Admin.ListPromptVersions(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompts": versions})
}

// getPromptVersion handles GET /api/admin/prompts/:name/:version.
func (s *Server) getPromptVersion(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		respondError(c, http.StatusBadRequest, "validation_error", "version must be a positive integer")
		return
	}
	prompt, err := s.deps.Admin.GetPromptVersion(c.Request.Context(), c.Param("name"), version)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// activatePrompt handles POST /api/admin/prompts/:name/activate.
func (s *Server) activatePrompt(c *gin.Context) {
	var body struct {
		Version int `json:"version"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Version < 1 {
		respondError(c, http.StatusBadRequest, "validation_error", "version must be a positive integer")
		return
	}
	prompt, err := s.deps.Admin.ActivatePromptVersion(c.Request.Context(), c.Param("name"), body.Version, currentUser(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// createPromptVersion handles POST /api/admin/prompts/:name: a new inactive
// version derived from an existing one.
func (s *Server) createPromptVersion(c *gin.Context) {
	var body struct {
		SourceVersion int    `json:"source_version"`
		Content       string `json:"content"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.SourceVersion < 1 {
		respondError(c, http.StatusBadRequest, "validation_error", "source_version must be a positive integer")
		return
	}
	prompt, err := s.deps.Admin.CreatePromptVersion(c.Request.Context(),
		c.Param("name"), body.SourceVersion, body.Content, currentUser(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, prompt)
}

// listUsers handles GET /api/admin/users.
func (s *Server) listUsers(c *gin.Context) {
	users, err := s.deps.Admin.ListUsers(c.Request.Context())
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// createUser handles POST /api/admin/users.
func (s *Server) createUser(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	role := models.Role(body.Role)
	if !role.Valid() {
		respondError(c, http.StatusBadRequest, "validation_error", "role must be admin or reader")
		return
	}
	user, err := s.deps.Admin.CreateUser(c.Request.Context(), body.Email, body.Password, role, currentUser(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// listDeadJobs handles GET /api/admin/jobs/dead: the dead-letter queue,
// newest first, for operator triage.
func (s *Server) listDeadJobs(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			respondError(c, http.StatusBadRequest, "validation_error", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	jobs, err := s.deps.Admin.ListDeadJobs(c.Request.Context(), limit)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) blockUser(c *gin.Context)    { s.changeUserStatus(c, s.deps.Admin.BlockUser) }
func (s *Server) activateUser(c *gin.Context) { s.changeUserStatus(c, s.deps.Admin.ActivateUser) }
func (s *Server) removeUser(c *gin.Context)   { s.changeUserStatus(c, s.deps.Admin.RemoveUser) }

func (s *Server) changeUserStatus(c *gin.Context,
	apply func(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error)) {
	targetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid user id")
		return
	}
	user, err := apply(c.Request.Context(), targetID, currentUser(c))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
