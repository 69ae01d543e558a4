package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/models"
)

const maxPageSize = 100

// listCases handles GET /api/cases for the monitoring dashboard.
func (s *Server) listCases(c *gin.Context) {
	filters, err := parseCaseListQuery(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	page, err := s.deps.Monitoring.ListCases(c.Request.Context(), *filters)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getCaseDetail handles GET /api/cases/:id.
func (s *Server) getCaseDetail(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid case id")
		return
	}
	detail, err := s.deps.Monitoring.GetCaseDetail(c.Request.Context(), caseID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// parseCaseListQuery resolves the dashboard's local-date filters into UTC
// activity bounds. With neither date given the window is today in UTC.
func parseCaseListQuery(c *gin.Context) (*models.CaseListFilters, error) {
	filters := &models.CaseListFilters{Page: 1, PageSize: 20}

	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("page must be a positive integer")
		}
		filters.Page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			return nil, fmt.Errorf("page_size must be between 1 and %d", maxPageSize)
		}
		filters.PageSize = n
	}
	if raw := c.Query("status"); raw != "" {
		status := models.CaseStatus(raw)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q", raw)
		}
		filters.Status = &status
	}

	offsetMinutes := 0
	if raw := c.Query("tz_offset_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < -14*60 || n > 14*60 {
			return nil, fmt.Errorf("tz_offset_minutes must be a minute offset between -840 and 840")
		}
		offsetMinutes = n
	}
	loc := time.FixedZone("query", offsetMinutes*60)

	fromRaw, toRaw := c.Query("from_date"), c.Query("to_date")
	if fromRaw == "" && toRaw == "" {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		from, to := today, today.Add(24*time.Hour)
		filters.ActivityFrom, filters.ActivityTo = &from, &to
		return filters, nil
	}
	if fromRaw != "" {
		day, err := time.ParseInLocation("2006-01-02", fromRaw, loc)
		if err != nil {
			return nil, fmt.Errorf("from_date must be YYYY-MM-DD")
		}
		from := day.UTC()
		filters.ActivityFrom = &from
	}
	if toRaw != "" {
		day, err := time.ParseInLocation("2006-01-02", toRaw, loc)
		if err != nil {
			return nil, fmt.Errorf("to_date must be YYYY-MM-DD")
		}
		// Inclusive end date: the bound is midnight after it.
		to := day.AddDate(0, 0, 1).UTC()
		filters.ActivityTo = &to
	}
	if filters.ActivityFrom != nil && filters.ActivityTo != nil &&
		filters.ActivityTo.Before(*filters.ActivityFrom) {
		return nil, fmt.Errorf("to_date is before from_date")
	}
	return filters, nil
}
