package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
	"github.com/noah-isme/uce-api/pkg/response"
)

type activityService interface {
	Get(ctx context.Context, id int64) (*models.ActivityDetail, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, *models.Pagination, error)
	UpdateStatus(ctx context.Context, id int64, status models.ActivityStatus) (*models.ActivityDetail, error)
}

// ActivityHandler exposes read access to approved activities.
type ActivityHandler struct {
	service activityService
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service activityService) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// List godoc
// @Summary List activities
// @Tags Activities
// @Produce json
// @Param status query string false "Activity status"
// @Param department_id query int false "Department filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "activity service not configured"))
		return
	}
	filter := models.ActivityFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		filter.Status = models.ActivityStatus(strings.ToUpper(raw))
	}
	if raw := c.Query("department_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.DepartmentID = id
		}
	}
	activities, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, pagination)
}

// Get godoc
// @Summary Get activity detail
// @Tags Activities
// @Produce json
// @Param id path int true "Activity ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id} [get]
func (h *ActivityHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "activity service not configured"))
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid activity id"))
		return
	}
	activity, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// UpdateStatus godoc
// @Summary Update activity status
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path int true "Activity ID"
// @Param payload body object true "New status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /activities/{id}/status [patch]
func (h *ActivityHandler) UpdateStatus(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "activity service not configured"))
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid activity id"))
		return
	}
	var payload struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	activity, err := h.service.UpdateStatus(c.Request.Context(), id, models.ActivityStatus(strings.ToUpper(payload.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}
