package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/internal/service"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
	"github.com/noah-isme/uce-api/pkg/response"
)

type proposalService interface {
	Submit(ctx context.Context, req service.SubmitProposalRequest, actor models.Actor) (*models.ProposalDetail, error)
	Resubmit(ctx context.Context, id int64, req service.SubmitProposalRequest, actor models.Actor) (*models.ProposalDetail, error)
	Get(ctx context.Context, id int64) (*models.ProposalDetail, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.ProposalDetail, *models.Pagination, error)
}

// ProposalHandler exposes REST endpoints for proposal lifecycle operations.
type ProposalHandler struct {
	service proposalService
}

// NewProposalHandler constructs the handler.
func NewProposalHandler(service proposalService) *ProposalHandler {
	return &ProposalHandler{service: service}
}

// Create godoc
// @Summary Submit a proposal
// @Tags Proposals
// @Accept json
// @Produce json
// @Param payload body service.SubmitProposalRequest true "Proposal payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /proposals [post]
func (h *ProposalHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "proposal service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid proposal payload"))
		return
	}
	detail, err := h.service.Submit(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// Resubmit godoc
// @Summary Resubmit a returned proposal
// @Tags Proposals
// @Accept json
// @Produce json
// @Param id path int true "Proposal ID"
// @Param payload body service.SubmitProposalRequest true "Revised proposal payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /proposals/{id}/resubmit [post]
func (h *ProposalHandler) Resubmit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "proposal service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid proposal id"))
		return
	}
	var req service.SubmitProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid proposal payload"))
		return
	}
	detail, err := h.service.Resubmit(c.Request.Context(), id, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Get godoc
// @Summary Get proposal detail
// @Tags Proposals
// @Produce json
// @Param id path int true "Proposal ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /proposals/{id} [get]
func (h *ProposalHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "proposal service not configured"))
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid proposal id"))
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// List godoc
// @Summary List proposals
// @Tags Proposals
// @Produce json
// @Param status query string false "Proposal status"
// @Param department_id query int false "Department filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /proposals [get]
func (h *ProposalHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "proposal service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ProposalFilter{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		filter.Status = models.ProposalStatus(strings.ToUpper(raw))
	}
	if raw := c.Query("department_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.DepartmentID = id
		}
	}
	// Department accounts only see their own submissions.
	if actor.Role == models.RoleDepartment {
		filter.SubmittedBy = actor.UserID
	}

	proposals, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, pagination)
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
