package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
	"github.com/noah-isme/uce-api/pkg/response"
)

type approvalService interface {
	Approve(ctx context.Context, proposalID int64, actor models.Actor, comment string) (*models.ProposalApprovalResult, error)
	Return(ctx context.Context, proposalID int64, actor models.Actor, comment string) (*models.ProposalApprovalResult, error)
	Worklist(ctx context.Context, actor models.Actor) ([]models.ProposalSummary, error)
}

// DecisionRequest carries the optional comment attached to a decision.
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// ApprovalHandler exposes the approval-chain endpoints.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Approve godoc
// @Summary Approve the current step of a proposal
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Proposal ID"
// @Param payload body DecisionRequest false "Optional comment"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, h.service.Approve)
}

// Return godoc
// @Summary Return a proposal to its submitter
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path int true "Proposal ID"
// @Param payload body DecisionRequest true "Comment explaining the return"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /proposals/{id}/return [post]
func (h *ApprovalHandler) Return(c *gin.Context) {
	h.decide(c, h.service.Return)
}

// Worklist godoc
// @Summary List proposals awaiting the caller's decision
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /approvals/worklist [get]
func (h *ApprovalHandler) Worklist(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	summaries, err := h.service.Worklist(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summaries, nil)
}

func (h *ApprovalHandler) decide(c *gin.Context, fn func(context.Context, int64, models.Actor, string) (*models.ProposalApprovalResult, error)) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
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
	// Bind regardless of Content-Length so chunked bodies are read too; an
	// empty body surfaces as io.EOF and simply means no comment.
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := fn(c.Request.Context(), id, actor, req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
