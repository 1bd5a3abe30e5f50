package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/pkg/response"
)

type referenceService interface {
	Departments(ctx context.Context) ([]models.Department, error)
	PartnerCommunities(ctx context.Context) ([]models.PartnerCommunity, error)
	BannerPrograms(ctx context.Context) ([]models.BannerProgram, error)
}

// ReferenceHandler serves the lookup data used when filling proposal forms.
type ReferenceHandler struct {
	service referenceService
}

// NewReferenceHandler constructs the handler.
func NewReferenceHandler(service referenceService) *ReferenceHandler {
	return &ReferenceHandler{service: service}
}

// Departments godoc
// @Summary List departments
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *ReferenceHandler) Departments(c *gin.Context) {
	departments, err := h.service.Departments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// PartnerCommunities godoc
// @Summary List partner communities
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /partner-communities [get]
func (h *ReferenceHandler) PartnerCommunities(c *gin.Context) {
	communities, err := h.service.PartnerCommunities(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, communities, nil)
}

// BannerPrograms godoc
// @Summary List banner programs
// @Tags Reference
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /banner-programs [get]
func (h *ReferenceHandler) BannerPrograms(c *gin.Context) {
	programs, err := h.service.BannerPrograms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, nil)
}
