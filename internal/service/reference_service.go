package service

import (
	"context"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

type referenceStore interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	ListPartnerCommunities(ctx context.Context) ([]models.PartnerCommunity, error)
	ListBannerPrograms(ctx context.Context) ([]models.BannerProgram, error)
}

// ReferenceService serves the lookup data proposal forms are built from.
type ReferenceService struct {
	store referenceStore
}

// NewReferenceService constructs ReferenceService.
func NewReferenceService(store referenceStore) *ReferenceService {
	return &ReferenceService{store: store}
}

// Departments lists the academic units that submit proposals.
func (s *ReferenceService) Departments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	return departments, nil
}

// PartnerCommunities lists the communities activities can serve.
func (s *ReferenceService) PartnerCommunities(ctx context.Context) ([]models.PartnerCommunity, error) {
	communities, err := s.store.ListPartnerCommunities(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list partner communities")
	}
	return communities, nil
}

// BannerPrograms lists the flagship programs proposals file under.
func (s *ReferenceService) BannerPrograms(ctx context.Context) ([]models.BannerProgram, error) {
	programs, err := s.store.ListBannerPrograms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list banner programs")
	}
	return programs, nil
}
