package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

type referenceStoreFake struct {
	departments []models.Department
	communities []models.PartnerCommunity
	programs    []models.BannerProgram
	err         error
}

func (f *referenceStoreFake) ListDepartments(ctx context.Context) ([]models.Department, error) {
	return f.departments, f.err
}

func (f *referenceStoreFake) ListPartnerCommunities(ctx context.Context) ([]models.PartnerCommunity, error) {
	return f.communities, f.err
}

func (f *referenceStoreFake) ListBannerPrograms(ctx context.Context) ([]models.BannerProgram, error) {
	return f.programs, f.err
}

func TestReferenceServiceLists(t *testing.T) {
	store := &referenceStoreFake{
		departments: []models.Department{{ID: 7, Name: "Engineering", Code: "ENG"}},
		communities: []models.PartnerCommunity{{ID: 2, Name: "Barangay San Isidro"}},
		programs:    []models.BannerProgram{{ID: 1, Title: "Coastal Stewardship"}},
	}
	svc := NewReferenceService(store)

	departments, err := svc.Departments(context.Background())
	require.NoError(t, err)
	require.Len(t, departments, 1)
	require.Equal(t, "ENG", departments[0].Code)

	communities, err := svc.PartnerCommunities(context.Background())
	require.NoError(t, err)
	require.Len(t, communities, 1)

	programs, err := svc.BannerPrograms(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Coastal Stewardship", programs[0].Title)
}

func TestReferenceServiceWrapsStoreErrors(t *testing.T) {
	svc := NewReferenceService(&referenceStoreFake{err: errors.New("connection reset")})

	_, err := svc.Departments(context.Background())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
