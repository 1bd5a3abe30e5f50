package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uce-api/internal/models"
)

// ReferenceRepository reads the lookup tables proposals point at: the
// submitting departments, partner communities and banner programs.
type ReferenceRepository struct {
	db *sqlx.DB
}

// NewReferenceRepository constructs the repository.
func NewReferenceRepository(db *sqlx.DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// ListDepartments returns every department ordered by name.
func (r *ReferenceRepository) ListDepartments(ctx context.Context) ([]models.Department, error) {
	const query = `SELECT id, name, code, created_at FROM departments ORDER BY name`
	var departments []models.Department
	if err := r.db.SelectContext(ctx, &departments, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// ListPartnerCommunities returns every partner community ordered by name.
func (r *ReferenceRepository) ListPartnerCommunities(ctx context.Context) ([]models.PartnerCommunity, error) {
	const query = `SELECT id, name, address, created_at FROM partner_communities ORDER BY name`
	var communities []models.PartnerCommunity
	if err := r.db.SelectContext(ctx, &communities, query); err != nil {
		return nil, fmt.Errorf("list partner communities: %w", err)
	}
	return communities, nil
}

// ListBannerPrograms returns every banner program ordered by title.
func (r *ReferenceRepository) ListBannerPrograms(ctx context.Context) ([]models.BannerProgram, error) {
	const query = `SELECT id, title, created_at FROM banner_programs ORDER BY title`
	var programs []models.BannerProgram
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list banner programs: %w", err)
	}
	return programs, nil
}
