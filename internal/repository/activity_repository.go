package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uce-api/internal/models"
)

// ActivityRepository reads scheduled activities. Creation happens inside the
// approval transaction (see ProposalTx), so this repository is read-only
// apart from status upkeep.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// FindByID fetches one activity with department info.
func (r *ActivityRepository) FindByID(ctx context.Context, id int64) (*models.ActivityDetail, error) {
	const query = `SELECT a.id, a.proposal_id, a.title, a.description, a.target_date,
		a.department_id, a.partner_community_id, a.banner_program_id, a.status, a.created_at,
		d.name AS department_name
		FROM activities a
		JOIN departments d ON d.id = a.department_id
		WHERE a.id = $1`
	var activity models.ActivityDetail
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindByProposalID fetches the activity spawned by a proposal, if any.
func (r *ActivityRepository) FindByProposalID(ctx context.Context, proposalID int64) (*models.Activity, error) {
	const query = `SELECT id, proposal_id, title, description, target_date,
		department_id, partner_community_id, banner_program_id, status, created_at
		FROM activities WHERE proposal_id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, proposalID); err != nil {
		return nil, err
	}
	return &activity, nil
}

// List returns activities matching the filter with total count.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, int, error) {
	baseQuery := `FROM activities a
		JOIN departments d ON d.id = a.department_id
		WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DepartmentID != 0 {
		conditions = append(conditions, fmt.Sprintf("a.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(`SELECT a.id, a.proposal_id, a.title, a.description, a.target_date,
		a.department_id, a.partner_community_id, a.banner_program_id, a.status, a.created_at,
		d.name AS department_name
		%s ORDER BY a.target_date LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)

	var activities []models.ActivityDetail
	if err := r.db.SelectContext(ctx, &activities, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	return activities, total, nil
}

// UpdateStatus moves an activity between UPCOMING, ONGOING and COMPLETED.
func (r *ActivityRepository) UpdateStatus(ctx context.Context, id int64, status models.ActivityStatus) error {
	const query = `UPDATE activities SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("update activity status: %w", err)
	}
	return nil
}
