package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uce-api/internal/models"
)

// ProposalTx groups the mutations that must commit atomically during an
// approval transition or resubmission.
type ProposalTx interface {
	// ResolveApproval moves the (proposal, role) approval row out of PENDING.
	// The update carries a status precondition; if the row was already
	// resolved it returns sql.ErrNoRows so callers can surface a conflict.
	ResolveApproval(ctx context.Context, proposalID int64, role models.UserRole, status models.ApprovalStatus, approverID string, comment *string, at time.Time) error
	SetProposalStep(ctx context.Context, id int64, step models.UserRole, at time.Time) error
	SetProposalStatus(ctx context.Context, id int64, status models.ProposalStatus, at time.Time) error
	CreateActivity(ctx context.Context, activity *models.Activity) error
	// ResetApprovals reopens every approval row of a proposal for a fresh
	// review pass, clearing reviewer, comment and timestamp.
	ResetApprovals(ctx context.Context, proposalID int64) error
	UpdateProposalContent(ctx context.Context, proposal *models.Proposal) error
}

// ProposalRepository manages proposal and approval persistence.
type ProposalRepository struct {
	db *sqlx.DB
}

// NewProposalRepository constructs the repository.
func NewProposalRepository(db *sqlx.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// InTransaction runs fn inside a single database transaction. Any error from
// fn rolls everything back.
func (r *ProposalRepository) InTransaction(ctx context.Context, fn func(tx ProposalTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&proposalTx{tx: tx}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Create inserts a proposal and seeds one PENDING approval row per role in
// the chain, all in one transaction.
func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal, chain []models.UserRole) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.UpdatedAt = now

	const insertProposal = `INSERT INTO proposals
		(title, description, target_date, budget, venue, target_beneficiaries, target_area,
		 department_id, partner_community_id, banner_program_id, submitted_by, status, current_step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	if err := tx.QueryRowxContext(ctx, insertProposal,
		proposal.Title, proposal.Description, proposal.TargetDate, proposal.Budget,
		proposal.Venue, proposal.TargetBeneficiaries, proposal.TargetArea,
		proposal.DepartmentID, proposal.PartnerCommunityID, proposal.BannerProgramID,
		proposal.SubmittedBy, proposal.Status, proposal.CurrentStep,
		proposal.CreatedAt, proposal.UpdatedAt,
	).Scan(&proposal.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create proposal: %w", err)
	}

	const insertApproval = `INSERT INTO approvals (proposal_id, role, step_order, status)
		VALUES ($1, $2, $3, $4)`
	for i, role := range chain {
		if _, err := tx.ExecContext(ctx, insertApproval, proposal.ID, role, i, models.ApprovalStatusPending); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("seed approval for role %s: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit proposal: %w", err)
	}
	return nil
}

// FindByID fetches a bare proposal row.
func (r *ProposalRepository) FindByID(ctx context.Context, id int64) (*models.Proposal, error) {
	const query = `SELECT id, title, description, target_date, budget, venue, target_beneficiaries, target_area,
		department_id, partner_community_id, banner_program_id, submitted_by, status, current_step, created_at, updated_at
		FROM proposals WHERE id = $1`
	var proposal models.Proposal
	if err := r.db.GetContext(ctx, &proposal, query, id); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// FindDetailByID fetches a proposal with submitter info and its ordered
// approval flow.
func (r *ProposalRepository) FindDetailByID(ctx context.Context, id int64) (*models.ProposalDetail, error) {
	const query = `SELECT p.id, p.title, p.description, p.target_date, p.budget, p.venue,
		p.target_beneficiaries, p.target_area, p.department_id, p.partner_community_id, p.banner_program_id,
		p.submitted_by, p.status, p.current_step, p.created_at, p.updated_at,
		u.full_name AS submitter_name, d.name AS department_name
		FROM proposals p
		JOIN users u ON u.id = p.submitted_by
		JOIN departments d ON d.id = p.department_id
		WHERE p.id = $1`
	var detail models.ProposalDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	flow, err := r.ListFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Flow = flow
	return &detail, nil
}

// ListFlow returns a proposal's approval rows in chain order with resolved
// approver names.
func (r *ProposalRepository) ListFlow(ctx context.Context, proposalID int64) ([]models.ApprovalDetail, error) {
	const query = `SELECT a.id, a.proposal_id, a.role, a.status, a.comment, a.approver_id, a.approved_at,
		u.full_name AS approver_name
		FROM approvals a
		LEFT JOIN users u ON u.id = a.approver_id
		WHERE a.proposal_id = $1
		ORDER BY a.step_order`
	var flow []models.ApprovalDetail
	if err := r.db.SelectContext(ctx, &flow, query, proposalID); err != nil {
		return nil, fmt.Errorf("list approval flow: %w", err)
	}
	return flow, nil
}

// List returns proposals matching the filter with total count.
func (r *ProposalRepository) List(ctx context.Context, filter models.ProposalFilter) ([]models.ProposalDetail, int, error) {
	baseQuery := `FROM proposals p
		JOIN users u ON u.id = p.submitted_by
		JOIN departments d ON d.id = p.department_id
		WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("p.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DepartmentID != 0 {
		conditions = append(conditions, fmt.Sprintf("p.department_id = $%d", len(args)+1))
		args = append(args, filter.DepartmentID)
	}
	if filter.SubmittedBy != "" {
		conditions = append(conditions, fmt.Sprintf("p.submitted_by = $%d", len(args)+1))
		args = append(args, filter.SubmittedBy)
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

	listQuery := fmt.Sprintf(`SELECT p.id, p.title, p.description, p.target_date, p.budget, p.venue,
		p.target_beneficiaries, p.target_area, p.department_id, p.partner_community_id, p.banner_program_id,
		p.submitted_by, p.status, p.current_step, p.created_at, p.updated_at,
		u.full_name AS submitter_name, d.name AS department_name
		%s ORDER BY p.created_at DESC LIMIT %d OFFSET %d`, baseQuery, pageSize, offset)

	var proposals []models.ProposalDetail
	if err := r.db.SelectContext(ctx, &proposals, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	return proposals, total, nil
}

// Worklist returns proposals awaiting the given role plus proposals this user
// already acted on at that role. The prerequisite clause is parameterized by
// the preceding role so the query generalizes to any chain length; the first
// stage passes preceding == nil and skips it.
func (r *ProposalRepository) Worklist(ctx context.Context, role models.UserRole, preceding *models.UserRole, userID string) ([]models.ProposalSummary, error) {
	builder := strings.Builder{}
	args := []interface{}{role, userID}
	builder.WriteString(`SELECT DISTINCT p.id, p.title, p.description, p.target_date, p.budget,
		p.status, p.current_step, u.full_name AS submitter_name, d.name AS department_name
		FROM proposals p
		JOIN users u ON u.id = p.submitted_by
		JOIN departments d ON d.id = p.department_id
		JOIN approvals a ON a.proposal_id = p.id AND a.role = $1`)

	pendingClause := `(p.status IN ('PENDING', 'RESUBMITTED') AND p.current_step = $1 AND a.status = 'PENDING'`
	if preceding != nil {
		args = append(args, *preceding)
		builder.WriteString(fmt.Sprintf(`
		JOIN approvals prev ON prev.proposal_id = p.id AND prev.role = $%d`, len(args)))
		pendingClause += ` AND prev.status = 'APPROVED'`
	}
	pendingClause += `)`

	builder.WriteString(`
		WHERE ` + pendingClause + `
		   OR (a.approver_id = $2 AND a.status <> 'PENDING')
		ORDER BY p.target_date`)

	var summaries []models.ProposalSummary
	if err := r.db.SelectContext(ctx, &summaries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("worklist for role %s: %w", role, err)
	}
	return summaries, nil
}

// proposalTx implements ProposalTx on top of an open sqlx transaction.
type proposalTx struct {
	tx *sqlx.Tx
}

func (t *proposalTx) ResolveApproval(ctx context.Context, proposalID int64, role models.UserRole, status models.ApprovalStatus, approverID string, comment *string, at time.Time) error {
	const query = `UPDATE approvals
		SET status = $3, approver_id = $4, comment = $5, approved_at = $6
		WHERE proposal_id = $1 AND role = $2 AND status = $7`
	result, err := t.tx.ExecContext(ctx, query, proposalID, role, status, approverID, comment, at, models.ApprovalStatusPending)
	if err != nil {
		return fmt.Errorf("resolve approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resolved approval rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (t *proposalTx) SetProposalStep(ctx context.Context, id int64, step models.UserRole, at time.Time) error {
	const query = `UPDATE proposals SET current_step = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id, step, at); err != nil {
		return fmt.Errorf("advance proposal step: %w", err)
	}
	return nil
}

func (t *proposalTx) SetProposalStatus(ctx context.Context, id int64, status models.ProposalStatus, at time.Time) error {
	const query = `UPDATE proposals SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, id, status, at); err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}
	return nil
}

func (t *proposalTx) CreateActivity(ctx context.Context, activity *models.Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activities
		(proposal_id, title, description, target_date, department_id, partner_community_id, banner_program_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := t.tx.QueryRowxContext(ctx, query,
		activity.ProposalID, activity.Title, activity.Description, activity.TargetDate,
		activity.DepartmentID, activity.PartnerCommunityID, activity.BannerProgramID,
		activity.Status, activity.CreatedAt,
	).Scan(&activity.ID); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

func (t *proposalTx) ResetApprovals(ctx context.Context, proposalID int64) error {
	const query = `UPDATE approvals
		SET status = $2, approver_id = NULL, comment = NULL, approved_at = NULL
		WHERE proposal_id = $1`
	if _, err := t.tx.ExecContext(ctx, query, proposalID, models.ApprovalStatusPending); err != nil {
		return fmt.Errorf("reset approvals: %w", err)
	}
	return nil
}

func (t *proposalTx) UpdateProposalContent(ctx context.Context, proposal *models.Proposal) error {
	proposal.UpdatedAt = time.Now().UTC()
	const query = `UPDATE proposals
		SET title = :title, description = :description, target_date = :target_date, budget = :budget,
		    venue = :venue, target_beneficiaries = :target_beneficiaries, target_area = :target_area,
		    partner_community_id = :partner_community_id, banner_program_id = :banner_program_id,
		    status = :status, current_step = :current_step, updated_at = :updated_at
		WHERE id = :id`
	if _, err := t.tx.NamedExecContext(ctx, query, proposal); err != nil {
		return fmt.Errorf("update proposal content: %w", err)
	}
	return nil
}
