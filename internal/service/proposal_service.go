package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/internal/repository"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

type proposalStore interface {
	Create(ctx context.Context, proposal *models.Proposal, chain []models.UserRole) error
	FindByID(ctx context.Context, id int64) (*models.Proposal, error)
	FindDetailByID(ctx context.Context, id int64) (*models.ProposalDetail, error)
	List(ctx context.Context, filter models.ProposalFilter) ([]models.ProposalDetail, int, error)
	InTransaction(ctx context.Context, fn func(tx repository.ProposalTx) error) error
}

type activityLookup interface {
	FindByProposalID(ctx context.Context, proposalID int64) (*models.Activity, error)
}

// SubmitProposalRequest describes a new proposal payload.
type SubmitProposalRequest struct {
	Title               string    `json:"title" validate:"required"`
	Description         string    `json:"description" validate:"required"`
	TargetDate          time.Time `json:"target_date" validate:"required"`
	Budget              float64   `json:"budget" validate:"gte=0"`
	Venue               string    `json:"venue"`
	TargetBeneficiaries string    `json:"target_beneficiaries"`
	TargetArea          string    `json:"target_area"`
	DepartmentID        int64     `json:"department_id" validate:"required"`
	PartnerCommunityID  *int64    `json:"partner_community_id"`
	BannerProgramID     *int64    `json:"banner_program_id"`
}

// ProposalService owns submission, resubmission and read access for
// proposals. Transitions through the approval chain belong to
// ApprovalService.
type ProposalService struct {
	store      proposalStore
	audit      auditLogger
	cache      worklistCache
	activities activityLookup
	seq        *ApprovalSequence
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewProposalService constructs ProposalService.
func NewProposalService(store proposalStore, audit auditLogger, seq *ApprovalSequence, validate *validator.Validate, logger *zap.Logger) *ProposalService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProposalService{store: store, audit: audit, seq: seq, validator: validate, logger: logger}
}

// SetWorklistCache wires the cache invalidated on submissions.
func (s *ProposalService) SetWorklistCache(cache worklistCache) {
	s.cache = cache
}

// SetActivityLookup wires the lookup used to attach the spawned activity to
// approved proposal details.
func (s *ProposalService) SetActivityLookup(lookup activityLookup) {
	s.activities = lookup
}

// Submit registers a new proposal: status PENDING, current step at the head
// of the chain, one PENDING approval row seeded per role.
func (s *ProposalService) Submit(ctx context.Context, req SubmitProposalRequest, actor models.Actor) (*models.ProposalDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
	}
	if actor.Role != models.RoleDepartment {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only department accounts submit proposals")
	}

	proposal := &models.Proposal{
		Title:               req.Title,
		Description:         req.Description,
		TargetDate:          req.TargetDate,
		Budget:              req.Budget,
		Venue:               req.Venue,
		TargetBeneficiaries: req.TargetBeneficiaries,
		TargetArea:          req.TargetArea,
		DepartmentID:        req.DepartmentID,
		PartnerCommunityID:  req.PartnerCommunityID,
		BannerProgramID:     req.BannerProgramID,
		SubmittedBy:         actor.UserID,
		Status:              models.ProposalStatusPending,
		CurrentStep:         s.seq.First(),
	}
	if err := s.store.Create(ctx, proposal, s.seq.Roles()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create proposal")
	}

	s.emitAudit(ctx, actor, models.AuditActionProposalSubmit, proposal.ID)
	s.invalidateWorklists(ctx)

	detail, err := s.store.FindDetailByID(ctx, proposal.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal detail")
	}
	return detail, nil
}

// Resubmit re-enters a RETURNED proposal into the chain. Every approval row
// is reset to PENDING and the current step moves back to the first role, so
// the new pass is reviewed in full.
func (s *ProposalService) Resubmit(ctx context.Context, id int64, req SubmitProposalRequest, actor models.Actor) (*models.ProposalDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid proposal payload")
	}

	proposal, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	if proposal.SubmittedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting user may resubmit")
	}
	if proposal.Status != models.ProposalStatusReturned {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("proposal is %s; only returned proposals can be resubmitted", proposal.Status))
	}

	proposal.Title = req.Title
	proposal.Description = req.Description
	proposal.TargetDate = req.TargetDate
	proposal.Budget = req.Budget
	proposal.Venue = req.Venue
	proposal.TargetBeneficiaries = req.TargetBeneficiaries
	proposal.TargetArea = req.TargetArea
	proposal.PartnerCommunityID = req.PartnerCommunityID
	proposal.BannerProgramID = req.BannerProgramID
	proposal.Status = models.ProposalStatusResubmitted
	proposal.CurrentStep = s.seq.First()

	err = s.store.InTransaction(ctx, func(tx repository.ProposalTx) error {
		if err := tx.ResetApprovals(ctx, id); err != nil {
			return err
		}
		return tx.UpdateProposalContent(ctx, proposal)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit proposal")
	}

	s.emitAudit(ctx, actor, models.AuditActionProposalResubmit, id)
	s.invalidateWorklists(ctx)

	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal detail")
	}
	return detail, nil
}

// Get returns a proposal with its approval flow. Approved proposals also
// carry the activity created by the final approval.
func (s *ProposalService) Get(ctx context.Context, id int64) (*models.ProposalDetail, error) {
	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	if s.activities != nil && detail.Status == models.ProposalStatusApproved {
		activity, err := s.activities.FindByProposalID(ctx, id)
		switch {
		case err == nil:
			detail.Activity = activity
		case errors.Is(err, sql.ErrNoRows):
			// No activity row yet; the detail stays usable without it.
		default:
			s.logger.Warn("failed to load proposal activity", zap.Error(err))
		}
	}
	return detail, nil
}

// List returns proposals with pagination metadata.
func (s *ProposalService) List(ctx context.Context, filter models.ProposalFilter) ([]models.ProposalDetail, *models.Pagination, error) {
	proposals, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return proposals, pagination, nil
}

func (s *ProposalService) emitAudit(ctx context.Context, actor models.Actor, action string, proposalID int64) {
	if s.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(proposalID, 10)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "proposal",
		ResourceID: &resourceID,
		NewValues:  []byte(fmt.Sprintf(`{"role":%q}`, actor.Role)),
		IPAddress:  "system",
		UserAgent:  "proposal-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ProposalService) invalidateWorklists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "worklist:*"); err != nil {
		s.logger.Warn("failed to invalidate worklist cache", zap.Error(err))
	}
}
