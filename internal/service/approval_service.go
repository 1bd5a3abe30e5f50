package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/internal/repository"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

type approvalStore interface {
	FindDetailByID(ctx context.Context, id int64) (*models.ProposalDetail, error)
	ListFlow(ctx context.Context, proposalID int64) ([]models.ApprovalDetail, error)
	Worklist(ctx context.Context, role models.UserRole, preceding *models.UserRole, userID string) ([]models.ProposalSummary, error)
	InTransaction(ctx context.Context, fn func(tx repository.ProposalTx) error) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type worklistCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ApprovalService executes approval-chain transitions and serves per-approver
// worklists. Every operation takes the acting user explicitly.
type ApprovalService struct {
	store    approvalStore
	audit    auditLogger
	cache    worklistCache
	seq      *ApprovalSequence
	metrics  *MetricsService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// ApprovalServiceOption configures the service.
type ApprovalServiceOption func(*ApprovalService)

// WithWorklistCache enables cached worklist projections.
func WithWorklistCache(cache worklistCache, ttl time.Duration) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithApprovalMetrics records transition and cache metrics.
func WithApprovalMetrics(metrics *MetricsService) ApprovalServiceOption {
	return func(s *ApprovalService) {
		s.metrics = metrics
	}
}

// NewApprovalService constructs the service.
func NewApprovalService(store approvalStore, audit auditLogger, seq *ApprovalSequence, logger *zap.Logger, opts ...ApprovalServiceOption) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApprovalService{
		store:    store,
		audit:    audit,
		seq:      seq,
		logger:   logger,
		cacheTTL: 2 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// authorize gates every transition attempt: the proposal must still be in an
// actionable status and the acting role must own the current step. Pure
// predicate; runs before any transaction starts.
func (s *ApprovalService) authorize(actor models.Actor, proposal *models.Proposal) error {
	if !proposal.Status.Actionable() {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("proposal is %s and no longer actionable", strings.ToLower(string(proposal.Status))))
	}
	if actor.Role != proposal.CurrentStep {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("proposal is awaiting %s", proposal.CurrentStep))
	}
	return nil
}

// Approve records the acting role's sign-off and advances the chain. Clearing
// the final step flips the proposal to APPROVED and creates the scheduled
// activity in the same transaction; a failure on either side rolls back both.
func (s *ApprovalService) Approve(ctx context.Context, proposalID int64, actor models.Actor, comment string) (*models.ProposalApprovalResult, error) {
	detail, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, &detail.Proposal); err != nil {
		return nil, err
	}

	next, terminal, err := s.seq.Next(detail.CurrentStep)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	step := detail.CurrentStep
	err = s.store.InTransaction(ctx, func(tx repository.ProposalTx) error {
		if err := tx.ResolveApproval(ctx, proposalID, step, models.ApprovalStatusApproved, actor.UserID, optionalComment(comment), now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "approval step already resolved")
			}
			return err
		}
		if terminal {
			// current_step keeps pointing at the final role for audit.
			if err := tx.SetProposalStatus(ctx, proposalID, models.ProposalStatusApproved, now); err != nil {
				return err
			}
			return tx.CreateActivity(ctx, &models.Activity{
				ProposalID:         proposalID,
				Title:              detail.Title,
				Description:        detail.Description,
				TargetDate:         detail.TargetDate,
				DepartmentID:       detail.DepartmentID,
				PartnerCommunityID: detail.PartnerCommunityID,
				BannerProgramID:    detail.BannerProgramID,
				Status:             models.ActivityStatusUpcoming,
			})
		}
		return tx.SetProposalStep(ctx, proposalID, next, now)
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}

	status := detail.Status
	currentStep := detail.CurrentStep
	if terminal {
		status = models.ProposalStatusApproved
	} else {
		currentStep = next
	}

	if s.metrics != nil {
		s.metrics.RecordTransition("approve", string(actor.Role))
	}
	s.emitAudit(ctx, actor, models.AuditActionProposalApprove, proposalID, comment)
	s.invalidateWorklists(ctx)

	return s.buildResult(ctx, detail, status, currentStep)
}

// Return halts the chain for this pass: the current step's approval row is
// marked RETURNED with the mandatory comment and the proposal goes RETURNED.
// No activity is created and the current step does not move.
func (s *ApprovalService) Return(ctx context.Context, proposalID int64, actor models.Actor, comment string) (*models.ProposalApprovalResult, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a comment is required when returning a proposal")
	}

	detail, err := s.loadProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, &detail.Proposal); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	step := detail.CurrentStep
	err = s.store.InTransaction(ctx, func(tx repository.ProposalTx) error {
		if err := tx.ResolveApproval(ctx, proposalID, step, models.ApprovalStatusReturned, actor.UserID, optionalComment(comment), now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "approval step already resolved")
			}
			return err
		}
		return tx.SetProposalStatus(ctx, proposalID, models.ProposalStatusReturned, now)
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return proposal")
	}

	if s.metrics != nil {
		s.metrics.RecordTransition("return", string(actor.Role))
	}
	s.emitAudit(ctx, actor, models.AuditActionProposalReturn, proposalID, comment)
	s.invalidateWorklists(ctx)

	return s.buildResult(ctx, detail, models.ProposalStatusReturned, detail.CurrentStep)
}

// Worklist returns the proposals awaiting the actor's role plus those the
// actor already acted on at that role. Results are cached per role and user
// when a cache is configured; cache failures fall back to the database.
func (s *ApprovalService) Worklist(ctx context.Context, actor models.Actor) ([]models.ProposalSummary, error) {
	if !s.seq.Contains(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role has no approval worklist")
	}

	key := fmt.Sprintf("worklist:%s:%s", actor.Role, actor.UserID)
	if s.cache != nil {
		start := time.Now()
		var cached []models.ProposalSummary
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("worklist cache read failed", zap.Error(err))
		}
	}

	prev, hasPrev, err := s.seq.Preceding(actor.Role)
	if err != nil {
		return nil, err
	}
	var preceding *models.UserRole
	if hasPrev {
		preceding = &prev
	}

	start := time.Now()
	summaries, err := s.store.Worklist(ctx, actor.Role, preceding, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load worklist")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("approval_worklist", time.Since(start))
	}
	for i := range summaries {
		flow, err := s.store.ListFlow(ctx, summaries[i].ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval flow")
		}
		summaries[i].Flow = flow
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summaries, s.cacheTTL); err != nil {
			s.logger.Warn("worklist cache write failed", zap.Error(err))
		}
	}

	return summaries, nil
}

func (s *ApprovalService) loadProposal(ctx context.Context, id int64) (*models.ProposalDetail, error) {
	start := time.Now()
	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("proposal_detail", time.Since(start))
	}
	return detail, nil
}

func (s *ApprovalService) buildResult(ctx context.Context, detail *models.ProposalDetail, status models.ProposalStatus, step models.UserRole) (*models.ProposalApprovalResult, error) {
	start := time.Now()
	flow, err := s.store.ListFlow(ctx, detail.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval flow")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("approval_flow", time.Since(start))
	}
	return &models.ProposalApprovalResult{
		ID:          detail.ID,
		Title:       detail.Title,
		Status:      status,
		CurrentStep: step,
		Flow:        flow,
	}, nil
}

func (s *ApprovalService) emitAudit(ctx context.Context, actor models.Actor, action string, proposalID int64, comment string) {
	if s.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(proposalID, 10)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "proposal",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if trimmed := strings.TrimSpace(comment); trimmed != "" {
		log.NewValues = []byte(fmt.Sprintf(`{"role":%q,"comment":%q}`, actor.Role, trimmed))
	} else {
		log.NewValues = []byte(fmt.Sprintf(`{"role":%q}`, actor.Role))
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func (s *ApprovalService) invalidateWorklists(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "worklist:*"); err != nil {
		s.logger.Warn("failed to invalidate worklist cache", zap.Error(err))
	}
}

func optionalComment(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
