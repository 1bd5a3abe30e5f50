package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uce-api/internal/models"
	"github.com/noah-isme/uce-api/internal/repository"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

// workflowStoreFake keeps proposals, approvals and activities in memory and
// doubles as its own transaction: state is snapshotted before the callback and
// restored when it fails, so rollback behaviour is observable in tests.
type workflowStoreFake struct {
	proposals  map[int64]*models.Proposal
	approvals  map[int64][]*models.Approval
	activities []*models.Activity
	nextID     int64

	worklistRole      models.UserRole
	worklistPreceding *models.UserRole
	worklistUserID    string
	worklistResult    []models.ProposalSummary
}

func newWorkflowStoreFake() *workflowStoreFake {
	return &workflowStoreFake{
		proposals: make(map[int64]*models.Proposal),
		approvals: make(map[int64][]*models.Approval),
		nextID:    1,
	}
}

func (f *workflowStoreFake) seedProposal(chain []models.UserRole) *models.Proposal {
	id := f.nextID
	f.nextID++
	p := &models.Proposal{
		ID:           id,
		Title:        "Coastal Cleanup Drive",
		Description:  "Quarterly shoreline cleanup with partner barangay",
		TargetDate:   time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		Budget:       25000,
		DepartmentID: 7,
		SubmittedBy:  "user-dept",
		Status:       models.ProposalStatusPending,
		CurrentStep:  chain[0],
	}
	f.proposals[id] = p
	rows := make([]*models.Approval, 0, len(chain))
	for i, role := range chain {
		rows = append(rows, &models.Approval{
			ID:         int64(i + 1),
			ProposalID: id,
			Role:       role,
			Status:     models.ApprovalStatusPending,
		})
	}
	f.approvals[id] = rows
	return p
}

func (f *workflowStoreFake) snapshot() ([]byte, error) {
	state := struct {
		Proposals  map[int64]*models.Proposal
		Approvals  map[int64][]*models.Approval
		Activities []*models.Activity
	}{f.proposals, f.approvals, f.activities}
	return json.Marshal(state)
}

func (f *workflowStoreFake) restore(raw []byte) {
	var state struct {
		Proposals  map[int64]*models.Proposal
		Approvals  map[int64][]*models.Approval
		Activities []*models.Activity
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		panic(err)
	}
	f.proposals = state.Proposals
	f.approvals = state.Approvals
	f.activities = state.Activities
}

func (f *workflowStoreFake) Create(ctx context.Context, proposal *models.Proposal, chain []models.UserRole) error {
	proposal.ID = f.nextID
	f.nextID++
	copy := *proposal
	f.proposals[proposal.ID] = &copy
	rows := make([]*models.Approval, 0, len(chain))
	for i, role := range chain {
		rows = append(rows, &models.Approval{
			ID:         int64(i + 1),
			ProposalID: proposal.ID,
			Role:       role,
			Status:     models.ApprovalStatusPending,
		})
	}
	f.approvals[proposal.ID] = rows
	return nil
}

func (f *workflowStoreFake) FindByID(ctx context.Context, id int64) (*models.Proposal, error) {
	p, ok := f.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *p
	return &copy, nil
}

func (f *workflowStoreFake) FindDetailByID(ctx context.Context, id int64) (*models.ProposalDetail, error) {
	p, ok := f.proposals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	flow, err := f.ListFlow(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ProposalDetail{
		Proposal:       *p,
		SubmitterName:  "Dept User",
		DepartmentName: "Engineering",
		Flow:           flow,
	}, nil
}

func (f *workflowStoreFake) List(ctx context.Context, filter models.ProposalFilter) ([]models.ProposalDetail, int, error) {
	var out []models.ProposalDetail
	for _, p := range f.proposals {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.SubmittedBy != "" && p.SubmittedBy != filter.SubmittedBy {
			continue
		}
		out = append(out, models.ProposalDetail{Proposal: *p})
	}
	return out, len(out), nil
}

func (f *workflowStoreFake) ListFlow(ctx context.Context, proposalID int64) ([]models.ApprovalDetail, error) {
	rows := f.approvals[proposalID]
	flow := make([]models.ApprovalDetail, 0, len(rows))
	for _, row := range rows {
		flow = append(flow, models.ApprovalDetail{Approval: *row})
	}
	return flow, nil
}

func (f *workflowStoreFake) Worklist(ctx context.Context, role models.UserRole, preceding *models.UserRole, userID string) ([]models.ProposalSummary, error) {
	f.worklistRole = role
	f.worklistPreceding = preceding
	f.worklistUserID = userID
	return f.worklistResult, nil
}

func (f *workflowStoreFake) InTransaction(ctx context.Context, fn func(tx repository.ProposalTx) error) error {
	saved, err := f.snapshot()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.restore(saved)
		return err
	}
	return nil
}

func (f *workflowStoreFake) ResolveApproval(ctx context.Context, proposalID int64, role models.UserRole, status models.ApprovalStatus, approverID string, comment *string, at time.Time) error {
	for _, row := range f.approvals[proposalID] {
		if row.Role != role {
			continue
		}
		if row.Status != models.ApprovalStatusPending {
			return sql.ErrNoRows
		}
		row.Status = status
		row.ApproverID = &approverID
		row.Comment = comment
		row.ApprovedAt = &at
		return nil
	}
	return sql.ErrNoRows
}

func (f *workflowStoreFake) SetProposalStep(ctx context.Context, id int64, step models.UserRole, at time.Time) error {
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.CurrentStep = step
	p.UpdatedAt = at
	return nil
}

func (f *workflowStoreFake) SetProposalStatus(ctx context.Context, id int64, status models.ProposalStatus, at time.Time) error {
	p, ok := f.proposals[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	p.UpdatedAt = at
	return nil
}

func (f *workflowStoreFake) CreateActivity(ctx context.Context, activity *models.Activity) error {
	activity.ID = int64(len(f.activities) + 1)
	copy := *activity
	f.activities = append(f.activities, &copy)
	return nil
}

func (f *workflowStoreFake) ResetApprovals(ctx context.Context, proposalID int64) error {
	for _, row := range f.approvals[proposalID] {
		row.Status = models.ApprovalStatusPending
		row.ApproverID = nil
		row.Comment = nil
		row.ApprovedAt = nil
	}
	return nil
}

func (f *workflowStoreFake) UpdateProposalContent(ctx context.Context, proposal *models.Proposal) error {
	stored, ok := f.proposals[proposal.ID]
	if !ok {
		return sql.ErrNoRows
	}
	*stored = *proposal
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type cacheStub struct {
	data     map[string][]byte
	sets     int
	invalids int
}

func newCacheStub() *cacheStub {
	return &cacheStub{data: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	c.sets++
	return nil
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.invalids++
	c.data = make(map[string][]byte)
	return nil
}

func defaultSequence(t *testing.T) *ApprovalSequence {
	t.Helper()
	seq, err := NewApprovalSequence([]string{"CEC_HEAD", "VP_DIRECTOR", "COO"})
	require.NoError(t, err)
	return seq
}

func TestApprovalServiceApproveAdvancesStep(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	audit := &auditStub{}
	svc := NewApprovalService(store, audit, seq, nil)

	result, err := svc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "looks good")
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, result.Status)
	require.Equal(t, models.RoleVPDirector, result.CurrentStep)

	stored := store.proposals[p.ID]
	require.Equal(t, models.RoleVPDirector, stored.CurrentStep)
	require.Equal(t, models.ProposalStatusPending, stored.Status)
	require.Empty(t, store.activities)

	first := store.approvals[p.ID][0]
	require.Equal(t, models.ApprovalStatusApproved, first.Status)
	require.NotNil(t, first.ApproverID)
	require.Equal(t, "cec-1", *first.ApproverID)
	require.NotNil(t, first.Comment)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionProposalApprove, audit.logs[0].Action)
}

func TestApprovalServiceFullChainCreatesOneActivity(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	actors := []models.Actor{
		{UserID: "cec-1", Role: models.RoleCECHead},
		{UserID: "vp-1", Role: models.RoleVPDirector},
		{UserID: "coo-1", Role: models.RoleCOO},
	}
	for _, actor := range actors {
		_, err := svc.Approve(context.Background(), p.ID, actor, "")
		require.NoError(t, err)
	}

	stored := store.proposals[p.ID]
	require.Equal(t, models.ProposalStatusApproved, stored.Status)
	require.Equal(t, models.RoleCOO, stored.CurrentStep)
	require.Len(t, store.activities, 1)

	activity := store.activities[0]
	require.Equal(t, p.ID, activity.ProposalID)
	require.Equal(t, p.Title, activity.Title)
	require.Equal(t, models.ActivityStatusUpcoming, activity.Status)

	// Once approved the chain is closed for everyone, including the final role.
	_, err := svc.Approve(context.Background(), p.ID, actors[2], "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	require.Len(t, store.activities, 1)
}

func TestApprovalServiceResolvedStepConflicts(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	// The approval row resolved out from under the proposal pointer models a
	// concurrent writer winning the race between load and update.
	approver := "cec-0"
	store.approvals[p.ID][0].Status = models.ApprovalStatusApproved
	store.approvals[p.ID][0].ApproverID = &approver

	_, err := svc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)

	// The losing transaction must not leave partial state behind.
	require.Equal(t, models.RoleCECHead, store.proposals[p.ID].CurrentStep)
	require.Equal(t, models.ProposalStatusPending, store.proposals[p.ID].Status)
	require.Empty(t, store.activities)
}

func TestApprovalServiceWrongRoleForbidden(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	audit := &auditStub{}
	svc := NewApprovalService(store, audit, seq, nil)

	before, err := store.snapshot()
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), p.ID, models.Actor{UserID: "vp-1", Role: models.RoleVPDirector}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	after, err := store.snapshot()
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
	require.Empty(t, audit.logs)
}

func TestApprovalServiceReturnHaltsChain(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	// Advance to the second stage first.
	_, err := svc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.NoError(t, err)

	result, err := svc.Return(context.Background(), p.ID, models.Actor{UserID: "vp-1", Role: models.RoleVPDirector}, "budget exceeds quarterly allocation")
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusReturned, result.Status)
	require.Equal(t, models.RoleVPDirector, result.CurrentStep)

	stored := store.proposals[p.ID]
	require.Equal(t, models.ProposalStatusReturned, stored.Status)
	require.Equal(t, models.RoleVPDirector, stored.CurrentStep)
	require.Empty(t, store.activities)

	second := store.approvals[p.ID][1]
	require.Equal(t, models.ApprovalStatusReturned, second.Status)
	require.NotNil(t, second.Comment)
	require.Equal(t, "budget exceeds quarterly allocation", *second.Comment)

	// A returned proposal is no longer actionable.
	_, err = svc.Approve(context.Background(), p.ID, models.Actor{UserID: "vp-1", Role: models.RoleVPDirector}, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceReturnRequiresComment(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	for _, comment := range []string{"", "   "} {
		_, err := svc.Return(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, comment)
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	require.Equal(t, models.ApprovalStatusPending, store.approvals[p.ID][0].Status)
}

func TestApprovalServiceProposalNotFound(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	_, err := svc.Approve(context.Background(), 404, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceWorklistRoleGate(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	_, err := svc.Worklist(context.Background(), models.Actor{UserID: "dept-1", Role: models.RoleDepartment})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApprovalServiceWorklistPrecedingRole(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	svc := NewApprovalService(store, &auditStub{}, seq, nil)

	_, err := svc.Worklist(context.Background(), models.Actor{UserID: "cec-1", Role: models.RoleCECHead})
	require.NoError(t, err)
	require.Nil(t, store.worklistPreceding)

	_, err = svc.Worklist(context.Background(), models.Actor{UserID: "vp-1", Role: models.RoleVPDirector})
	require.NoError(t, err)
	require.NotNil(t, store.worklistPreceding)
	require.Equal(t, models.RoleCECHead, *store.worklistPreceding)
}

func TestApprovalServiceWorklistCache(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	store.worklistResult = []models.ProposalSummary{{ID: 1, Title: "Coastal Cleanup Drive"}}
	cache := newCacheStub()
	svc := NewApprovalService(store, &auditStub{}, seq, nil, WithWorklistCache(cache, time.Minute))

	actor := models.Actor{UserID: "coo-1", Role: models.RoleCOO}
	first, err := svc.Worklist(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, cache.sets)

	// Second read is served from cache; the store sees no new query.
	store.worklistResult = nil
	second, err := svc.Worklist(context.Background(), actor)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, 1, cache.sets)
}

func TestApprovalServiceObservesQueryTimings(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	metrics := NewMetricsService()
	svc := NewApprovalService(store, &auditStub{}, seq, nil, WithApprovalMetrics(metrics))

	_, err := svc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.NoError(t, err)
	afterApprove := metrics.Snapshot().DBQueryCount
	require.NotZero(t, afterApprove)

	_, err = svc.Worklist(context.Background(), models.Actor{UserID: "cec-1", Role: models.RoleCECHead})
	require.NoError(t, err)
	require.Greater(t, metrics.Snapshot().DBQueryCount, afterApprove)
}

func TestApprovalServiceApproveInvalidatesWorklists(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	cache := newCacheStub()
	svc := NewApprovalService(store, &auditStub{}, seq, nil, WithWorklistCache(cache, time.Minute))

	_, err := svc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.NoError(t, err)
	require.Equal(t, 1, cache.invalids)
}
