package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

func validSubmitRequest() SubmitProposalRequest {
	return SubmitProposalRequest{
		Title:        "Literacy Outreach",
		Description:  "Weekend reading program for partner community",
		TargetDate:   time.Date(2026, 11, 7, 0, 0, 0, 0, time.UTC),
		Budget:       12000,
		Venue:        "Barangay hall",
		DepartmentID: 7,
	}
}

func TestProposalServiceSubmitSeedsChain(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	audit := &auditStub{}
	svc := NewProposalService(store, audit, seq, nil, nil)

	detail, err := svc.Submit(context.Background(), validSubmitRequest(), models.Actor{UserID: "dept-1", Role: models.RoleDepartment})
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusPending, detail.Status)
	require.Equal(t, models.RoleCECHead, detail.CurrentStep)
	require.Equal(t, "dept-1", detail.SubmittedBy)
	require.Len(t, detail.Flow, seq.Len())
	for i, step := range detail.Flow {
		require.Equal(t, seq.Roles()[i], step.Role)
		require.Equal(t, models.ApprovalStatusPending, step.Status)
	}
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionProposalSubmit, audit.logs[0].Action)
}

func TestProposalServiceSubmitRejectsNonDepartment(t *testing.T) {
	store := newWorkflowStoreFake()
	svc := NewProposalService(store, &auditStub{}, defaultSequence(t), nil, nil)

	_, err := svc.Submit(context.Background(), validSubmitRequest(), models.Actor{UserID: "cec-1", Role: models.RoleCECHead})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	require.Empty(t, store.proposals)
}

func TestProposalServiceSubmitValidatesPayload(t *testing.T) {
	svc := NewProposalService(newWorkflowStoreFake(), &auditStub{}, defaultSequence(t), nil, nil)

	req := validSubmitRequest()
	req.Title = ""
	_, err := svc.Submit(context.Background(), req, models.Actor{UserID: "dept-1", Role: models.RoleDepartment})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProposalServiceResubmitResetsChain(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())

	// Walk the proposal into a returned state at the second stage.
	approvalSvc := NewApprovalService(store, &auditStub{}, seq, nil)
	_, err := approvalSvc.Approve(context.Background(), p.ID, models.Actor{UserID: "cec-1", Role: models.RoleCECHead}, "")
	require.NoError(t, err)
	_, err = approvalSvc.Return(context.Background(), p.ID, models.Actor{UserID: "vp-1", Role: models.RoleVPDirector}, "needs partner MOA")
	require.NoError(t, err)

	svc := NewProposalService(store, &auditStub{}, seq, nil, nil)
	req := validSubmitRequest()
	req.Title = "Literacy Outreach (with MOA)"
	detail, err := svc.Resubmit(context.Background(), p.ID, req, models.Actor{UserID: "user-dept", Role: models.RoleDepartment})
	require.NoError(t, err)
	require.Equal(t, models.ProposalStatusResubmitted, detail.Status)
	require.Equal(t, seq.First(), detail.CurrentStep)
	require.Equal(t, "Literacy Outreach (with MOA)", detail.Title)

	for _, row := range store.approvals[p.ID] {
		require.Equal(t, models.ApprovalStatusPending, row.Status)
		require.Nil(t, row.ApproverID)
		require.Nil(t, row.Comment)
	}
}

func TestProposalServiceResubmitOnlyFromReturned(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	svc := NewProposalService(store, &auditStub{}, seq, nil, nil)

	_, err := svc.Resubmit(context.Background(), p.ID, validSubmitRequest(), models.Actor{UserID: "user-dept", Role: models.RoleDepartment})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestProposalServiceResubmitOnlyBySubmitter(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	p.Status = models.ProposalStatusReturned
	svc := NewProposalService(store, &auditStub{}, seq, nil, nil)

	_, err := svc.Resubmit(context.Background(), p.ID, validSubmitRequest(), models.Actor{UserID: "other-dept", Role: models.RoleDepartment})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

type activityLookupStub struct {
	activity *models.Activity
	calls    int
}

func (s *activityLookupStub) FindByProposalID(ctx context.Context, proposalID int64) (*models.Activity, error) {
	s.calls++
	if s.activity == nil || s.activity.ProposalID != proposalID {
		return nil, sql.ErrNoRows
	}
	copy := *s.activity
	return &copy, nil
}

func TestProposalServiceGetIncludesSpawnedActivity(t *testing.T) {
	store := newWorkflowStoreFake()
	seq := defaultSequence(t)
	p := store.seedProposal(seq.Roles())
	lookup := &activityLookupStub{}
	svc := NewProposalService(store, &auditStub{}, seq, nil, nil)
	svc.SetActivityLookup(lookup)

	// While the chain is still running there is no activity to attach and the
	// lookup is skipped.
	detail, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Nil(t, detail.Activity)
	require.Zero(t, lookup.calls)

	p.Status = models.ProposalStatusApproved
	lookup.activity = &models.Activity{ID: 3, ProposalID: p.ID, Title: p.Title, Status: models.ActivityStatusUpcoming}

	detail, err = svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Activity)
	require.Equal(t, int64(3), detail.Activity.ID)
	require.Equal(t, models.ActivityStatusUpcoming, detail.Activity.Status)
}

func TestProposalServiceGetNotFound(t *testing.T) {
	svc := NewProposalService(newWorkflowStoreFake(), &auditStub{}, defaultSequence(t), nil, nil)

	_, err := svc.Get(context.Background(), 99)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
