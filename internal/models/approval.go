package models

import "time"

// ApprovalStatus captures one role's decision on one proposal.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusReturned ApprovalStatus = "RETURNED"
)

// Approval is one role's pending or resolved decision on a proposal. Rows are
// seeded PENDING for every role in the sequence when the proposal is
// submitted and transition at most once per review pass.
type Approval struct {
	ID         int64          `db:"id" json:"id"`
	ProposalID int64          `db:"proposal_id" json:"proposal_id"`
	Role       UserRole       `db:"role" json:"role"`
	Status     ApprovalStatus `db:"status" json:"status"`
	Comment    *string        `db:"comment" json:"comment,omitempty"`
	ApproverID *string        `db:"approver_id" json:"approver_id,omitempty"`
	ApprovedAt *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
}

// ApprovalDetail adds the approver's display name for flow rendering.
type ApprovalDetail struct {
	Approval
	ApproverName *string `db:"approver_name" json:"approver_name,omitempty"`
}
