package models

import "time"

// ProposalStatus is the coarse lifecycle state of a proposal.
type ProposalStatus string

const (
	ProposalStatusPending     ProposalStatus = "PENDING"
	ProposalStatusApproved    ProposalStatus = "APPROVED"
	ProposalStatusReturned    ProposalStatus = "RETURNED"
	ProposalStatusResubmitted ProposalStatus = "RESUBMITTED"
)

// Actionable reports whether the approval chain may still act on the proposal.
func (s ProposalStatus) Actionable() bool {
	return s == ProposalStatusPending || s == ProposalStatusResubmitted
}

// Proposal is a department's community-extension project awaiting the
// approval chain. CurrentStep names the role whose pending decision gates
// progress; it is meaningful only while the status is actionable and is left
// pointing at the final role once the proposal is approved.
type Proposal struct {
	ID                  int64          `db:"id" json:"id"`
	Title               string         `db:"title" json:"title"`
	Description         string         `db:"description" json:"description"`
	TargetDate          time.Time      `db:"target_date" json:"target_date"`
	Budget              float64        `db:"budget" json:"budget"`
	Venue               string         `db:"venue" json:"venue"`
	TargetBeneficiaries string         `db:"target_beneficiaries" json:"target_beneficiaries"`
	TargetArea          string         `db:"target_area" json:"target_area"`
	DepartmentID        int64          `db:"department_id" json:"department_id"`
	PartnerCommunityID  *int64         `db:"partner_community_id" json:"partner_community_id,omitempty"`
	BannerProgramID     *int64         `db:"banner_program_id" json:"banner_program_id,omitempty"`
	SubmittedBy         string         `db:"submitted_by" json:"submitted_by"`
	Status              ProposalStatus `db:"status" json:"status"`
	CurrentStep         UserRole       `db:"current_step" json:"current_step"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// ProposalDetail enriches a proposal with submitter info, its flow and, once
// approved, the activity the final approval spawned.
type ProposalDetail struct {
	Proposal
	SubmitterName  string           `db:"submitter_name" json:"submitter_name"`
	DepartmentName string           `db:"department_name" json:"department_name"`
	Flow           []ApprovalDetail `db:"-" json:"approval_flow"`
	Activity       *Activity        `db:"-" json:"activity,omitempty"`
}

// ProposalSummary is the worklist projection handed to approvers.
type ProposalSummary struct {
	ID             int64            `db:"id" json:"id"`
	Title          string           `db:"title" json:"title"`
	Description    string           `db:"description" json:"description"`
	TargetDate     time.Time        `db:"target_date" json:"target_date"`
	Budget         float64          `db:"budget" json:"budget"`
	Status         ProposalStatus   `db:"status" json:"status"`
	CurrentStep    UserRole         `db:"current_step" json:"current_step"`
	SubmitterName  string           `db:"submitter_name" json:"submitter_name"`
	DepartmentName string           `db:"department_name" json:"department_name"`
	Flow           []ApprovalDetail `db:"-" json:"approval_flow"`
}

// ProposalApprovalResult is returned by approve/return transitions.
type ProposalApprovalResult struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Status      ProposalStatus   `json:"status"`
	CurrentStep UserRole         `json:"current_step"`
	Flow        []ApprovalDetail `json:"approval_flow"`
}

// ProposalFilter provides filters for listing proposals.
type ProposalFilter struct {
	Status       ProposalStatus
	DepartmentID int64
	SubmittedBy  string
	Page         int
	PageSize     int
}
