package models

import "time"

// ActivityStatus tracks a scheduled activity's progress.
type ActivityStatus string

const (
	ActivityStatusUpcoming  ActivityStatus = "UPCOMING"
	ActivityStatusOngoing   ActivityStatus = "ONGOING"
	ActivityStatusCompleted ActivityStatus = "COMPLETED"
)

// Activity is the scheduled event created when a proposal clears the full
// approval chain. At most one activity exists per proposal; creation happens
// in the same transaction as the final approval.
type Activity struct {
	ID                 int64          `db:"id" json:"id"`
	ProposalID         int64          `db:"proposal_id" json:"proposal_id"`
	Title              string         `db:"title" json:"title"`
	Description        string         `db:"description" json:"description"`
	TargetDate         time.Time      `db:"target_date" json:"target_date"`
	DepartmentID       int64          `db:"department_id" json:"department_id"`
	PartnerCommunityID *int64         `db:"partner_community_id" json:"partner_community_id,omitempty"`
	BannerProgramID    *int64         `db:"banner_program_id" json:"banner_program_id,omitempty"`
	Status             ActivityStatus `db:"status" json:"status"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// ActivityDetail enriches an activity with department info.
type ActivityDetail struct {
	Activity
	DepartmentName string `db:"department_name" json:"department_name"`
}

// ActivityFilter provides filters for listing activities.
type ActivityFilter struct {
	Status       ActivityStatus
	DepartmentID int64
	Page         int
	PageSize     int
}
