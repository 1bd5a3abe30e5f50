package service

import (
	"fmt"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

// ApprovalSequence is the fixed, totally ordered chain of approver roles a
// proposal must clear. Successor lookups are index-based so adding a stage is
// a configuration change, not a code change.
type ApprovalSequence struct {
	roles []models.UserRole
	index map[models.UserRole]int
}

// NewApprovalSequence builds a sequence from configured role names.
func NewApprovalSequence(roles []string) (*ApprovalSequence, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("approval sequence must contain at least one role")
	}
	seq := &ApprovalSequence{
		roles: make([]models.UserRole, 0, len(roles)),
		index: make(map[models.UserRole]int, len(roles)),
	}
	for i, raw := range roles {
		role := models.UserRole(raw)
		if _, exists := seq.index[role]; exists {
			return nil, fmt.Errorf("approval sequence contains duplicate role %q", raw)
		}
		seq.roles = append(seq.roles, role)
		seq.index[role] = i
	}
	return seq, nil
}

// Roles returns the ordered chain.
func (s *ApprovalSequence) Roles() []models.UserRole {
	out := make([]models.UserRole, len(s.roles))
	copy(out, s.roles)
	return out
}

// Len returns the number of stages.
func (s *ApprovalSequence) Len() int {
	return len(s.roles)
}

// First returns the role that opens the chain.
func (s *ApprovalSequence) First() models.UserRole {
	return s.roles[0]
}

// Contains reports whether the role participates in the chain.
func (s *ApprovalSequence) Contains(role models.UserRole) bool {
	_, ok := s.index[role]
	return ok
}

// Next returns the role following the given one, or terminal=true when the
// role closes the chain. A role outside the sequence is a configuration
// error, reported distinctly from authorization failures.
func (s *ApprovalSequence) Next(role models.UserRole) (next models.UserRole, terminal bool, err error) {
	i, ok := s.index[role]
	if !ok {
		return "", false, appErrors.Clone(appErrors.ErrUnknownRole, fmt.Sprintf("role %q not in approval sequence", role))
	}
	if i == len(s.roles)-1 {
		return "", true, nil
	}
	return s.roles[i+1], false, nil
}

// Preceding returns the role immediately before the given one. ok is false
// for the first role, which has no prerequisite stage.
func (s *ApprovalSequence) Preceding(role models.UserRole) (prev models.UserRole, ok bool, err error) {
	i, found := s.index[role]
	if !found {
		return "", false, appErrors.Clone(appErrors.ErrUnknownRole, fmt.Sprintf("role %q not in approval sequence", role))
	}
	if i == 0 {
		return "", false, nil
	}
	return s.roles[i-1], true, nil
}
