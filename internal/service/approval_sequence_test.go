package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uce-api/internal/models"
)

func TestApprovalSequenceOrdering(t *testing.T) {
	seq, err := NewApprovalSequence([]string{"CEC_HEAD", "VP_DIRECTOR", "COO"})
	require.NoError(t, err)
	require.Equal(t, 3, seq.Len())
	require.Equal(t, models.RoleCECHead, seq.First())

	next, terminal, err := seq.Next(models.RoleCECHead)
	require.NoError(t, err)
	require.False(t, terminal)
	require.Equal(t, models.RoleVPDirector, next)

	next, terminal, err = seq.Next(models.RoleVPDirector)
	require.NoError(t, err)
	require.False(t, terminal)
	require.Equal(t, models.RoleCOO, next)

	_, terminal, err = seq.Next(models.RoleCOO)
	require.NoError(t, err)
	require.True(t, terminal)
}

func TestApprovalSequencePreceding(t *testing.T) {
	seq, err := NewApprovalSequence([]string{"CEC_HEAD", "VP_DIRECTOR", "COO"})
	require.NoError(t, err)

	_, ok, err := seq.Preceding(models.RoleCECHead)
	require.NoError(t, err)
	require.False(t, ok)

	prev, ok, err := seq.Preceding(models.RoleCOO)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, models.RoleVPDirector, prev)
}

func TestApprovalSequenceUnknownRole(t *testing.T) {
	seq, err := NewApprovalSequence([]string{"CEC_HEAD"})
	require.NoError(t, err)

	_, _, err = seq.Next(models.RoleAdmin)
	require.Error(t, err)

	_, _, err = seq.Preceding(models.RoleAdmin)
	require.Error(t, err)
}

func TestApprovalSequenceValidation(t *testing.T) {
	_, err := NewApprovalSequence(nil)
	require.Error(t, err)

	_, err = NewApprovalSequence([]string{"CEC_HEAD", "CEC_HEAD"})
	require.Error(t, err)

	seq, err := NewApprovalSequence([]string{"CEC_HEAD", "VP_DIRECTOR", "EXTERNAL_AUDITOR"})
	require.NoError(t, err)
	require.True(t, seq.Contains(models.UserRole("EXTERNAL_AUDITOR")))
	require.False(t, seq.Contains(models.RoleCOO))
}
