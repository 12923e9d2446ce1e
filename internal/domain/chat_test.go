package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func TestParticipantRole_CanManageMembers(t *testing.T) {
	assert.True(t, domain.RoleOwner.CanManageMembers())
	assert.True(t, domain.RoleAdmin.CanManageMembers())
	assert.False(t, domain.RoleMember.CanManageMembers())
}

func TestParticipant_IsActive(t *testing.T) {
	p := domain.Participant{}
	assert.True(t, p.IsActive())

	at := p.JoinedAt
	p.LeftAt = &at
	assert.False(t, p.IsActive())
}

func TestMaxGroupParticipants_Boundary(t *testing.T) {
	assert.Equal(t, 300, domain.MaxGroupParticipants)
}
