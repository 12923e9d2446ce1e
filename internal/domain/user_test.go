package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func TestValidHandle_Boundary(t *testing.T) {
	cases := []struct {
		handle string
		want   bool
	}{
		{"abc", true},
		{"ab", false},
		{"abc-def", false},
		{"abcDEF_123", true},
		{strings.Repeat("a", 51), false},
		{strings.Repeat("a", 50), true},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, domain.ValidHandle(c.handle), "handle=%q", c.handle)
	}
}

func TestUserStatus_IsValid(t *testing.T) {
	assert.True(t, domain.UserStatusOnline.IsValid())
	assert.True(t, domain.UserStatusOffline.IsValid())
	assert.True(t, domain.UserStatusAway.IsValid())
	assert.False(t, domain.UserStatus("busy").IsValid())
}
