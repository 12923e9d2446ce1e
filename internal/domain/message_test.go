package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func TestMessage_DisplayBody(t *testing.T) {
	m := domain.Message{Body: "hello", Deleted: false}
	assert.Equal(t, "hello", m.DisplayBody())

	m.Deleted = true
	assert.Equal(t, domain.TombstoneBody, m.DisplayBody())
}

func TestMessage_Before(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	earlier := domain.Message{CreatedAt: t0, ID: "a"}
	later := domain.Message{CreatedAt: t0.Add(time.Second), ID: "b"}
	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))

	// same timestamp: tie-broken lexicographically by id
	sameA := domain.Message{CreatedAt: t0, ID: "a"}
	sameB := domain.Message{CreatedAt: t0, ID: "b"}
	assert.True(t, sameA.Before(sameB))
	assert.False(t, sameB.Before(sameA))
}

func TestDeliveryStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to domain.DeliveryStatus
		want     bool
	}{
		{domain.DeliveryStatusSent, domain.DeliveryStatusDelivered, true},
		{domain.DeliveryStatusSent, domain.DeliveryStatusRead, true},
		{domain.DeliveryStatusDelivered, domain.DeliveryStatusRead, true},
		{domain.DeliveryStatusSent, domain.DeliveryStatusSent, true},
		{domain.DeliveryStatusDelivered, domain.DeliveryStatusSent, false},
		{domain.DeliveryStatusRead, domain.DeliveryStatusDelivered, false},
		{domain.DeliveryStatusRead, domain.DeliveryStatusSent, false},
	}
	for _, c := range cases {
		got := c.from.CanTransitionTo(c.to)
		assert.Equalf(t, c.want, got, "%s -> %s", c.from, c.to)
	}
}

func TestMaxBodyLength_Boundary(t *testing.T) {
	ok := strings.Repeat("a", domain.MaxBodyLength)
	tooLong := strings.Repeat("a", domain.MaxBodyLength+1)
	assert.Len(t, ok, 10_000)
	assert.Greater(t, len(tooLong), domain.MaxBodyLength)
}

func TestParseMessageID_Invalid(t *testing.T) {
	_, err := domain.ParseMessageID("not-a-uuid")
	require.ErrorIs(t, err, domain.ErrInvalidID)
}
