package cachebus

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestFieldString(t *testing.T) {
	values := map[string]any{"messageId": "abc-123", "other": 7}
	assert.Equal(t, "abc-123", fieldString(values, "messageId"))
	assert.Equal(t, "", fieldString(values, "missing"))
	assert.Equal(t, "", fieldString(values, "other"))
}

func TestFieldInt(t *testing.T) {
	assert.Equal(t, 42, fieldInt(map[string]any{"attempt": "42"}, "attempt"))
	assert.Equal(t, 0, fieldInt(map[string]any{"attempt": "not-a-number"}, "attempt"))
	assert.Equal(t, 0, fieldInt(map[string]any{}, "attempt"))
}

func TestDecodeStreamJobs(t *testing.T) {
	streams := []redis.XStream{
		{
			Stream: deliveryStreamKey,
			Messages: []redis.XMessage{
				{
					ID: "1-0",
					Values: map[string]any{
						"messageId":   "m1",
						"chatId":      "c1",
						"recipientId": "u1",
						"attempt":     "2",
					},
				},
			},
		},
	}
	jobs := decodeStreamJobs(streams)
	require := assert.New(t)
	require.Len(jobs, 1)
	require.Equal("1-0", jobs[0].ID)
	require.Equal("m1", jobs[0].MessageID)
	require.Equal("c1", jobs[0].ChatID)
	require.Equal("u1", jobs[0].RecipientID)
	require.Equal(2, jobs[0].Attempt)
}

func TestIsBusyGroupErr(t *testing.T) {
	assert.True(t, isBusyGroupErr(assertErr("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroupErr(assertErr("some other error")))
	assert.False(t, isBusyGroupErr(nil))
}

type testErr string

func (e testErr) Error() string { return string(e) }

func assertErr(s string) error { return testErr(s) }

func TestDerefOr(t *testing.T) {
	assert.Equal(t, "fallback", derefOr(nil, "fallback"))
	val := "actual"
	assert.Equal(t, "actual", derefOr(&val, "fallback"))
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "session:byId:abc", sessionByIDKey("abc"))
	assert.Equal(t, "session:byRefresh:r-secret", sessionByRefreshKey("r-secret"))
	assert.Equal(t, "session:byUser:u1", sessionByUserKey("u1"))
	assert.Equal(t, "socket:xyz", socketKey("xyz"))
	assert.Equal(t, "chat:c1", chatTopic("c1"))
	assert.Equal(t, "user:u1", userTopic("u1"))
}
