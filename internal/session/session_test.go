package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
)

func testRegistry(accessTTL time.Duration) *Registry {
	return &Registry{
		cfg: config.AuthConfig{
			AccessSecret: []byte("test-access-secret"),
			AccessTTL:    accessTTL,
		},
	}
}

func TestAccessToken_SignAndVerifyRoundTrip(t *testing.T) {
	r := testRegistry(time.Hour)
	s := domain.Session{
		ID:     domain.NewSessionID(),
		UserID: domain.NewUserID(),
	}

	token, err := r.signAccessToken(s)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	sessionID, userID, err := r.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, sessionID)
	assert.Equal(t, s.UserID, userID)
}

func TestAccessToken_RejectsExpired(t *testing.T) {
	r := testRegistry(-time.Minute) // already-expired TTL
	s := domain.Session{ID: domain.NewSessionID(), UserID: domain.NewUserID()}

	token, err := r.signAccessToken(s)
	require.NoError(t, err)

	_, _, err = r.VerifyAccessToken(token)
	require.Error(t, err)
}

func TestAccessToken_RejectsWrongSecret(t *testing.T) {
	issuer := testRegistry(time.Hour)
	s := domain.Session{ID: domain.NewSessionID(), UserID: domain.NewUserID()}
	token, err := issuer.signAccessToken(s)
	require.NoError(t, err)

	verifier := testRegistry(time.Hour)
	verifier.cfg.AccessSecret = []byte("a-completely-different-secret")

	_, _, err = verifier.VerifyAccessToken(token)
	require.Error(t, err)
}

func TestRandomSecret_UniqueAndURLSafe(t *testing.T) {
	a, err := randomSecret(32)
	require.NoError(t, err)
	b, err := randomSecret(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}
