package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
)

func TestApperrStatus_MapsEveryKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.InvalidInput("field", "bad"), http.StatusBadRequest},
		{apperr.TooLarge("too big"), http.StatusBadRequest},
		{apperr.Unauthenticated("nope"), http.StatusUnauthorized},
		{apperr.Forbidden("nope"), http.StatusForbidden},
		{apperr.NotFound("gone"), http.StatusNotFound},
		{apperr.Conflict("clash"), http.StatusConflict},
		{apperr.RateLimited("slow down", 0), http.StatusTooManyRequests},
		{apperr.DependencyUnavailable("redis down", nil), http.StatusServiceUnavailable},
		{apperr.Internal("boom", nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, apperrStatus(c.err))
	}
}
