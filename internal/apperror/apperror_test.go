package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad", nil), http.StatusBadRequest},
		{Unauthenticated(""), http.StatusUnauthorized},
		{Forbidden("READ", "FINANCE"), http.StatusForbidden},
		{NotFound("role"), http.StatusNotFound},
		{Conflict("dup"), http.StatusConflict},
		{Internal("db", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.Status(), string(tc.err.Kind))
	}
}

func TestInternalBodyHidesCause(t *testing.T) {
	err := Internal("load user", errors.New("dial tcp 10.0.0.1:3306: refused"))

	body := err.Body()

	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, fmt.Sprint(body), "10.0.0.1")
}

func TestForbiddenBodyCarriesRequiredPair(t *testing.T) {
	body := Forbidden("CREATE", "FINANCE").Body()

	req, ok := body["required"].(*Required)
	require.True(t, ok)
	assert.Equal(t, "CREATE", req.Action)
	assert.Equal(t, "FINANCE", req.Subject)
}

func TestAsThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", NotFound("student"))

	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindConflict))
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}
