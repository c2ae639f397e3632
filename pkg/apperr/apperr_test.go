package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"authentication", Authentication("no token"), http.StatusUnauthorized},
		{"authorization", Forbidden("NOT_MEMBER", "nope"), http.StatusForbidden},
		{"validation", Invalid("BAD", "bad"), http.StatusBadRequest},
		{"not found", NotFound("GAME_NOT_FOUND", "missing"), http.StatusNotFound},
		{"rate limited", RateLimited(), http.StatusTooManyRequests},
		{"conflict", Conflict("GAME_FULL", "full"), http.StatusConflict},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("joining: %w", Conflict("GAME_FULL", "full")), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("moving: %w", Conflict("NOT_YOUR_TURN", "not your turn"))

	assert.ErrorIs(t, err, Conflict("NOT_YOUR_TURN", ""))
	assert.ErrorIs(t, err, &Error{Kind: KindConflict})
	assert.NotErrorIs(t, err, Conflict("POSITION_TAKEN", ""))
	assert.NotErrorIs(t, err, Invalid("NOT_YOUR_TURN", ""))
}

func TestFrom(t *testing.T) {
	cause := errors.New("db down")
	e := From(fmt.Errorf("loading: %w", cause))

	assert.Equal(t, KindInternal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.ErrorIs(t, e, cause)

	nf := NotFound("X", "missing")
	assert.Same(t, nf, From(nf))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "rate_limited", KindRateLimited.String())
	assert.Equal(t, "internal", Kind(99).String())
}
