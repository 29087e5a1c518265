package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		details   bool
	}{
		{CodeValidation, http.StatusBadRequest, false, true},
		{CodeUnauthorized, http.StatusUnauthorized, false, false},
		{CodeNotFound, http.StatusNotFound, false, false},
		{CodeStateConflict, http.StatusUnprocessableEntity, false, true},
		{CodeIdempotency, http.StatusConflict, false, true},
		{CodeRateLimit, http.StatusTooManyRequests, false, false},
		{CodeDependency, http.StatusServiceUnavailable, true, true},
		{CodeVerification, http.StatusUnauthorized, false, false},
		{CodeInvariant, http.StatusInternalServerError, false, false},
		{"NOT_A_CODE", http.StatusInternalServerError, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.details, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load target")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load target", err.Message())
	assert.Equal(t, "DEPENDENCY_ERROR: load target: connection reset", err.Error())

	bare := Wrap(CodeValidation, nil, "amount must be positive")
	assert.Nil(t, bare.Unwrap())
	assert.Equal(t, "VALIDATION_ERROR: amount must be positive", bare.Error())
}

func TestNewfAndDetails(t *testing.T) {
	err := Newf(CodeStateConflict, "target %s is %s", "t-1", "HELD").WithDetails(map[string]string{"status": "HELD"})
	assert.Equal(t, "target t-1 is HELD", err.Message())
	assert.Equal(t, map[string]string{"status": "HELD"}, err.Details())

	var nilErr *Error
	assert.Equal(t, CodeInternal, nilErr.Code())
	assert.Nil(t, nilErr.WithDetails("ignored"))
	assert.Empty(t, nilErr.Error())
}

func TestAsAndIsCodeFollowChain(t *testing.T) {
	inner := New(CodeInvariant, "sum mismatch")
	outer := fmt.Errorf("recompute: %w", inner)

	require.Same(t, inner, As(outer))
	assert.True(t, IsCode(outer, CodeInvariant))
	assert.False(t, IsCode(outer, CodeDependency))
	assert.False(t, IsCode(nil, CodeInvariant))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"dependency":   {New(CodeDependency, "db down"), true},
		"invariant":    {New(CodeInvariant, "negative sum"), false},
		"verification": {New(CodeVerification, "bad signature"), false},
		"untyped":      {stdErrors.New("eof"), true},
		"nil":          {nil, false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
