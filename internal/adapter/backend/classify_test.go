package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"inquest/internal/domain"
)

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, Classify(nil))
}

func TestClassifySentinelPassthrough(t *testing.T) {
	for _, sentinel := range callTaxonomy {
		wrapped := fmt.Errorf("call failed: %w", sentinel)
		got := Classify(wrapped)
		assert.ErrorIs(t, got, sentinel)
		assert.Equal(t, wrapped, got, "already classified errors pass through unchanged")
	}
}

func TestClassifyContextErrors(t *testing.T) {
	assert.ErrorIs(t, Classify(context.DeadlineExceeded), domain.ErrTimeout)
	assert.ErrorIs(t, Classify(context.Canceled), domain.ErrTimeout)
}

func TestClassifyByStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{408, domain.ErrTimeout},
		{504, domain.ErrTimeout},
		{429, domain.ErrConnection},
		{502, domain.ErrConnection},
		{503, domain.ErrConnection},
		{400, domain.ErrProtocol},
		{500, domain.ErrProtocol},
	}
	for _, tt := range tests {
		err := fmt.Errorf("backend error %d: nope", tt.status)
		got := Classify(err)
		assert.ErrorIs(t, got, tt.want, "status %d", tt.status)
	}
}

func TestClassifyByString(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"dial tcp 10.0.0.1:9000: i/o timeout", domain.ErrTimeout},
		{"context deadline exceeded while awaiting headers", domain.ErrTimeout},
		{"dial tcp 10.0.0.1:9000: connect: connection refused", domain.ErrConnection},
		{"read tcp: connection reset by peer", domain.ErrConnection},
		{"lookup analysis.internal: no such host", domain.ErrConnection},
		{"unexpected EOF", domain.ErrConnection},
		{"invalid character '<' looking for beginning of value", domain.ErrProtocol},
	}
	for _, tt := range tests {
		got := Classify(errors.New(tt.msg))
		assert.ErrorIs(t, got, tt.want, "message %q", tt.msg)
	}
}

func TestClassifiedErrorsAreRetryableOrNot(t *testing.T) {
	assert.True(t, domain.IsRetryable(Classify(context.DeadlineExceeded)))
	assert.True(t, domain.IsRetryable(Classify(errors.New("connection refused"))))
	assert.False(t, domain.IsRetryable(Classify(errors.New("invalid payload shape"))))
	assert.False(t, domain.IsRetryable(fmt.Errorf("%w: ep", domain.ErrCircuitOpen)))
}

func TestMapStatusError(t *testing.T) {
	assert.ErrorIs(t, mapStatusError(504, []byte("gw timeout")), domain.ErrTimeout)
	assert.ErrorIs(t, mapStatusError(503, nil), domain.ErrConnection)
	assert.ErrorIs(t, mapStatusError(422, []byte("bad shape")), domain.ErrProtocol)

	err := mapStatusError(500, []byte("internal"))
	assert.ErrorIs(t, err, domain.ErrProtocol)
	assert.Contains(t, err.Error(), "backend error 500")
	assert.Contains(t, err.Error(), "internal")
}
