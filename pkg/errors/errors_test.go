package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"configuration", Configurationf("chunk overlap %d >= size %d", 10, 10), false},
		{"dimension", DimensionMismatchf(768, 384), false},
		{"embedding", Embeddingf("connect: %v", stderrors.New("connection refused")), true},
		{"generation", Generationf("upstream: %v", stderrors.New("status 502")), true},
		{"timeout", ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"cancelled session", ErrSessionCancelled, false},
		{"unclassified", stderrors.New("something"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(Configurationf("bad weights")))
	assert.True(t, IsFatal(DimensionMismatchf(8, 4)))
	assert.True(t, IsFatal(ErrUnsupportedFormat))
	assert.False(t, IsFatal(Embeddingf("x")))
	assert.False(t, IsFatal(ErrTimeout))
}

func TestWrappingPreservesSentinel(t *testing.T) {
	err := fmt.Errorf("retrieve: %w", Embeddingf("dial tcp"))
	assert.True(t, stderrors.Is(err, ErrEmbedding))
	assert.ErrorContains(t, err, "dial tcp")

	err = DimensionMismatchf(768, 12)
	assert.True(t, stderrors.Is(err, ErrDimensionMismatch))
	assert.ErrorContains(t, err, "768")
}
