package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDFromContext_ReturnsValueWhenPresent(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDContextKey{}, "req-123")
	assert.Equal(t, "req-123", requestIDFromContext(ctx))
}

func TestRequestIDFromContext_FallsBackToRandomWhenAbsent(t *testing.T) {
	id := requestIDFromContext(context.Background())
	assert.NotEmpty(t, id)
}

func TestRequestIDFromContext_FallsBackWhenEmptyStringStored(t *testing.T) {
	ctx := context.WithValue(context.Background(), requestIDContextKey{}, "")
	id := requestIDFromContext(ctx)
	assert.NotEmpty(t, id)
}
